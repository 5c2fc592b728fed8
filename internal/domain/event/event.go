// Package event defines the InstanceEvent domain entity for the append-only
// per-instance history log.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of instance event. The enum is closed: stores
// reject types not listed here so replay stays deterministic.
type Type string

const (
	TypeRegistered Type = "instance.registered"
	TypeHeartbeat  Type = "instance.heartbeat"
	TypeStale      Type = "instance.stale"
	TypeClosed     Type = "instance.closed"

	TypeEpicStarted   Type = "epic.started"
	TypeEpicCompleted Type = "epic.completed"
	TypeEpicBlocked   Type = "epic.blocked"
	TypeTaskCompleted Type = "task.completed"

	TypeTestPassed Type = "test.passed"
	TypeTestFailed Type = "test.failed"

	TypeCommitCreated Type = "commit.created"
	TypePROpened      Type = "pr.opened"
	TypePRMerged      Type = "pr.merged"
	TypeDeployStarted Type = "deploy.started"
	TypeDeployDone    Type = "deploy.completed"

	TypeCheckpointCreated  Type = "checkpoint.created"
	TypeCheckpointRestored Type = "checkpoint.restored"
)

// All returns every known event type, in declaration order.
func All() []Type {
	return []Type{
		TypeRegistered, TypeHeartbeat, TypeStale, TypeClosed,
		TypeEpicStarted, TypeEpicCompleted, TypeEpicBlocked, TypeTaskCompleted,
		TypeTestPassed, TypeTestFailed,
		TypeCommitCreated, TypePROpened, TypePRMerged,
		TypeDeployStarted, TypeDeployDone,
		TypeCheckpointCreated, TypeCheckpointRestored,
	}
}

// Valid reports whether t is part of the closed enum.
func (t Type) Valid() bool {
	for _, k := range All() {
		if t == k {
			return true
		}
	}
	return false
}

// InstanceEvent represents a single immutable fact in an instance's history.
// SequenceNum is unique per (instance, sequence) and strictly increasing.
type InstanceEvent struct {
	ID          string          `json:"event_id"`
	InstanceID  string          `json:"instance_id"`
	Type        Type            `json:"event_type"`
	SequenceNum int64           `json:"sequence_num"`
	Payload     json.RawMessage `json:"event_data,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"timestamp"`
}

// Filter controls which events Query returns.
type Filter struct {
	InstanceID string     `json:"instance_id,omitempty"`
	Types      []Type     `json:"types,omitempty"`
	After      *time.Time `json:"after,omitempty"`
	Before     *time.Time `json:"before,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}
