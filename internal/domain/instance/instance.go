// Package instance defines the Instance domain entity for tracked worker sessions.
package instance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Type distinguishes project-scoped workers from meta-scoped coordinators.
type Type string

const (
	TypeWorker      Type = "worker"
	TypeCoordinator Type = "coordinator"
)

// Valid reports whether t is a known instance type.
func (t Type) Valid() bool {
	return t == TypeWorker || t == TypeCoordinator
}

// Status represents the derived lifecycle state of an instance.
type Status string

const (
	StatusActive Status = "active"
	StatusStale  Status = "stale"
	StatusClosed Status = "closed"
)

// DefaultStalenessThreshold is the elapsed time after the last heartbeat
// at which an instance is considered stale.
const DefaultStalenessThreshold = 120 * time.Second

// HashLen is the length of the hex hash segment in an instance ID.
const HashLen = 6

// Instance represents one tracked worker session.
// Status is derived from LastHeartbeat at read time; only "closed" is persisted.
type Instance struct {
	ID             string    `json:"instance_id"`
	Project        string    `json:"project"`
	Type           Type      `json:"type"`
	Status         Status    `json:"status"`
	ContextPercent int       `json:"context_percent"`
	CurrentEpic    string    `json:"current_epic,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
}

// NewID generates an instance ID in the form {project}-{type}-{6 hex chars}.
func NewID(project string, itype Type) string {
	buf := make([]byte, HashLen/2)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s-%s", project, itype, hex.EncodeToString(buf))
}

var idPattern = regexp.MustCompile(`^.+-.+-[0-9a-f]{6}$`)

// IsFullID reports whether s has the full {project}-{type}-{6 hex} shape.
func IsFullID(s string) bool {
	return idPattern.MatchString(s)
}

// HashSegment returns the trailing hex segment of an instance ID,
// or "" if the ID is malformed.
func HashSegment(id string) string {
	i := strings.LastIndex(id, "-")
	if i < 0 || i == len(id)-1 {
		return ""
	}
	return id[i+1:]
}

// DeriveStatus computes the read-time status of the instance.
// Closed is terminal; otherwise active iff the last heartbeat is within threshold.
func (in *Instance) DeriveStatus(now time.Time, threshold time.Duration) Status {
	if in.Status == StatusClosed {
		return StatusClosed
	}
	if now.Sub(in.LastHeartbeat) < threshold {
		return StatusActive
	}
	return StatusStale
}

// RegisterRequest holds the fields needed to register a new instance.
type RegisterRequest struct {
	Project string `json:"project"`
	Type    Type   `json:"type"`
}

// Validate checks the register request.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Project) == "" {
		return fmt.Errorf("project is required")
	}
	if strings.ContainsAny(r.Project, " -/") {
		return fmt.Errorf("project must not contain spaces, dashes, or slashes")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("type must be %q or %q", TypeWorker, TypeCoordinator)
	}
	return nil
}

// HeartbeatRequest holds the mutable fields reported on every heartbeat.
type HeartbeatRequest struct {
	InstanceID     string  `json:"instance_id"`
	ContextPercent int     `json:"context_percent"`
	CurrentEpic    *string `json:"current_epic,omitempty"`
}

// Validate checks the heartbeat request.
func (r *HeartbeatRequest) Validate() error {
	if r.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if r.ContextPercent < 0 || r.ContextPercent > 100 {
		return fmt.Errorf("context_percent must be in [0,100]")
	}
	return nil
}
