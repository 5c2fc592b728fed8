// Package database defines the port interface for the authoritative backing
// store shared by all instances and the resume engine.
package database

import (
	"context"
	"time"

	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/instance"
)

// ListFilter controls which instances InstanceStore.List returns.
type ListFilter struct {
	Project       string
	IncludeClosed bool
}

// InstanceStore persists the canonical per-instance registry rows.
type InstanceStore interface {
	// CreateInstance inserts a new registry row.
	CreateInstance(ctx context.Context, in *instance.Instance) error

	// GetInstance returns the row for the exact instance ID.
	// Returns domain.ErrNotFound if the ID is unknown.
	GetInstance(ctx context.Context, id string) (*instance.Instance, error)

	// FindByHashFragment returns all instances whose hash segment has the
	// given prefix or suffix.
	FindByHashFragment(ctx context.Context, fragment string) ([]instance.Instance, error)

	// ListInstances returns instances sorted by project, then last heartbeat
	// descending.
	ListInstances(ctx context.Context, filter ListFilter) ([]instance.Instance, error)

	// Heartbeat updates last_heartbeat, context_percent, and optionally the
	// current epic in a single statement. Returns the updated row.
	Heartbeat(ctx context.Context, id string, contextPercent int, currentEpic *string, at time.Time) (*instance.Instance, error)

	// CloseInstance marks the instance closed. Idempotent.
	CloseInstance(ctx context.Context, id string) (*instance.Instance, error)
}

// CheckpointStore persists immutable work-state snapshots.
type CheckpointStore interface {
	CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*checkpoint.Checkpoint, error)

	// ListCheckpoints returns an instance's checkpoints newest first.
	ListCheckpoints(ctx context.Context, instanceID string, limit int) ([]checkpoint.Checkpoint, error)

	// LatestCheckpoint returns the newest checkpoint for the instance, or
	// domain.ErrNotFound if none exist.
	LatestCheckpoint(ctx context.Context, instanceID string) (*checkpoint.Checkpoint, error)

	// DeleteCheckpointsBefore removes checkpoints older than cutoff or beyond
	// keepPerInstance per instance, never the most recent checkpoint of a
	// non-closed instance. Returns the number deleted.
	DeleteCheckpointsBefore(ctx context.Context, cutoff time.Time, keepPerInstance int) (int, error)
}

// CommandStore persists the append-only command log.
type CommandStore interface {
	AppendCommand(ctx context.Context, e *command.Entry) error
	SearchCommands(ctx context.Context, filter command.Filter) ([]command.Entry, error)
	CommandStats(ctx context.Context, instanceID string) (*command.Stats, error)
}

// Store aggregates the registry, checkpoint, and command persistence ports.
// The event log has its own port in port/eventstore.
type Store interface {
	InstanceStore
	CheckpointStore
	CommandStore
}
