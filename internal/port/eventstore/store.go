// Package eventstore defines the port interface for the append-only
// per-instance event log.
package eventstore

import (
	"context"

	"github.com/waypointhq/waypoint/internal/domain/event"
)

// Store is the port interface for appending and loading instance events.
type Store interface {
	// Append persists a new event, assigning the next sequence number for the
	// instance atomically. Safe under concurrent appends to the same instance;
	// sequence conflicts are retried internally.
	Append(ctx context.Context, ev *event.InstanceEvent) error

	// Query returns events matching the filter, newest first; a limit keeps
	// the most recent matches.
	Query(ctx context.Context, filter event.Filter) ([]event.InstanceEvent, error)

	// Replay returns an instance's events ordered by sequence number ascending.
	// upToSequence <= 0 means the full history.
	Replay(ctx context.Context, instanceID string, upToSequence int64) ([]event.InstanceEvent, error)

	// CountByType returns per-type event counts, across all instances when
	// instanceID is empty.
	CountByType(ctx context.Context, instanceID string) (map[event.Type]int, error)
}
