package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

var _ eventstore.Store = (*EventStore)(nil)

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// appendRetries bounds how often a sequence conflict is retried before the
// append fails. Conflicts only occur when the same instance appends
// concurrently, so contention is low and a handful of retries is plenty.
const appendRetries = 8

// eventColumns is the SELECT column list for instance_events queries.
const eventColumns = `id, instance_id, event_type, sequence_num, payload, metadata, created_at`

func scanEvent(sc scannable, ev *event.InstanceEvent) error {
	return sc.Scan(&ev.ID, &ev.InstanceID, &ev.Type, &ev.SequenceNum, &ev.Payload, &ev.Metadata, &ev.CreatedAt)
}

// Append inserts a new event, assigning max(sequence_num)+1 for the instance
// inside the INSERT itself. The UNIQUE (instance_id, sequence_num) constraint
// turns a concurrent-append race into a 23505, which is retried here; callers
// never see a sequence conflict.
func (s *EventStore) Append(ctx context.Context, ev *event.InstanceEvent) error {
	backoff := retry.WithMaxRetries(appendRetries, retry.NewConstant(5*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx,
			`INSERT INTO instance_events (id, instance_id, event_type, sequence_num, payload, metadata, created_at)
			 SELECT $1, $2, $3, COALESCE(MAX(sequence_num), 0) + 1, $4, $5, $6
			 FROM instance_events WHERE instance_id = $2
			 RETURNING sequence_num`,
			ev.ID, ev.InstanceID, string(ev.Type), ev.Payload, ev.Metadata, ev.CreatedAt)

		if err := row.Scan(&ev.SequenceNum); err != nil {
			if isUniqueViolation(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first, so a limit keeps
// the most recent ones.
func (s *EventStore) Query(ctx context.Context, filter event.Filter) ([]event.InstanceEvent, error) {
	args := []any{}
	conditions := []string{}
	argIdx := 1

	if filter.InstanceID != "" {
		conditions = append(conditions, fmt.Sprintf("instance_id = $%d", argIdx))
		args = append(args, filter.InstanceID)
		argIdx++
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("event_type = ANY($%d)", argIdx))
		args = append(args, types)
		argIdx++
	}
	if filter.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, *filter.After)
		argIdx++
	}
	if filter.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, *filter.Before)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM instance_events`, eventColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, sequence_num DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// Replay returns an instance's events ordered by sequence number ascending.
func (s *EventStore) Replay(ctx context.Context, instanceID string, upToSequence int64) ([]event.InstanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM instance_events WHERE instance_id = $1`, eventColumns)
	args := []any{instanceID}
	if upToSequence > 0 {
		query += ` AND sequence_num <= $2`
		args = append(args, upToSequence)
	}
	query += ` ORDER BY sequence_num ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay events for %s: %w", instanceID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// CountByType returns per-type event counts.
func (s *EventStore) CountByType(ctx context.Context, instanceID string) (map[event.Type]int, error) {
	query := `SELECT event_type, COUNT(*) FROM instance_events`
	args := []any{}
	if instanceID != "" {
		query += ` WHERE instance_id = $1`
		args = append(args, instanceID)
	}
	query += ` GROUP BY event_type`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Type]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[event.Type(t)] = n
	}
	return counts, rows.Err()
}

func collectEvents(rows pgx.Rows) ([]event.InstanceEvent, error) {
	var out []event.InstanceEvent
	for rows.Next() {
		var ev event.InstanceEvent
		if err := scanEvent(rows, &ev); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
