package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	otelx "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
)

// EventService handles the append-only per-instance event log.
type EventService struct {
	store     eventstore.Store
	instances database.InstanceStore
	metrics   *otelx.Metrics
	clock     Clock
}

// NewEventService creates a new EventService. metrics may be nil.
func NewEventService(store eventstore.Store, instances database.InstanceStore, metrics *otelx.Metrics, clock Clock) *EventService {
	return &EventService{store: store, instances: instances, metrics: metrics, clock: clock}
}

// Emit validates and appends an event. The sequence number is assigned by the
// store atomically.
func (s *EventService) Emit(ctx context.Context, instanceID string, t event.Type, payload, metadata json.RawMessage) (*event.InstanceEvent, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("event_type must be a known type, got %q", t)
	}

	// The instance must exist; the event log never creates registry rows.
	if _, err := s.instances.GetInstance(ctx, instanceID); err != nil {
		return nil, fmt.Errorf("emit %s: %w", t, err)
	}

	ev := &event.InstanceEvent{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Type:       t,
		Payload:    payload,
		Metadata:   metadata,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("emit %s: %w", t, err)
	}
	if s.metrics != nil {
		s.metrics.EventsAppended.Add(ctx, 1)
	}
	return ev, nil
}

// Query returns events matching the filter.
func (s *EventService) Query(ctx context.Context, filter event.Filter) ([]event.InstanceEvent, error) {
	return s.store.Query(ctx, filter)
}

// Replay returns an instance's ordered event history, optionally truncated.
func (s *EventService) Replay(ctx context.Context, instanceID string, upToSequence int64) ([]event.InstanceEvent, error) {
	if _, err := s.instances.GetInstance(ctx, instanceID); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return s.store.Replay(ctx, instanceID, upToSequence)
}

// ListTypes returns the closed set of known event types.
func (s *EventService) ListTypes() []string {
	all := event.All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = string(t)
	}
	return out
}

// AggregateByType returns per-type counts, across all instances when
// instanceID is empty.
func (s *EventService) AggregateByType(ctx context.Context, instanceID string) (map[event.Type]int, error) {
	return s.store.CountByType(ctx, instanceID)
}
