package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	otelx "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/port/broadcast"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
	"github.com/waypointhq/waypoint/internal/port/messagequeue"
)

// HeartbeatMonitor periodically scans the registry and notifies observers of
// active-to-stale transitions. Status itself stays derived at read time; the
// monitor only emits the transition signal (event log, queue, websocket).
type HeartbeatMonitor struct {
	store     database.InstanceStore
	events    eventstore.Store
	queue     messagequeue.Queue
	hub       broadcast.Broadcaster
	metrics   *otelx.Metrics
	clock     Clock
	threshold time.Duration
	interval  time.Duration

	// lastSeen tracks the statuses observed in the previous sweep so each
	// transition fires exactly once per stall.
	lastSeen map[string]instance.Status
}

// NewHeartbeatMonitor creates a monitor. queue, hub, and metrics may be nil.
func NewHeartbeatMonitor(store database.InstanceStore, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *otelx.Metrics, clock Clock, threshold, interval time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:     store,
		events:    events,
		queue:     queue,
		hub:       hub,
		metrics:   metrics,
		clock:     clock,
		threshold: threshold,
		interval:  interval,
		lastSeen:  make(map[string]instance.Status),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (m *HeartbeatMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs one scan, emitting notifications for fresh stale transitions.
// Exported so tests can drive it without the ticker.
func (m *HeartbeatMonitor) Sweep(ctx context.Context) {
	all, err := m.store.ListInstances(ctx, database.ListFilter{})
	if err != nil {
		slog.Error("heartbeat monitor sweep failed", "error", err)
		return
	}

	now := m.clock.Now()
	seen := make(map[string]instance.Status, len(all))

	for i := range all {
		in := &all[i]
		status := in.DeriveStatus(now, m.threshold)
		seen[in.ID] = status

		if status == instance.StatusStale && m.lastSeen[in.ID] != instance.StatusStale {
			m.onStale(ctx, in)
		}
	}

	m.lastSeen = seen
}

func (m *HeartbeatMonitor) onStale(ctx context.Context, in *instance.Instance) {
	if m.metrics != nil {
		m.metrics.StaleTransitions.Add(ctx, 1)
	}
	slog.Info("instance went stale",
		"instance_id", in.ID,
		"project", in.Project,
		"last_heartbeat", in.LastHeartbeat,
	)

	if m.events != nil {
		payload, _ := json.Marshal(map[string]string{
			"last_heartbeat": in.LastHeartbeat.Format(time.RFC3339),
		})
		ev := &event.InstanceEvent{
			ID:         uuid.NewString(),
			InstanceID: in.ID,
			Type:       event.TypeStale,
			Payload:    payload,
			CreatedAt:  m.clock.Now(),
		}
		if err := m.events.Append(ctx, ev); err != nil {
			slog.Warn("stale event append failed", "instance_id", in.ID, "error", err)
		}
	}

	if m.queue != nil {
		data, _ := json.Marshal(messagequeue.LifecyclePayload{
			InstanceID:    in.ID,
			Project:       in.Project,
			Status:        string(instance.StatusStale),
			LastHeartbeat: in.LastHeartbeat.Format(time.RFC3339),
		})
		if err := m.queue.Publish(ctx, messagequeue.SubjectInstanceStale, data); err != nil {
			slog.Warn("stale publish failed", "instance_id", in.ID, "error", err)
		}
	}

	if m.hub != nil {
		m.hub.BroadcastEvent(ctx, "instance.status", map[string]any{
			"instance_id": in.ID,
			"project":     in.Project,
			"status":      string(instance.StatusStale),
		})
	}
}
