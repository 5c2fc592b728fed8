package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	otelx "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/port/broadcast"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
	"github.com/waypointhq/waypoint/internal/port/messagequeue"
)

// HeartbeatResult is the heartbeat response: the updated instance plus
// derived flags the caller acts on.
type HeartbeatResult struct {
	Instance *instance.Instance `json:"instance"`
	// Stale reports whether the instance had crossed the staleness threshold
	// before this heartbeat arrived (it is active again now).
	Stale bool `json:"stale"`
	// CheckpointRecommended is set when context usage is at or above the
	// configured hint threshold.
	CheckpointRecommended bool `json:"checkpoint_recommended"`
}

// RegistryService handles instance registration, heartbeats, and lifecycle.
type RegistryService struct {
	store   database.InstanceStore
	events  eventstore.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *otelx.Metrics
	clock   Clock
	cfg     config.Registry
}

// NewRegistryService creates a new RegistryService. queue, hub, and metrics
// may be nil (notifications and instruments are best-effort and skipped when
// absent).
func NewRegistryService(store database.InstanceStore, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *otelx.Metrics, clock Clock, cfg config.Registry) *RegistryService {
	return &RegistryService{store: store, events: events, queue: queue, hub: hub, metrics: metrics, clock: clock, cfg: cfg}
}

// Register creates a new instance with a generated ID and an initial heartbeat.
func (s *RegistryService) Register(ctx context.Context, req *instance.RegisterRequest) (*instance.Instance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	in := &instance.Instance{
		ID:            instance.NewID(req.Project, req.Type),
		Project:       req.Project,
		Type:          req.Type,
		Status:        instance.StatusActive,
		CreatedAt:     now,
		LastHeartbeat: now,
	}

	if err := s.store.CreateInstance(ctx, in); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.appendLifecycleEvent(ctx, in, event.TypeRegistered)
	s.notify(ctx, messagequeue.SubjectInstanceRegistered, in)

	slog.Info("instance registered", "instance_id", in.ID, "project", in.Project, "type", in.Type)
	return in, nil
}

// Heartbeat records a heartbeat, updating context usage and optionally the
// current epic, and recomputes the derived status.
func (s *RegistryService) Heartbeat(ctx context.Context, req *instance.HeartbeatRequest) (*HeartbeatResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Previous row decides whether this heartbeat revived a stale instance.
	prev, err := s.store.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	now := s.clock.Now()
	wasStale := prev.DeriveStatus(now, s.cfg.StalenessThreshold) == instance.StatusStale

	in, err := s.store.Heartbeat(ctx, req.InstanceID, req.ContextPercent, req.CurrentEpic, now)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	in.Status = in.DeriveStatus(now, s.cfg.StalenessThreshold)

	if s.metrics != nil {
		s.metrics.Heartbeats.Add(ctx, 1)
	}

	res := &HeartbeatResult{
		Instance:              in,
		Stale:                 wasStale,
		CheckpointRecommended: s.cfg.CheckpointHint > 0 && req.ContextPercent >= s.cfg.CheckpointHint,
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "instance.status", map[string]any{
			"instance_id":     in.ID,
			"project":         in.Project,
			"status":          string(in.Status),
			"context_percent": in.ContextPercent,
		})
	}

	return res, nil
}

// List returns instances with derived statuses, sorted by project then recency.
func (s *RegistryService) List(ctx context.Context, project string, includeClosed bool) ([]instance.Instance, error) {
	out, err := s.store.ListInstances(ctx, database.ListFilter{Project: project, IncludeClosed: includeClosed})
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	s.deriveAll(out)
	return out, nil
}

// ListStale returns all non-closed instances currently past the staleness threshold.
func (s *RegistryService) ListStale(ctx context.Context) ([]instance.Instance, error) {
	all, err := s.store.ListInstances(ctx, database.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	s.deriveAll(all)

	var stale []instance.Instance
	for _, in := range all {
		if in.Status == instance.StatusStale {
			stale = append(stale, in)
		}
	}
	return stale, nil
}

// GetDetails resolves an exact ID or a hash fragment to a single instance.
// Returns (nil, nil) when nothing matches, the instance when exactly one
// matches, and an error when the fragment is ambiguous.
func (s *RegistryService) GetDetails(ctx context.Context, idOrFragment string) (*instance.Instance, error) {
	if instance.IsFullID(idOrFragment) {
		in, err := s.store.GetInstance(ctx, idOrFragment)
		if err != nil {
			return nil, err
		}
		in.Status = in.DeriveStatus(s.clock.Now(), s.cfg.StalenessThreshold)
		return in, nil
	}

	matches, err := s.store.FindByHashFragment(ctx, idOrFragment)
	if err != nil {
		return nil, fmt.Errorf("get details: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		in := matches[0]
		in.Status = in.DeriveStatus(s.clock.Now(), s.cfg.StalenessThreshold)
		return &in, nil
	default:
		return nil, fmt.Errorf("fragment %q matches %d instances", idOrFragment, len(matches))
	}
}

// Close marks an instance closed. Closing is terminal and idempotent.
func (s *RegistryService) Close(ctx context.Context, id string) (*instance.Instance, error) {
	in, err := s.store.CloseInstance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	in.Status = instance.StatusClosed

	s.appendLifecycleEvent(ctx, in, event.TypeClosed)
	s.notify(ctx, messagequeue.SubjectInstanceClosed, in)

	slog.Info("instance closed", "instance_id", in.ID)
	return in, nil
}

// StalenessThreshold exposes the configured threshold to collaborators.
func (s *RegistryService) StalenessThreshold() time.Duration {
	return s.cfg.StalenessThreshold
}

func (s *RegistryService) deriveAll(list []instance.Instance) {
	now := s.clock.Now()
	for i := range list {
		list[i].Status = list[i].DeriveStatus(now, s.cfg.StalenessThreshold)
	}
}

// appendLifecycleEvent records a registry transition in the event log.
// Best-effort: a log failure does not fail the registry write.
func (s *RegistryService) appendLifecycleEvent(ctx context.Context, in *instance.Instance, t event.Type) {
	if s.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"project": in.Project, "status": string(in.Status)})
	ev := &event.InstanceEvent{
		ID:         uuid.NewString(),
		InstanceID: in.ID,
		Type:       t,
		Payload:    payload,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.events.Append(ctx, ev); err != nil {
		slog.Warn("lifecycle event append failed", "instance_id", in.ID, "type", t, "error", err)
	}
}

func (s *RegistryService) notify(ctx context.Context, subject string, in *instance.Instance) {
	if s.queue == nil {
		return
	}
	data, _ := json.Marshal(messagequeue.LifecyclePayload{
		InstanceID:    in.ID,
		Project:       in.Project,
		Status:        string(in.Status),
		CurrentEpic:   in.CurrentEpic,
		LastHeartbeat: in.LastHeartbeat.Format(time.RFC3339),
	})
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("lifecycle publish failed", "subject", subject, "error", err)
	}
}
