package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/port/broadcast"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
)

// CheckpointService manages named, timestamped work-state snapshots.
type CheckpointService struct {
	store     database.CheckpointStore
	instances database.InstanceStore
	events    eventstore.Store
	hub       broadcast.Broadcaster
	clock     Clock
	cfg       config.Checkpoint
}

// NewCheckpointService creates a new CheckpointService. events and hub may be nil.
func NewCheckpointService(store database.CheckpointStore, instances database.InstanceStore, events eventstore.Store, hub broadcast.Broadcaster, clock Clock, cfg config.Checkpoint) *CheckpointService {
	return &CheckpointService{store: store, instances: instances, events: events, hub: hub, clock: clock, cfg: cfg}
}

// Create captures a checkpoint at the instance's current event-log position.
func (s *CheckpointService) Create(ctx context.Context, req *checkpoint.CreateRequest) (*checkpoint.Checkpoint, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.instances.GetInstance(ctx, req.InstanceID); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	cp := &checkpoint.Checkpoint{
		ID:             uuid.NewString(),
		InstanceID:     req.InstanceID,
		Type:           req.Type,
		ContextPercent: req.ContextPercent,
		WorkState:      req.WorkState,
		Metadata:       req.Metadata,
		CreatedAt:      s.clock.Now(),
	}
	cp.SequenceNum = s.currentSequence(ctx, req.InstanceID)

	if err := s.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	s.recordCreated(ctx, cp)
	slog.Info("checkpoint created", "checkpoint_id", cp.ID, "instance_id", cp.InstanceID, "type", cp.Type)
	return cp, nil
}

// Get returns a checkpoint by ID.
func (s *CheckpointService) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	return s.store.GetCheckpoint(ctx, id)
}

// ListForInstance returns an instance's checkpoints newest first.
func (s *CheckpointService) ListForInstance(ctx context.Context, instanceID string, limit int) ([]checkpoint.Checkpoint, error) {
	return s.store.ListCheckpoints(ctx, instanceID, limit)
}

// LatestFor returns the newest checkpoint for the instance.
func (s *CheckpointService) LatestFor(ctx context.Context, instanceID string) (*checkpoint.Checkpoint, error) {
	return s.store.LatestCheckpoint(ctx, instanceID)
}

// Cleanup deletes checkpoints outside the retention policy. Zero-valued
// policy fields fall back to the configured defaults. The most recent
// checkpoint of a non-closed instance is never deleted.
func (s *CheckpointService) Cleanup(ctx context.Context, policy checkpoint.RetentionPolicy) (int, error) {
	if policy.MaxAge <= 0 {
		policy.MaxAge = s.cfg.MaxAge
	}
	if policy.MaxPerInstance <= 0 {
		policy.MaxPerInstance = s.cfg.MaxPerInstance
	}

	cutoff := s.clock.Now().Add(-policy.MaxAge)
	n, err := s.store.DeleteCheckpointsBefore(ctx, cutoff, policy.MaxPerInstance)
	if err != nil {
		return 0, fmt.Errorf("cleanup checkpoints: %w", err)
	}
	if n > 0 {
		slog.Info("checkpoints cleaned up", "deleted", n, "max_age", policy.MaxAge, "keep_per_instance", policy.MaxPerInstance)
	}
	return n, nil
}

// currentSequence returns the instance's latest event sequence number, or 0
// when the history is empty or unavailable.
func (s *CheckpointService) currentSequence(ctx context.Context, instanceID string) int64 {
	if s.events == nil {
		return 0
	}
	evs, err := s.events.Replay(ctx, instanceID, 0)
	if err != nil || len(evs) == 0 {
		return 0
	}
	return evs[len(evs)-1].SequenceNum
}

func (s *CheckpointService) recordCreated(ctx context.Context, cp *checkpoint.Checkpoint) {
	if s.events != nil {
		payload, _ := json.Marshal(map[string]string{
			"checkpoint_id": cp.ID,
			"type":          string(cp.Type),
		})
		ev := &event.InstanceEvent{
			ID:         uuid.NewString(),
			InstanceID: cp.InstanceID,
			Type:       event.TypeCheckpointCreated,
			Payload:    payload,
			CreatedAt:  s.clock.Now(),
		}
		if err := s.events.Append(ctx, ev); err != nil {
			slog.Warn("checkpoint event append failed", "checkpoint_id", cp.ID, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "checkpoint.created", map[string]string{
			"instance_id":   cp.InstanceID,
			"checkpoint_id": cp.ID,
			"type":          string(cp.Type),
		})
	}
}
