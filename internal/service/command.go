package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/port/database"
)

// CommandLogService handles the append-only log of discrete instance actions.
type CommandLogService struct {
	store     database.CommandStore
	instances database.InstanceStore
	clock     Clock
}

// NewCommandLogService creates a new CommandLogService.
func NewCommandLogService(store database.CommandStore, instances database.InstanceStore, clock Clock) *CommandLogService {
	return &CommandLogService{store: store, instances: instances, clock: clock}
}

// Log appends a command entry, assigning its ID and timestamp.
func (s *CommandLogService) Log(ctx context.Context, e *command.Entry) (*command.Entry, error) {
	if e.Source == "" {
		e.Source = command.SourceExplicit
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.instances.GetInstance(ctx, e.InstanceID); err != nil {
		return nil, fmt.Errorf("log command: %w", err)
	}

	e.ID = uuid.NewString()
	e.CreatedAt = s.clock.Now()

	if err := s.store.AppendCommand(ctx, e); err != nil {
		return nil, fmt.Errorf("log command: %w", err)
	}
	return e, nil
}

// Search returns entries matching the filter, newest first.
func (s *CommandLogService) Search(ctx context.Context, filter command.Filter) ([]command.Entry, error) {
	return s.store.SearchCommands(ctx, filter)
}

// StatsFor returns per-instance totals and by-type counts.
func (s *CommandLogService) StatsFor(ctx context.Context, instanceID string) (*command.Stats, error) {
	return s.store.CommandStats(ctx, instanceID)
}
