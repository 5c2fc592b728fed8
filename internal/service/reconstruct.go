package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/domain/resume"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
	"github.com/waypointhq/waypoint/internal/port/workspace"
)

// commandScanLimit bounds how many recent commands the command-log branch
// pattern-matches.
const commandScanLimit = 50

// ReconstructService rebuilds an instance's work state from the best
// available source, in strict priority order: checkpoint (if fresh enough),
// event replay, command-log analysis, then registry fields. The last branch
// always succeeds; only a missing instance record is a hard failure.
type ReconstructService struct {
	store         database.Store
	events        eventstore.Store
	probe         workspace.Probe
	clock         Clock
	workspaceRoot string
	cfg           config.Resume
}

// NewReconstructService creates a new ReconstructService. probe may be nil
// (workspace validation is skipped when no probe is available).
func NewReconstructService(store database.Store, events eventstore.Store, probe workspace.Probe, clock Clock, workspaceRoot string, cfg config.Resume) *ReconstructService {
	return &ReconstructService{store: store, events: events, probe: probe, clock: clock, workspaceRoot: workspaceRoot, cfg: cfg}
}

// Reconstruct rebuilds the work state for a resolved instance ID.
// Unavailable sources fall through; they are never fatal.
func (s *ReconstructService) Reconstruct(ctx context.Context, instanceID string) (*resume.Reconstruction, error) {
	in, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", instanceID, err)
	}

	rec := s.fromCheckpoint(ctx, in)
	if rec == nil {
		rec = s.fromEvents(ctx, in)
	}
	if rec == nil {
		rec = s.fromCommands(ctx, in)
	}
	if rec == nil {
		rec = s.fromRegistry(in)
	}

	s.validate(ctx, in, rec)
	return rec, nil
}

// fromCheckpoint uses the latest checkpoint unless it is older than the
// configured cutoff. A stale checkpoint never beats event replay.
func (s *ReconstructService) fromCheckpoint(ctx context.Context, in *instance.Instance) *resume.Reconstruction {
	cp, err := s.store.LatestCheckpoint(ctx, in.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("checkpoint lookup failed, falling through", "instance_id", in.ID, "error", err)
		}
		return nil
	}

	age := s.clock.Now().Sub(cp.CreatedAt)
	if age >= s.cfg.CheckpointMaxAge {
		return nil
	}

	ws := cp.WorkState
	if ws.Project == "" {
		ws.Project = in.Project
	}
	return &resume.Reconstruction{
		InstanceID: in.ID,
		Source:     resume.SourceCheckpoint,
		AgeMinutes: age.Minutes(),
		WorkState:  ws,
	}
}

// fromEvents folds the instance's event history into a work state.
func (s *ReconstructService) fromEvents(ctx context.Context, in *instance.Instance) *resume.Reconstruction {
	evs, err := s.events.Replay(ctx, in.ID, 0)
	if err != nil {
		slog.Warn("event replay failed, falling through", "instance_id", in.ID, "error", err)
		return nil
	}
	if len(evs) == 0 {
		return nil
	}

	ws := event.Fold(evs)
	ws.Project = in.Project
	age := s.clock.Now().Sub(evs[len(evs)-1].CreatedAt)
	return &resume.Reconstruction{
		InstanceID: in.ID,
		Source:     resume.SourceEvents,
		AgeMinutes: age.Minutes(),
		WorkState:  ws,
	}
}

// fromCommands infers a coarser work state by pattern-matching recent
// commands. A weaker signal than events: only coarse VCS and test facts.
func (s *ReconstructService) fromCommands(ctx context.Context, in *instance.Instance) *resume.Reconstruction {
	entries, err := s.store.SearchCommands(ctx, command.Filter{InstanceID: in.ID, Limit: commandScanLimit})
	if err != nil {
		slog.Warn("command search failed, falling through", "instance_id", in.ID, "error", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	ws := checkpoint.WorkState{Project: in.Project}
	if in.CurrentEpic != "" {
		ws.Epic = &checkpoint.EpicState{ID: in.CurrentEpic, Status: "in_progress"}
	}

	// Entries arrive newest first; keep only the latest fact per concern.
	var sawTests, sawCommit, sawPR bool
	for i := range entries {
		e := &entries[i]
		switch {
		case isTestCommand(e) && !sawTests:
			sawTests = true
			t := e.CreatedAt
			ws.Tests = &checkpoint.TestState{LastRun: &t}
			if !e.Success {
				ws.Tests.Failing = 1 // at least one failure; counts unknown
			}
		case isCommitCommand(e) && !sawCommit:
			sawCommit = true
			g := ensureGit(&ws)
			g.LastCommit = strings.TrimSpace(e.Result)
		case isPRCommand(e) && !sawPR:
			sawPR = true
			ensureGit(&ws).LastPR = strings.TrimSpace(e.Result)
		}
	}

	age := s.clock.Now().Sub(entries[0].CreatedAt)
	return &resume.Reconstruction{
		InstanceID: in.ID,
		Source:     resume.SourceCommands,
		AgeMinutes: age.Minutes(),
		WorkState:  ws,
	}
}

// fromRegistry is the always-available basic fallback: registry fields only.
func (s *ReconstructService) fromRegistry(in *instance.Instance) *resume.Reconstruction {
	ws := checkpoint.WorkState{Project: in.Project}
	if in.CurrentEpic != "" {
		ws.Epic = &checkpoint.EpicState{ID: in.CurrentEpic, Status: "in_progress"}
	}
	return &resume.Reconstruction{
		InstanceID: in.ID,
		Source:     resume.SourceBasic,
		AgeMinutes: s.clock.Now().Sub(in.LastHeartbeat).Minutes(),
		WorkState:  ws,
	}
}

// validate checks the reconstructed facts against the workspace and records
// failures for the scorer. Warnings only, never errors.
func (s *ReconstructService) validate(ctx context.Context, in *instance.Instance, rec *resume.Reconstruction) {
	if s.probe == nil {
		return
	}

	dir := filepath.Join(s.workspaceRoot, in.Project)
	if !s.probe.DirectoryExists(ctx, dir) {
		rec.Validation = append(rec.Validation, resume.FailureProjectDirMissing)
		// Branch and file checks are meaningless without the directory.
		return
	}

	if g := rec.WorkState.Git; g != nil && g.Branch != "" {
		if !s.probe.BranchExists(ctx, dir, g.Branch) {
			rec.Validation = append(rec.Validation, resume.FailureBranchMissing)
		}
	}

	for _, f := range rec.WorkState.Files {
		if !s.probe.FileExists(ctx, dir, f) {
			rec.Validation = append(rec.Validation, resume.FailureFilesMissing)
			break
		}
	}
}

func ensureGit(ws *checkpoint.WorkState) *checkpoint.GitState {
	if ws.Git == nil {
		ws.Git = &checkpoint.GitState{}
	}
	return ws.Git
}

func isTestCommand(e *command.Entry) bool {
	return e.CommandType == "test" || strings.Contains(e.Action, "test")
}

func isCommitCommand(e *command.Entry) bool {
	return e.CommandType == "commit" || strings.Contains(e.Action, "commit")
}

func isPRCommand(e *command.Entry) bool {
	return e.CommandType == "pr" || strings.Contains(e.Action, "pull request")
}
