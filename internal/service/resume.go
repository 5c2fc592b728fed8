package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelx "github.com/waypointhq/waypoint/internal/adapter/otel"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/domain/resume"
	"github.com/waypointhq/waypoint/internal/port/broadcast"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
	"github.com/waypointhq/waypoint/internal/port/messagequeue"
)

// ResumeEngine orchestrates the full resume pipeline: resolve the hint,
// reconstruct the work state, score it, and produce next steps. Disambiguation
// and not-found are result variants, not errors; the only error paths are an
// active target and infrastructure failures.
type ResumeEngine struct {
	resolver    *ResolverService
	reconstruct *ReconstructService
	scorer      *Scorer
	store       database.Store
	events      eventstore.Store
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	metrics     *otelx.Metrics
	clock       Clock
	cfg         config.Resume
}

// NewResumeEngine creates a new ResumeEngine. queue, hub, and metrics may be
// nil; the pipeline itself never depends on them.
func NewResumeEngine(resolver *ResolverService, reconstruct *ReconstructService, scorer *Scorer, store database.Store, events eventstore.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, metrics *otelx.Metrics, clock Clock, cfg config.Resume) *ResumeEngine {
	return &ResumeEngine{
		resolver:    resolver,
		reconstruct: reconstruct,
		scorer:      scorer,
		store:       store,
		events:      events,
		queue:       queue,
		hub:         hub,
		metrics:     metrics,
		clock:       clock,
		cfg:         cfg,
	}
}

// Resume runs the pipeline for a free-text hint. choice, when non-nil, picks
// a candidate from a prior disambiguation of the same hint by its index.
func (e *ResumeEngine) Resume(ctx context.Context, hint string, choice *int) (*resume.Result, error) {
	ctx, span := otelx.StartResumeSpan(ctx, hint)
	defer span.End()
	started := time.Now()

	res, err := e.resolver.Resolve(ctx, hint)
	if err != nil {
		e.record(ctx, started, "error")
		return nil, err
	}

	var target *instance.Instance
	switch res.Kind {
	case resume.NoMatch:
		e.record(ctx, started, "not_found")
		return &resume.Result{Kind: resume.KindNotFound, Hint: res.Hint}, nil

	case resume.Ambiguous:
		if choice == nil || *choice < 0 || *choice >= len(res.Candidates) {
			e.record(ctx, started, "disambiguation")
			return &resume.Result{
				Kind:       resume.KindDisambiguation,
				Candidates: res.Candidates,
				Hint:       res.Hint,
			}, nil
		}
		target = &res.Candidates[*choice]

	case resume.Resolved:
		target = res.Instance
	}

	rctx, rspan := otelx.StartReconstructSpan(ctx, target.ID)
	rec, err := e.reconstruct.Reconstruct(rctx, target.ID)
	rspan.End()
	if err != nil {
		e.record(ctx, started, "error")
		return nil, fmt.Errorf("resume %s: %w", target.ID, err)
	}

	conf := e.scorer.Score(rec)
	steps := NextSteps(rec)

	e.afterResume(ctx, target, rec)
	e.record(ctx, started, "resumed")
	if e.metrics != nil {
		e.metrics.ConfidenceScore.Record(ctx, int64(conf.Score),
			metric.WithAttributes(attribute.String("source", string(rec.Source))))
		e.metrics.Reconstructions.Add(ctx, 1,
			metric.WithAttributes(attribute.String("source", string(rec.Source))))
	}

	slog.Info("instance resumed",
		"instance_id", target.ID,
		"strategy", res.Strategy,
		"source", rec.Source,
		"score", conf.Score,
		"level", conf.Level)

	return &resume.Result{
		Kind:      resume.KindResumed,
		Instance:  target,
		State:     rec,
		Summary:   buildSummary(target, rec),
		NextSteps: steps,
	}, nil
}

// RecoveryDetails is the full recovery payload for a single instance: the
// registry record plus every persisted artifact a caller needs to rebuild
// context on its own terms.
type RecoveryDetails struct {
	Instance         *instance.Instance     `json:"instance"`
	Reconstruction   *resume.Reconstruction `json:"reconstruction"`
	LatestCheckpoint *checkpoint.Checkpoint `json:"latest_checkpoint,omitempty"`
	RecentEvents     []event.InstanceEvent  `json:"recent_events,omitempty"`
	CommandStats     *command.Stats         `json:"command_stats,omitempty"`
}

// Details assembles the recovery payload for a known instance ID. Missing
// artifacts are omitted, not errors.
func (e *ResumeEngine) Details(ctx context.Context, instanceID string) (*RecoveryDetails, error) {
	in, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("resume details %s: %w", instanceID, err)
	}
	in.Status = in.DeriveStatus(e.clock.Now(), e.resolver.threshold)

	rec, err := e.reconstruct.Reconstruct(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("resume details %s: %w", instanceID, err)
	}
	e.scorer.Score(rec)

	out := &RecoveryDetails{Instance: in, Reconstruction: rec}

	if cp, err := e.store.LatestCheckpoint(ctx, instanceID); err == nil {
		out.LatestCheckpoint = cp
	} else if !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("latest checkpoint lookup failed", "instance_id", instanceID, "error", err)
	}

	evs, err := e.events.Query(ctx, event.Filter{InstanceID: instanceID, Limit: e.cfg.RecentEvents})
	if err != nil {
		slog.Warn("recent events lookup failed", "instance_id", instanceID, "error", err)
	} else {
		out.RecentEvents = evs
	}

	stats, err := e.store.CommandStats(ctx, instanceID)
	if err != nil {
		slog.Warn("command stats lookup failed", "instance_id", instanceID, "error", err)
	} else {
		out.CommandStats = stats
	}

	return out, nil
}

// afterResume records the restore in the event log and notifies subscribers.
// All best-effort.
func (e *ResumeEngine) afterResume(ctx context.Context, in *instance.Instance, rec *resume.Reconstruction) {
	if e.events != nil {
		payload, _ := json.Marshal(map[string]any{
			"source": string(rec.Source),
			"score":  rec.Confidence.Score,
		})
		ev := &event.InstanceEvent{
			ID:         uuid.NewString(),
			InstanceID: in.ID,
			Type:       event.TypeCheckpointRestored,
			Payload:    payload,
			CreatedAt:  e.clock.Now(),
		}
		if err := e.events.Append(ctx, ev); err != nil {
			slog.Warn("restore event append failed", "instance_id", in.ID, "error", err)
		}
	}

	if e.queue != nil {
		data, _ := json.Marshal(messagequeue.LifecyclePayload{
			InstanceID:  in.ID,
			Project:     in.Project,
			Status:      string(in.Status),
			CurrentEpic: in.CurrentEpic,
		})
		if err := e.queue.Publish(ctx, messagequeue.SubjectInstanceResumed, data); err != nil {
			slog.Warn("resume publish failed", "instance_id", in.ID, "error", err)
		}
	}

	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, "instance.resumed", map[string]any{
			"instance_id": in.ID,
			"source":      string(rec.Source),
			"score":       rec.Confidence.Score,
			"level":       string(rec.Confidence.Level),
		})
	}
}

func (e *ResumeEngine) record(ctx context.Context, started time.Time, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.Resumes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	e.metrics.ResumeDuration.Record(ctx, time.Since(started).Seconds())
}

// buildSummary renders a short human-readable handoff for the resumed
// instance.
func buildSummary(in *instance.Instance, rec *resume.Reconstruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resumed %s (project %s) from %s data %s old; confidence %d (%s).",
		in.ID, in.Project, rec.Source, formatAge(rec.AgeMinutes), rec.Confidence.Score, rec.Confidence.Level)

	ws := &rec.WorkState
	if e := ws.Epic; e != nil {
		if e.TasksTotal > 0 {
			fmt.Fprintf(&b, " Epic %s is %s (%d/%d tasks).", e.ID, e.Status, e.TasksDone, e.TasksTotal)
		} else {
			fmt.Fprintf(&b, " Epic %s is %s.", e.ID, e.Status)
		}
	}
	if g := ws.Git; g != nil && g.Branch != "" {
		fmt.Fprintf(&b, " On branch %s", g.Branch)
		if g.UncommittedChanges {
			b.WriteString(" with uncommitted changes")
		}
		if g.UnpushedCommits > 0 {
			fmt.Fprintf(&b, ", %d unpushed commit(s)", g.UnpushedCommits)
		}
		b.WriteString(".")
	}
	if t := ws.Tests; t != nil {
		fmt.Fprintf(&b, " Tests: %d passing, %d failing.", t.Passing, t.Failing)
	}
	if len(rec.Validation) > 0 {
		fmt.Fprintf(&b, " %d workspace check(s) failed.", len(rec.Validation))
	}
	return b.String()
}

func formatAge(minutes float64) string {
	d := time.Duration(minutes * float64(time.Minute))
	if d < time.Minute {
		return "under a minute"
	}
	return d.Round(time.Minute).String()
}
