package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/domain/resume"
	"github.com/waypointhq/waypoint/internal/port/database"
)

// Resolver strategy names, in priority order.
const (
	StrategyExactID       = "exact_id"
	StrategyPartialID     = "partial_id"
	StrategyProjectLatest = "project_latest"
	StrategyEpicMatch     = "epic_match"
	StrategyNewestStale   = "newest_stale"
)

// Partial-ID hints must be a prefix or suffix of the 6-char hash segment.
const (
	partialHintMin = 4
	partialHintMax = instance.HashLen
)

// ResolverService turns a free-text hint into zero, one, or many candidate
// instances. Strategies run in fixed priority order; the first non-empty
// result wins. Disambiguation is a result variant, never an error.
type ResolverService struct {
	store     database.InstanceStore
	clock     Clock
	threshold time.Duration
}

// NewResolverService creates a new ResolverService.
func NewResolverService(store database.InstanceStore, clock Clock, threshold time.Duration) *ResolverService {
	return &ResolverService{store: store, clock: clock, threshold: threshold}
}

// Resolve maps hint onto stale instances. An empty hint selects the most
// recently stale instance overall. Returns domain.ErrActiveInstance when the
// hint unambiguously names an instance that is still heartbeating; that check
// always runs against a fresh registry read.
func (s *ResolverService) Resolve(ctx context.Context, hint string) (*resume.Resolution, error) {
	hint = strings.TrimSpace(hint)

	if hint == "" {
		return s.newestStale(ctx)
	}

	if instance.IsFullID(hint) {
		res, done, err := s.exactID(ctx, hint)
		if err != nil || done {
			return res, err
		}
	}

	if isPartialHint(hint) {
		res, done, err := s.partialID(ctx, hint)
		if err != nil || done {
			return res, err
		}
	}

	if res, done, err := s.projectLatest(ctx, hint); err != nil || done {
		return res, err
	}

	if res, done, err := s.epicMatch(ctx, hint); err != nil || done {
		return res, err
	}

	return &resume.Resolution{Kind: resume.NoMatch, Hint: hint}, nil
}

// isPartialHint reports whether hint is a plausible hash fragment: 4-6 hex
// characters. Anything shorter is rejected outright for this strategy so a
// 2-char hint can never silently match half the fleet.
func isPartialHint(hint string) bool {
	if len(hint) < partialHintMin || len(hint) > partialHintMax {
		return false
	}
	for _, r := range hint {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func (s *ResolverService) exactID(ctx context.Context, hint string) (*resume.Resolution, bool, error) {
	in, err := s.store.GetInstance(ctx, hint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil // fall through to weaker strategies
		}
		return nil, false, err
	}

	switch in.DeriveStatus(s.clock.Now(), s.threshold) {
	case instance.StatusActive:
		return nil, false, fmt.Errorf("resolve %s: %w", hint, domain.ErrActiveInstance)
	case instance.StatusClosed:
		return nil, false, nil
	default:
		in.Status = instance.StatusStale
		return &resume.Resolution{Kind: resume.Resolved, Strategy: StrategyExactID, Instance: in, Hint: hint}, true, nil
	}
}

func (s *ResolverService) partialID(ctx context.Context, hint string) (*resume.Resolution, bool, error) {
	matches, err := s.store.FindByHashFragment(ctx, hint)
	if err != nil {
		return nil, false, fmt.Errorf("partial id %q: %w", hint, err)
	}

	now := s.clock.Now()
	var stale []instance.Instance
	activeOnly := false
	for _, in := range matches {
		switch in.DeriveStatus(now, s.threshold) {
		case instance.StatusStale:
			in.Status = instance.StatusStale
			stale = append(stale, in)
		case instance.StatusActive:
			activeOnly = true
		}
	}

	switch len(stale) {
	case 0:
		if activeOnly {
			// The only matches are still heartbeating: surface the ownership
			// guard rather than silently falling through to other strategies.
			return nil, false, fmt.Errorf("resolve %s: %w", hint, domain.ErrActiveInstance)
		}
		return nil, false, nil
	case 1:
		return &resume.Resolution{Kind: resume.Resolved, Strategy: StrategyPartialID, Instance: &stale[0], Hint: hint}, true, nil
	default:
		return s.disambiguation(StrategyPartialID, hint, stale), true, nil
	}
}

func (s *ResolverService) projectLatest(ctx context.Context, hint string) (*resume.Resolution, bool, error) {
	stale, err := s.staleInProject(ctx, hint)
	if err != nil {
		return nil, false, err
	}

	switch len(stale) {
	case 0:
		return nil, false, nil
	case 1:
		return &resume.Resolution{Kind: resume.Resolved, Strategy: StrategyProjectLatest, Instance: &stale[0], Hint: hint}, true, nil
	default:
		return s.disambiguation(StrategyProjectLatest, hint, stale), true, nil
	}
}

func (s *ResolverService) epicMatch(ctx context.Context, hint string) (*resume.Resolution, bool, error) {
	all, err := s.store.ListInstances(ctx, database.ListFilter{})
	if err != nil {
		return nil, false, fmt.Errorf("epic match %q: %w", hint, err)
	}

	now := s.clock.Now()
	var stale []instance.Instance
	for _, in := range all {
		if in.CurrentEpic == hint && in.DeriveStatus(now, s.threshold) == instance.StatusStale {
			in.Status = instance.StatusStale
			stale = append(stale, in)
		}
	}
	if len(stale) == 0 {
		return nil, false, nil
	}

	sortByRecency(stale)
	return &resume.Resolution{Kind: resume.Resolved, Strategy: StrategyEpicMatch, Instance: &stale[0], Hint: hint}, true, nil
}

func (s *ResolverService) newestStale(ctx context.Context) (*resume.Resolution, error) {
	all, err := s.store.ListInstances(ctx, database.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("newest stale: %w", err)
	}

	now := s.clock.Now()
	var stale []instance.Instance
	for _, in := range all {
		if in.DeriveStatus(now, s.threshold) == instance.StatusStale {
			in.Status = instance.StatusStale
			stale = append(stale, in)
		}
	}
	if len(stale) == 0 {
		return &resume.Resolution{Kind: resume.NoMatch}, nil
	}

	sortByRecency(stale)
	return &resume.Resolution{Kind: resume.Resolved, Strategy: StrategyNewestStale, Instance: &stale[0]}, nil
}

func (s *ResolverService) staleInProject(ctx context.Context, project string) ([]instance.Instance, error) {
	all, err := s.store.ListInstances(ctx, database.ListFilter{Project: project})
	if err != nil {
		return nil, fmt.Errorf("project latest %q: %w", project, err)
	}

	now := s.clock.Now()
	var stale []instance.Instance
	for _, in := range all {
		if in.DeriveStatus(now, s.threshold) == instance.StatusStale {
			in.Status = instance.StatusStale
			stale = append(stale, in)
		}
	}
	return stale, nil
}

// disambiguation builds an Ambiguous result with candidates sorted most
// recently heartbeated first.
func (s *ResolverService) disambiguation(strategy, hint string, candidates []instance.Instance) *resume.Resolution {
	sortByRecency(candidates)
	return &resume.Resolution{
		Kind:       resume.Ambiguous,
		Strategy:   strategy,
		Candidates: candidates,
		Hint: fmt.Sprintf("%d stale instances match %q; re-run with a longer hash fragment or a choice index (0-%d)",
			len(candidates), hint, len(candidates)-1),
	}
}

func sortByRecency(list []instance.Instance) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastHeartbeat.After(list[j].LastHeartbeat)
	})
}
