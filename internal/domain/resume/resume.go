// Package resume defines the derived types produced by the resume pipeline:
// resolver output, reconstructed state, confidence assessments, and the
// three-variant resume result.
package resume

import (
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/instance"
)

// Source identifies which reconstruction branch produced a work state.
type Source string

const (
	SourceCheckpoint Source = "checkpoint"
	SourceEvents     Source = "events"
	SourceCommands   Source = "commands"
	SourceBasic      Source = "basic"
)

// Level is the qualitative confidence bucket for a reconstruction.
type Level string

const (
	LevelHigh     Level = "high"      // safe to auto-resume
	LevelModerate Level = "moderate"  // verify manually
	LevelLow      Level = "low"       // manual verification required
	LevelVeryLow  Level = "very-low"  // risky, consider starting fresh
)

// Confidence is a 0-100 trust assessment of a reconstruction.
type Confidence struct {
	Score  int    `json:"score"`
	Level  Level  `json:"level"`
	Reason string `json:"reason"`
}

// Reconstruction is the rebuilt picture of what an instance was doing.
// Derived, never persisted.
type Reconstruction struct {
	InstanceID string               `json:"instance_id"`
	Source     Source               `json:"source"`
	AgeMinutes float64              `json:"age_minutes"`
	WorkState  checkpoint.WorkState `json:"work_state"`
	// Validation holds human-readable notes for each workspace check that
	// failed; the scorer converts them into penalties.
	Validation []ValidationFailure `json:"validation_failures,omitempty"`
	Confidence *Confidence         `json:"confidence,omitempty"`
}

// ValidationFailure identifies one workspace fact that no longer holds.
type ValidationFailure string

const (
	FailureProjectDirMissing ValidationFailure = "project_dir_missing"
	FailureBranchMissing     ValidationFailure = "branch_missing"
	FailureFilesMissing      ValidationFailure = "files_missing"
)

// ResolutionKind discriminates the resolver's three-variant result.
type ResolutionKind string

const (
	Resolved  ResolutionKind = "resolved"
	Ambiguous ResolutionKind = "ambiguous"
	NoMatch   ResolutionKind = "no_match"
)

// Resolution is the outcome of mapping a free-text hint onto instances.
// Disambiguation is a normal result variant, never an error.
type Resolution struct {
	Kind     ResolutionKind      `json:"kind"`
	Strategy string              `json:"strategy,omitempty"`
	Instance *instance.Instance  `json:"instance,omitempty"`
	// Candidates are sorted by last heartbeat, most recent first.
	Candidates []instance.Instance `json:"candidates,omitempty"`
	Hint       string              `json:"hint,omitempty"`
}

// ResultKind discriminates the resume engine's result.
type ResultKind string

const (
	KindResumed        ResultKind = "resumed"
	KindDisambiguation ResultKind = "disambiguation"
	KindNotFound       ResultKind = "not_found"
)

// Result is the outcome of a single resume call.
type Result struct {
	Kind       ResultKind          `json:"kind"`
	Instance   *instance.Instance  `json:"instance,omitempty"`
	State      *Reconstruction     `json:"state,omitempty"`
	Summary    string              `json:"summary,omitempty"`
	NextSteps  []string            `json:"next_steps,omitempty"`
	Candidates []instance.Instance `json:"candidates,omitempty"`
	Hint       string              `json:"hint,omitempty"`
}
