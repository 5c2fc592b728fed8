// Package checkpoint defines checkpoint snapshots and the WorkState shape
// shared by checkpoints and reconstructions.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// CaptureType distinguishes operator-requested snapshots from automatic ones.
type CaptureType string

const (
	CaptureManual CaptureType = "manual"
	CaptureAuto   CaptureType = "auto"
)

// Valid reports whether t is a known capture type.
func (t CaptureType) Valid() bool {
	return t == CaptureManual || t == CaptureAuto
}

// EpicState captures progress on the instance's current epic.
type EpicState struct {
	ID         string `json:"id"`
	Status     string `json:"status"` // in_progress | completed | blocked
	TasksDone  int    `json:"tasks_done"`
	TasksTotal int    `json:"tasks_total"`
}

// GitState captures the VCS facts recorded at snapshot time.
type GitState struct {
	Branch             string `json:"branch,omitempty"`
	LastCommit         string `json:"last_commit,omitempty"`
	LastPR             string `json:"last_pr,omitempty"`
	UncommittedChanges bool   `json:"uncommitted_changes"`
	UnpushedCommits    int    `json:"unpushed_commits"`
}

// TestState captures the last known test outcome counts.
type TestState struct {
	Passing int        `json:"passing"`
	Failing int        `json:"failing"`
	LastRun *time.Time `json:"last_run,omitempty"`
}

// WorkState is a structured snapshot of what an instance was doing.
// Every reconstruction source produces this same shape.
type WorkState struct {
	Project string     `json:"project,omitempty"`
	Epic    *EpicState `json:"epic,omitempty"`
	Git     *GitState  `json:"git,omitempty"`
	Tests   *TestState `json:"tests,omitempty"`
	Files   []string   `json:"files,omitempty"`
}

// Checkpoint is a point-in-time snapshot of an instance's work state.
// Never mutated after creation.
type Checkpoint struct {
	ID             string          `json:"checkpoint_id"`
	InstanceID     string          `json:"instance_id"`
	Type           CaptureType     `json:"checkpoint_type"`
	SequenceNum    int64           `json:"sequence_num"`
	ContextPercent int             `json:"context_window_percent"`
	WorkState      WorkState       `json:"work_state"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`
}

// CreateRequest holds the fields needed to capture a checkpoint.
type CreateRequest struct {
	InstanceID     string          `json:"instance_id"`
	Type           CaptureType     `json:"checkpoint_type"`
	ContextPercent int             `json:"context_window_percent"`
	WorkState      WorkState       `json:"work_state"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the create request.
func (r *CreateRequest) Validate() error {
	if r.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("checkpoint_type must be %q or %q", CaptureManual, CaptureAuto)
	}
	if r.ContextPercent < 0 || r.ContextPercent > 100 {
		return fmt.Errorf("context_window_percent must be in [0,100]")
	}
	return nil
}

// RetentionPolicy bounds how many checkpoints are kept per instance and for
// how long. The most recent checkpoint of a non-closed instance is always kept.
type RetentionPolicy struct {
	MaxAge         time.Duration `json:"max_age"`
	MaxPerInstance int           `json:"max_per_instance"`
}
