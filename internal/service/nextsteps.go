package service

import (
	"fmt"

	"github.com/waypointhq/waypoint/internal/domain/resume"
)

// NextSteps derives actionable suggestions from a reconstruction. The list is
// ordered most to least urgent and is never empty.
func NextSteps(rec *resume.Reconstruction) []string {
	var steps []string
	ws := &rec.WorkState

	if g := ws.Git; g != nil {
		if g.UncommittedChanges {
			steps = append(steps, "Review and commit uncommitted changes before continuing")
		}
		if g.UnpushedCommits > 0 {
			steps = append(steps, fmt.Sprintf("Push %d unpushed commit(s) on branch %q", g.UnpushedCommits, g.Branch))
		}
	}

	if t := ws.Tests; t != nil {
		if t.Failing > 0 {
			steps = append(steps, fmt.Sprintf("Fix %d failing test(s) before new work", t.Failing))
		} else if t.Passing > 0 {
			steps = append(steps, fmt.Sprintf("Tests are green (%d passing); safe to continue", t.Passing))
		}
	}

	if e := ws.Epic; e != nil {
		switch e.Status {
		case "blocked":
			steps = append(steps, fmt.Sprintf("Epic %s is blocked; resolve the blocker or pick a different epic", e.ID))
		case "completed":
			steps = append(steps, fmt.Sprintf("Epic %s is complete; pick the next epic", e.ID))
		default:
			if e.TasksTotal > 0 {
				steps = append(steps, fmt.Sprintf("Continue epic %s (%d/%d tasks done)", e.ID, e.TasksDone, e.TasksTotal))
			} else {
				steps = append(steps, fmt.Sprintf("Continue epic %s", e.ID))
			}
		}
	}

	for _, f := range rec.Validation {
		switch f {
		case resume.FailureProjectDirMissing:
			steps = append(steps, "Project directory is missing; re-clone the workspace before resuming")
		case resume.FailureBranchMissing:
			steps = append(steps, "Recorded branch no longer exists; check out or recreate it")
		case resume.FailureFilesMissing:
			steps = append(steps, "Some recorded files are missing; verify the working tree")
		}
	}

	if len(steps) == 0 {
		steps = append(steps, "Verify current state and continue where the instance left off")
	}
	return steps
}
