package event

import (
	"encoding/json"

	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
)

// epicPayload is the expected payload shape for epic lifecycle events.
type epicPayload struct {
	EpicID     string `json:"epic_id"`
	TasksDone  int    `json:"tasks_done"`
	TasksTotal int    `json:"tasks_total"`
	Reason     string `json:"reason,omitempty"`
}

// testPayload is the expected payload shape for test outcome events.
type testPayload struct {
	Passing int `json:"passing"`
	Failing int `json:"failing"`
}

// vcsPayload is the expected payload shape for commit/PR/deploy events.
type vcsPayload struct {
	Branch string   `json:"branch,omitempty"`
	Commit string   `json:"commit,omitempty"`
	PR     string   `json:"pr,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// Fold replays an ordered event sequence into a WorkState snapshot.
// Later events win; unknown or malformed payloads are skipped rather than
// failing the whole replay.
func Fold(events []InstanceEvent) checkpoint.WorkState {
	var ws checkpoint.WorkState

	for i := range events {
		ev := &events[i]
		switch ev.Type {
		case TypeEpicStarted:
			var p epicPayload
			if unmarshal(ev.Payload, &p) {
				ws.Epic = &checkpoint.EpicState{ID: p.EpicID, Status: "in_progress", TasksDone: p.TasksDone, TasksTotal: p.TasksTotal}
			}
		case TypeEpicCompleted:
			var p epicPayload
			if unmarshal(ev.Payload, &p) {
				ws.Epic = &checkpoint.EpicState{ID: p.EpicID, Status: "completed", TasksDone: p.TasksTotal, TasksTotal: p.TasksTotal}
			}
		case TypeEpicBlocked:
			var p epicPayload
			if unmarshal(ev.Payload, &p) && ws.Epic != nil && ws.Epic.ID == p.EpicID {
				ws.Epic.Status = "blocked"
			}
		case TypeTaskCompleted:
			if ws.Epic != nil {
				ws.Epic.TasksDone++
			}
		case TypeTestPassed, TypeTestFailed:
			var p testPayload
			if unmarshal(ev.Payload, &p) {
				t := ev.CreatedAt
				ws.Tests = &checkpoint.TestState{Passing: p.Passing, Failing: p.Failing, LastRun: &t}
			}
		case TypeCommitCreated:
			var p vcsPayload
			if unmarshal(ev.Payload, &p) {
				g := gitState(&ws)
				g.LastCommit = p.Commit
				if p.Branch != "" {
					g.Branch = p.Branch
				}
				g.UncommittedChanges = false
				g.UnpushedCommits++
				ws.Files = mergeFiles(ws.Files, p.Files)
			}
		case TypePROpened:
			var p vcsPayload
			if unmarshal(ev.Payload, &p) {
				g := gitState(&ws)
				g.LastPR = p.PR
				g.UnpushedCommits = 0
			}
		case TypePRMerged:
			var p vcsPayload
			if unmarshal(ev.Payload, &p) {
				gitState(&ws).LastPR = p.PR
			}
		}
	}

	return ws
}

func gitState(ws *checkpoint.WorkState) *checkpoint.GitState {
	if ws.Git == nil {
		ws.Git = &checkpoint.GitState{}
	}
	return ws.Git
}

func mergeFiles(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f] = struct{}{}
	}
	for _, f := range added {
		if _, ok := seen[f]; !ok {
			existing = append(existing, f)
			seen[f] = struct{}{}
		}
	}
	return existing
}

func unmarshal(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
