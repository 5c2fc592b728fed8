package event

import (
	"encoding/json"
	"testing"
	"time"
)

func ev(t Type, payload string, at time.Time) InstanceEvent {
	return InstanceEvent{Type: t, Payload: json.RawMessage(payload), CreatedAt: at}
}

func TestFoldEpicProgress(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ws := Fold([]InstanceEvent{
		ev(TypeEpicStarted, `{"epic_id":"payments","tasks_total":5}`, now),
		ev(TypeTaskCompleted, `{"epic_id":"payments"}`, now.Add(time.Minute)),
		ev(TypeTaskCompleted, `{"epic_id":"payments"}`, now.Add(2*time.Minute)),
	})

	if ws.Epic == nil {
		t.Fatal("epic not folded")
	}
	if ws.Epic.ID != "payments" || ws.Epic.Status != "in_progress" {
		t.Errorf("epic = %+v", ws.Epic)
	}
	if ws.Epic.TasksDone != 2 || ws.Epic.TasksTotal != 5 {
		t.Errorf("progress = %d/%d, want 2/5", ws.Epic.TasksDone, ws.Epic.TasksTotal)
	}
}

func TestFoldEpicCompletionAndBlocking(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ws := Fold([]InstanceEvent{
		ev(TypeEpicStarted, `{"epic_id":"payments","tasks_total":3}`, now),
		ev(TypeEpicCompleted, `{"epic_id":"payments","tasks_total":3}`, now.Add(time.Hour)),
	})
	if ws.Epic.Status != "completed" || ws.Epic.TasksDone != 3 {
		t.Errorf("completed epic = %+v", ws.Epic)
	}

	ws = Fold([]InstanceEvent{
		ev(TypeEpicStarted, `{"epic_id":"payments"}`, now),
		ev(TypeEpicBlocked, `{"epic_id":"payments","reason":"waiting on review"}`, now.Add(time.Hour)),
	})
	if ws.Epic.Status != "blocked" {
		t.Errorf("blocked epic = %+v", ws.Epic)
	}

	// Blocking a different epic is ignored.
	ws = Fold([]InstanceEvent{
		ev(TypeEpicStarted, `{"epic_id":"payments"}`, now),
		ev(TypeEpicBlocked, `{"epic_id":"other"}`, now.Add(time.Hour)),
	})
	if ws.Epic.Status != "in_progress" {
		t.Errorf("epic = %+v, want in_progress", ws.Epic)
	}
}

func TestFoldGitLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ws := Fold([]InstanceEvent{
		ev(TypeCommitCreated, `{"branch":"feat/payments","commit":"abc1234","files":["a.go","b.go"]}`, now),
		ev(TypeCommitCreated, `{"commit":"def5678","files":["b.go","c.go"]}`, now.Add(time.Minute)),
	})

	g := ws.Git
	if g == nil {
		t.Fatal("git state not folded")
	}
	if g.Branch != "feat/payments" {
		t.Errorf("branch = %q", g.Branch)
	}
	if g.LastCommit != "def5678" {
		t.Errorf("last commit = %q, want the later one", g.LastCommit)
	}
	if g.UnpushedCommits != 2 {
		t.Errorf("unpushed = %d, want 2", g.UnpushedCommits)
	}
	if len(ws.Files) != 3 {
		t.Errorf("files = %v, want deduplicated union of 3", ws.Files)
	}

	// Opening a PR zeroes the unpushed counter.
	ws = Fold([]InstanceEvent{
		ev(TypeCommitCreated, `{"commit":"abc1234"}`, now),
		ev(TypePROpened, `{"pr":"#42"}`, now.Add(time.Minute)),
	})
	if ws.Git.UnpushedCommits != 0 {
		t.Errorf("unpushed after PR = %d, want 0", ws.Git.UnpushedCommits)
	}
	if ws.Git.LastPR != "#42" {
		t.Errorf("last PR = %q", ws.Git.LastPR)
	}
}

func TestFoldTestOutcomesLaterWins(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ws := Fold([]InstanceEvent{
		ev(TypeTestFailed, `{"passing":10,"failing":2}`, now),
		ev(TypeTestPassed, `{"passing":12,"failing":0}`, now.Add(time.Minute)),
	})

	if ws.Tests == nil {
		t.Fatal("test state not folded")
	}
	if ws.Tests.Passing != 12 || ws.Tests.Failing != 0 {
		t.Errorf("tests = %+v, want the later run", ws.Tests)
	}
	if ws.Tests.LastRun == nil || !ws.Tests.LastRun.Equal(now.Add(time.Minute)) {
		t.Errorf("last run = %v", ws.Tests.LastRun)
	}
}

func TestFoldSkipsMalformedPayloads(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ws := Fold([]InstanceEvent{
		ev(TypeEpicStarted, `{"epic_id":"payments"}`, now),
		ev(TypeTestPassed, `not json`, now.Add(time.Minute)),
		ev(TypeCommitCreated, ``, now.Add(2*time.Minute)),
	})

	if ws.Epic == nil || ws.Epic.ID != "payments" {
		t.Errorf("valid event lost: %+v", ws.Epic)
	}
	if ws.Tests != nil {
		t.Error("malformed test payload folded")
	}
	if ws.Git != nil {
		t.Error("empty commit payload folded")
	}
}

func TestFoldEmptyHistory(t *testing.T) {
	ws := Fold(nil)
	if ws.Epic != nil || ws.Git != nil || ws.Tests != nil || len(ws.Files) != 0 {
		t.Errorf("empty fold = %+v", ws)
	}
}
