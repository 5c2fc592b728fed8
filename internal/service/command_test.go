package service

import (
	"context"
	"testing"
	"time"

	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/instance"
)

func newTestCommandLog() (*CommandLogService, *memStore, *fakeClock) {
	store := newMemStore()
	clock := newFakeClock(baseTime)
	return NewCommandLogService(store, store, clock), store, clock
}

func TestLogAssignsIDAndTimestamp(t *testing.T) {
	svc, store, clock := newTestCommandLog()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	e, err := svc.Log(context.Background(), &command.Entry{
		InstanceID:  "odin-worker-8f4a2b",
		CommandType: "test",
		Action:      "run unit tests",
		Success:     true,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if e.ID == "" {
		t.Error("ID not assigned")
	}
	if !e.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created at = %v, want clock time", e.CreatedAt)
	}
	if e.Source != command.SourceExplicit {
		t.Errorf("source = %s, want the explicit default", e.Source)
	}
}

func TestLogRejectsInvalidEntries(t *testing.T) {
	svc, store, _ := newTestCommandLog()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	cases := []struct {
		name  string
		entry command.Entry
	}{
		{"missing instance", command.Entry{CommandType: "test", Action: "run tests"}},
		{"missing command type", command.Entry{InstanceID: "odin-worker-8f4a2b", Action: "run tests"}},
		{"bad source", command.Entry{InstanceID: "odin-worker-8f4a2b", CommandType: "test", Action: "run tests", Source: "guessed"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Log(context.Background(), &tc.entry); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	_, err := svc.Log(context.Background(), &command.Entry{
		InstanceID: "odin-worker-000000", CommandType: "test", Action: "run tests",
	})
	if err == nil {
		t.Error("expected error for unknown instance")
	}
}

func TestSearchFilters(t *testing.T) {
	svc, store, clock := newTestCommandLog()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	entries := []command.Entry{
		{ID: "c1", InstanceID: "odin-worker-8f4a2b", CommandType: "test", Action: "run unit tests", Success: true, CreatedAt: clock.Now().Add(-30 * time.Minute)},
		{ID: "c2", InstanceID: "odin-worker-8f4a2b", CommandType: "test", Action: "run integration tests", Success: false, CreatedAt: clock.Now().Add(-20 * time.Minute)},
		{ID: "c3", InstanceID: "odin-worker-8f4a2b", CommandType: "commit", Action: "commit changes", Success: true, CreatedAt: clock.Now().Add(-10 * time.Minute)},
	}
	store.commands = append(store.commands, entries...)

	got, err := svc.Search(context.Background(), command.Filter{InstanceID: "odin-worker-8f4a2b", CommandType: "test"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("type filter = %d entries, want 2", len(got))
	}
	if got[0].ID != "c2" {
		t.Errorf("search not newest first: first = %s", got[0].ID)
	}

	failed := false
	got, err = svc.Search(context.Background(), command.Filter{InstanceID: "odin-worker-8f4a2b", Success: &failed})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("success filter = %v", got)
	}

	got, err = svc.Search(context.Background(), command.Filter{InstanceID: "odin-worker-8f4a2b", Text: "integration"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("text filter = %v", got)
	}
}

func TestStatsFor(t *testing.T) {
	svc, store, clock := newTestCommandLog()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	store.commands = append(store.commands,
		command.Entry{ID: "c1", InstanceID: "odin-worker-8f4a2b", CommandType: "test", Action: "run tests", Success: true, CreatedAt: clock.Now()},
		command.Entry{ID: "c2", InstanceID: "odin-worker-8f4a2b", CommandType: "test", Action: "run tests", Success: true, CreatedAt: clock.Now()},
		command.Entry{ID: "c3", InstanceID: "odin-worker-8f4a2b", CommandType: "commit", Action: "commit", Success: true, CreatedAt: clock.Now()},
	)

	stats, err := svc.StatsFor(context.Background(), "odin-worker-8f4a2b")
	if err != nil {
		t.Fatalf("StatsFor: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.ByType["test"] != 2 || stats.ByType["commit"] != 1 {
		t.Errorf("by type = %v", stats.ByType)
	}
}
