package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
)

func newTestEventService() (*EventService, *memStore, *memEvents, *fakeClock) {
	store := newMemStore()
	events := newMemEvents()
	clock := newFakeClock(baseTime)
	return NewEventService(events, store, nil, clock), store, events, clock
}

func TestEmitAssignsSequence(t *testing.T) {
	svc, store, _, _ := newTestEventService()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	first, err := svc.Emit(context.Background(), "odin-worker-8f4a2b", event.TypeEpicStarted, json.RawMessage(`{"epic_id":"payments"}`), nil)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	second, err := svc.Emit(context.Background(), "odin-worker-8f4a2b", event.TypeTaskCompleted, json.RawMessage(`{"epic_id":"payments"}`), nil)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if first.SequenceNum != 1 || second.SequenceNum != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", first.SequenceNum, second.SequenceNum)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Error("event IDs must be unique and non-empty")
	}
}

func TestEmitRejectsUnknownType(t *testing.T) {
	svc, store, _, _ := newTestEventService()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	if _, err := svc.Emit(context.Background(), "odin-worker-8f4a2b", "bogus.type", nil, nil); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestEmitRequiresInstance(t *testing.T) {
	svc, _, _, _ := newTestEventService()

	if _, err := svc.Emit(context.Background(), "odin-worker-000000", event.TypeEpicStarted, nil, nil); err == nil {
		t.Fatal("expected error for unknown instance")
	}
}

func TestReplayOrderAndTruncation(t *testing.T) {
	svc, store, events, clock := newTestEventService()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	for i, typ := range []event.Type{event.TypeEpicStarted, event.TypeTaskCompleted, event.TypeCommitCreated} {
		seedEvent(events, "odin-worker-8f4a2b", typ, `{}`, clock.Now().Add(time.Duration(i)*time.Minute))
	}

	all, err := svc.Replay(context.Background(), "odin-worker-8f4a2b", 0)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("replay = %d events, want 3", len(all))
	}
	for i := range all {
		if all[i].SequenceNum != int64(i+1) {
			t.Errorf("event %d has sequence %d", i, all[i].SequenceNum)
		}
	}

	upTo, err := svc.Replay(context.Background(), "odin-worker-8f4a2b", 2)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(upTo) != 2 || upTo[len(upTo)-1].SequenceNum != 2 {
		t.Errorf("truncated replay = %v", upTo)
	}
}

func TestQueryFilters(t *testing.T) {
	svc, store, events, clock := newTestEventService()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)

	seedEvent(events, "odin-worker-8f4a2b", event.TypeEpicStarted, `{}`, clock.Now().Add(-30*time.Minute))
	seedEvent(events, "odin-worker-8f4a2b", event.TypeCommitCreated, `{}`, clock.Now().Add(-20*time.Minute))
	seedEvent(events, "odin-worker-8f4a2b", event.TypeCommitCreated, `{}`, clock.Now().Add(-10*time.Minute))

	got, err := svc.Query(context.Background(), event.Filter{
		InstanceID: "odin-worker-8f4a2b",
		Types:      []event.Type{event.TypeCommitCreated},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("query = %d events, want 2", len(got))
	}
	// Newest first.
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("query results not newest first")
	}

	got, err = svc.Query(context.Background(), event.Filter{
		InstanceID: "odin-worker-8f4a2b",
		Limit:      1,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("limited query = %d events, want 1", len(got))
	}
}

func TestAggregateByType(t *testing.T) {
	svc, store, events, clock := newTestEventService()
	seedInstance(store, "odin-worker-8f4a2b", "odin", instance.TypeWorker, baseTime)
	seedInstance(store, "thor-worker-4a2b99", "thor", instance.TypeWorker, baseTime)

	seedEvent(events, "odin-worker-8f4a2b", event.TypeEpicStarted, `{}`, clock.Now())
	seedEvent(events, "odin-worker-8f4a2b", event.TypeTaskCompleted, `{}`, clock.Now())
	seedEvent(events, "odin-worker-8f4a2b", event.TypeTaskCompleted, `{}`, clock.Now())
	seedEvent(events, "thor-worker-4a2b99", event.TypeEpicStarted, `{}`, clock.Now())

	counts, err := svc.AggregateByType(context.Background(), "odin-worker-8f4a2b")
	if err != nil {
		t.Fatalf("AggregateByType: %v", err)
	}
	if counts[event.TypeEpicStarted] != 1 || counts[event.TypeTaskCompleted] != 2 {
		t.Fatalf("scoped counts = %v", counts)
	}

	counts, err = svc.AggregateByType(context.Background(), "")
	if err != nil {
		t.Fatalf("AggregateByType: %v", err)
	}
	if counts[event.TypeEpicStarted] != 2 {
		t.Fatalf("global counts = %v", counts)
	}
}

func TestListTypesIsClosedSet(t *testing.T) {
	svc, _, _, _ := newTestEventService()

	types := svc.ListTypes()
	if len(types) == 0 {
		t.Fatal("no event types listed")
	}
	seen := make(map[string]bool, len(types))
	for _, s := range types {
		if seen[s] {
			t.Errorf("duplicate type %q", s)
		}
		seen[s] = true
		if !event.Type(s).Valid() {
			t.Errorf("listed type %q is not valid", s)
		}
	}
}
