package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/waypointhq/waypoint/internal/domain"
	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/port/broadcast"
	"github.com/waypointhq/waypoint/internal/port/database"
	"github.com/waypointhq/waypoint/internal/port/eventstore"
	"github.com/waypointhq/waypoint/internal/port/messagequeue"
	"github.com/waypointhq/waypoint/internal/port/workspace"
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory database.Store with per-method error hooks.
type memStore struct {
	mu          sync.Mutex
	instances   map[string]*instance.Instance
	checkpoints []checkpoint.Checkpoint
	commands    []command.Entry

	listErr error
	getErr  error
}

var _ database.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{instances: make(map[string]*instance.Instance)}
}

func (m *memStore) CreateInstance(_ context.Context, in *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[in.ID]; ok {
		return fmt.Errorf("instance %s already exists", in.ID)
	}
	cp := *in
	m.instances[in.ID] = &cp
	return nil
}

func (m *memStore) GetInstance(_ context.Context, id string) (*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	in, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	cp := *in
	return &cp, nil
}

func (m *memStore) FindByHashFragment(_ context.Context, fragment string) ([]instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []instance.Instance
	for _, in := range m.instances {
		h := instance.HashSegment(in.ID)
		if strings.HasPrefix(h, fragment) || strings.HasSuffix(h, fragment) {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (m *memStore) ListInstances(_ context.Context, filter database.ListFilter) ([]instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []instance.Instance
	for _, in := range m.instances {
		if filter.Project != "" && in.Project != filter.Project {
			continue
		}
		if !filter.IncludeClosed && in.Status == instance.StatusClosed {
			continue
		}
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].LastHeartbeat.After(out[j].LastHeartbeat)
	})
	return out, nil
}

func (m *memStore) Heartbeat(_ context.Context, id string, contextPercent int, currentEpic *string, at time.Time) (*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	in.ContextPercent = contextPercent
	if currentEpic != nil {
		in.CurrentEpic = *currentEpic
	}
	in.LastHeartbeat = at
	cp := *in
	return &cp, nil
}

func (m *memStore) CloseInstance(_ context.Context, id string) (*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
	}
	in.Status = instance.StatusClosed
	cp := *in
	return &cp, nil
}

func (m *memStore) CreateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, *cp)
	return nil
}

func (m *memStore) GetCheckpoint(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checkpoints {
		if m.checkpoints[i].ID == id {
			cp := m.checkpoints[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("checkpoint %s: %w", id, domain.ErrNotFound)
}

func (m *memStore) ListCheckpoints(_ context.Context, instanceID string, limit int) ([]checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []checkpoint.Checkpoint
	for i := range m.checkpoints {
		if m.checkpoints[i].InstanceID == instanceID {
			out = append(out, m.checkpoints[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) LatestCheckpoint(ctx context.Context, instanceID string) (*checkpoint.Checkpoint, error) {
	list, err := m.ListCheckpoints(ctx, instanceID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("latest checkpoint %s: %w", instanceID, domain.ErrNotFound)
	}
	return &list[0], nil
}

func (m *memStore) DeleteCheckpointsBefore(_ context.Context, cutoff time.Time, keepPerInstance int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byInstance := make(map[string][]checkpoint.Checkpoint)
	for _, cp := range m.checkpoints {
		byInstance[cp.InstanceID] = append(byInstance[cp.InstanceID], cp)
	}

	var kept []checkpoint.Checkpoint
	deleted := 0
	for id, list := range byInstance {
		sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
		open := false
		if in, ok := m.instances[id]; ok && in.Status != instance.StatusClosed {
			open = true
		}
		for rank, cp := range list {
			exempt := open && rank == 0
			if !exempt && (cp.CreatedAt.Before(cutoff) || (keepPerInstance > 0 && rank >= keepPerInstance)) {
				deleted++
				continue
			}
			kept = append(kept, cp)
		}
	}
	m.checkpoints = kept
	return deleted, nil
}

func (m *memStore) AppendCommand(_ context.Context, e *command.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, *e)
	return nil
}

func (m *memStore) SearchCommands(_ context.Context, filter command.Filter) ([]command.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []command.Entry
	for _, e := range m.commands {
		if filter.InstanceID != "" && e.InstanceID != filter.InstanceID {
			continue
		}
		if filter.CommandType != "" && e.CommandType != filter.CommandType {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		if filter.Text != "" &&
			!strings.Contains(e.Action, filter.Text) &&
			!strings.Contains(e.ToolName, filter.Text) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) CommandStats(_ context.Context, instanceID string) (*command.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &command.Stats{ByType: make(map[string]int)}
	for _, e := range m.commands {
		if e.InstanceID != instanceID {
			continue
		}
		stats.Total++
		stats.ByType[e.CommandType]++
	}
	return stats, nil
}

// memEvents is an in-memory eventstore.Store assigning sequence numbers the
// way the real store does.
type memEvents struct {
	mu     sync.Mutex
	events []event.InstanceEvent

	appendErr error
	replayErr error
}

var _ eventstore.Store = (*memEvents)(nil)

func newMemEvents() *memEvents { return &memEvents{} }

func (m *memEvents) Append(_ context.Context, ev *event.InstanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	var max int64
	for i := range m.events {
		if m.events[i].InstanceID == ev.InstanceID && m.events[i].SequenceNum > max {
			max = m.events[i].SequenceNum
		}
	}
	ev.SequenceNum = max + 1
	m.events = append(m.events, *ev)
	return nil
}

func (m *memEvents) Query(_ context.Context, filter event.Filter) ([]event.InstanceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.InstanceEvent
	for _, ev := range m.events {
		if filter.InstanceID != "" && ev.InstanceID != filter.InstanceID {
			continue
		}
		if len(filter.Types) > 0 {
			found := false
			for _, t := range filter.Types {
				if ev.Type == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.After != nil && !ev.CreatedAt.After(*filter.After) {
			continue
		}
		if filter.Before != nil && !ev.CreatedAt.Before(*filter.Before) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memEvents) Replay(_ context.Context, instanceID string, upToSequence int64) ([]event.InstanceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replayErr != nil {
		return nil, m.replayErr
	}
	var out []event.InstanceEvent
	for _, ev := range m.events {
		if ev.InstanceID != instanceID {
			continue
		}
		if upToSequence > 0 && ev.SequenceNum > upToSequence {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

func (m *memEvents) CountByType(_ context.Context, instanceID string) (map[event.Type]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[event.Type]int)
	for _, ev := range m.events {
		if instanceID != "" && ev.InstanceID != instanceID {
			continue
		}
		out[ev.Type]++
	}
	return out, nil
}

// typesFor returns the event types recorded for an instance, append order.
func (m *memEvents) typesFor(instanceID string) []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Type
	for _, ev := range m.events {
		if ev.InstanceID == instanceID {
			out = append(out, ev.Type)
		}
	}
	return out
}

// memQueue records published lifecycle messages.
type memQueue struct {
	mu        sync.Mutex
	published []string // subjects, publish order
}

var _ messagequeue.Queue = (*memQueue)(nil)

func (m *memQueue) Publish(_ context.Context, subject string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, subject)
	return nil
}

func (m *memQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *memQueue) Drain() error      { return nil }
func (m *memQueue) Close() error      { return nil }
func (m *memQueue) IsConnected() bool { return true }

func (m *memQueue) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

// memHub records broadcast event types.
type memHub struct {
	mu     sync.Mutex
	events []string
}

var _ broadcast.Broadcaster = (*memHub)(nil)

func (m *memHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

// fakeProbe answers workspace checks from fixed sets.
type fakeProbe struct {
	dirs     map[string]bool
	branches map[string]bool // key: repoPath + "@" + branch
	files    map[string]bool // key: repoPath + "/" + relPath
}

var _ workspace.Probe = (*fakeProbe)(nil)

func (p *fakeProbe) DirectoryExists(_ context.Context, path string) bool {
	return p.dirs[path]
}

func (p *fakeProbe) BranchExists(_ context.Context, repoPath, branch string) bool {
	return p.branches[repoPath+"@"+branch]
}

func (p *fakeProbe) FileExists(_ context.Context, repoPath, relPath string) bool {
	return p.files[repoPath+"/"+relPath]
}
