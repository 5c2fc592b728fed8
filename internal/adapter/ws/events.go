package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventInstanceStatus  = "instance.status"
	EventInstanceResumed = "instance.resumed"
	EventCheckpoint      = "checkpoint.created"
)

// InstanceStatusEvent is broadcast when an instance registers, heartbeats
// into a new status, goes stale, or closes.
type InstanceStatusEvent struct {
	InstanceID     string `json:"instance_id"`
	Project        string `json:"project"`
	Status         string `json:"status"`
	ContextPercent int    `json:"context_percent"`
	CurrentEpic    string `json:"current_epic,omitempty"`
}

// InstanceResumedEvent is broadcast when a resume call returns Resumed.
type InstanceResumedEvent struct {
	InstanceID string `json:"instance_id"`
	Source     string `json:"source"`
	Score      int    `json:"score"`
	Level      string `json:"level"`
}

// CheckpointEvent is broadcast when a checkpoint is captured.
type CheckpointEvent struct {
	InstanceID   string `json:"instance_id"`
	CheckpointID string `json:"checkpoint_id"`
	Type         string `json:"type"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
