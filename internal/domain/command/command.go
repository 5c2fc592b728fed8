// Package command defines the append-only command log of discrete actions
// taken by instances. The log is a lower-fidelity reconstruction source and
// an audit/search surface.
package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source records whether an entry was logged explicitly by the instance or
// inferred from its activity stream.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceInferred Source = "inferred"
)

// Entry is one discrete action taken by an instance.
type Entry struct {
	ID            string          `json:"id"`
	InstanceID    string          `json:"instance_id"`
	CommandType   string          `json:"command_type"`
	Action        string          `json:"action"`
	ToolName      string          `json:"tool_name,omitempty"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	Result        string          `json:"result,omitempty"`
	Success       bool            `json:"success"`
	ExecutionTime int64           `json:"execution_time_ms"`
	Tags          []string        `json:"tags,omitempty"`
	Source        Source          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks the fields required before logging.
func (e *Entry) Validate() error {
	if e.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if e.CommandType == "" {
		return fmt.Errorf("command_type is required")
	}
	if e.Source != SourceExplicit && e.Source != SourceInferred {
		return fmt.Errorf("source must be %q or %q", SourceExplicit, SourceInferred)
	}
	return nil
}

// Filter controls which entries Search returns.
type Filter struct {
	InstanceID  string     `json:"instance_id,omitempty"`
	CommandType string     `json:"command_type,omitempty"`
	Text        string     `json:"text,omitempty"` // matched against action, tool_name, tags
	Success     *bool      `json:"success,omitempty"`
	After       *time.Time `json:"after,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// Stats aggregates an instance's command history.
type Stats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}
