package domain

import (
	"encoding/json"
	"time"
)

// Run represents one agent invocation in response to one user message.
type Run struct {
	RunID      string          `json:"run_id"`
	ThreadID   string          `json:"thread_id"`
	UserID     string          `json:"user_id"`
	Status     RunStatus       `json:"status"`
	ModelCalls int             `json:"model_calls"`
	ToolCalls  int             `json:"tool_calls"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// Event represents a trace event for replay.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
