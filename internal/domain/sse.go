package domain

// ClientEvent is the externally visible unit of a chat stream.
type ClientEvent struct {
	Type    ClientEventType `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    *EventData      `json:"data,omitempty"`
}

// EventData carries the detail attached to tool, reasoning and context events.
type EventData struct {
	Step     int    `json:"step"`
	Stage    string `json:"stage,omitempty"`
	Phase    string `json:"phase,omitempty"` // tool events: "start" or "result"
	ToolName string `json:"tool_name,omitempty"`
	CallID   string `json:"call_id,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Failed   bool   `json:"failed,omitempty"`

	// context events
	Context *ContextUsage `json:"context,omitempty"`
}

// StartEvent builds a start event.
func StartEvent(runID string) ClientEvent {
	return ClientEvent{Type: ClientEventStart, RunID: runID, Message: "generation started"}
}

// ChunkEvent builds a text chunk event.
func ChunkEvent(text string) ClientEvent {
	return ClientEvent{Type: ClientEventChunk, Content: text}
}

// EndEvent builds the terminal end event.
func EndEvent(runID string) ClientEvent {
	return ClientEvent{Type: ClientEventEnd, RunID: runID, Message: "generation finished"}
}

// ErrorEvent builds the terminal error event.
func ErrorEvent(runID, message string) ClientEvent {
	return ClientEvent{Type: ClientEventError, RunID: runID, Message: message}
}
