// Package domain defines the core domain models for agentgate.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusPending       RunStatus = "pending"
	RunStatusRunning       RunStatus = "running"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusLimitExceeded RunStatus = "limit_exceeded"
	RunStatusError         RunStatus = "error"
	RunStatusCancelled     RunStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusLimitExceeded, RunStatusError, RunStatusCancelled:
		return true
	}
	return false
}

// EventType represents the type of a trace event recorded for a run.
type EventType string

const (
	EventTypeRunStarted       EventType = "run_started"
	EventTypeUserInput        EventType = "user_input"
	EventTypeStageTransition  EventType = "stage_transition"
	EventTypePolicyDecision   EventType = "policy_decision"
	EventTypeCompaction       EventType = "compaction"
	EventTypeRunCompleted     EventType = "run_completed"
	EventTypeRunFailed        EventType = "run_failed"
	EventTypeRunLimitExceeded EventType = "run_limit_exceeded"
	EventTypeRunCancelled     EventType = "run_cancelled"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// StepKind discriminates ExecutionStep variants.
type StepKind string

const (
	StepKindModelDelta StepKind = "model_delta"
	StepKindToolStart  StepKind = "tool_start"
	StepKindToolResult StepKind = "tool_result"
	StepKindContext    StepKind = "context"
	StepKindBoundary   StepKind = "boundary"
)

// ClientEventType discriminates ClientEvent variants.
type ClientEventType string

const (
	ClientEventStart     ClientEventType = "start"
	ClientEventChunk     ClientEventType = "chunk"
	ClientEventTool      ClientEventType = "tool"
	ClientEventReasoning ClientEventType = "reasoning"
	ClientEventContext   ClientEventType = "context"
	ClientEventEnd       ClientEventType = "end"
	ClientEventError     ClientEventType = "error"
)

// IsTerminal reports whether the event closes a stream.
func (t ClientEventType) IsTerminal() bool {
	return t == ClientEventEnd || t == ClientEventError
}

// ExitBehavior selects what happens when a governance limit is hit.
type ExitBehavior string

const (
	// ExitBehaviorEnd stops the run gracefully with a final message.
	ExitBehaviorEnd ExitBehavior = "end"
	// ExitBehaviorError stops the run with a hard failure.
	ExitBehaviorError ExitBehavior = "error"
)

// Valid reports whether b is a known exit behavior.
func (b ExitBehavior) Valid() bool {
	return b == ExitBehaviorEnd || b == ExitBehaviorError
}
