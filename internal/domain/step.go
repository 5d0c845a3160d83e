package domain

// ExecutionStep is one unit of progress emitted by the agent loop.
//
// Kind selects which payload fields are meaningful:
//   - StepKindModelDelta: Text, Reasoning
//   - StepKindToolStart: ToolCall
//   - StepKindToolResult: ToolCall, Text (tool output), Failed
//   - StepKindContext: Context
//   - StepKindBoundary: no payload, marks the end of a step index
type ExecutionStep struct {
	Kind  StepKind `json:"kind"`
	Index int      `json:"index"`
	Stage string   `json:"stage"`

	Text      string    `json:"text,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	Failed    bool      `json:"failed,omitempty"`

	Context *ContextUsage `json:"context,omitempty"`
}

// ContextUsage describes the model context window at one point of a run.
// It is reported after every model call and after every compaction attempt.
type ContextUsage struct {
	// Messages is the number of messages sent, or kept after compaction.
	Messages int `json:"messages"`
	// PromptTokens is the provider's prompt token count, when reported.
	PromptTokens int                `json:"prompt_tokens,omitempty"`
	Compaction   *CompactionPayload `json:"compaction,omitempty"`
}
