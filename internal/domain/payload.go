package domain

// RunStartedPayload is the payload for run_started events.
type RunStartedPayload struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
}

// UserInputPayload is the payload for user_input events.
type UserInputPayload struct {
	Content string `json:"content"`
}

// StageTransitionPayload is the payload for stage_transition events.
type StageTransitionPayload struct {
	Step int    `json:"step"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// PolicyDecisionPayload is the payload for policy_decision events.
type PolicyDecisionPayload struct {
	Interceptor string `json:"interceptor"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
}

// CompactionPayload is the payload for compaction events.
type CompactionPayload struct {
	Before    int  `json:"before"`
	After     int  `json:"after"`
	Failed    bool `json:"failed,omitempty"`
	Retryable bool `json:"retryable,omitempty"`
}

// RunFinishedPayload is the payload for terminal run events.
type RunFinishedPayload struct {
	ModelCalls int    `json:"model_calls"`
	ToolCalls  int    `json:"tool_calls"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}
