package middleware

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/quota"
)

// LimitConfig configures a call quota. Limits of zero or less are unlimited.
type LimitConfig struct {
	ThreadLimit  int
	RunLimit     int
	ExitBehavior domain.ExitBehavior
	// ToolName restricts a tool quota to one tool. Empty counts all tools.
	ToolName string
}

// CallLimit counts calls of one kind and stops the run once a quota is
// crossed. The counter is incremented before the comparison, so a limit of
// L lets L calls through and stops call L+1.
type CallLimit struct {
	name    string
	kind    Kind
	cfg     LimitConfig
	tracker *quota.Tracker
}

// NewModelCallLimit creates a quota on model calls.
func NewModelCallLimit(cfg LimitConfig, tracker *quota.Tracker) *CallLimit {
	return newCallLimit("model_call_limit", KindModel, cfg, tracker)
}

// NewToolCallLimit creates a quota on tool calls.
func NewToolCallLimit(cfg LimitConfig, tracker *quota.Tracker) *CallLimit {
	name := "tool_call_limit"
	if cfg.ToolName != "" {
		name += ":" + cfg.ToolName
	}
	return newCallLimit(name, KindTool, cfg, tracker)
}

func newCallLimit(name string, kind Kind, cfg LimitConfig, tracker *quota.Tracker) *CallLimit {
	if !cfg.ExitBehavior.Valid() {
		cfg.ExitBehavior = domain.ExitBehaviorEnd
	}
	if tracker == nil {
		tracker = quota.NewTracker()
	}
	return &CallLimit{name: name, kind: kind, cfg: cfg, tracker: tracker}
}

func (l *CallLimit) Name() string { return l.name }

// Tracker returns the counters behind this quota.
func (l *CallLimit) Tracker() *quota.Tracker { return l.tracker }

func (l *CallLimit) Before(ctx context.Context, req *Request) Decision {
	if req.Kind != l.kind {
		return Proceed(nil)
	}
	if l.kind == KindTool && l.cfg.ToolName != "" {
		if req.ToolCall == nil || req.ToolCall.Name != l.cfg.ToolName {
			return Proceed(nil)
		}
	}

	threadCount, runCount := l.tracker.RecordCall(req.ThreadID, req.RunID)
	if !quota.Exceeds(threadCount, runCount, l.cfg.ThreadLimit, l.cfg.RunLimit) {
		return Proceed(nil)
	}

	err := &LimitExceededError{
		Kind:        l.kind,
		ToolName:    l.cfg.ToolName,
		ThreadCount: threadCount,
		RunCount:    runCount,
		ThreadLimit: l.cfg.ThreadLimit,
		RunLimit:    l.cfg.RunLimit,
	}
	if l.cfg.ExitBehavior == domain.ExitBehaviorError {
		return Stop(nil, err)
	}
	return Stop(&Response{Message: domain.AssistantMessage(limitMessage(err))}, err)
}

func limitMessage(err *LimitExceededError) string {
	scope := "run"
	if err.ThreadLimit > 0 && err.ThreadCount > err.ThreadLimit {
		scope = "thread"
	}
	what := string(err.Kind) + " call"
	if err.ToolName != "" {
		what = fmt.Sprintf("'%s' tool call", err.ToolName)
	}
	return fmt.Sprintf("The %s limit for this %s was reached, so I have stopped here.", what, scope)
}
