package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/policy"
)

// PolicyEvaluator decides whether a tool call may run.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input interface{}) (decision string, reason string, err error)
}

// ToolPolicy evaluates tool calls against a policy. Blocked calls are answered
// with a tool message explaining the block and the run continues.
type ToolPolicy struct {
	engine PolicyEvaluator
}

// NewToolPolicy creates the interceptor.
func NewToolPolicy(engine PolicyEvaluator) *ToolPolicy {
	return &ToolPolicy{engine: engine}
}

func (p *ToolPolicy) Name() string { return "tool_policy" }

func (p *ToolPolicy) Before(ctx context.Context, req *Request) Decision {
	if req.Kind != KindTool || req.ToolCall == nil {
		return Proceed(nil)
	}

	var args interface{}
	if len(req.ToolCall.Arguments) > 0 {
		if err := json.Unmarshal(req.ToolCall.Arguments, &args); err != nil {
			args = string(req.ToolCall.Arguments)
		}
	}
	input := map[string]interface{}{
		"tool_name": req.ToolCall.Name,
		"args":      args,
		"thread_id": req.ThreadID,
		"run_id":    req.RunID,
	}

	decision, reason, err := p.engine.Evaluate(ctx, input)
	if err != nil {
		return Fail(fmt.Errorf("tool policy: %w", err))
	}
	if decision != policy.DecisionBlock {
		return Proceed(nil)
	}

	content := fmt.Sprintf("Tool call '%s' was blocked by policy.", req.ToolCall.Name)
	if reason != "" {
		content = fmt.Sprintf("Tool call '%s' was blocked by policy: %s", req.ToolCall.Name, reason)
	}
	msg := domain.ToolMessage(req.ToolCall.ID, req.ToolCall.Name, content)
	return Substitute(&Response{Message: msg}, fmt.Errorf("%w: %s", ErrToolBlocked, req.ToolCall.Name))
}
