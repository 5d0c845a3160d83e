// Package agent runs the tool-augmented reasoning loop and reports its
// progress as execution steps.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/middleware"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
)

// Stage names reported on execution steps.
const (
	StageModel = "model"
	StageTools = "tools"
)

const DefaultMaxSteps = 25

var ErrMaxStepsExceeded = errors.New("max steps exceeded")

const skippedToolMessage = "Tool call was not executed because the run was stopped."

// UsageRecorder calibrates token estimates from provider usage.
type UsageRecorder interface {
	RecordUsage(messages []domain.Message, promptTokens int)
}

// Config configures the loop.
type Config struct {
	Model        string
	SystemPrompt string
	MaxSteps     int
	Temperature  *float64
}

// Deps are the loop's collaborators. Client, Tools and Chain are required.
type Deps struct {
	Client llm.LLMClient
	Tools  *tools.Registry
	Chain  *middleware.Chain
	Usage  UsageRecorder
	Logger *slog.Logger
}

// Input is one user turn.
type Input struct {
	ThreadID string
	RunID    string
	History  []domain.Message
	Message  string
}

// Result is the outcome of a run.
type Result struct {
	Status domain.RunStatus
	// Messages is the thread history to keep, including this turn.
	Messages   []domain.Message
	Output     string
	ModelCalls int
	ToolCalls  int
	// Err is the cause of a non-completed status.
	Err error
}

// Loop runs model -> tool calls -> tool results -> model until the model
// answers without tool calls. Every model and tool call goes through the
// middleware chain.
type Loop struct {
	client llm.LLMClient
	tools  *tools.Registry
	chain  *middleware.Chain
	usage  UsageRecorder
	cfg    Config
	logger *slog.Logger
}

// NewLoop creates a Loop.
func NewLoop(deps Deps, cfg Config) (*Loop, error) {
	if deps.Client == nil {
		return nil, errors.New("llm client is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if deps.Chain == nil {
		return nil, errors.New("middleware chain is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &Loop{
		client: deps.Client,
		tools:  deps.Tools,
		chain:  deps.Chain,
		usage:  deps.Usage,
		cfg:    cfg,
		logger: deps.Logger,
	}, nil
}

// Start runs the loop in its own goroutine. The returned Execution is the
// step source; its Result is available once the source is exhausted or
// closed.
func (l *Loop) Start(ctx context.Context, in Input) *Execution {
	exec := &Execution{done: make(chan struct{})}
	exec.steps = stream.NewChanStream(ctx, func(ctx context.Context, emit func(domain.ExecutionStep) error) error {
		defer close(exec.done)
		r := &run{loop: l, in: in, emit: emit, logger: l.logger.With("run_id", in.RunID)}
		res, err := r.execute(ctx)
		exec.result = res
		return err
	})
	return exec
}

type run struct {
	loop   *Loop
	in     Input
	emit   func(domain.ExecutionStep) error
	logger *slog.Logger

	messages   []domain.Message
	modelCalls int
	toolCalls  int
}

func (r *run) execute(ctx context.Context) (Result, error) {
	r.messages = domain.CloneMessages(r.in.History)
	if r.loop.cfg.SystemPrompt != "" && (len(r.messages) == 0 || r.messages[0].Role != domain.RoleSystem) {
		r.messages = append([]domain.Message{domain.SystemMessage(r.loop.cfg.SystemPrompt)}, r.messages...)
	}
	r.messages = append(r.messages, domain.UserMessage(r.in.Message))

	for step := 0; step < r.loop.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return r.interrupted(ctx, err)
		}

		resp, done, err := r.callModel(ctx, step)
		if done != nil {
			return *done, err
		}
		assistant := resp.Message
		assistant.Role = domain.RoleAssistant
		r.messages = append(r.messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			if err := r.boundary(step, StageModel); err != nil {
				return r.interrupted(ctx, err)
			}
			return r.result(domain.RunStatusCompleted, assistant.Content, nil), nil
		}

		for i := range assistant.ToolCalls {
			if done, err := r.callTool(ctx, step, assistant.ToolCalls[i], assistant.ToolCalls[i+1:]); done != nil {
				return *done, err
			}
		}
		if err := r.boundary(step, StageTools); err != nil {
			return r.interrupted(ctx, err)
		}
	}

	r.logger.Warn("max steps exceeded", "max_steps", r.loop.cfg.MaxSteps)
	return r.result(domain.RunStatusError, "", ErrMaxStepsExceeded), ErrMaxStepsExceeded
}

// callModel runs one model call through the chain. A retryable fault is
// retried once with compaction bypassed. A non-nil done ends the run.
func (r *run) callModel(ctx context.Context, step int) (resp *middleware.Response, done *Result, err error) {
	req := &middleware.Request{
		ThreadID: r.in.ThreadID,
		RunID:    r.in.RunID,
		Kind:     middleware.KindModel,
		Messages: r.messages,
	}
	handler := r.modelHandler(step)

	out := r.loop.chain.Invoke(ctx, req, handler)
	if out.ShortCircuited() && out.Decision.Retryable() {
		r.logger.Warn("compaction failed, retrying without it", "err", out.Decision.Err)
		failed := domain.CompactionPayload{Before: len(r.messages), After: len(r.messages), Failed: true, Retryable: true}
		if err := r.compacted(step, failed); err != nil {
			res, err := r.interrupted(ctx, err)
			return nil, &res, err
		}
		retry := req.Clone()
		retry.SkipCompaction = true
		out = r.loop.chain.Invoke(ctx, retry, handler)
	}

	if out.Request != nil && out.Request.Compaction != nil {
		r.messages = out.Request.Messages
		if err := r.compacted(step, *out.Request.Compaction); err != nil {
			res, err := r.interrupted(ctx, err)
			return nil, &res, err
		}
	}

	if out.ShortCircuited() {
		d := out.Decision
		switch {
		case d.Terminal:
			res, err := r.stopped(ctx, step, StageModel, *d, nil)
			return nil, &res, err
		case d.Response != nil:
			if err := r.text(step, StageModel, d.Response.Message.Content); err != nil {
				res, err := r.interrupted(ctx, err)
				return nil, &res, err
			}
			return d.Response, nil, nil
		default:
			return r.fail(fmt.Errorf("%s: %w", d.Interceptor, d.Err))
		}
	}

	if out.Err != nil {
		if ctx.Err() != nil {
			res, err := r.interrupted(ctx, out.Err)
			return nil, &res, err
		}
		return r.fail(fmt.Errorf("model call failed: %w", out.Err))
	}

	r.modelCalls++
	if out.Response.PromptTokens > 0 && r.loop.usage != nil {
		r.loop.usage.RecordUsage(out.Request.Messages, out.Response.PromptTokens)
	}
	if err := r.reportContext(step, domain.ContextUsage{
		Messages:     len(out.Request.Messages),
		PromptTokens: out.Response.PromptTokens,
	}); err != nil {
		res, err := r.interrupted(ctx, err)
		return nil, &res, err
	}
	return out.Response, nil, nil
}

func (r *run) fail(err error) (*middleware.Response, *Result, error) {
	res := r.result(domain.RunStatusError, "", err)
	return nil, &res, err
}

func (r *run) modelHandler(step int) middleware.Handler {
	return func(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
		chatReq := &llm.ChatCompletionRequest{
			Model:         r.loop.cfg.Model,
			Messages:      llm.FromDomain(req.Messages),
			Temperature:   r.loop.cfg.Temperature,
			Stream:        true,
			StreamOptions: &llm.StreamOptions{IncludeUsage: true},
			Tools:         r.loop.tools.Definitions(),
		}

		var content strings.Builder
		calls := newToolCallAccumulator()
		usage, err := r.loop.client.CreateChatCompletionStream(ctx, chatReq, func(chunk *llm.StreamChunk) error {
			for _, choice := range chunk.Choices {
				if choice.Delta == nil {
					continue
				}
				delta := choice.Delta
				calls.add(delta.ToolCalls)
				if delta.Content == "" && delta.ReasoningContent == "" {
					continue
				}
				content.WriteString(delta.Content)
				if err := r.emit(domain.ExecutionStep{
					Kind:      domain.StepKindModelDelta,
					Index:     step,
					Stage:     StageModel,
					Text:      delta.Content,
					Reasoning: delta.ReasoningContent,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		resp := &middleware.Response{
			Message: domain.Message{
				Role:      domain.RoleAssistant,
				Content:   content.String(),
				ToolCalls: calls.result(),
			},
		}
		if usage != nil {
			resp.PromptTokens = usage.PromptTokens
		}
		return resp, nil
	}
}

// callTool runs one tool call through the chain and appends its result.
// rest are the calls of the same assistant message not yet answered.
// A non-nil done ends the run.
func (r *run) callTool(ctx context.Context, step int, call domain.ToolCall, rest []domain.ToolCall) (done *Result, err error) {
	if err := ctx.Err(); err != nil {
		res, err := r.interrupted(ctx, err)
		return &res, err
	}
	if err := r.emit(domain.ExecutionStep{Kind: domain.StepKindToolStart, Index: step, Stage: StageTools, ToolCall: &call}); err != nil {
		res, err := r.interrupted(ctx, err)
		return &res, err
	}

	req := &middleware.Request{
		ThreadID: r.in.ThreadID,
		RunID:    r.in.RunID,
		Kind:     middleware.KindTool,
		Messages: r.messages,
		ToolCall: &call,
	}
	out := r.loop.chain.Invoke(ctx, req, r.toolHandler)

	var result domain.Message
	failed := false
	switch {
	case out.ShortCircuited() && out.Decision.Terminal:
		r.messages = append(r.messages, domain.ToolMessage(call.ID, call.Name, skippedToolMessage))
		res, err := r.stopped(ctx, step, StageModel, *out.Decision, rest)
		return &res, err
	case out.ShortCircuited() && out.Decision.Response != nil:
		result = out.Decision.Response.Message
		failed = true
	case out.ShortCircuited():
		_, res, err := r.fail(fmt.Errorf("%s: %w", out.Decision.Interceptor, out.Decision.Err))
		return res, err
	case out.Err != nil:
		if ctx.Err() != nil {
			res, err := r.interrupted(ctx, out.Err)
			return &res, err
		}
		r.logger.Warn("tool failed", "tool", call.Name, "err", out.Err)
		result = domain.ToolMessage(call.ID, call.Name, "error: "+out.Err.Error())
		failed = true
		r.toolCalls++
	default:
		result = out.Response.Message
		r.toolCalls++
	}

	r.messages = append(r.messages, result)
	if err := r.emit(domain.ExecutionStep{
		Kind:     domain.StepKindToolResult,
		Index:    step,
		Stage:    StageTools,
		ToolCall: &call,
		Text:     result.Content,
		Failed:   failed,
	}); err != nil {
		res, err := r.interrupted(ctx, err)
		return &res, err
	}
	return nil, nil
}

func (r *run) toolHandler(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	call := req.ToolCall
	output, err := r.loop.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}
	return &middleware.Response{Message: domain.ToolMessage(call.ID, call.Name, string(output))}, nil
}

// stopped handles a terminal policy decision. A decision carrying a response
// ends the run gracefully with that response as the final message.
func (r *run) stopped(ctx context.Context, step int, stage string, d middleware.Decision, unanswered []domain.ToolCall) (Result, error) {
	status := domain.RunStatusLimitExceeded
	if !errors.Is(d.Err, middleware.ErrLimitExceeded) {
		status = domain.RunStatusCompleted
	}
	if d.Response == nil {
		err := fmt.Errorf("%s: %w", d.Interceptor, d.Err)
		return r.result(status, "", err), err
	}

	for _, call := range unanswered {
		r.messages = append(r.messages, domain.ToolMessage(call.ID, call.Name, skippedToolMessage))
	}
	final := d.Response.Message
	final.Role = domain.RoleAssistant
	r.messages = append(r.messages, final)
	if err := r.text(step, stage, final.Content); err != nil {
		return r.interrupted(ctx, err)
	}
	if err := r.boundary(step, stage); err != nil {
		return r.interrupted(ctx, err)
	}
	return r.result(status, final.Content, d.Err), nil
}

// interrupted reports a run ended by cancellation or timeout.
func (r *run) interrupted(ctx context.Context, err error) (Result, error) {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = err
	}
	status := domain.RunStatusCancelled
	if errors.Is(cause, stream.ErrRunTimeout) {
		status = domain.RunStatusLimitExceeded
	}
	return r.result(status, "", cause), cause
}

func (r *run) result(status domain.RunStatus, output string, err error) Result {
	return Result{
		Status:     status,
		Messages:   domain.CloneMessages(r.messages),
		Output:     output,
		ModelCalls: r.modelCalls,
		ToolCalls:  r.toolCalls,
		Err:        err,
	}
}

func (r *run) compacted(step int, p domain.CompactionPayload) error {
	return r.reportContext(step, domain.ContextUsage{Messages: p.After, Compaction: &p})
}

func (r *run) reportContext(step int, usage domain.ContextUsage) error {
	return r.emit(domain.ExecutionStep{Kind: domain.StepKindContext, Index: step, Stage: StageModel, Context: &usage})
}

func (r *run) text(step int, stage, text string) error {
	if text == "" {
		return nil
	}
	return r.emit(domain.ExecutionStep{Kind: domain.StepKindModelDelta, Index: step, Stage: stage, Text: text})
}

func (r *run) boundary(step int, stage string) error {
	return r.emit(domain.ExecutionStep{Kind: domain.StepKindBoundary, Index: step, Stage: stage})
}

// toolCallAccumulator merges streamed tool call deltas by index.
type toolCallAccumulator struct {
	calls map[int]*partialToolCall
	next  int
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*partialToolCall)}
}

func (a *toolCallAccumulator) add(deltas []llm.ToolCall) {
	for _, d := range deltas {
		idx := a.next
		if d.Index != nil {
			idx = *d.Index
		} else {
			a.next++
		}
		p, ok := a.calls[idx]
		if !ok {
			p = &partialToolCall{}
			a.calls[idx] = p
		}
		if d.ID != "" {
			p.id = d.ID
		}
		if d.Function.Name != "" {
			p.name = d.Function.Name
		}
		p.args.WriteString(d.Function.Arguments)
	}
}

func (a *toolCallAccumulator) result() []domain.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]domain.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		p := a.calls[idx]
		id := p.id
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		args := p.args.String()
		if strings.TrimSpace(args) == "" || !json.Valid([]byte(args)) {
			args = "{}"
		}
		out = append(out, domain.ToolCall{ID: id, Name: p.name, Arguments: json.RawMessage(args)})
	}
	return out
}
