package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/compactor"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/middleware"
	"github.com/xiaot623/gogo/agentgate/internal/quota"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
	"github.com/xiaot623/gogo/agentgate/policy"
)

// scriptedClient streams one scripted reply per call. The last reply repeats.
type scriptedClient struct {
	mu       sync.Mutex
	replies  []llm.ChatMessage
	requests []*llm.ChatCompletionRequest
	err      error
}

func (c *scriptedClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return nil, errors.New("not used")
}

func (c *scriptedClient) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	n := len(c.requests)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	reply := c.replies[len(c.replies)-1]
	if n <= len(c.replies) {
		reply = c.replies[n-1]
	}
	for _, word := range strings.SplitAfter(reply.Content, " ") {
		if word == "" {
			continue
		}
		if err := callback(&llm.StreamChunk{Choices: []llm.Choice{{Delta: &llm.ChatMessage{Content: word}}}}); err != nil {
			return nil, err
		}
	}
	for i, tc := range reply.ToolCalls {
		idx := i
		tc.Index = &idx
		if err := callback(&llm.StreamChunk{Choices: []llm.Choice{{Delta: &llm.ChatMessage{ToolCalls: []llm.ToolCall{tc}}}}}); err != nil {
			return nil, err
		}
	}
	return &llm.Usage{PromptTokens: 50}, nil
}

func (c *scriptedClient) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func toolCallReply(name, args string) llm.ChatMessage {
	return llm.ChatMessage{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{{
			ID:       "call_" + name,
			Type:     "function",
			Function: llm.ToolCallFunction{Name: name, Arguments: args},
		}},
	}
}

func textReply(text string) llm.ChatMessage {
	return llm.ChatMessage{Role: "assistant", Content: text}
}

type usageSpy struct {
	tokens []int
}

func (u *usageSpy) RecordUsage(messages []domain.Message, promptTokens int) {
	u.tokens = append(u.tokens, promptTokens)
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Tool{Name: "lookup", Exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"answer":42}`), nil
	}}))
	require.NoError(t, r.Register(tools.Tool{Name: "broken", Exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("disk on fire")
	}}))
	require.NoError(t, r.Register(tools.Tool{Name: "shell.exec", Exec: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"ran"`), nil
	}}))
	return r
}

func newLoop(t *testing.T, client llm.LLMClient, chain *middleware.Chain, usage UsageRecorder) *Loop {
	t.Helper()
	if chain == nil {
		chain = middleware.NewChain(nil)
	}
	loop, err := NewLoop(Deps{Client: client, Tools: testRegistry(t), Chain: chain, Usage: usage}, Config{Model: "test", SystemPrompt: "be brief", MaxSteps: 20})
	require.NoError(t, err)
	return loop
}

func drain(t *testing.T, exec *Execution) ([]domain.ExecutionStep, error) {
	t.Helper()
	defer exec.Close()
	var steps []domain.ExecutionStep
	for {
		step, ok, err := exec.Next(context.Background())
		if err != nil {
			return steps, err
		}
		if !ok {
			return steps, nil
		}
		steps = append(steps, step)
	}
}

func kinds(steps []domain.ExecutionStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = fmt.Sprintf("%s/%s/%d", s.Kind, s.Stage, s.Index)
	}
	return out
}

func contextUsage(steps []domain.ExecutionStep) []domain.ContextUsage {
	var out []domain.ContextUsage
	for _, s := range steps {
		if s.Kind == domain.StepKindContext {
			out = append(out, *s.Context)
		}
	}
	return out
}

func compactionsOf(steps []domain.ExecutionStep) []domain.CompactionPayload {
	var out []domain.CompactionPayload
	for _, usage := range contextUsage(steps) {
		if usage.Compaction != nil {
			out = append(out, *usage.Compaction)
		}
	}
	return out
}

func TestNewLoop_RequiresDeps(t *testing.T) {
	_, err := NewLoop(Deps{}, Config{})
	assert.Error(t, err)
	_, err = NewLoop(Deps{Client: &scriptedClient{}}, Config{})
	assert.Error(t, err)
	_, err = NewLoop(Deps{Client: &scriptedClient{}, Tools: tools.NewRegistry()}, Config{})
	assert.Error(t, err)
}

func TestLoop_AnswerWithoutTools(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{textReply("hello there friend")}}
	usage := &usageSpy{}
	exec := newLoop(t, client, nil, usage).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "hi"})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"model_delta/model/0", "model_delta/model/0", "model_delta/model/0", "context/model/0", "boundary/model/0",
	}, kinds(steps))
	assert.Equal(t, []domain.ContextUsage{{Messages: 2, PromptTokens: 50}}, contextUsage(steps))

	res := exec.Result()
	assert.Equal(t, domain.RunStatusCompleted, res.Status)
	assert.Equal(t, "hello there friend", res.Output)
	assert.Equal(t, 1, res.ModelCalls)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, domain.RoleSystem, res.Messages[0].Role)
	assert.Equal(t, "hi", res.Messages[1].Content)
	assert.Equal(t, []int{50}, usage.tokens)

	require.Len(t, client.requests, 1)
	assert.True(t, client.requests[0].Stream)
	assert.Len(t, client.requests[0].Tools, 3)
}

func TestLoop_ToolRoundTrip(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{
		toolCallReply("lookup", `{"q":"life"}`),
		textReply("It is 42."),
	}}
	exec := newLoop(t, client, nil, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "answer?"})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"context/model/0", "tool_start/tools/0", "tool_result/tools/0", "boundary/tools/0",
		"model_delta/model/1", "model_delta/model/1", "model_delta/model/1", "context/model/1", "boundary/model/1",
	}, kinds(steps))
	assert.Equal(t, `{"answer":42}`, steps[2].Text)
	assert.Equal(t, "lookup", steps[2].ToolCall.Name)
	assert.JSONEq(t, `{"q":"life"}`, string(steps[1].ToolCall.Arguments))

	res := exec.Result()
	assert.Equal(t, domain.RunStatusCompleted, res.Status)
	assert.Equal(t, 2, res.ModelCalls)
	assert.Equal(t, 1, res.ToolCalls)

	// The second model call sees the assistant tool call and its result.
	second := client.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, "assistant", second[2].Role)
	assert.Equal(t, "tool", second[3].Role)
	assert.Equal(t, "call_lookup", second[3].ToolCallID)
}

func TestLoop_ToolErrorIsFedBack(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{toolCallReply("broken", `{}`), textReply("sorry")}}
	exec := newLoop(t, client, nil, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "go"})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	assert.True(t, steps[2].Failed)
	assert.Contains(t, steps[2].Text, "disk on fire")
	assert.Equal(t, domain.RunStatusCompleted, exec.Result().Status)
}

// A run limited to ten model calls stops gracefully on the eleventh.
func TestLoop_ModelCallRunLimit(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{toolCallReply("lookup", `{}`)}}
	chain := middleware.NewChain(nil, middleware.NewModelCallLimit(middleware.LimitConfig{
		RunLimit:     10,
		ExitBehavior: domain.ExitBehaviorEnd,
	}, quota.NewTracker()))
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "loop"})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	assert.Equal(t, 10, client.calls())

	res := exec.Result()
	assert.Equal(t, domain.RunStatusLimitExceeded, res.Status)
	assert.Equal(t, 10, res.ModelCalls)
	assert.ErrorIs(t, res.Err, middleware.ErrLimitExceeded)
	assert.Contains(t, res.Output, "limit")

	last := steps[len(steps)-2]
	assert.Equal(t, domain.StepKindModelDelta, last.Kind)
	assert.Equal(t, res.Output, last.Text)
	assert.Equal(t, domain.RoleAssistant, res.Messages[len(res.Messages)-1].Role)
}

func TestLoop_ModelCallLimitErrorExit(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{toolCallReply("lookup", `{}`)}}
	chain := middleware.NewChain(nil, middleware.NewModelCallLimit(middleware.LimitConfig{
		RunLimit:     2,
		ExitBehavior: domain.ExitBehaviorError,
	}, nil))
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "loop"})

	_, err := drain(t, exec)
	assert.ErrorIs(t, err, middleware.ErrLimitExceeded)
	assert.Equal(t, domain.RunStatusLimitExceeded, exec.Result().Status)
}

func TestLoop_ToolCallLimitAnswersPendingCalls(t *testing.T) {
	twoCalls := llm.ChatMessage{Role: "assistant", ToolCalls: []llm.ToolCall{
		{ID: "a", Type: "function", Function: llm.ToolCallFunction{Name: "lookup", Arguments: "{}"}},
		{ID: "b", Type: "function", Function: llm.ToolCallFunction{Name: "lookup", Arguments: "{}"}},
	}}
	client := &scriptedClient{replies: []llm.ChatMessage{twoCalls}}
	chain := middleware.NewChain(nil, middleware.NewToolCallLimit(middleware.LimitConfig{RunLimit: 2}, nil))
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "go"})

	_, err := drain(t, exec)
	require.NoError(t, err)
	res := exec.Result()
	assert.Equal(t, domain.RunStatusLimitExceeded, res.Status)
	assert.Equal(t, 2, res.ToolCalls)

	// Every tool call of the last assistant message has an answer.
	msgs := res.Messages
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, domain.RoleAssistant, msgs[len(msgs)-1].Role)
	assert.Equal(t, skippedToolMessage, msgs[len(msgs)-2].Content)
	assert.Equal(t, "b", msgs[len(msgs)-2].ToolCallID)
	assert.Equal(t, skippedToolMessage, msgs[len(msgs)-3].Content)
	assert.Equal(t, "a", msgs[len(msgs)-3].ToolCallID)
}

func TestLoop_BlockedToolContinues(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	client := &scriptedClient{replies: []llm.ChatMessage{toolCallReply("shell.exec", `{"cmd":"ls"}`), textReply("blocked, sorry")}}
	chain := middleware.NewChain(nil, middleware.NewToolPolicy(engine))
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "run ls"})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	assert.True(t, steps[2].Failed)
	assert.Contains(t, steps[2].Text, "blocked by policy")

	res := exec.Result()
	assert.Equal(t, domain.RunStatusCompleted, res.Status)
	assert.Zero(t, res.ToolCalls)
}

func TestLoop_CompactionFailureRetriesWithoutIt(t *testing.T) {
	failing := compactor.SummarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		return "", errors.New("summarizer down")
	})
	c := compactor.New(failing, nil)
	chain := middleware.NewChain(nil,
		middleware.NewSummarization(c, middleware.SummarizationConfig{MaxTokensBeforeSummary: 1, MessagesToKeep: 1}),
		middleware.NewModelCallLimit(middleware.LimitConfig{RunLimit: 5}, nil),
	)
	client := &scriptedClient{replies: []llm.ChatMessage{textReply("fine")}}

	history := []domain.Message{domain.UserMessage("old question"), domain.AssistantMessage("old answer")}
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{
		ThreadID: "t1",
		RunID:    "r1",
		History:  history,
		Message:  "new",
	})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	compactions := compactionsOf(steps)
	res := exec.Result()
	assert.Equal(t, domain.RunStatusCompleted, res.Status)
	assert.Equal(t, 1, res.ModelCalls)
	require.Len(t, compactions, 1)
	assert.True(t, compactions[0].Failed)
	assert.True(t, compactions[0].Retryable)
	assert.Len(t, client.requests[0].Messages, 4)
}

func TestLoop_CompactionRewritesHistory(t *testing.T) {
	summarizer := compactor.SummarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		return "earlier chat", nil
	})
	chain := middleware.NewChain(nil, middleware.NewSummarization(
		compactor.New(summarizer, nil),
		middleware.SummarizationConfig{MaxTokensBeforeSummary: 1, MessagesToKeep: 2},
	))
	client := &scriptedClient{replies: []llm.ChatMessage{textReply("ok")}}

	var history []domain.Message
	for i := 0; i < 6; i++ {
		history = append(history, domain.UserMessage(fmt.Sprintf("q%d", i)), domain.AssistantMessage(fmt.Sprintf("a%d", i)))
	}
	exec := newLoop(t, client, chain, nil).Start(context.Background(), Input{
		ThreadID: "t1", RunID: "r1", History: history, Message: "latest",
	})

	steps, err := drain(t, exec)
	require.NoError(t, err)
	compactions := compactionsOf(steps)
	require.Len(t, compactions, 1)
	assert.Equal(t, domain.CompactionPayload{Before: 14, After: 4}, compactions[0])

	sent := client.requests[0].Messages
	require.Len(t, sent, 4)
	assert.Equal(t, "system", sent[0].Role)
	assert.True(t, strings.HasPrefix(sent[1].Content, compactor.SummaryPrefix))

	res := exec.Result()
	assert.Len(t, res.Messages, 5)
	assert.True(t, res.Messages[1].Synthetic)
}

func TestLoop_UpstreamError(t *testing.T) {
	client := &scriptedClient{err: errors.New("502 bad gateway")}
	exec := newLoop(t, client, nil, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "hi"})

	_, err := drain(t, exec)
	assert.ErrorContains(t, err, "502 bad gateway")
	assert.Equal(t, domain.RunStatusError, exec.Result().Status)
}

func TestLoop_MaxSteps(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{toolCallReply("lookup", `{}`)}}
	loop, err := NewLoop(Deps{Client: client, Tools: testRegistry(t), Chain: middleware.NewChain(nil)}, Config{MaxSteps: 3})
	require.NoError(t, err)

	exec := loop.Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "loop"})
	_, err = drain(t, exec)
	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.Equal(t, 3, client.calls())
	assert.Equal(t, domain.RunStatusError, exec.Result().Status)
}

func TestLoop_CloseCancels(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{textReply("one two three four five")}}
	exec := newLoop(t, client, nil, nil).Start(context.Background(), Input{ThreadID: "t1", RunID: "r1", Message: "hi"})

	_, ok, err := exec.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, exec.Close())

	res := exec.Result()
	assert.Equal(t, domain.RunStatusCancelled, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestLoop_TimeoutIsLimitExceeded(t *testing.T) {
	client := &scriptedClient{replies: []llm.ChatMessage{textReply("one two")}}
	ctx, cancel := context.WithCancelCause(context.Background())
	exec := newLoop(t, client, nil, nil).Start(ctx, Input{ThreadID: "t1", RunID: "r1", Message: "hi"})

	_, ok, err := exec.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	cancel(stream.ErrRunTimeout)
	require.NoError(t, exec.Close())

	res := exec.Result()
	assert.Equal(t, domain.RunStatusLimitExceeded, res.Status)
	assert.ErrorIs(t, res.Err, stream.ErrRunTimeout)
}

func TestToolCallAccumulator(t *testing.T) {
	zero, one := 0, 1
	acc := newToolCallAccumulator()
	acc.add([]llm.ToolCall{{Index: &one, ID: "b", Function: llm.ToolCallFunction{Name: "second"}}})
	acc.add([]llm.ToolCall{{Index: &zero, ID: "a", Function: llm.ToolCallFunction{Name: "first", Arguments: `{"x":`}}})
	acc.add([]llm.ToolCall{{Index: &zero, Function: llm.ToolCallFunction{Arguments: `1}`}}})

	calls := acc.result()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.JSONEq(t, `{"x":1}`, string(calls[0].Arguments))
	assert.Equal(t, "second", calls[1].Name)
	assert.JSONEq(t, `{}`, string(calls[1].Arguments))

	assert.Nil(t, newToolCallAccumulator().result())
}
