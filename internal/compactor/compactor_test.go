package compactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

type fixedEstimator struct {
	perMessage int
}

func (f fixedEstimator) EstimateTokens(messages []domain.Message) int {
	return f.perMessage * len(messages)
}

func countingSummarizer(calls *int) Summarizer {
	return SummarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		*calls++
		return fmt.Sprintf("summary of %d", len(messages)), nil
	})
}

func history(n int) []domain.Message {
	msgs := []domain.Message{domain.SystemMessage("you are helpful")}
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			msgs = append(msgs, domain.UserMessage(fmt.Sprintf("question %d", i)))
		} else {
			msgs = append(msgs, domain.AssistantMessage(fmt.Sprintf("answer %d", i)))
		}
	}
	return msgs
}

func TestNeedsCompaction(t *testing.T) {
	c := New(nil, fixedEstimator{perMessage: 10})
	msgs := history(5)

	assert.True(t, c.NeedsCompaction(msgs, 49))
	assert.False(t, c.NeedsCompaction(msgs, 50))
	assert.False(t, c.NeedsCompaction(msgs, 0))
}

func TestCompactKeepsSystemAndTrailingWindow(t *testing.T) {
	var calls int
	c := New(countingSummarizer(&calls), fixedEstimator{perMessage: 200})
	msgs := history(25)
	require.True(t, c.NeedsCompaction(msgs, 4000))

	summary, out, err := c.Compact(context.Background(), msgs, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.Len(t, out, 22)
	assert.Equal(t, domain.RoleSystem, out[0].Role)
	assert.Equal(t, "you are helpful", out[0].Content)
	assert.True(t, out[1].Synthetic)
	assert.Equal(t, summary, out[1])
	assert.True(t, strings.HasPrefix(summary.Content, SummaryPrefix))
	assert.Contains(t, summary.Content, "summary of 4")
	assert.Equal(t, msgs[5:], out[2:])

	synthetic := 0
	for _, m := range out {
		if m.Synthetic {
			synthetic++
		}
	}
	assert.Equal(t, 1, synthetic)
}

func TestCompactIsIdempotent(t *testing.T) {
	var calls int
	c := New(countingSummarizer(&calls), fixedEstimator{perMessage: 100})
	msgs := history(25)

	_, once, err := c.Compact(context.Background(), msgs, 20)
	require.NoError(t, err)
	require.False(t, c.NeedsCompaction(once, 4000))

	_, twice, err := c.Compact(context.Background(), once, 20)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, calls)
}

func TestCompactNothingToSummarize(t *testing.T) {
	var calls int
	c := New(countingSummarizer(&calls), nil)
	msgs := history(10)

	summary, out, err := c.Compact(context.Background(), msgs, 20)
	require.NoError(t, err)
	assert.Equal(t, domain.Message{}, summary)
	assert.Equal(t, msgs, out)
	assert.Zero(t, calls)
}

func TestCompactWithoutSystemMessage(t *testing.T) {
	var calls int
	c := New(countingSummarizer(&calls), nil)
	msgs := history(8)[1:]

	_, out, err := c.Compact(context.Background(), msgs, 3)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.True(t, out[0].Synthetic)
	assert.Equal(t, msgs[4:], out[1:])
}

func TestCompactDoesNotOrphanToolResults(t *testing.T) {
	var calls int
	c := New(countingSummarizer(&calls), nil)
	msgs := []domain.Message{
		domain.SystemMessage("sys"),
		domain.UserMessage("q1"),
		domain.AssistantMessage("a1"),
		domain.UserMessage("what time is it"),
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "time.now"}}},
		domain.ToolMessage("c1", "time.now", "12:00"),
		domain.AssistantMessage("it is noon"),
	}

	_, out, err := c.Compact(context.Background(), msgs, 2)
	require.NoError(t, err)
	// The window grows to include the assistant tool call.
	require.Len(t, out, 5)
	assert.Equal(t, domain.RoleAssistant, out[2].Role)
	assert.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, domain.RoleTool, out[3].Role)
}

func TestCompactSummarizerFailureKeepsHistory(t *testing.T) {
	boom := errors.New("model unavailable")
	c := New(SummarizerFunc(func(ctx context.Context, messages []domain.Message) (string, error) {
		return "", boom
	}), nil)
	msgs := history(25)

	_, out, err := c.Compact(context.Background(), msgs, 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompactionFailed)
	assert.ErrorIs(t, err, boom)

	var cerr *CompactionError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.Retryable())
	assert.Equal(t, msgs, out)
}

func TestCharEstimator(t *testing.T) {
	e := NewCharEstimator()
	msgs := []domain.Message{domain.UserMessage(strings.Repeat("a", 400))}

	// 400 chars + 20 overhead at 4 chars/token.
	assert.Equal(t, 106, e.EstimateTokens(msgs))
	assert.Zero(t, e.EstimateTokens(nil))

	// 420 chars reported as 210 tokens: ratio becomes 2.
	e.RecordUsage(msgs, 210)
	assert.Equal(t, 211, e.EstimateTokens(msgs))

	// Second observation at ratio 4 blends to 0.3*4 + 0.7*2 = 2.6.
	e.RecordUsage(msgs, 105)
	assert.Equal(t, 162, e.EstimateTokens(msgs))
}

func TestLLMSummarizer(t *testing.T) {
	s := NewLLMSummarizer(llm.NewMockClient(), "mock-chat")
	text, err := s.Summarize(context.Background(), history(4))
	require.NoError(t, err)
	assert.Equal(t, "[MOCK] Summary of 2 messages.", text)
}
