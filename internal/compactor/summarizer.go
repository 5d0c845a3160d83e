package compactor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const summaryPrompt = `You compress chat transcripts. Summarize the conversation below so that an
assistant can continue it without the original messages. Keep names, numbers,
decisions, open questions and tool results that are still relevant. Reply with
the summary only.`

// LLMSummarizer produces summaries with a subordinate model call.
type LLMSummarizer struct {
	client llm.LLMClient
	model  string
}

// NewLLMSummarizer creates a summarizer that calls model through client.
func NewLLMSummarizer(client llm.LLMClient, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: string(domain.RoleSystem), Content: summaryPrompt},
			{Role: string(domain.RoleUser), Content: transcript(messages)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary call: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", fmt.Errorf("summary call: empty response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("summary call: empty summary")
	}
	return text, nil
}

func transcript(messages []domain.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		if msg.Name != "" {
			b.WriteString("(" + msg.Name + ")")
		}
		b.WriteString(": ")
		b.WriteString(msg.Content)
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&b, " [calls %s %s]", tc.Name, string(tc.Arguments))
		}
		b.WriteString("\n")
	}
	return b.String()
}
