package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is a deterministic LLMClient for local runs and tests.
//
// It calls the first offered tool whose name appears in the last user
// message, answers tool results by quoting them, and otherwise echoes the
// last user message. Requests without tools are treated as summary requests.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	msg := m.generateMockResponse(req)
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: &msg, FinishReason: finishReason(msg)}},
		Usage:   m.usage(req, msg),
	}, nil
}

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	msg := m.generateMockResponse(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	send := func(delta ChatMessage, finish string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return callback(&StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{{Index: 0, Delta: &delta, FinishReason: finish}},
		})
	}

	chunks := m.splitIntoChunks(msg.Content, 10)
	for i, chunk := range chunks {
		finish := ""
		if i == len(chunks)-1 && len(msg.ToolCalls) == 0 {
			finish = "stop"
		}
		if err := send(ChatMessage{Role: "assistant", Content: chunk}, finish); err != nil {
			return nil, err
		}
	}
	for i, tc := range msg.ToolCalls {
		idx := i
		tc.Index = &idx
		if err := send(ChatMessage{Role: "assistant", ToolCalls: []ToolCall{tc}}, "tool_calls"); err != nil {
			return nil, err
		}
	}

	return m.usage(req, msg), nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "mock-chat", Object: "model", Created: time.Now().Unix(), OwnedBy: "mock"},
	}, nil
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) ChatMessage {
	if len(req.Messages) == 0 {
		return ChatMessage{Role: "assistant", Content: "[MOCK] This is a mock response from the LLM client."}
	}

	if len(req.Tools) == 0 {
		return ChatMessage{Role: "assistant", Content: fmt.Sprintf("[MOCK] Summary of %d messages.", len(req.Messages))}
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role == "tool" {
		return ChatMessage{Role: "assistant", Content: fmt.Sprintf("[MOCK] Tool %s returned: %s", last.Name, truncate(last.Content, 100))}
	}

	if last.Role == "user" {
		lower := strings.ToLower(last.Content)
		for _, tool := range req.Tools {
			if strings.Contains(lower, strings.ToLower(tool.Function.Name)) {
				return ChatMessage{
					Role: "assistant",
					ToolCalls: []ToolCall{{
						ID:       fmt.Sprintf("call_%d", time.Now().UnixNano()),
						Type:     "function",
						Function: ToolCallFunction{Name: tool.Function.Name, Arguments: "{}"},
					}},
				}
			}
		}
		return ChatMessage{Role: "assistant", Content: fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(last.Content, 100))}
	}

	return ChatMessage{Role: "assistant", Content: "[MOCK] This is a mock response from the LLM client."}
}

func (m *MockClient) usage(req *ChatCompletionRequest, msg ChatMessage) *Usage {
	prompt := m.estimateTokens(req)
	completion := len(msg.Content) / 4
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func (m *MockClient) splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return nil
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func finishReason(msg ChatMessage) string {
	if len(msg.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
