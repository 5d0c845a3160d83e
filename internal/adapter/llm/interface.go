// Package llm talks to OpenAI-compatible chat completion endpoints.
package llm

import "context"

// LLMClient is the model collaborator of the agent loop and the summarizer.
type LLMClient interface {
	// CreateChatCompletion returns one complete reply. The summarizer uses it.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// CreateChatCompletionStream calls callback for every streamed delta and
	// returns the usage reported at the end of the stream, if any.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)

	// ListModels is used for the startup model check.
	ListModels(ctx context.Context) ([]Model, error)
}

var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*MockClient)(nil)
)
