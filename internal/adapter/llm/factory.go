package llm

import (
	"log/slog"
	"strings"
	"time"
)

// ModeMock selects the in-process mock client.
const ModeMock = "MOCK"

// NewLLMClient creates an LLM client for the given mode.
// Mode MOCK returns a MockClient; anything else returns a real Client.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if strings.EqualFold(mode, ModeMock) {
		slog.Info("mock mode detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}
