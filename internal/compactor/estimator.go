package compactor

import (
	"sync"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const (
	// defaultCharactersPerToken overestimates tokens for English text,
	// so compaction triggers slightly early rather than late.
	defaultCharactersPerToken = 4.0
	defaultSmoothingFactor    = 0.3
	// messageOverheadChars approximates role and framing tokens per message.
	messageOverheadChars = 20
)

// Estimator estimates the token cost of a message history.
type Estimator interface {
	EstimateTokens(messages []domain.Message) int
}

// CharEstimator estimates tokens from character counts with a ratio that
// calibrates from provider usage reports. Safe for concurrent use.
type CharEstimator struct {
	mu                 sync.Mutex
	charactersPerToken float64
	smoothingFactor    float64
	observations       int
}

// NewCharEstimator creates a CharEstimator with a ratio of 4 characters per token.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// EstimateTokens returns the estimated token count, rounded up.
func (e *CharEstimator) EstimateTokens(messages []domain.Message) int {
	if len(messages) == 0 {
		return 0
	}
	e.mu.Lock()
	ratio := e.charactersPerToken
	e.mu.Unlock()
	return int(float64(charCount(messages))/ratio) + 1
}

// RecordUsage calibrates the ratio from the prompt token count a provider
// reported for messages. The first observation replaces the default; later
// ones are blended with an exponential moving average.
func (e *CharEstimator) RecordUsage(messages []domain.Message, promptTokens int) {
	if promptTokens <= 0 {
		return
	}
	chars := charCount(messages)
	if chars == 0 {
		return
	}
	observed := float64(chars) / float64(promptTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.observations++
	if e.observations == 1 {
		e.charactersPerToken = observed
		return
	}
	e.charactersPerToken = e.smoothingFactor*observed + (1-e.smoothingFactor)*e.charactersPerToken
}

func charCount(messages []domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadChars + len(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name) + len(tc.Arguments)
		}
	}
	return total
}
