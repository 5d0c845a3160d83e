package middleware

import (
	"context"

	"github.com/xiaot623/gogo/agentgate/internal/compactor"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Summarization defaults.
const (
	DefaultMaxTokensBeforeSummary = 4000
	DefaultMessagesToKeep         = 20
)

// SummarizationConfig configures history compaction before model calls.
type SummarizationConfig struct {
	MaxTokensBeforeSummary int
	MessagesToKeep         int
}

// Summarization compacts the history of model requests that exceed the token
// budget. A summarizer failure is reported as a retryable fault.
type Summarization struct {
	compactor *compactor.Compactor
	cfg       SummarizationConfig
}

// NewSummarization creates the interceptor. Zero config values take defaults.
func NewSummarization(c *compactor.Compactor, cfg SummarizationConfig) *Summarization {
	if cfg.MaxTokensBeforeSummary == 0 {
		cfg.MaxTokensBeforeSummary = DefaultMaxTokensBeforeSummary
	}
	if cfg.MessagesToKeep <= 0 {
		cfg.MessagesToKeep = DefaultMessagesToKeep
	}
	return &Summarization{compactor: c, cfg: cfg}
}

func (s *Summarization) Name() string { return "summarization" }

func (s *Summarization) Before(ctx context.Context, req *Request) Decision {
	if req.Kind != KindModel || req.SkipCompaction {
		return Proceed(nil)
	}
	if !s.compactor.NeedsCompaction(req.Messages, s.cfg.MaxTokensBeforeSummary) {
		return Proceed(nil)
	}

	summary, history, err := s.compactor.Compact(ctx, req.Messages, s.cfg.MessagesToKeep)
	if err != nil {
		return Fail(err)
	}
	if summary.Content == "" {
		return Proceed(nil)
	}

	out := req.Clone()
	out.Messages = history
	out.Compaction = &domain.CompactionPayload{Before: len(req.Messages), After: len(history)}
	return Proceed(out)
}
