// Package compactor keeps a conversation history under a token budget by
// replacing older messages with a synthesized summary.
package compactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// SummaryPrefix starts the content of every summary message.
const SummaryPrefix = "Here is a summary of the conversation to date:\n\n"

// ErrCompactionFailed is matched by every *CompactionError.
var ErrCompactionFailed = errors.New("compaction failed")

// CompactionError reports a failed summarization call. The history handed to
// Compact is returned unchanged alongside it.
type CompactionError struct {
	Err error
}

func (e *CompactionError) Error() string {
	return fmt.Sprintf("compaction failed: %v", e.Err)
}

func (e *CompactionError) Unwrap() []error {
	return []error{ErrCompactionFailed, e.Err}
}

// Retryable reports whether the run may continue with the uncompacted history.
func (e *CompactionError) Retryable() bool { return true }

// Summarizer condenses a span of messages into text.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, messages []domain.Message) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []domain.Message) (string, error) {
	return f(ctx, messages)
}

// Compactor decides and performs history truncation.
type Compactor struct {
	summarizer Summarizer
	estimator  Estimator
}

// New creates a Compactor. A nil estimator uses NewCharEstimator.
func New(summarizer Summarizer, estimator Estimator) *Compactor {
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	return &Compactor{summarizer: summarizer, estimator: estimator}
}

// Estimator returns the estimator used for budget decisions.
func (c *Compactor) Estimator() Estimator {
	return c.estimator
}

// NeedsCompaction reports whether the estimated size of history exceeds budget.
// A budget of zero or less disables compaction.
func (c *Compactor) NeedsCompaction(history []domain.Message, budget int) bool {
	if budget <= 0 {
		return false
	}
	return c.estimator.EstimateTokens(history) > budget
}

// Compact summarizes everything except a leading system message and the last
// keepLastN messages. The returned history is
// [system?] + [summary] + trailing window.
//
// When there is nothing to summarize the zero Message and the original
// history are returned. On summarizer failure the original history is
// returned with a *CompactionError.
func (c *Compactor) Compact(ctx context.Context, history []domain.Message, keepLastN int) (domain.Message, []domain.Message, error) {
	if keepLastN < 0 {
		keepLastN = 0
	}

	start := 0
	if len(history) > 0 && history[0].Role == domain.RoleSystem && !history[0].Synthetic {
		start = 1
	}

	cutoff := safeCutoff(history, start, len(history)-keepLastN)
	if cutoff <= start {
		return domain.Message{}, history, nil
	}
	// Only a previous summary would be summarized again.
	if cutoff-start == 1 && history[start].Synthetic {
		return domain.Message{}, history, nil
	}

	span := history[start:cutoff]
	text, err := c.summarizer.Summarize(ctx, domain.CloneMessages(span))
	if err != nil {
		return domain.Message{}, history, &CompactionError{Err: err}
	}

	summary := domain.Message{
		Role:      domain.RoleUser,
		Content:   SummaryPrefix + text,
		Synthetic: true,
	}

	out := make([]domain.Message, 0, start+1+len(history)-cutoff)
	out = append(out, history[:start]...)
	out = append(out, summary)
	out = append(out, history[cutoff:]...)
	return summary, domain.CloneMessages(out), nil
}

// safeCutoff moves cutoff backwards so the kept window never opens with a
// tool result whose requesting assistant message would be summarized away.
func safeCutoff(history []domain.Message, start, cutoff int) int {
	if cutoff > len(history) {
		cutoff = len(history)
	}
	for cutoff > start && cutoff < len(history) && history[cutoff].Role == domain.RoleTool {
		cutoff--
	}
	return cutoff
}
