package agent

import (
	"context"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
)

// Execution is a running loop seen as a step source.
type Execution struct {
	steps  *stream.ChanStream
	done   chan struct{}
	result Result
}

var _ stream.StepStream = (*Execution)(nil)

// Next returns the next step.
func (e *Execution) Next(ctx context.Context) (domain.ExecutionStep, bool, error) {
	return e.steps.Next(ctx)
}

// Close stops the loop and waits for it to exit.
func (e *Execution) Close() error {
	return e.steps.Close()
}

// Result blocks until the loop has exited and returns its outcome.
func (e *Execution) Result() Result {
	<-e.done
	return e.result
}
