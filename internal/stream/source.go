// Package stream turns the agent's execution steps into the client event
// stream.
package stream

import (
	"context"
	"sync"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// StepStream is a pull-based source of execution steps.
//
// Next returns ok=false once the source is exhausted; err is the source's
// failure, if any. Close must be called on every exit path and is safe to call
// more than once.
type StepStream interface {
	Next(ctx context.Context) (step domain.ExecutionStep, ok bool, err error)
	Close() error
}

// Producer sends steps through emit until it is done. emit fails once the
// consumer has gone away.
type Producer func(ctx context.Context, emit func(domain.ExecutionStep) error) error

// ChanStream runs a Producer in its own goroutine and hands its steps over an
// unbuffered channel, so production is paced by consumption.
type ChanStream struct {
	ch        chan domain.ExecutionStep
	errCh     chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
	err       error
}

// NewChanStream starts producer. The producer's context is cancelled by Close.
func NewChanStream(ctx context.Context, producer Producer) *ChanStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &ChanStream{
		ch:     make(chan domain.ExecutionStep),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}

	emit := func(step domain.ExecutionStep) error {
		select {
		case s.ch <- step:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	go func() {
		defer close(s.ch)
		if err := producer(ctx, emit); err != nil {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	return s
}

// Next returns the next step.
func (s *ChanStream) Next(ctx context.Context) (domain.ExecutionStep, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionStep{}, false, err
	}
	select {
	case <-ctx.Done():
		return domain.ExecutionStep{}, false, ctx.Err()
	case step, open := <-s.ch:
		if !open {
			if err, ok := <-s.errCh; ok {
				s.err = err
			}
			return domain.ExecutionStep{}, false, s.err
		}
		return step, true, nil
	}
}

// Close cancels the producer and waits for it to exit.
func (s *ChanStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.ch {
		}
		if err, ok := <-s.errCh; ok && s.err == nil {
			s.err = err
		}
	})
	return nil
}
