package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

func TestChanStream_DeliversThenError(t *testing.T) {
	failure := errors.New("producer failed")
	s := NewChanStream(context.Background(), func(ctx context.Context, emit func(domain.ExecutionStep) error) error {
		for i := 0; i < 3; i++ {
			if err := emit(domain.ExecutionStep{Kind: domain.StepKindModelDelta, Index: i}); err != nil {
				return err
			}
		}
		return failure
	})
	defer s.Close()

	for i := 0; i < 3; i++ {
		step, ok, err := s.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, step.Index)
	}
	_, ok, err := s.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, failure)

	_, ok, err = s.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, failure)
}

func TestChanStream_CloseStopsProducer(t *testing.T) {
	stopped := make(chan error, 1)
	s := NewChanStream(context.Background(), func(ctx context.Context, emit func(domain.ExecutionStep) error) error {
		for {
			if err := emit(domain.ExecutionStep{Kind: domain.StepKindModelDelta}); err != nil {
				stopped <- err
				return err
			}
		}
	})

	_, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, <-stopped, context.Canceled)
	require.NoError(t, s.Close())
}

func TestChanStream_NextHonorsContext(t *testing.T) {
	block := make(chan struct{})
	s := NewChanStream(context.Background(), func(ctx context.Context, emit func(domain.ExecutionStep) error) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := s.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
