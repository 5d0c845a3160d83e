package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// GetRun returns a run from the ledger, or nil if it does not exist.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

// ResetThread drops a thread's history and its call counters. It reports
// whether the thread had any history.
func (s *Service) ResetThread(threadID string) bool {
	s.modelQuota.ForgetThread(threadID)
	s.toolQuota.ForgetThread(threadID)
	return s.threads.Delete(threadID)
}

// ThreadHistory returns a copy of a thread's messages.
func (s *Service) ThreadHistory(threadID string) []domain.Message {
	return s.threads.History(threadID)
}
