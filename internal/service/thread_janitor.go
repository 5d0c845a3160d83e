package service

import (
	"context"
	"time"
)

// RunThreadJanitor periodically forgets threads idle for longer than the
// configured TTL. It returns when ctx is done.
func (s *Service) RunThreadJanitor(ctx context.Context, interval time.Duration) {
	if s.config.ThreadIdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepIdleThreads(time.Now())
		}
	}
}

func (s *Service) sweepIdleThreads(now time.Time) int {
	idle := s.threads.IdleSince(now.Add(-s.config.ThreadIdleTTL))
	for _, threadID := range idle {
		s.ResetThread(threadID)
	}
	if len(idle) > 0 {
		s.logger.Info("forgot idle threads", "count", len(idle))
	}
	return len(idle)
}
