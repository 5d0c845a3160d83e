package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/middleware"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(context.WithoutCancel(ctx), event)
}

// record is recordEvent for callers that only log failures.
func (s *Service) record(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, runID, eventType, payload); err != nil {
		s.logger.Error("failed to record event", "run_id", runID, "type", eventType, "err", err)
	}
}

func (s *Service) onShortCircuit(ctx context.Context, req *middleware.Request, d middleware.Decision) {
	payload := domain.PolicyDecisionPayload{
		Interceptor: d.Interceptor,
		Reason:      string(d.Reason),
	}
	if d.Err != nil {
		payload.Detail = d.Err.Error()
	}
	if req.ToolCall != nil {
		payload.ToolName = req.ToolCall.Name
	}
	s.record(ctx, req.RunID, domain.EventTypePolicyDecision, payload)
}

// onContext records compaction attempts. It runs on the stream consumer, as
// does onStageTransition, so run events are written from one goroutine.
func (s *Service) onContext(runID string, step int, usage domain.ContextUsage) {
	if usage.Compaction == nil {
		return
	}
	s.record(context.Background(), runID, domain.EventTypeCompaction, *usage.Compaction)
}

func (s *Service) onStageTransition(runID string, step int, from, to string) {
	s.record(context.Background(), runID, domain.EventTypeStageTransition, domain.StageTransitionPayload{
		Step: step,
		From: from,
		To:   to,
	})
}
