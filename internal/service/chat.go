package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/agentgate/internal/agent"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
)

// Turn is a validated chat request with its run created. Nothing has been
// written to the client yet.
type Turn struct {
	svc *Service
	req domain.ChatRequest
	run *domain.Run
}

// RunID returns the id of the run serving this turn.
func (t *Turn) RunID() string { return t.run.RunID }

// ThreadID returns the thread this turn belongs to.
func (t *Turn) ThreadID() string { return t.run.ThreadID }

// BeginChat validates req and creates its run. Errors wrapping
// domain.ErrInvalidRequest are the caller's fault.
func (s *Service) BeginChat(ctx context.Context, req domain.ChatRequest) (*Turn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &domain.Run{
		RunID:     "run_" + uuid.New().String()[:8],
		ThreadID:  req.Thread(),
		UserID:    req.UserID,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.record(ctx, run.RunID, domain.EventTypeRunStarted, domain.RunStartedPayload{
		ThreadID: run.ThreadID,
		UserID:   run.UserID,
	})
	s.record(ctx, run.RunID, domain.EventTypeUserInput, domain.UserInputPayload{
		Content: req.Message,
	})

	return &Turn{svc: s, req: req, run: run}, nil
}

// Stream runs the turn, writing client events through emit, and finalizes the
// run. annotated selects the rich event variant. The returned run reflects
// the final ledger state.
func (t *Turn) Stream(ctx context.Context, annotated bool, emit stream.Emitter) (*domain.Run, stream.Outcome) {
	s := t.svc
	run := t.run
	logger := s.logger.With("run_id", run.RunID, "thread_id", run.ThreadID)

	var runCtx context.Context
	var cancel context.CancelFunc
	if s.config.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, s.config.RunTimeout, stream.ErrRunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	exec := s.loop.Start(runCtx, agent.Input{
		ThreadID: run.ThreadID,
		RunID:    run.RunID,
		History:  s.threads.History(run.ThreadID),
		Message:  t.req.Message,
	})

	outcome := s.mux.WithAnnotated(annotated).Run(runCtx, run.RunID, exec, emit)
	res := exec.Result()

	status := res.Status
	if outcome.TimedOut {
		status = domain.RunStatusLimitExceeded
	}
	if outcome.Err == nil && (status == domain.RunStatusCompleted || status == domain.RunStatusLimitExceeded) {
		s.threads.Replace(run.ThreadID, res.Messages)
	}
	s.modelQuota.EndRun(run.RunID)
	s.toolQuota.EndRun(run.RunID)

	cause := res.Err
	if outcome.TimedOut {
		cause = stream.ErrRunTimeout
	}
	finished := domain.RunFinishedPayload{ModelCalls: res.ModelCalls, ToolCalls: res.ToolCalls}
	var errData []byte
	if cause != nil {
		finished.Code = errorCode(status, cause)
		finished.Message = cause.Error()
		errData, _ = json.Marshal(map[string]string{"code": finished.Code, "message": finished.Message})
	}

	s.record(ctx, run.RunID, finishedEventType(status), finished)
	if err := s.store.UpdateRunCompleted(context.WithoutCancel(ctx), run.RunID, status, res.ModelCalls, res.ToolCalls, errData); err != nil {
		logger.Error("failed to update run", "err", err)
	}

	logger.Info("run finished",
		"status", status,
		"model_calls", res.ModelCalls,
		"tool_calls", res.ToolCalls,
		"events", outcome.Events,
		"disconnected", outcome.Disconnected)

	now := time.Now()
	final := *run
	final.Status = status
	final.ModelCalls = res.ModelCalls
	final.ToolCalls = res.ToolCalls
	final.EndedAt = &now
	final.Error = errData
	return &final, outcome
}

// Chat is BeginChat followed by Stream.
func (s *Service) Chat(ctx context.Context, req domain.ChatRequest, annotated bool, emit stream.Emitter) (*domain.Run, error) {
	turn, err := s.BeginChat(ctx, req)
	if err != nil {
		return nil, err
	}
	run, _ := turn.Stream(ctx, annotated, emit)
	return run, nil
}

func finishedEventType(status domain.RunStatus) domain.EventType {
	switch status {
	case domain.RunStatusCompleted:
		return domain.EventTypeRunCompleted
	case domain.RunStatusLimitExceeded:
		return domain.EventTypeRunLimitExceeded
	case domain.RunStatusCancelled:
		return domain.EventTypeRunCancelled
	default:
		return domain.EventTypeRunFailed
	}
}

func errorCode(status domain.RunStatus, err error) string {
	switch {
	case errors.Is(err, stream.ErrRunTimeout):
		return "timeout"
	case errors.Is(err, agent.ErrMaxStepsExceeded):
		return "max_steps"
	}
	return string(status)
}
