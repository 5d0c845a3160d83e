// Package service orchestrates chat turns: it runs the governed agent loop,
// multiplexes its steps to the client and records the run ledger.
package service

import (
	"errors"
	"log/slog"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
	"github.com/xiaot623/gogo/agentgate/internal/agent"
	"github.com/xiaot623/gogo/agentgate/internal/compactor"
	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/middleware"
	"github.com/xiaot623/gogo/agentgate/internal/quota"
	"github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
	"github.com/xiaot623/gogo/agentgate/internal/thread"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
)

// Deps are the collaborators of a Service. Policy may be nil to disable the
// tool policy interceptor; Tools defaults to tools.DefaultRegistry.
type Deps struct {
	Store   repository.Store
	Threads *thread.Store
	LLM     llm.LLMClient
	Tools   *tools.Registry
	Policy  middleware.PolicyEvaluator
	Logger  *slog.Logger
}

type Service struct {
	store      repository.Store
	threads    *thread.Store
	loop       *agent.Loop
	mux        *stream.Multiplexer
	chain      *middleware.Chain
	modelQuota *quota.Tracker
	toolQuota  *quota.Tracker
	config     *config.Config
	logger     *slog.Logger
}

// New wires the middleware chain, agent loop and multiplexer.
func New(deps Deps, cfg *config.Config) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("llm client is required")
	}
	if deps.Threads == nil {
		deps.Threads = thread.NewStore()
	}
	if deps.Tools == nil {
		deps.Tools = tools.DefaultRegistry
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Service{
		store:      deps.Store,
		threads:    deps.Threads,
		modelQuota: quota.NewTracker(),
		toolQuota:  quota.NewTracker(),
		config:     cfg,
		logger:     deps.Logger,
	}

	estimator := compactor.NewCharEstimator()
	comp := compactor.New(compactor.NewLLMSummarizer(deps.LLM, cfg.Model), estimator)

	interceptors := []middleware.Interceptor{
		middleware.NewSummarization(comp, middleware.SummarizationConfig{
			MaxTokensBeforeSummary: cfg.Summarization.MaxTokensBeforeSummary,
			MessagesToKeep:         cfg.Summarization.MessagesToKeep,
		}),
		middleware.NewModelCallLimit(middleware.LimitConfig{
			ThreadLimit:  cfg.ModelCalls.ThreadLimit,
			RunLimit:     cfg.ModelCalls.RunLimit,
			ExitBehavior: cfg.ExitBehavior,
		}, s.modelQuota),
		middleware.NewToolCallLimit(middleware.LimitConfig{
			ThreadLimit:  cfg.ToolCalls.ThreadLimit,
			RunLimit:     cfg.ToolCalls.RunLimit,
			ExitBehavior: cfg.ExitBehavior,
			ToolName:     cfg.ToolCalls.ToolName,
		}, s.toolQuota),
	}
	if deps.Policy != nil {
		interceptors = append(interceptors, middleware.NewToolPolicy(deps.Policy))
	}
	s.chain = middleware.NewChain(deps.Logger, interceptors...).WithObserver(s.onShortCircuit)

	temperature := cfg.Temperature
	loop, err := agent.NewLoop(agent.Deps{
		Client: deps.LLM,
		Tools:  deps.Tools,
		Chain:  s.chain,
		Usage:  estimator,
		Logger: deps.Logger,
	}, agent.Config{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		MaxSteps:     stepBudget(cfg),
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop

	s.mux = stream.NewMultiplexer(stream.Options{
		InternalStages:    cfg.InternalStages,
		ReasoningStages:   cfg.ReasoningStages,
		Annotated:         cfg.Annotated,
		ExitBehavior:      cfg.ExitBehavior,
		Debug:             cfg.Debug,
		ErrorMessage:      clientErrorMessage,
		OnStageTransition: s.onStageTransition,
		OnContext:         s.onContext,
	}, deps.Logger)

	return s, nil
}

// stepBudget returns the loop's step limit. A run must be able to reach its
// call limits, so the budget is raised to one past the larger run limit.
func stepBudget(cfg *config.Config) int {
	budget := cfg.MaxSteps
	if budget <= 0 {
		budget = agent.DefaultMaxSteps
	}
	if floor := max(cfg.ModelCalls.RunLimit, cfg.ToolCalls.RunLimit) + 1; budget < floor {
		budget = floor
	}
	return budget
}

// Interceptors returns the governance chain in execution order.
func (s *Service) Interceptors() []string {
	return s.chain.Names()
}

// Debug reports whether error detail may be shown to clients.
func (s *Service) Debug() bool {
	return s.config.Debug
}

// clientErrorMessage maps known failures to text safe for clients.
func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, middleware.ErrLimitExceeded):
		return "The call limit for this conversation was exceeded."
	case errors.Is(err, stream.ErrRunTimeout):
		return "The run exceeded its time limit."
	case errors.Is(err, agent.ErrMaxStepsExceeded):
		return "The agent did not finish within its step limit."
	}
	return ""
}
