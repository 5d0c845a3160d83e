package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ErrRunTimeout is the cancellation cause of a run that hit its wall clock
// ceiling.
var ErrRunTimeout = errors.New("run timed out")

// GenericErrorMessage is sent to clients when error detail is redacted.
const GenericErrorMessage = "An internal error occurred while generating the response."

const summaryLimit = 200

// Emitter writes one event to the client. It blocks until the event is
// handed to the transport; an error means the client is gone.
type Emitter func(domain.ClientEvent) error

// Options configures a Multiplexer.
type Options struct {
	// InternalStages never produce chunks.
	InternalStages []string
	// ReasoningStages produce reasoning events instead of chunks in
	// annotated mode.
	ReasoningStages []string
	// Annotated adds start, tool and reasoning events.
	Annotated bool
	// ExitBehavior selects the terminal event of a timed out run.
	ExitBehavior domain.ExitBehavior
	// Debug sends full error detail to the client.
	Debug bool
	// ErrorMessage maps a source error to client text when Debug is off.
	ErrorMessage func(err error) string
	// OnStageTransition is called whenever the stage changes.
	OnStageTransition func(runID string, step int, from, to string)
	// OnContext is called for every context step, annotated or not.
	OnContext func(runID string, step int, usage domain.ContextUsage)
}

// Outcome summarizes one multiplexed stream.
type Outcome struct {
	// Terminal is the terminal event written, or empty if none was.
	Terminal domain.ClientEventType
	Events   int
	Chunks   int
	Steps    int
	// Err is the source or transport error that ended the stream.
	Err          error
	TimedOut     bool
	Disconnected bool
}

// Multiplexer filters and annotates execution steps into client events.
type Multiplexer struct {
	opts      Options
	internal  map[string]bool
	reasoning map[string]bool
	logger    *slog.Logger
}

// NewMultiplexer creates a Multiplexer.
func NewMultiplexer(opts Options, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.ExitBehavior.Valid() {
		opts.ExitBehavior = domain.ExitBehaviorEnd
	}
	return &Multiplexer{
		opts:      opts,
		internal:  toSet(opts.InternalStages),
		reasoning: toSet(opts.ReasoningStages),
		logger:    logger,
	}
}

// WithAnnotated returns a copy with annotated mode switched on or off.
func (m *Multiplexer) WithAnnotated(annotated bool) *Multiplexer {
	out := *m
	out.opts.Annotated = annotated
	return &out
}

// Run pulls src until it ends, writing events through emit in arrival order.
// Exactly one terminal event is written unless the client went away. src is
// closed before Run returns.
func (m *Multiplexer) Run(ctx context.Context, runID string, src StepStream, emit Emitter) Outcome {
	defer src.Close()

	var out Outcome
	logger := m.logger.With("run_id", runID)

	send := func(ev domain.ClientEvent) bool {
		if err := emit(ev); err != nil {
			logger.Warn("client write failed", "event", ev.Type, "err", err)
			out.Err = err
			out.Disconnected = true
			return false
		}
		out.Events++
		if ev.Type == domain.ClientEventChunk {
			out.Chunks++
		}
		if ev.Type.IsTerminal() {
			out.Terminal = ev.Type
		}
		return true
	}

	if m.opts.Annotated {
		if !send(domain.StartEvent(runID)) {
			return out
		}
	}

	stage := ""
	for {
		step, ok, err := src.Next(ctx)
		if err != nil {
			return m.finishWithError(ctx, runID, err, &out, send, logger)
		}
		if !ok {
			send(domain.EndEvent(runID))
			return out
		}

		if step.Stage != stage {
			logger.Debug("stage transition", "step", step.Index, "from", stage, "to", step.Stage)
			if m.opts.OnStageTransition != nil {
				m.opts.OnStageTransition(runID, step.Index, stage, step.Stage)
			}
			stage = step.Stage
		}

		if step.Kind == domain.StepKindContext && step.Context != nil && m.opts.OnContext != nil {
			m.opts.OnContext(runID, step.Index, *step.Context)
		}

		for _, ev := range m.translate(runID, step) {
			if !send(ev) {
				return out
			}
		}
		if step.Kind == domain.StepKindBoundary {
			out.Steps++
		}
	}
}

func (m *Multiplexer) finishWithError(ctx context.Context, runID string, err error, out *Outcome, send func(domain.ClientEvent) bool, logger *slog.Logger) Outcome {
	out.Err = err
	if ctx.Err() != nil {
		if !errors.Is(context.Cause(ctx), ErrRunTimeout) {
			logger.Info("client disconnected", "err", err)
			out.Disconnected = true
			return *out
		}
		out.Err = ErrRunTimeout
		out.TimedOut = true
		logger.Warn("run timed out")
		if m.opts.ExitBehavior == domain.ExitBehaviorEnd {
			send(domain.EndEvent(runID))
			return *out
		}
		send(domain.ErrorEvent(runID, m.clientMessage(ErrRunTimeout)))
		return *out
	}

	logger.Error("step source failed", "err", err)
	send(domain.ErrorEvent(runID, m.clientMessage(err)))
	return *out
}

func (m *Multiplexer) translate(runID string, step domain.ExecutionStep) []domain.ClientEvent {
	internal := m.internal[step.Stage]

	switch step.Kind {
	case domain.StepKindModelDelta:
		var events []domain.ClientEvent
		if m.opts.Annotated && step.Reasoning != "" {
			events = append(events, reasoningEvent(runID, step, step.Reasoning))
		}
		if step.Text == "" || internal {
			return events
		}
		if m.opts.Annotated && m.reasoning[step.Stage] {
			return append(events, reasoningEvent(runID, step, step.Text))
		}
		return append(events, domain.ChunkEvent(step.Text))

	case domain.StepKindToolStart:
		if !m.opts.Annotated || step.ToolCall == nil {
			return nil
		}
		return []domain.ClientEvent{toolEvent(runID, step, "start", string(step.ToolCall.Arguments))}

	case domain.StepKindToolResult:
		var events []domain.ClientEvent
		if m.opts.Annotated && step.ToolCall != nil {
			events = append(events, toolEvent(runID, step, "result", step.Text))
		}
		if step.Text != "" && !internal {
			events = append(events, domain.ChunkEvent(step.Text))
		}
		return events

	case domain.StepKindContext:
		if !m.opts.Annotated || step.Context == nil {
			return nil
		}
		usage := *step.Context
		return []domain.ClientEvent{{
			Type:  domain.ClientEventContext,
			RunID: runID,
			Data:  &domain.EventData{Step: step.Index, Stage: step.Stage, Context: &usage},
		}}

	case domain.StepKindBoundary:
		return nil

	default:
		m.logger.Warn("unknown step kind", "run_id", runID, "kind", step.Kind)
		return nil
	}
}

func (m *Multiplexer) clientMessage(err error) string {
	if m.opts.Debug {
		return err.Error()
	}
	if m.opts.ErrorMessage != nil {
		if msg := m.opts.ErrorMessage(err); msg != "" {
			return msg
		}
	}
	return GenericErrorMessage
}

func reasoningEvent(runID string, step domain.ExecutionStep, text string) domain.ClientEvent {
	return domain.ClientEvent{
		Type:    domain.ClientEventReasoning,
		RunID:   runID,
		Content: text,
		Data:    &domain.EventData{Step: step.Index, Stage: step.Stage},
	}
}

func toolEvent(runID string, step domain.ExecutionStep, phase, detail string) domain.ClientEvent {
	return domain.ClientEvent{
		Type:  domain.ClientEventTool,
		RunID: runID,
		Data: &domain.EventData{
			Step:     step.Index,
			Stage:    step.Stage,
			Phase:    phase,
			ToolName: step.ToolCall.Name,
			CallID:   step.ToolCall.ID,
			Summary:  summarize(detail),
			Failed:   step.Failed,
		},
	}
}

func summarize(s string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= summaryLimit {
		return s
	}
	return string([]rune(s)[:summaryLimit]) + "..."
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}
