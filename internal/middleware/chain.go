// Package middleware wraps agent model and tool calls with an ordered list of
// governance interceptors.
//
// Interceptors run one after another before the wrapped call. Each returns a
// Decision: proceed with a (possibly rewritten) request, or short-circuit. The
// first short-circuit ends the chain and the wrapped call never runs.
package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Kind is the type of call being governed.
type Kind string

const (
	KindModel Kind = "model"
	KindTool  Kind = "tool"
)

// Request is one governed call.
type Request struct {
	ThreadID string
	RunID    string
	Kind     Kind
	Messages []domain.Message
	// ToolCall is set for KindTool requests.
	ToolCall *domain.ToolCall
	// SkipCompaction bypasses summarization for this call.
	SkipCompaction bool
	// Compaction is set when an interceptor replaced the history.
	Compaction *domain.CompactionPayload
}

// Clone returns a copy safe to modify.
func (r *Request) Clone() *Request {
	out := *r
	out.Messages = domain.CloneMessages(r.Messages)
	if r.ToolCall != nil {
		tc := *r.ToolCall
		out.ToolCall = &tc
	}
	if r.Compaction != nil {
		c := *r.Compaction
		out.Compaction = &c
	}
	return &out
}

// Response is the result of a governed call.
type Response struct {
	Message      domain.Message
	PromptTokens int
}

// Handler performs the wrapped call.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Interceptor inspects a request before the wrapped call.
type Interceptor interface {
	Name() string
	Before(ctx context.Context, req *Request) Decision
}

// Observer is told about every short-circuit.
type Observer func(ctx context.Context, req *Request, d Decision)

// Outcome is the result of running a request through the chain.
type Outcome struct {
	// Request is the last request seen, after any rewrites.
	Request *Request
	// Response is set when the wrapped call ran and succeeded.
	Response *Response
	// Err is the wrapped call's error, or the context error if the chain
	// was cancelled between interceptors.
	Err error
	// Decision is set when an interceptor short-circuited.
	Decision *Decision
}

// ShortCircuited reports whether an interceptor stopped the chain.
func (o *Outcome) ShortCircuited() bool {
	return o.Decision != nil
}

// Chain is an ordered, immutable list of interceptors.
type Chain struct {
	interceptors []Interceptor
	observer     Observer
	logger       *slog.Logger
}

// NewChain creates a chain that runs interceptors in the given order.
func NewChain(logger *slog.Logger, interceptors ...Interceptor) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]Interceptor, 0, len(interceptors))
	for _, ic := range interceptors {
		if ic != nil {
			list = append(list, ic)
		}
	}
	return &Chain{interceptors: list, logger: logger}
}

// WithObserver returns a copy of the chain reporting short-circuits to fn.
func (c *Chain) WithObserver(fn Observer) *Chain {
	out := *c
	out.observer = fn
	return &out
}

// Names returns interceptor names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.interceptors))
	for i, ic := range c.interceptors {
		names[i] = ic.Name()
	}
	return names
}

// Invoke folds req through the interceptors and then calls next.
func (c *Chain) Invoke(ctx context.Context, req *Request, next Handler) *Outcome {
	cur := req
	for _, ic := range c.interceptors {
		if err := ctx.Err(); err != nil {
			return &Outcome{Request: cur, Err: err}
		}

		d := c.before(ctx, ic, cur)
		if d.ShortCircuited() {
			d.Interceptor = ic.Name()
			c.logger.Info("middleware short-circuit",
				"interceptor", d.Interceptor,
				"reason", d.Reason,
				"terminal", d.Terminal,
				"run_id", cur.RunID,
				"kind", cur.Kind,
				"err", d.Err)
			if c.observer != nil {
				c.observer(ctx, cur, d)
			}
			return &Outcome{Request: cur, Decision: &d}
		}
		if d.Request != nil {
			cur = d.Request
		}
	}

	resp, err := next(ctx, cur)
	return &Outcome{Request: cur, Response: resp, Err: err}
}

func (c *Chain) before(ctx context.Context, ic Interceptor, req *Request) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Fail(fmt.Errorf("interceptor %s panicked: %v", ic.Name(), r))
		}
	}()
	return ic.Before(ctx, req)
}
