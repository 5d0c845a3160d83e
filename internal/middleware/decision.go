package middleware

import "errors"

// Reason tells a policy stop apart from a fault.
type Reason string

const (
	ReasonPolicy Reason = "policy"
	ReasonFault  Reason = "fault"
)

// Decision is the result of one interceptor.
type Decision struct {
	shortCircuit bool

	// Request replaces the current request when proceeding. Nil keeps it.
	Request *Request

	// Reason, Err, Response and Terminal describe a short-circuit.
	Reason Reason
	Err    error
	// Response substitutes the wrapped call's result. With Terminal it is the
	// final message of the run.
	Response *Response
	// Terminal stops the whole run, not just this call.
	Terminal bool

	// Interceptor is filled in by the chain.
	Interceptor string
}

// ShortCircuited reports whether the decision stops the chain.
func (d Decision) ShortCircuited() bool {
	return d.shortCircuit
}

// Retryable reports whether the call may be retried with the short-circuiting
// interceptor's work bypassed.
func (d Decision) Retryable() bool {
	if d.Reason != ReasonFault || d.Err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	return errors.As(d.Err, &r) && r.Retryable()
}

// Proceed continues with req; a nil req keeps the current request.
func Proceed(req *Request) Decision {
	return Decision{Request: req}
}

// Stop ends the run for policy reasons. A non-nil resp ends it gracefully
// with resp as the final message; a nil resp makes err a hard failure.
func Stop(resp *Response, err error) Decision {
	return Decision{shortCircuit: true, Reason: ReasonPolicy, Response: resp, Err: err, Terminal: true}
}

// Substitute skips the wrapped call and answers it with resp; the run goes on.
func Substitute(resp *Response, err error) Decision {
	return Decision{shortCircuit: true, Reason: ReasonPolicy, Response: resp, Err: err}
}

// Fail reports that the interceptor itself failed.
func Fail(err error) Decision {
	return Decision{shortCircuit: true, Reason: ReasonFault, Err: err}
}
