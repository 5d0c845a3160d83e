package middleware

import (
	"errors"
	"fmt"
)

var (
	// ErrLimitExceeded is matched by every *LimitExceededError.
	ErrLimitExceeded = errors.New("call limit exceeded")
	// ErrToolBlocked is returned when the tool policy blocks a call.
	ErrToolBlocked = errors.New("tool call blocked by policy")
)

// LimitExceededError reports a crossed call quota.
type LimitExceededError struct {
	Kind        Kind
	ToolName    string
	ThreadCount int
	RunCount    int
	ThreadLimit int
	RunLimit    int
}

func (e *LimitExceededError) Error() string {
	subject := string(e.Kind) + " call"
	if e.ToolName != "" {
		subject = fmt.Sprintf("%s call to %q", e.Kind, e.ToolName)
	}
	return fmt.Sprintf("%s limit exceeded: thread %d/%s, run %d/%s",
		subject, e.ThreadCount, limitString(e.ThreadLimit), e.RunCount, limitString(e.RunLimit))
}

// Is matches ErrLimitExceeded.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

func limitString(limit int) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(limit)
}
