package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned for malformed chat requests.
var ErrInvalidRequest = errors.New("invalid request")

// ChatRequest is the body of the chat streaming endpoints.
type ChatRequest struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Validate checks required fields.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return nil
}

// Thread returns the thread id the request belongs to, defaulting to the user id.
func (r *ChatRequest) Thread() string {
	if r.ThreadID != "" {
		return r.ThreadID
	}
	return r.UserID
}

// ErrorResponse is the JSON body returned for faults raised before streaming.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ListEventsResponse is returned by the run events endpoint.
type ListEventsResponse struct {
	Events []Event `json:"events"`
}
