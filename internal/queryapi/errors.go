package queryapi

import (
	"fmt"
	"strings"
)

const fallbackBackendMessage = "query failed"

// BackendError is a response whose payload carried status "error".
type BackendError struct {
	Status  string
	Message string
}

func (e *BackendError) Error() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return fallbackBackendMessage
}

// TransportError covers network failures, non-2xx statuses, unreadable bodies and
// timeouts. StatusCode is zero when no response arrived.
type TransportError struct {
	Op         string
	StatusCode int
	TimedOut   bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: request timed out", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
