package transport

import (
	"fmt"
)

// ErrorKind classifies per-call transport failures so callers can tell
// retryable (timeout) from non-retryable (refused, protocol) failures.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	// ErrKindRefused covers connection establishment failures.
	ErrKindRefused
	// ErrKindTimeout covers per-call timeouts. Only timeouts are retryable.
	ErrKindTimeout
	// ErrKindProtocol covers malformed or unexpected responses.
	ErrKindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindRefused:
		return "REFUSED"
	case ErrKindTimeout:
		return "TIMEOUT"
	case ErrKindProtocol:
		return "PROTOCOL"
	default:
		return "UNKNOWN"
	}
}

// Error is a single-call transport failure attributed to one node. Retry
// policy is the caller's decision; the transport itself never retries.
type Error struct {
	Kind    ErrorKind
	Node    string
	Op      string // "send", "poll" or "handshake"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s %s: %s", e.Kind, e.Op, e.Node, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying. Timeouts are;
// refused connections and protocol violations are not.
func (e *Error) Retryable() bool {
	return e.Kind == ErrKindTimeout
}
