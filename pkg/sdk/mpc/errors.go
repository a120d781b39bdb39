package mpc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/collect"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/dispatch"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/transport"
)

// ErrNoInputs rejects an execute call on a session with an empty input
// registry.
var ErrNoInputs = errors.New("no inputs provided: set a secret, public or legacy private input first")

// ErrInvalidTransition rejects a session operation that is not legal in the
// current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

// SessionBusyError rejects a second execute call while one is in flight.
// Only the second caller sees it; the running execution is unaffected.
type SessionBusyError struct {
	SessionID   string
	ExecutionID string
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("session %s is busy executing %s", e.SessionID, e.ExecutionID)
}

// ConnectionError reports a node handshake that was non-retryably rejected
// during connect.
type ConnectionError struct {
	Node string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to MPC node %s: %v", e.Node, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExecutionError is the terminal failure of one execute call. It always
// carries the execution id and, where attributable, the originating nodes.
type ExecutionError struct {
	ExecutionID string
	Nodes       []string
	Err         error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execution %s failed", e.ExecutionID)
	if len(e.Nodes) > 0 {
		msg += fmt.Sprintf(" (nodes: %s)", strings.Join(e.Nodes, ", "))
	}
	return msg + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// failureNodes extracts the nodes an execution failure is attributable to.
func failureNodes(err error) []string {
	var derr *dispatch.Error
	if errors.As(err, &derr) {
		return derr.Nodes
	}
	var cerr *collect.TimeoutError
	if errors.As(err, &cerr) {
		return cerr.Missing
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return []string{terr.Node}
	}
	return nil
}
