package mpc

import "github.com/pkg/errors"

// SessionState is the session's position in its connection/execution
// lifecycle.
type SessionState string

const (
	StateDisconnected      SessionState = "disconnected"
	StateMetadataExchanged SessionState = "metadata_exchanged"
	StateConnectedToNodes  SessionState = "connected_to_nodes"
	StateReady             SessionState = "ready"
	StateExecuting         SessionState = "executing"
	StateFailed            SessionState = "failed"
)

// validTransitions encodes the session lifecycle. Disconnect is legal from
// every state, which keeps a failed session recoverable.
var validTransitions = map[SessionState][]SessionState{
	StateDisconnected:      {StateMetadataExchanged, StateConnectedToNodes},
	StateMetadataExchanged: {StateConnectedToNodes, StateDisconnected},
	StateConnectedToNodes:  {StateReady, StateDisconnected},
	StateReady:             {StateExecuting, StateDisconnected},
	StateExecuting:         {StateReady, StateFailed, StateDisconnected},
	StateFailed:            {StateDisconnected},
}

// transition moves the session to the target state. Callers must hold s.mu.
func (s *Session) transition(to SessionState) error {
	if s.state == to {
		return nil
	}
	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, to)
}

// connected reports whether the session currently holds node connections.
func (s SessionState) connected() bool {
	switch s {
	case StateConnectedToNodes, StateReady, StateExecuting:
		return true
	default:
		return false
	}
}
