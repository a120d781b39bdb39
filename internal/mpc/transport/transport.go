package transport

import (
	"context"
	"time"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
)

// NodeTransport performs single request/response exchanges with MPC nodes.
// Every call is one attempt with a per-call timeout; retries are policy
// decisions made by the dispatcher and collector. Implementations may be
// shared across calls and carry no per-session state.
type NodeTransport interface {
	// Handshake checks that the node is reachable and serving.
	Handshake(ctx context.Context, node string, timeout time.Duration) (*HandshakeResponse, error)

	// Send delivers one node's dispatch payload and waits for its ack.
	Send(ctx context.Context, node string, req *DispatchRequest, timeout time.Duration) (*DispatchAck, error)

	// Poll asks a node for its result share. ready is false while the node
	// is still computing.
	Poll(ctx context.Context, node string, executionID string, timeout time.Duration) (share *sharing.ResultShare, ready bool, err error)
}
