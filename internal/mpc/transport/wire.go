package transport

import "github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"

// DispatchRequest is the wire request sent to one node to start an
// execution. SecretShares holds only this node's slice of each input's
// shares; PublicInputs is identical across all nodes.
type DispatchRequest struct {
	ExecutionID string `json:"execution_id"`
	ProgramID   string `json:"program_id"`
	ClientID    string `json:"client_id"`
	// PartyIndex is the receiving node's position in the session node list.
	PartyIndex   int                      `json:"party_index"`
	SecretShares map[string]sharing.Share `json:"secret_shares"`
	PublicInputs map[string]interface{}   `json:"public_inputs"`
}

// DispatchAck acknowledges that a node accepted an execution request.
type DispatchAck struct {
	ExecutionID string `json:"execution_id"`
	Accepted    bool   `json:"accepted"`
	Message     string `json:"message,omitempty"`
}

// Result poll statuses.
const (
	ResultStatusPending  = "pending"
	ResultStatusComplete = "complete"
)

// PollResponse is the wire response to a result poll: either pending, or a
// result share tied to the execution id.
type PollResponse struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	Share       *sharing.Share `json:"share,omitempty"`
}

// HandshakeResponse is the wire response to the connect-time health check.
type HandshakeResponse struct {
	Status    string `json:"status"`
	ProgramID string `json:"program_id,omitempty"`
}
