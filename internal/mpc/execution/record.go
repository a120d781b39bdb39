// Package execution tracks per-execution state: id allocation, input
// snapshots, per-node delivery/collection status, and optional audit
// retention.
package execution

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Status is the lifecycle of one execution.
type Status string

const (
	StatusCreated       Status = "created"
	StatusDispatched    Status = "dispatched"
	StatusCollecting    Status = "collecting"
	StatusReconstructed Status = "reconstructed"
	StatusFailed        Status = "failed"
)

// NodeProgress is the per-node delivery/collection status of one execution.
type NodeProgress struct {
	Node       string `json:"node"`
	Index      int    `json:"index"`
	Dispatched bool   `json:"dispatched"`
	Collected  bool   `json:"collected"`
	Error      string `json:"error,omitempty"`
}

// Record is the audit view of one execute call. It holds input names and
// classifications, never input values: secret material does not outlive the
// execution.
type Record struct {
	ExecutionID  string         `json:"execution_id"`
	SessionID    string         `json:"session_id"`
	ClientID     string         `json:"client_id"`
	ProgramID    string         `json:"program_id"`
	SecretInputs []string       `json:"secret_inputs"`
	PublicInputs []string       `json:"public_inputs"`
	Status       Status         `json:"status"`
	Nodes        []NodeProgress `json:"nodes"`
	FailureCause string         `json:"failure_cause,omitempty"`
	SharesUsed   int            `json:"shares_used,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// MarkNodeDispatched flags one node's dispatch as acknowledged.
func (r *Record) MarkNodeDispatched(node string) {
	for i := range r.Nodes {
		if r.Nodes[i].Node == node {
			r.Nodes[i].Dispatched = true
			return
		}
	}
}

// MarkNodeCollected flags one node's result share as received.
func (r *Record) MarkNodeCollected(node string) {
	for i := range r.Nodes {
		if r.Nodes[i].Node == node {
			r.Nodes[i].Collected = true
			return
		}
	}
}

// Complete moves the record to a terminal status.
func (r *Record) Complete(status Status, cause string) {
	now := time.Now()
	r.Status = status
	r.FailureCause = cause
	r.CompletedAt = &now
}

// IDAllocator mints execution ids unique within a session: client id plus a
// session suffix plus a monotonically increasing counter.
type IDAllocator struct {
	clientID      string
	sessionSuffix string
	counter       atomic.Uint64
}

// NewIDAllocator creates an allocator bound to one connected session.
func NewIDAllocator(clientID, sessionID string) *IDAllocator {
	suffix := sessionID
	if i := strings.LastIndex(sessionID, "-"); i >= 0 && i+1 < len(sessionID) {
		suffix = sessionID[i+1:]
	}
	if len(suffix) > 12 {
		suffix = suffix[:12]
	}
	return &IDAllocator{clientID: clientID, sessionSuffix: suffix}
}

// Next returns a fresh execution id.
func (a *IDAllocator) Next() string {
	return fmt.Sprintf("exec-%s-%s-%d", a.clientID, a.sessionSuffix, a.counter.Add(1))
}
