// Package dispatch fans an execution's per-node payloads out to every MPC
// node in parallel. Every node must acknowledge before collection may start:
// the MPC protocol itself needs all parties, so there is no partial-quorum
// continuation at this stage.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/transport"
)

// DeliveryStatus is the outcome of dispatching to one node.
type DeliveryStatus string

const (
	DeliveryAcknowledged DeliveryStatus = "acknowledged"
	DeliveryFailed       DeliveryStatus = "failed"
)

// NodeDelivery is the per-node dispatch outcome.
type NodeDelivery struct {
	Node     string
	Index    int
	Status   DeliveryStatus
	Attempts int
	Err      error
}

// Report summarizes one fanout.
type Report struct {
	ExecutionID string
	Deliveries  []NodeDelivery
}

// FailedNodes lists the nodes that never acknowledged.
func (r *Report) FailedNodes() []string {
	var failed []string
	for _, d := range r.Deliveries {
		if d.Status != DeliveryAcknowledged {
			failed = append(failed, d.Node)
		}
	}
	return failed
}

// Error aborts an execution whose fanout could not reach every node.
type Error struct {
	ExecutionID string
	Nodes       []string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch failed for execution %s (nodes: %s): %v", e.ExecutionID, strings.Join(e.Nodes, ", "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dispatcher sends each node exactly its own slice of every share set plus
// the uniform public payload.
type Dispatcher struct {
	transport transport.NodeTransport
	nodes     []string
	timeout   time.Duration
	retries   int
	backoff   time.Duration
}

// NewDispatcher creates a dispatcher over the configured node list. retries
// bounds additional attempts for timeout-class failures; backoff is the base
// delay between them.
func NewDispatcher(tr transport.NodeTransport, nodes []string, timeout time.Duration, retries int, backoff time.Duration) *Dispatcher {
	return &Dispatcher{
		transport: tr,
		nodes:     nodes,
		timeout:   timeout,
		retries:   retries,
		backoff:   backoff,
	}
}

// Dispatch delivers shareSets and public to every node concurrently. The
// node at position i always receives the share with index i of every set.
// It returns a typed Error if any node could not be reached; the report is
// returned in both cases.
func (d *Dispatcher) Dispatch(ctx context.Context, executionID, programID, clientID string,
	shareSets map[string]sharing.ShareSet, public map[string]interface{}) (*Report, error) {

	report := &Report{
		ExecutionID: executionID,
		Deliveries:  make([]NodeDelivery, len(d.nodes)),
	}

	var wg sync.WaitGroup
	for i, node := range d.nodes {
		wg.Add(1)
		go func(i int, node string) {
			defer wg.Done()
			report.Deliveries[i] = d.dispatchToNode(ctx, i, node, executionID, programID, clientID, shareSets, public)
		}(i, node)
	}
	wg.Wait()

	failed := report.FailedNodes()
	if len(failed) > 0 {
		var cause error
		for _, del := range report.Deliveries {
			if del.Err != nil {
				cause = del.Err
				break
			}
		}
		return report, &Error{ExecutionID: executionID, Nodes: failed, Err: cause}
	}

	log.Debug().Str("execution_id", executionID).Int("nodes", len(d.nodes)).Msg("dispatch acknowledged by all nodes")
	return report, nil
}

func (d *Dispatcher) dispatchToNode(ctx context.Context, index int, node, executionID, programID, clientID string,
	shareSets map[string]sharing.ShareSet, public map[string]interface{}) NodeDelivery {

	req := &transport.DispatchRequest{
		ExecutionID:  executionID,
		ProgramID:    programID,
		ClientID:     clientID,
		PartyIndex:   index,
		SecretShares: make(map[string]sharing.Share, len(shareSets)),
		PublicInputs: public,
	}
	for name, set := range shareSets {
		req.SecretShares[name] = set[index]
	}

	delivery := NodeDelivery{Node: node, Index: index, Status: DeliveryFailed}
	for attempt := 0; attempt <= d.retries; attempt++ {
		delivery.Attempts = attempt + 1

		_, err := d.transport.Send(ctx, node, req, d.timeout)
		if err == nil {
			delivery.Status = DeliveryAcknowledged
			delivery.Err = nil
			return delivery
		}
		delivery.Err = err

		var terr *transport.Error
		if !errors.As(err, &terr) || !terr.Retryable() || attempt == d.retries {
			return delivery
		}

		log.Debug().Str("node", node).Str("execution_id", executionID).Int("attempt", attempt+1).Msg("dispatch timed out, retrying")
		select {
		case <-ctx.Done():
			delivery.Err = ctx.Err()
			return delivery
		case <-time.After(d.backoff * time.Duration(attempt+1)):
		}
	}

	return delivery
}
