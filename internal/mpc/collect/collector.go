// Package collect gathers result shares from MPC nodes after dispatch. Each
// node is polled independently and concurrently; collection succeeds as soon
// as a threshold of distinct nodes has reported, so slow or failed nodes
// beyond the quorum cannot stall an execution.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/transport"
)

// TimeoutError reports that the quorum was not reached before the collection
// deadline, naming the nodes that never produced a result share.
type TimeoutError struct {
	ExecutionID string
	Threshold   int
	Collected   int
	Missing     []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("collection for execution %s timed out with %d/%d shares (missing: %s)",
		e.ExecutionID, e.Collected, e.Threshold, strings.Join(e.Missing, ", "))
}

// Collector polls every node for its result share until a quorum is reached
// or the deadline elapses.
type Collector struct {
	transport   transport.NodeTransport
	nodes       []string
	threshold   int
	pollTimeout time.Duration
	interval    time.Duration
}

// NewCollector creates a collector over the configured node list.
func NewCollector(tr transport.NodeTransport, nodes []string, threshold int, pollTimeout, interval time.Duration) *Collector {
	return &Collector{
		transport:   tr,
		nodes:       nodes,
		threshold:   threshold,
		pollTimeout: pollTimeout,
		interval:    interval,
	}
}

type outcome struct {
	node  string
	share *sharing.ResultShare
	err   error
}

// Collect polls all nodes concurrently and returns as soon as threshold
// distinct nodes have reported result shares. Outstanding polls are stopped
// promptly once the quorum is met or the caller cancels. At most one share
// per node is accepted.
func (c *Collector) Collect(ctx context.Context, executionID string, deadline time.Time) (map[string]sharing.ResultShare, error) {
	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	outcomes := make(chan outcome, len(c.nodes))
	for _, node := range c.nodes {
		go c.pollNode(cctx, node, executionID, outcomes)
	}

	results := make(map[string]sharing.ResultShare, len(c.nodes))
	var firstErr error
	failed := 0

	for done := 0; done < len(c.nodes); done++ {
		o := <-outcomes
		if o.share != nil {
			results[o.node] = *o.share
			log.Debug().Str("node", o.node).Str("execution_id", executionID).Msg("collected result share")
			if len(results) >= c.threshold {
				return results, nil
			}
			continue
		}

		failed++
		if firstErr == nil && o.err != nil && !errors.Is(o.err, context.DeadlineExceeded) {
			firstErr = o.err
		}
		// Quorum arithmetic: once too many nodes hard-failed, waiting for
		// the deadline cannot help.
		if len(c.nodes)-failed < c.threshold {
			break
		}
	}

	missing := c.missingNodes(results)
	if firstErr != nil && !deadlineElapsed(cctx) {
		return nil, errors.Wrapf(firstErr, "quorum unreachable for execution %s (missing: %s)",
			executionID, strings.Join(missing, ", "))
	}

	return nil, &TimeoutError{
		ExecutionID: executionID,
		Threshold:   c.threshold,
		Collected:   len(results),
		Missing:     missing,
	}
}

// pollNode loops fixed-interval polls against one node until it reports a
// share, hard-fails, or the collection context ends.
func (c *Collector) pollNode(ctx context.Context, node, executionID string, out chan<- outcome) {
	for {
		share, ready, err := c.transport.Poll(ctx, node, executionID, c.pollTimeout)
		if err != nil {
			var terr *transport.Error
			if errors.As(err, &terr) && terr.Retryable() && ctx.Err() == nil {
				// Per-call timeouts accumulate against the overall deadline.
				continue
			}
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			out <- outcome{node: node, err: err}
			return
		}
		if ready {
			out <- outcome{node: node, share: share}
			return
		}

		select {
		case <-ctx.Done():
			out <- outcome{node: node, err: ctx.Err()}
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *Collector) missingNodes(results map[string]sharing.ResultShare) []string {
	var missing []string
	for _, node := range c.nodes {
		if _, ok := results[node]; !ok {
			missing = append(missing, node)
		}
	}
	sort.Strings(missing)
	return missing
}

func deadlineElapsed(ctx context.Context) bool {
	dl, ok := ctx.Deadline()
	return ok && !time.Now().Before(dl)
}
