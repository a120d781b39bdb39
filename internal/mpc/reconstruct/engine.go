// Package reconstruct turns a quorum of collected result shares back into
// the final clear value.
package reconstruct

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
)

// Result is the reconstructed clear value for one execution.
type Result struct {
	ExecutionID string
	Value       sharing.ClearValue
	SharesUsed  int
}

// Engine validates the share quorum and delegates the math to the codec.
type Engine struct {
	codec     sharing.Codec
	threshold int
}

// NewEngine creates a reconstruction engine.
func NewEngine(codec sharing.Codec, threshold int) *Engine {
	return &Engine{codec: codec, threshold: threshold}
}

// Reconstruct combines the collected shares into the final value. The
// collector guarantees a quorum before this runs; a below-threshold call is
// a defect upstream and fails rather than returning a value. The input
// shares are consumed: their buffers are zeroed so no residual copies
// survive the call.
func (e *Engine) Reconstruct(executionID string, shares map[string]sharing.ResultShare) (*Result, error) {
	defer discard(shares)

	if len(shares) < e.threshold {
		return nil, &sharing.InsufficientSharesError{Got: len(shares), Threshold: e.threshold}
	}

	raw := make([]sharing.Share, 0, len(shares))
	shareType := ""
	for _, rs := range shares {
		if shareType == "" {
			shareType = rs.ShareType
		} else if rs.ShareType != shareType {
			return nil, &sharing.TypeMismatchError{Want: shareType, Got: rs.ShareType}
		}
		raw = append(raw, rs.Share)
	}

	value, err := e.codec.Combine(raw, e.threshold)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reconstruct result for execution %s", executionID)
	}

	log.Info().Str("execution_id", executionID).Int("shares_used", len(raw)).Msg("result reconstructed")
	return &Result{
		ExecutionID: executionID,
		Value:       value,
		SharesUsed:  len(raw),
	}, nil
}

// discard wipes share material after reconstruction.
func discard(shares map[string]sharing.ResultShare) {
	for node, rs := range shares {
		for i := range rs.Data {
			rs.Data[i] = 0
		}
		delete(shares, node)
	}
}
