package sharing

import "fmt"

// Share is one party's fragment of a secret value. Data alone reveals
// nothing about the secret.
type Share struct {
	// ShareType tags the scheme that produced the share. Shares of different
	// types never combine.
	ShareType string `json:"share_type"`
	// Index is the party position the share belongs to. The node at position
	// i in the session config always receives the share with Index i.
	Index int `json:"index"`
	Data  []byte `json:"data"`
}

// ShareSet is the ordered shares of one secret input, one per node. It is
// produced atomically: either every node's share exists or none do.
type ShareSet []Share

// ResultShare is a node's share of the computation result, attributed to
// exactly one node and one execution.
type ResultShare struct {
	Share
	NodeURL     string
	ExecutionID string
}

// Codec converts typed clear values into per-node secret shares and a quorum
// of result shares back into a clear value. Implementations delegate the
// actual math to a cryptographic engine; the orchestration layer only relies
// on this contract.
type Codec interface {
	// Split produces exactly nodeCount shares of value, any threshold of
	// which reconstruct it. Share content is freshly randomized on every
	// call; two calls on the same value never reuse randomness.
	Split(value ClearValue, nodeCount, threshold int) (ShareSet, error)

	// Combine reconstructs the clear value from at least threshold shares.
	// It is a pure function of its inputs.
	Combine(shares []Share, threshold int) (ClearValue, error)
}

// EncodingError reports a value that cannot be secret-shared. Fatal, never
// retried.
type EncodingError struct {
	Input  string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("cannot encode input %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("cannot encode value: %s", e.Reason)
}

// InsufficientSharesError reports a reconstruction attempt below threshold.
// Collection guarantees a quorum before reconstruction runs, so seeing this
// error indicates a defect upstream.
type InsufficientSharesError struct {
	Got       int
	Threshold int
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares: got %d, threshold %d", e.Got, e.Threshold)
}

// TypeMismatchError reports shares carrying inconsistent share types.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("share type mismatch: want %q, got %q", e.Want, e.Got)
}
