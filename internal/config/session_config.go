package config

import (
	"fmt"
	"time"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/util"
)

// Session is the immutable configuration for one MPC client session.
//
// Nodes is the ordered list of MPC node endpoints; the node at position i
// always receives share index i. The coordinator endpoint is optional and is
// only used for application metadata exchange, never for node discovery.
type Session struct {
	Nodes          []string
	ClientID       string
	ProgramID      string
	CoordinatorURL string

	NumParties int
	Threshold  int

	// NetworkTimeout bounds a single request/response exchange with one node.
	NetworkTimeout time.Duration
	// ResultDeadline bounds the whole result collection phase of one execution.
	ResultDeadline time.Duration
	// DispatchRetries is the number of additional attempts for timeout-class
	// dispatch failures before the execution is aborted.
	DispatchRetries int
	// DispatchBackoff is the base backoff between dispatch retries.
	DispatchBackoff time.Duration
	// PollInterval is the fixed interval between result polls to one node.
	PollInterval time.Duration

	// AuditRedisAddr, if set, enables Redis-backed retention of execution
	// records. Records are kept in memory otherwise.
	AuditRedisAddr string
	// AuditTTL bounds how long retained execution records live.
	AuditTTL time.Duration
}

// ConfigurationError reports an invalid session configuration. It is surfaced
// eagerly at construction time and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid session config: %s: %s", e.Field, e.Reason)
}

// DefaultSessionConfigFromEnv returns a Session populated from the
// environment with sane development defaults.
func DefaultSessionConfigFromEnv() Session {
	return Session{
		Nodes:           util.GetEnvAsStringArr("STOFFEL_MPC_NODES", []string{}),
		ClientID:        util.GetEnv("STOFFEL_CLIENT_ID", "default-client"),
		ProgramID:       util.GetEnv("STOFFEL_PROGRAM_ID", ""),
		CoordinatorURL:  util.GetEnv("STOFFEL_COORDINATOR_URL", ""),
		NumParties:      util.GetEnvAsInt("STOFFEL_NUM_PARTIES", 0),
		Threshold:       util.GetEnvAsInt("STOFFEL_THRESHOLD", 0),
		NetworkTimeout:  util.GetEnvAsDuration("STOFFEL_NETWORK_TIMEOUT", 10*time.Second),
		ResultDeadline:  util.GetEnvAsDuration("STOFFEL_RESULT_DEADLINE", 60*time.Second),
		DispatchRetries: util.GetEnvAsInt("STOFFEL_DISPATCH_RETRIES", 3),
		DispatchBackoff: util.GetEnvAsDuration("STOFFEL_DISPATCH_BACKOFF", 250*time.Millisecond),
		PollInterval:    util.GetEnvAsDuration("STOFFEL_POLL_INTERVAL", 500*time.Millisecond),
		AuditRedisAddr:  util.GetEnv("STOFFEL_AUDIT_REDIS_ADDR", ""),
		AuditTTL:        util.GetEnvAsDuration("STOFFEL_AUDIT_TTL", 24*time.Hour),
	}
}

// Normalize fills derivable fields: NumParties defaults to the node count,
// Threshold to a simple majority, and zero durations to the env defaults.
func (c Session) Normalize() Session {
	if c.NumParties == 0 {
		c.NumParties = len(c.Nodes)
	}
	if c.Threshold == 0 && len(c.Nodes) > 0 {
		c.Threshold = len(c.Nodes)/2 + 1
	}
	if c.NetworkTimeout == 0 {
		c.NetworkTimeout = 10 * time.Second
	}
	if c.ResultDeadline == 0 {
		c.ResultDeadline = 60 * time.Second
	}
	if c.DispatchBackoff == 0 {
		c.DispatchBackoff = 250 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.AuditTTL == 0 {
		c.AuditTTL = 24 * time.Hour
	}
	return c
}

// Validate checks the invariants the rest of the client relies on:
// non-empty unique nodes, a program id, and node count >= threshold >= 1.
func (c Session) Validate() error {
	if len(c.Nodes) == 0 {
		return &ConfigurationError{Field: "nodes", Reason: "at least one MPC node endpoint is required"}
	}

	seen := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		if n == "" {
			return &ConfigurationError{Field: "nodes", Reason: "node endpoint must not be empty"}
		}
		if _, dup := seen[n]; dup {
			return &ConfigurationError{Field: "nodes", Reason: fmt.Sprintf("duplicate node endpoint %q", n)}
		}
		seen[n] = struct{}{}
	}

	if c.ProgramID == "" {
		return &ConfigurationError{Field: "program_id", Reason: "the MPC network runs a specific program, program_id is required"}
	}

	if c.NumParties != len(c.Nodes) {
		return &ConfigurationError{Field: "num_parties", Reason: fmt.Sprintf("num_parties (%d) must match node count (%d)", c.NumParties, len(c.Nodes))}
	}

	if c.Threshold < 1 {
		return &ConfigurationError{Field: "threshold", Reason: "threshold must be at least 1"}
	}
	if c.Threshold > len(c.Nodes) {
		return &ConfigurationError{Field: "threshold", Reason: fmt.Sprintf("threshold (%d) exceeds node count (%d)", c.Threshold, len(c.Nodes))}
	}

	if c.NetworkTimeout <= 0 {
		return &ConfigurationError{Field: "network_timeout", Reason: "network timeout must be positive"}
	}
	if c.ResultDeadline <= 0 {
		return &ConfigurationError{Field: "result_deadline", Reason: "result deadline must be positive"}
	}
	if c.DispatchRetries < 0 {
		return &ConfigurationError{Field: "dispatch_retries", Reason: "dispatch retries must not be negative"}
	}

	return nil
}
