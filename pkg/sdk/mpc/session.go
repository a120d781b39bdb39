// Package mpc is the client SDK for executing a pre-agreed program on a
// Stoffel MPC network. A Session turns named secret and public inputs into
// per-node secret shares, fans them out to every configured node, collects
// a quorum of result shares and reconstructs the final clear value. The
// client never learns any node's intermediate state, and no node ever sees
// a secret input in the clear.
package mpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/config"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/collect"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/coordinator"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/dispatch"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/execution"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/reconstruct"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/transport"
)

// Session orchestrates MPC executions against a fixed set of nodes. One
// logical execution is in flight per session at a time; a second Execute
// while one runs fails with SessionBusyError. All exported methods are safe
// for concurrent use.
type Session struct {
	cfg config.Session

	codec     sharing.Codec
	transport transport.NodeTransport
	metadata  coordinator.MetadataChannel
	records   execution.RecordStore

	dispatcher *dispatch.Dispatcher
	collector  *collect.Collector
	engine     *reconstruct.Engine

	inputs *InputRegistry

	mu              sync.Mutex
	state           SessionState
	sessionID       string
	inFlight        string
	cancelExec      context.CancelFunc
	ids             *execution.IDAllocator
	coordCtx        coordinator.Context
	lastMetadataErr error
}

// Option overrides a session dependency, primarily for tests substituting
// fakes for the codec or transport.
type Option func(*Session)

// WithCodec substitutes the share codec.
func WithCodec(c sharing.Codec) Option {
	return func(s *Session) { s.codec = c }
}

// WithTransport substitutes the node transport.
func WithTransport(tr transport.NodeTransport) Option {
	return func(s *Session) { s.transport = tr }
}

// WithMetadataChannel substitutes the coordinator metadata channel.
func WithMetadataChannel(mc coordinator.MetadataChannel) Option {
	return func(s *Session) { s.metadata = mc }
}

// WithRecordStore substitutes the execution record store.
func WithRecordStore(rs execution.RecordStore) Option {
	return func(s *Session) { s.records = rs }
}

// WithHTTPClient sets the HTTP client backing the default transport and
// metadata channel.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) {
		s.transport = transport.NewHTTPTransport(client)
		if s.cfg.CoordinatorURL != "" {
			s.metadata = coordinator.NewHTTPChannel(s.cfg.CoordinatorURL, s.cfg.NetworkTimeout, client)
		}
	}
}

// NewSession validates cfg eagerly and builds a disconnected session.
// Construction fails with a ConfigurationError if the node list is empty,
// contains duplicates, or no program id is set.
func NewSession(cfg config.Session, opts ...Option) (*Session, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		state:  StateDisconnected,
		inputs: newInputRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.codec == nil {
		s.codec = sharing.NewShamirCodec()
	}
	if s.transport == nil {
		s.transport = transport.NewHTTPTransport(nil)
	}
	if s.metadata == nil && cfg.CoordinatorURL != "" {
		s.metadata = coordinator.NewHTTPChannel(cfg.CoordinatorURL, cfg.NetworkTimeout, nil)
	}
	if s.records == nil {
		if cfg.AuditRedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.AuditRedisAddr})
			s.records = execution.NewRedisStore(client, cfg.AuditTTL)
		} else {
			s.records = execution.NewMemoryStore()
		}
	}

	s.dispatcher = dispatch.NewDispatcher(s.transport, cfg.Nodes, cfg.NetworkTimeout, cfg.DispatchRetries, cfg.DispatchBackoff)
	s.collector = collect.NewCollector(s.transport, cfg.Nodes, cfg.Threshold, cfg.NetworkTimeout, cfg.PollInterval)
	s.engine = reconstruct.NewEngine(s.codec, cfg.Threshold)

	log.Info().
		Str("client_id", cfg.ClientID).
		Str("program_id", cfg.ProgramID).
		Int("nodes", len(cfg.Nodes)).
		Bool("coordinator", cfg.CoordinatorURL != "").
		Msg("initialized MPC client session")

	return s, nil
}

// Connect establishes the session: an optional metadata exchange with the
// coordinator followed by a handshake with every node. Coordinator failure
// is recorded but never blocks the connection; a non-retryable node
// handshake failure aborts with ConnectionError. Connecting an already
// connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateExecuting:
		busy := &SessionBusyError{SessionID: s.sessionID, ExecutionID: s.inFlight}
		s.mu.Unlock()
		return busy
	case StateConnectedToNodes, StateReady:
		s.mu.Unlock()
		return nil
	case StateFailed:
		s.mu.Unlock()
		return errors.Wrap(ErrInvalidTransition, "failed session must be disconnected before reconnecting")
	}
	s.mu.Unlock()

	if s.metadata != nil {
		s.exchangeMetadata(ctx)
	}

	log.Info().Int("nodes", len(s.cfg.Nodes)).Msg("connecting to MPC network nodes")
	if err := s.handshakeNodes(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionID = "session-" + uuid.New().String()
	s.ids = execution.NewIDAllocator(s.cfg.ClientID, s.sessionID)
	if err := s.transition(StateConnectedToNodes); err != nil {
		return err
	}
	if s.inputs.len() > 0 {
		if err := s.transition(StateReady); err != nil {
			return err
		}
	}

	log.Info().Str("session_id", s.sessionID).Str("program_id", s.cfg.ProgramID).Msg("connected to MPC network")
	return nil
}

// exchangeMetadata runs the advisory coordinator exchange. Failure is
// observable through GetConnectionStatus but deliberately non-fatal.
func (s *Session) exchangeMetadata(ctx context.Context) {
	coordCtx, err := s.metadata.Exchange(ctx, &coordinator.ExchangeRequest{
		ClientID:  s.cfg.ClientID,
		ProgramID: s.cfg.ProgramID,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastMetadataErr = err
		log.Warn().Err(err).Str("coordinator", s.cfg.CoordinatorURL).Msg("coordinator metadata exchange failed, proceeding without context")
		return
	}
	s.coordCtx = coordCtx
	s.lastMetadataErr = nil
	// Transient marker state between the exchange and node connection.
	_ = s.transition(StateMetadataExchanged)
}

// handshakeNodes checks every node concurrently, retrying timeout-class
// failures up to the dispatch retry budget.
func (s *Session) handshakeNodes(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(s.cfg.Nodes))

	for i, node := range s.cfg.Nodes {
		wg.Add(1)
		go func(i int, node string) {
			defer wg.Done()
			errs[i] = s.handshakeNode(ctx, node)
		}(i, node)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return &ConnectionError{Node: s.cfg.Nodes[i], Err: err}
		}
	}
	return nil
}

func (s *Session) handshakeNode(ctx context.Context, node string) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.DispatchRetries; attempt++ {
		_, err := s.transport.Handshake(ctx, node, s.cfg.NetworkTimeout)
		if err == nil {
			log.Debug().Str("node", node).Msg("node handshake succeeded")
			return nil
		}
		lastErr = err

		var terr *transport.Error
		if !errors.As(err, &terr) || !terr.Retryable() {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.DispatchBackoff * time.Duration(attempt+1)):
		}
	}
	return lastErr
}

// SetSecretInput registers an input that will be secret-shared across the
// nodes. Valid in every state except Executing; re-setting a name replaces
// its value and classification.
func (s *Session) SetSecretInput(name string, value interface{}) error {
	return s.setInput(name, value, Secret)
}

// SetPublicInput registers an input sent to every node in the clear.
func (s *Session) SetPublicInput(name string, value interface{}) error {
	if err := s.setInput(name, value, Public); err != nil {
		return err
	}
	log.Debug().Str("name", name).Interface("value", value).Msg("set public input")
	return nil
}

// SetInputs registers multiple secret and public inputs at once.
func (s *Session) SetInputs(secret, public map[string]interface{}) error {
	for name, value := range secret {
		if err := s.SetSecretInput(name, value); err != nil {
			return err
		}
	}
	for name, value := range public {
		if err := s.SetPublicInput(name, value); err != nil {
			return err
		}
	}
	return nil
}

// SetPrivateData registers a legacy unclassified input; it is treated as
// secret.
func (s *Session) SetPrivateData(name string, value interface{}) error {
	return s.SetSecretInput(name, value)
}

// SetPrivateInputs registers multiple legacy inputs at once, all secret.
func (s *Session) SetPrivateInputs(inputs map[string]interface{}) error {
	for name, value := range inputs {
		if err := s.SetSecretInput(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) setInput(name string, value interface{}, class Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateExecuting {
		return &SessionBusyError{SessionID: s.sessionID, ExecutionID: s.inFlight}
	}

	s.inputs.set(name, value, class)
	if class == Secret {
		log.Debug().Str("name", name).Msg("set secret input")
	}
	if s.state == StateConnectedToNodes {
		_ = s.transition(StateReady)
	}
	return nil
}

// Execute runs one MPC execution over the current input snapshot and
// returns the reconstructed clear value. It auto-connects a disconnected
// session, requires at least one registered input, and serializes with any
// in-flight execution. On failure the session moves to StateFailed and the
// error carries the execution id and originating nodes.
func (s *Session) Execute(ctx context.Context) (sharing.ClearValue, error) {
	s.mu.Lock()
	if s.state == StateExecuting {
		busy := &SessionBusyError{SessionID: s.sessionID, ExecutionID: s.inFlight}
		s.mu.Unlock()
		return sharing.ClearValue{}, busy
	}
	needConnect := s.state == StateDisconnected || s.state == StateMetadataExchanged
	s.mu.Unlock()

	if needConnect {
		if err := s.Connect(ctx); err != nil {
			return sharing.ClearValue{}, err
		}
	}

	s.mu.Lock()
	if s.state == StateExecuting {
		busy := &SessionBusyError{SessionID: s.sessionID, ExecutionID: s.inFlight}
		s.mu.Unlock()
		return sharing.ClearValue{}, busy
	}
	if s.state == StateFailed {
		s.mu.Unlock()
		return sharing.ClearValue{}, errors.Wrap(ErrInvalidTransition, "failed session must be disconnected before executing")
	}

	secret, public := s.inputs.snapshot()
	if len(secret)+len(public) == 0 {
		s.mu.Unlock()
		return sharing.ClearValue{}, ErrNoInputs
	}

	executionID := s.ids.Next()
	if err := s.transition(StateExecuting); err != nil {
		s.mu.Unlock()
		return sharing.ClearValue{}, err
	}
	execCtx, cancel := context.WithCancel(ctx)
	s.inFlight = executionID
	s.cancelExec = cancel
	record := s.newRecord(executionID, secret, public)
	s.mu.Unlock()
	defer cancel()

	value, err := s.runExecution(execCtx, executionID, record, secret, public)

	s.mu.Lock()
	s.inFlight = ""
	s.cancelExec = nil
	if s.state == StateExecuting {
		if err != nil {
			_ = s.transition(StateFailed)
		} else {
			_ = s.transition(StateReady)
		}
	}
	s.mu.Unlock()

	if err != nil {
		return sharing.ClearValue{}, &ExecutionError{
			ExecutionID: executionID,
			Nodes:       failureNodes(err),
			Err:         err,
		}
	}
	return value, nil
}

// ExecuteWithInputs sets explicit secret and public inputs, then executes.
func (s *Session) ExecuteWithInputs(ctx context.Context, secret, public map[string]interface{}) (sharing.ClearValue, error) {
	if err := s.SetInputs(secret, public); err != nil {
		return sharing.ClearValue{}, err
	}
	return s.Execute(ctx)
}

// ExecuteProgramWithInputs sets legacy private inputs (treated as secret),
// then executes.
func (s *Session) ExecuteProgramWithInputs(ctx context.Context, inputs map[string]interface{}) (sharing.ClearValue, error) {
	if err := s.SetPrivateInputs(inputs); err != nil {
		return sharing.ClearValue{}, err
	}
	return s.Execute(ctx)
}

// runExecution sequences split -> dispatch -> collect -> reconstruct. All
// dispatch happens before any poll; partially collected shares are keyed by
// execution id and never survive the call.
func (s *Session) runExecution(ctx context.Context, executionID string, record *execution.Record,
	secret, public map[string]interface{}) (sharing.ClearValue, error) {

	log.Info().Str("execution_id", executionID).Str("program_id", s.cfg.ProgramID).Msg("executing program")

	shareSets := make(map[string]sharing.ShareSet, len(secret))
	for name, value := range secret {
		clear, err := sharing.CoerceClearValue(name, value)
		if err != nil {
			s.failRecord(ctx, record, err)
			return sharing.ClearValue{}, err
		}
		set, err := s.codec.Split(clear, s.cfg.NumParties, s.cfg.Threshold)
		if err != nil {
			s.failRecord(ctx, record, err)
			return sharing.ClearValue{}, errors.Wrapf(err, "failed to create secret shares for input %q", name)
		}
		shareSets[name] = set
	}
	s.saveRecord(ctx, record)

	report, err := s.dispatcher.Dispatch(ctx, executionID, s.cfg.ProgramID, s.cfg.ClientID, shareSets, public)
	for _, delivery := range report.Deliveries {
		if delivery.Status == dispatch.DeliveryAcknowledged {
			record.MarkNodeDispatched(delivery.Node)
		}
	}
	if err != nil {
		s.failRecord(ctx, record, err)
		return sharing.ClearValue{}, err
	}
	record.Status = execution.StatusDispatched
	s.saveRecord(ctx, record)

	record.Status = execution.StatusCollecting
	s.saveRecord(ctx, record)
	deadline := time.Now().Add(s.cfg.ResultDeadline)
	shares, err := s.collector.Collect(ctx, executionID, deadline)
	if err != nil {
		s.failRecord(ctx, record, err)
		return sharing.ClearValue{}, err
	}
	for node := range shares {
		record.MarkNodeCollected(node)
	}

	result, err := s.engine.Reconstruct(executionID, shares)
	if err != nil {
		s.failRecord(ctx, record, err)
		return sharing.ClearValue{}, err
	}

	record.SharesUsed = result.SharesUsed
	record.Complete(execution.StatusReconstructed, "")
	s.saveRecord(ctx, record)

	log.Info().Str("execution_id", executionID).Int("shares_used", result.SharesUsed).Msg("program execution completed")
	return result.Value, nil
}

// Disconnect drops the session back to Disconnected from any state. It is
// idempotent, cancels an in-flight execution's outstanding network calls,
// clears the session identifier and preserves configured inputs.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelExec != nil {
		s.cancelExec()
	}
	if s.state == StateDisconnected {
		return
	}

	log.Info().Str("session_id", s.sessionID).Msg("disconnecting from MPC network")
	s.state = StateDisconnected
	s.sessionID = ""
	s.ids = nil
	s.coordCtx = nil
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether the session is connected and has at least one
// input of either classification.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.connected() && s.inputs.len() > 0
}

// ConnectionStatus is the session's observable connection state.
type ConnectionStatus struct {
	Connected          bool
	State              SessionState
	ClientID           string
	ProgramID          string
	CoordinatorURL     string
	NodeCount          int
	SessionID          string
	InputCount         int
	CoordinatorContext coordinator.Context
	LastMetadataError  string
}

// GetConnectionStatus returns the current connection status, including the
// recorded outcome of the coordinator metadata exchange.
func (s *Session) GetConnectionStatus() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := ConnectionStatus{
		Connected:          s.state.connected(),
		State:              s.state,
		ClientID:           s.cfg.ClientID,
		ProgramID:          s.cfg.ProgramID,
		CoordinatorURL:     s.cfg.CoordinatorURL,
		NodeCount:          len(s.cfg.Nodes),
		SessionID:          s.sessionID,
		InputCount:         s.inputs.len(),
		CoordinatorContext: s.coordCtx,
	}
	if s.lastMetadataErr != nil {
		status.LastMetadataError = s.lastMetadataErr.Error()
	}
	return status
}

// ProgramInfo describes the program this session is configured for and the
// inputs currently registered, partitioned by classification.
type ProgramInfo struct {
	ProgramID      string
	ExpectedInputs []string
	SecretInputs   []string
	PublicInputs   []string
	NodesAvailable int
}

// GetProgramInfo returns program metadata for the session.
func (s *Session) GetProgramInfo() ProgramInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret, public := s.inputs.names()
	all := make([]string, 0, len(secret)+len(public))
	all = append(all, secret...)
	all = append(all, public...)

	available := 0
	if s.state.connected() {
		available = len(s.cfg.Nodes)
	}

	return ProgramInfo{
		ProgramID:      s.cfg.ProgramID,
		ExpectedInputs: all,
		SecretInputs:   secret,
		PublicInputs:   public,
		NodesAvailable: available,
	}
}

// GetExecutionRecord returns the audit record of a past execution.
func (s *Session) GetExecutionRecord(ctx context.Context, executionID string) (*execution.Record, error) {
	return s.records.GetRecord(ctx, executionID)
}

func (s *Session) newRecord(executionID string, secret, public map[string]interface{}) *execution.Record {
	secretNames := make([]string, 0, len(secret))
	for name := range secret {
		secretNames = append(secretNames, name)
	}
	publicNames := make([]string, 0, len(public))
	for name := range public {
		publicNames = append(publicNames, name)
	}

	nodes := make([]execution.NodeProgress, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		nodes[i] = execution.NodeProgress{Node: node, Index: i}
	}

	return &execution.Record{
		ExecutionID:  executionID,
		SessionID:    s.sessionID,
		ClientID:     s.cfg.ClientID,
		ProgramID:    s.cfg.ProgramID,
		SecretInputs: secretNames,
		PublicInputs: publicNames,
		Status:       execution.StatusCreated,
		Nodes:        nodes,
		CreatedAt:    time.Now(),
	}
}

func (s *Session) failRecord(ctx context.Context, record *execution.Record, cause error) {
	record.Complete(execution.StatusFailed, cause.Error())
	s.saveRecord(ctx, record)
}

// saveRecord persists audit state best-effort; retention failures never
// affect the execution outcome.
func (s *Session) saveRecord(ctx context.Context, record *execution.Record) {
	if err := s.records.SaveRecord(ctx, record); err != nil {
		log.Warn().Err(err).Str("execution_id", record.ExecutionID).Msg("failed to persist execution record")
	}
}
