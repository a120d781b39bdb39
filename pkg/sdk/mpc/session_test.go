package mpc_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/config"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/collect"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/execution"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/nodesim"
	"github.com/stoffel-labs/stoffel-go-sdk/pkg/sdk/mpc"
)

const testProgram = "secure_addition_v1"

func startNetwork(t *testing.T, n int, opts ...nodesim.Option) []string {
	t.Helper()
	nodes := make([]string, n)
	for i := 0; i < n; i++ {
		srv := httptest.NewServer(nodesim.NewServer(testProgram, opts...).Handler())
		t.Cleanup(srv.Close)
		nodes[i] = srv.URL
	}
	return nodes
}

func testConfig(nodes []string) config.Session {
	return config.Session{
		Nodes:           nodes,
		ClientID:        "client-001",
		ProgramID:       testProgram,
		Threshold:       2,
		NetworkTimeout:  2 * time.Second,
		ResultDeadline:  5 * time.Second,
		DispatchRetries: 2,
		DispatchBackoff: 5 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, cfg config.Session, opts ...mpc.Option) *mpc.Session {
	t.Helper()
	session, err := mpc.NewSession(cfg, opts...)
	require.NoError(t, err)
	return session
}

func TestSessionConstructionValidation(t *testing.T) {
	_, err := mpc.NewSession(config.Session{ProgramID: "p"})
	require.Error(t, err)
	var cerr *config.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	_, err = mpc.NewSession(config.Session{Nodes: []string{"http://a:1"}})
	require.Error(t, err)
	assert.True(t, errors.As(err, &cerr))
}

func TestExecuteSecureAddition(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", 25))
	require.NoError(t, session.SetSecretInput("y", 17))

	// Execute auto-connects a disconnected session.
	result, err := session.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Int)
	assert.Equal(t, mpc.StateReady, session.State())

	status := session.GetConnectionStatus()
	assert.True(t, status.Connected)
	assert.NotEmpty(t, status.SessionID)

	// The audit record reflects the completed execution.
	record, err := session.GetExecutionRecord(ctx, "exec-client-001-"+status.SessionID[len(status.SessionID)-12:]+"-1")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusReconstructed, record.Status)
	assert.GreaterOrEqual(t, record.SharesUsed, 2)
	assert.ElementsMatch(t, []string{"x", "y"}, record.SecretInputs)
}

func TestExecuteWithPublicInput(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", 25))
	require.NoError(t, session.SetPublicInput("offset", 10))

	result, err := session.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(35), result.Int)
}

func TestExecuteQuorumDespiteUnresponsiveNode(t *testing.T) {
	ctx := context.Background()

	// Two healthy nodes, one that accepts shares but never reports a
	// result. Threshold 2 of 3, so the execution still completes.
	nodes := startNetwork(t, 2)
	silent := httptest.NewServer(nodesim.NewServer(testProgram, nodesim.WithNeverReady()).Handler())
	t.Cleanup(silent.Close)
	nodes = append(nodes, silent.URL)

	session := newTestSession(t, testConfig(nodes))
	require.NoError(t, session.SetSecretInput("x", 25))
	require.NoError(t, session.SetSecretInput("y", 17))

	result, err := session.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Int)
}

func TestExecuteCollectionTimeout(t *testing.T) {
	ctx := context.Background()

	nodes := startNetwork(t, 3, nodesim.WithNeverReady())
	cfg := testConfig(nodes)
	cfg.ResultDeadline = 150 * time.Millisecond

	session := newTestSession(t, cfg)
	require.NoError(t, session.SetSecretInput("x", 25))

	_, err := session.Execute(ctx)
	require.Error(t, err)

	var eerr *mpc.ExecutionError
	require.True(t, errors.As(err, &eerr))
	assert.NotEmpty(t, eerr.ExecutionID)
	assert.ElementsMatch(t, nodes, eerr.Nodes)

	var terr *collect.TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.ElementsMatch(t, nodes, terr.Missing)

	// The session failed but stays recoverable through disconnect+connect.
	assert.Equal(t, mpc.StateFailed, session.State())
	_, err = session.Execute(ctx)
	require.Error(t, err)

	session.Disconnect()
	assert.Equal(t, mpc.StateDisconnected, session.State())
	require.NoError(t, session.Connect(ctx))
	assert.Equal(t, mpc.StateReady, session.State(), "inputs survive disconnect")
}

func TestExecuteSerializedPerSession(t *testing.T) {
	ctx := context.Background()

	nodes := startNetwork(t, 3, nodesim.WithResultDelay(300*time.Millisecond))
	session := newTestSession(t, testConfig(nodes))
	require.NoError(t, session.SetSecretInput("x", 25))
	require.NoError(t, session.SetSecretInput("y", 17))

	type outcome struct {
		value int64
		err   error
	}
	first := make(chan outcome, 1)
	go func() {
		v, err := session.Execute(ctx)
		first <- outcome{value: v.Int, err: err}
	}()

	require.Eventually(t, func() bool {
		return session.State() == mpc.StateExecuting
	}, 2*time.Second, 5*time.Millisecond)

	// Second execute is rejected without disturbing the first.
	_, err := session.Execute(ctx)
	var busy *mpc.SessionBusyError
	require.True(t, errors.As(err, &busy))

	// Inputs cannot change mid-execution either.
	err = session.SetSecretInput("z", 1)
	assert.True(t, errors.As(err, &busy))

	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, int64(42), got.value)
}

func TestExecuteWithoutInputs(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.Connect(ctx))
	_, err := session.Execute(ctx)
	assert.ErrorIs(t, err, mpc.ErrNoInputs)
}

func TestConnectFailsOnDeadNode(t *testing.T) {
	ctx := context.Background()

	nodes := startNetwork(t, 2)
	dead := httptest.NewServer(nodesim.NewServer(testProgram).Handler())
	dead.Close()
	nodes = append(nodes, dead.URL)

	session := newTestSession(t, testConfig(nodes))
	err := session.Connect(ctx)
	require.Error(t, err)

	var cerr *mpc.ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, dead.URL, cerr.Node)
	assert.Equal(t, mpc.StateDisconnected, session.State())
}

func TestCoordinatorMetadataExchange(t *testing.T) {
	ctx := context.Background()

	coord := httptest.NewServer(nodesim.NewServer(testProgram).Handler())
	t.Cleanup(coord.Close)

	cfg := testConfig(startNetwork(t, 3))
	cfg.CoordinatorURL = coord.URL

	session := newTestSession(t, cfg)
	require.NoError(t, session.Connect(ctx))

	status := session.GetConnectionStatus()
	require.NotNil(t, status.CoordinatorContext)
	assert.Equal(t, "nodesim", status.CoordinatorContext["coordinator"])
	assert.Empty(t, status.LastMetadataError)
}

func TestCoordinatorFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()

	coord := httptest.NewServer(nodesim.NewServer(testProgram).Handler())
	coord.Close()

	cfg := testConfig(startNetwork(t, 3))
	cfg.CoordinatorURL = coord.URL

	session := newTestSession(t, cfg)
	// Connection proceeds despite the dead coordinator; the failure is
	// recorded, not thrown.
	require.NoError(t, session.Connect(ctx))

	status := session.GetConnectionStatus()
	assert.True(t, status.Connected)
	assert.NotEmpty(t, status.LastMetadataError)
	assert.Nil(t, status.CoordinatorContext)
}

func TestIsReadyTruthTable(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	// Disconnected, no inputs.
	assert.False(t, session.IsReady())

	// Inputs but disconnected.
	require.NoError(t, session.SetSecretInput("x", 1))
	assert.False(t, session.IsReady())

	// Connected and inputs present.
	require.NoError(t, session.Connect(ctx))
	assert.True(t, session.IsReady())

	// Connected without inputs.
	fresh := newTestSession(t, testConfig(startNetwork(t, 3)))
	require.NoError(t, fresh.Connect(ctx))
	assert.False(t, fresh.IsReady())
}

func TestLegacyPrivateInputs(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	result, err := session.ExecuteProgramWithInputs(ctx, map[string]interface{}{
		"a": 30,
		"b": 12,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Int)

	// Legacy inputs are classified secret.
	info := session.GetProgramInfo()
	assert.ElementsMatch(t, []string{"a", "b"}, info.SecretInputs)
	assert.Empty(t, info.PublicInputs)
}

func TestProgramInfoPartitionsInputs(t *testing.T) {
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", 1))
	require.NoError(t, session.SetPublicInput("threshold_hint", 2))

	info := session.GetProgramInfo()
	assert.Equal(t, testProgram, info.ProgramID)
	assert.Equal(t, []string{"x"}, info.SecretInputs)
	assert.Equal(t, []string{"threshold_hint"}, info.PublicInputs)
	assert.ElementsMatch(t, []string{"x", "threshold_hint"}, info.ExpectedInputs)
	assert.Equal(t, 0, info.NodesAvailable, "no nodes available while disconnected")
}

func TestOverwritingInputReplacesClassification(t *testing.T) {
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", 1))
	require.NoError(t, session.SetPublicInput("x", 2))

	info := session.GetProgramInfo()
	assert.Empty(t, info.SecretInputs)
	assert.Equal(t, []string{"x"}, info.PublicInputs)
}

func TestDisconnectIdempotentAndPreservesInputs(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", 25))
	require.NoError(t, session.Connect(ctx))
	require.NotEmpty(t, session.GetConnectionStatus().SessionID)

	session.Disconnect()
	session.Disconnect()

	status := session.GetConnectionStatus()
	assert.False(t, status.Connected)
	assert.Empty(t, status.SessionID)
	assert.Equal(t, 1, status.InputCount)
}

func TestEncodingFailureSurfacesTyped(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))

	require.NoError(t, session.SetSecretInput("x", "not-an-integer"))
	_, err := session.Execute(ctx)
	require.Error(t, err)

	var eerr *mpc.ExecutionError
	require.True(t, errors.As(err, &eerr))
}

func TestExecutionIDsIncreaseAcrossExecutions(t *testing.T) {
	ctx := context.Background()
	session := newTestSession(t, testConfig(startNetwork(t, 3)))
	require.NoError(t, session.SetSecretInput("x", 21))
	require.NoError(t, session.SetSecretInput("y", 21))

	_, err := session.Execute(ctx)
	require.NoError(t, err)
	_, err = session.Execute(ctx)
	require.NoError(t, err)

	status := session.GetConnectionStatus()
	suffix := status.SessionID[len(status.SessionID)-12:]

	first, err := session.GetExecutionRecord(ctx, "exec-client-001-"+suffix+"-1")
	require.NoError(t, err)
	second, err := session.GetExecutionRecord(ctx, "exec-client-001-"+suffix+"-2")
	require.NoError(t, err)
	assert.Equal(t, execution.StatusReconstructed, first.Status)
	assert.Equal(t, execution.StatusReconstructed, second.Status)
}
