package coordinator_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/coordinator"
	"github.com/stoffel-labs/stoffel-go-sdk/internal/nodesim"
)

func TestHTTPChannel_Exchange(t *testing.T) {
	coord := httptest.NewServer(nodesim.NewServer("secure_addition_v1").Handler())
	t.Cleanup(coord.Close)

	ch := coordinator.NewHTTPChannel(coord.URL, time.Second, nil)
	cctx, err := ch.Exchange(context.Background(), &coordinator.ExchangeRequest{
		ClientID:  "client-001",
		ProgramID: "secure_addition_v1",
		Metadata:  map[string]interface{}{"purpose": "demo"},
	})

	require.NoError(t, err)
	assert.Equal(t, "secure_addition_v1", cctx["program_id"])
	assert.Equal(t, "nodesim", cctx["coordinator"])
}

func TestHTTPChannel_ExchangeFailure(t *testing.T) {
	coord := httptest.NewServer(nodesim.NewServer("p").Handler())
	coord.Close()

	ch := coordinator.NewHTTPChannel(coord.URL, 100*time.Millisecond, nil)
	_, err := ch.Exchange(context.Background(), &coordinator.ExchangeRequest{
		ClientID:  "client-001",
		ProgramID: "p",
	})

	require.Error(t, err)
}
