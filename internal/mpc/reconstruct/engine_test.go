package reconstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/mpc/sharing"
)

func collectedShares(t *testing.T, value int64, nodeCount, threshold, take int) map[string]sharing.ResultShare {
	t.Helper()
	codec := sharing.NewShamirCodec()
	set, err := codec.Split(sharing.IntValue(value), nodeCount, threshold)
	require.NoError(t, err)

	shares := make(map[string]sharing.ResultShare, take)
	for i := 0; i < take; i++ {
		shares[nodeURL(i)] = sharing.ResultShare{
			Share:       set[i],
			NodeURL:     nodeURL(i),
			ExecutionID: "exec-1",
		}
	}
	return shares
}

func nodeURL(i int) string {
	return string(rune('a'+i)) + ".example:8080"
}

func TestEngine_Reconstruct(t *testing.T) {
	engine := NewEngine(sharing.NewShamirCodec(), 2)

	result, err := engine.Reconstruct("exec-1", collectedShares(t, 42, 3, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Value.Int)
	assert.Equal(t, 3, result.SharesUsed)
	assert.Equal(t, "exec-1", result.ExecutionID)
}

func TestEngine_QuorumOnly(t *testing.T) {
	engine := NewEngine(sharing.NewShamirCodec(), 2)

	result, err := engine.Reconstruct("exec-1", collectedShares(t, 42, 3, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Value.Int)
	assert.Equal(t, 2, result.SharesUsed)
}

func TestEngine_BelowThresholdFails(t *testing.T) {
	engine := NewEngine(sharing.NewShamirCodec(), 2)

	_, err := engine.Reconstruct("exec-1", collectedShares(t, 42, 3, 2, 1))
	require.Error(t, err)
	_, ok := err.(*sharing.InsufficientSharesError)
	assert.True(t, ok, "expected InsufficientSharesError, got %T", err)
}

func TestEngine_MixedShareTypesFail(t *testing.T) {
	engine := NewEngine(sharing.NewShamirCodec(), 2)

	shares := collectedShares(t, 42, 3, 2, 3)
	rs := shares[nodeURL(1)]
	rs.ShareType = "feldman-vss"
	shares[nodeURL(1)] = rs

	_, err := engine.Reconstruct("exec-1", shares)
	require.Error(t, err)
}

func TestEngine_DiscardsSharesAfterUse(t *testing.T) {
	engine := NewEngine(sharing.NewShamirCodec(), 2)

	shares := collectedShares(t, 42, 3, 2, 3)
	held := shares[nodeURL(0)].Data

	_, err := engine.Reconstruct("exec-1", shares)
	require.NoError(t, err)

	assert.Empty(t, shares, "share map should be emptied after reconstruction")
	assert.Equal(t, make([]byte, len(held)), held, "share bytes should be zeroed")
}
