package oracle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giro/pkg/platform/sentinel"
)

type fakeCaller struct {
	balance  *big.Int
	tokenID  *big.Int
	failures int
	calls    int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	if bytes.Equal(msg.Data[:4], selectorBalanceOf) {
		return pad32(f.balance), nil
	}
	return pad32(f.tokenID), nil
}

func pad32(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func TestHolderToken(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the held token", func(t *testing.T) {
		caller := &fakeCaller{balance: big.NewInt(1), tokenID: big.NewInt(42)}
		o := NewEthereumOracle(caller, "0x000000000000000000000000000000000000dEaD", time.Second)

		tokenID, ok, err := o.HolderToken(ctx, "0x00000000000000000000000000000000000000A1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "42", tokenID)
	})

	t.Run("no balance means no token, not an error", func(t *testing.T) {
		caller := &fakeCaller{balance: big.NewInt(0), tokenID: big.NewInt(42)}
		o := NewEthereumOracle(caller, "0x000000000000000000000000000000000000dEaD", time.Second)

		_, ok, err := o.HolderToken(ctx, "0x00000000000000000000000000000000000000A1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		caller := &fakeCaller{balance: big.NewInt(1), tokenID: big.NewInt(7), failures: 2}
		o := NewEthereumOracle(caller, "0x000000000000000000000000000000000000dEaD", 5*time.Second)

		tokenID, ok, err := o.HolderToken(ctx, "0x00000000000000000000000000000000000000A1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "7", tokenID)
		assert.Greater(t, caller.calls, 2)
	})

	t.Run("surfaces exhaustion as unavailable", func(t *testing.T) {
		caller := &fakeCaller{balance: big.NewInt(1), tokenID: big.NewInt(7), failures: 100}
		o := NewEthereumOracle(caller, "0x000000000000000000000000000000000000dEaD", 5*time.Second)

		_, _, err := o.HolderToken(ctx, "0x00000000000000000000000000000000000000A1")
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})
}

func TestOffline(t *testing.T) {
	// Unconfigured oracle fails closed: no token for anyone.
	_, ok, err := Offline{}.HolderToken(context.Background(), "0x00000000000000000000000000000000000000A1")
	require.NoError(t, err)
	assert.False(t, ok)
}
