package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *ledgerFixture) seedTransfer(t *testing.T, id, from, to string, scheme KeyScheme, amount string, age time.Duration) {
	t.Helper()
	require.NoError(t, f.store.CreateTransfer(context.Background(), Transfer{
		ID:        id,
		FromRef:   from,
		ToRef:     to,
		Scheme:    scheme,
		Kind:      KindTransfer,
		Amount:    dec(amount),
		Fee:       dec("0"),
		Status:    StatusCompleted,
		CreatedAt: time.Now().Add(-age),
	}))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles legacy rows with current keying", func(t *testing.T) {
		fx := newLedgerFixture(t, 0, "")
		fx.seedLink(t, "brf_alice", "acct-alice", LinkActive)
		fx.seedLink(t, "brf_bob", "acct-bob", LinkActive)

		// Newest first once resolved: a current-keying credit, a legacy debit
		// to bob, a legacy debit whose counterparty no longer resolves.
		fx.seedTransfer(t, "t-new", "brf_bob", "brf_alice", SchemeBankRef, "25", 1*time.Hour)
		fx.seedTransfer(t, "t-legacy", "acct-alice", "acct-bob", SchemeAccount, "40", 2*time.Hour)
		fx.seedTransfer(t, "t-orphan", "acct-alice", "acct-vanished", SchemeAccount, "5", 3*time.Hour)

		entries, err := fx.service.History(ctx, "brf_alice", 50)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		byID := map[string]HistoryEntry{}
		for _, e := range entries {
			byID[e.TransferID] = e
		}

		assert.Equal(t, DirectionIn, byID["t-new"].Direction)
		assert.Equal(t, "brf_bob", byID["t-new"].CounterpartyBankRef)

		assert.Equal(t, DirectionOut, byID["t-legacy"].Direction)
		assert.Equal(t, "brf_bob", byID["t-legacy"].CounterpartyBankRef,
			"legacy counterparty resolves to its current reference")

		assert.Equal(t, DirectionOut, byID["t-orphan"].Direction)
		assert.Equal(t, "SYSTEM", byID["t-orphan"].CounterpartyBankRef,
			"unresolvable legacy counterparty falls back to the SYSTEM marker")
	})

	t.Run("orders newest first", func(t *testing.T) {
		fx := newLedgerFixture(t, 0, "")
		fx.seedLink(t, "brf_alice", "acct-alice", LinkActive)
		fx.seedLink(t, "brf_bob", "acct-bob", LinkActive)
		fx.seedTransfer(t, "t-old", "brf_alice", "brf_bob", SchemeBankRef, "1", 2*time.Hour)
		fx.seedTransfer(t, "t-recent", "brf_alice", "brf_bob", SchemeBankRef, "2", 1*time.Minute)

		entries, err := fx.service.History(ctx, "brf_alice", 50)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "t-recent", entries[0].TransferID)
	})

	t.Run("reference without a link has empty history", func(t *testing.T) {
		fx := newLedgerFixture(t, 0, "")

		entries, err := fx.service.History(ctx, "brf_ghost", 50)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("caps the limit", func(t *testing.T) {
		fx := newLedgerFixture(t, 0, "")
		fx.seedLink(t, "brf_alice", "acct-alice", LinkActive)
		fx.seedLink(t, "brf_bob", "acct-bob", LinkActive)
		for i := 0; i < 5; i++ {
			fx.seedTransfer(t, fmt.Sprintf("t-%d", i), "brf_alice", "brf_bob", SchemeBankRef, "1", time.Duration(i)*time.Minute)
		}

		entries, err := fx.service.History(ctx, "brf_alice", 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}
