//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"giro/internal/ledger"
	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/sentinel"
	"giro/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledger.PostgresStore
	service  *ledger.Service
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = ledger.NewPostgresStore(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = ledger.NewService(s.store, ledger.NewFeePolicy(0, ""), logger, nil)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"identity_links", "ledger_accounts", "transfers")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedLink(ref, accountID string) {
	s.T().Helper()
	s.Require().NoError(s.store.SaveLink(context.Background(), ledger.IdentityLink{
		BankRef:       ref,
		AccountID:     accountID,
		HolderAddress: "0x" + accountID,
		BankCode:      "GIRO01",
		Status:        ledger.LinkActive,
	}))
}

func (s *PostgresStoreSuite) seedBalance(key, balance string) {
	s.T().Helper()
	s.Require().NoError(s.store.SaveAccount(context.Background(), ledger.Account{
		Key:     key,
		Balance: decimal.RequireFromString(balance),
	}))
}

func (s *PostgresStoreSuite) balance(key string) decimal.Decimal {
	s.T().Helper()
	account, err := s.store.AccountByKey(context.Background(), key)
	s.Require().NoError(err)
	return account.Balance
}

func (s *PostgresStoreSuite) TestLinkRoundTrip() {
	ctx := context.Background()
	s.seedLink("brf_alice", "acct-alice")

	link, err := s.store.LinkByRef(ctx, "brf_alice")
	s.Require().NoError(err)
	s.Equal("acct-alice", link.AccountID)
	s.Equal(ledger.LinkActive, link.Status)

	link, err = s.store.LinkByAddress(ctx, "0xacct-alice")
	s.Require().NoError(err)
	s.Equal("brf_alice", link.BankRef)

	_, err = s.store.LinkByRef(ctx, "brf_ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAccountRoundTripKeepsPrecision() {
	ctx := context.Background()
	s.seedBalance("brf_alice", "123.456789")

	account, err := s.store.AccountByKey(ctx, "brf_alice")
	s.Require().NoError(err)
	s.True(account.Balance.Equal(decimal.RequireFromString("123.456789")),
		"balance %s", account.Balance)
	s.False(account.LastSyncedAt.IsZero())

	_, err = s.store.AccountByKey(ctx, "brf_ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentFirstCredits drives many transactions through the
// read-then-credit path against a row that does not exist yet. FOR UPDATE
// cannot lock an absent row, so only the additive credit write keeps the
// concurrent increments from overwriting each other.
func (s *PostgresStoreSuite) TestConcurrentFirstCredits() {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
				if _, err := s.store.AccountByKey(ctx, "brf_hot"); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				return s.store.CreditAccount(ctx, "brf_hot", decimal.RequireFromString("5"))
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.True(s.balance("brf_hot").Equal(decimal.RequireFromString("80")),
		"balance %s", s.balance("brf_hot"))
}

// TestConcurrentTransfersToFreshRecipient is the same race through the full
// transfer path: every sender first-credits the same absent recipient row.
func (s *PostgresStoreSuite) TestConcurrentTransfersToFreshRecipient() {
	ctx := context.Background()
	const senders = 8

	for i := 0; i < senders; i++ {
		ref := fmt.Sprintf("brf_s%d", i)
		s.seedLink(ref, fmt.Sprintf("acct-s%d", i))
		s.seedBalance(ref, "10")
	}
	s.seedLink("brf_fresh", "acct-fresh")

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.service.Transfer(ctx, fmt.Sprintf("brf_s%d", i), "brf_fresh",
				decimal.RequireFromString("10"), "")
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	s.True(s.balance("brf_fresh").Equal(decimal.RequireFromString("80")),
		"recipient balance %s", s.balance("brf_fresh"))
	for i := 0; i < senders; i++ {
		s.True(s.balance(fmt.Sprintf("brf_s%d", i)).IsZero())
	}
}

// TestConcurrentDrain hammers one funded sender; the row lock taken by the
// in-transaction balance read keeps the sufficiency check indivisible from
// the debit, so exactly balance/amount transfers can succeed.
func (s *PostgresStoreSuite) TestConcurrentDrain() {
	ctx := context.Background()
	s.seedLink("brf_alice", "acct-alice")
	s.seedLink("brf_bob", "acct-bob")
	s.seedBalance("brf_alice", "100")

	const attempts = 20
	var wg sync.WaitGroup
	var successes, insufficient atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Transfer(ctx, "brf_alice", "brf_bob",
				decimal.RequireFromString("10"), "")
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
				insufficient.Add(1)
			default:
				s.Failf("unexpected transfer error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(10, successes.Load())
	s.EqualValues(attempts-10, insufficient.Load())
	s.True(s.balance("brf_alice").IsZero())
	s.True(s.balance("brf_bob").Equal(decimal.RequireFromString("100")))
}

func (s *PostgresStoreSuite) TestWithTransactionRollsBack() {
	ctx := context.Background()

	sentinelErr := errors.New("abort")
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.CreditAccount(ctx, "brf_alice", decimal.RequireFromString("50")); err != nil {
			return err
		}
		return sentinelErr
	})
	s.ErrorIs(err, sentinelErr)

	_, err = s.store.AccountByKey(ctx, "brf_alice")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
