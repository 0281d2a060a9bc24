package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"giro/pkg/platform/sentinel"
)

type memTxKey struct{}

// InMemoryStore keeps links, accounts, and transfers in memory for tests/dev.
// WithTransaction holds the store lock for the whole closure and restores a
// snapshot on error, so the atomic-scope guarantees match the SQL store.
type InMemoryStore struct {
	mu         sync.Mutex
	linksByRef map[string]IdentityLink
	accounts   map[string]Account
	transfers  []Transfer
}

// NewInMemoryStore constructs an empty in-memory ledger store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		linksByRef: make(map[string]IdentityLink),
		accounts:   make(map[string]Account),
	}
}

// lock acquires the store mutex unless the calling context is already inside
// WithTransaction, which holds it for the whole scope.
func (s *InMemoryStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *InMemoryStore) LinkByAddress(ctx context.Context, holderAddress string) (IdentityLink, error) {
	defer s.lock(ctx)()
	for _, link := range s.linksByRef {
		if link.HolderAddress == holderAddress {
			return link, nil
		}
	}
	return IdentityLink{}, fmt.Errorf("link not found for address: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) LinkByRef(ctx context.Context, bankRef string) (IdentityLink, error) {
	defer s.lock(ctx)()
	link, ok := s.linksByRef[bankRef]
	if !ok {
		return IdentityLink{}, fmt.Errorf("link not found: %w", sentinel.ErrNotFound)
	}
	return link, nil
}

func (s *InMemoryStore) LinksByAccountIDs(ctx context.Context, accountIDs []string) (map[string]IdentityLink, error) {
	defer s.lock(ctx)()
	wanted := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[string]IdentityLink)
	for _, link := range s.linksByRef {
		if _, ok := wanted[link.AccountID]; ok {
			out[link.AccountID] = link
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveLink(ctx context.Context, link IdentityLink) error {
	defer s.lock(ctx)()
	s.linksByRef[link.BankRef] = link
	return nil
}

func (s *InMemoryStore) AccountByKey(ctx context.Context, key string) (Account, error) {
	defer s.lock(ctx)()
	account, ok := s.accounts[key]
	if !ok {
		return Account{}, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return account, nil
}

func (s *InMemoryStore) SaveAccount(ctx context.Context, account Account) error {
	defer s.lock(ctx)()
	account.LastSyncedAt = time.Now()
	s.accounts[account.Key] = account
	return nil
}

func (s *InMemoryStore) CreditAccount(ctx context.Context, key string, amount decimal.Decimal) error {
	defer s.lock(ctx)()
	account, ok := s.accounts[key]
	if !ok {
		account = Account{Key: key, Balance: decimal.Zero}
	}
	account.Balance = account.Balance.Add(amount)
	account.LastSyncedAt = time.Now()
	s.accounts[key] = account
	return nil
}

func (s *InMemoryStore) CreateTransfer(ctx context.Context, transfer Transfer) error {
	defer s.lock(ctx)()
	s.transfers = append(s.transfers, transfer)
	return nil
}

func (s *InMemoryStore) TransfersByKeys(ctx context.Context, keys []string, limit int) ([]Transfer, error) {
	defer s.lock(ctx)()
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			wanted[k] = struct{}{}
		}
	}
	var out []Transfer
	for _, t := range s.transfers {
		_, from := wanted[t.FromRef]
		_, to := wanted[t.ToRef]
		if from || to {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithTransaction serializes the whole closure under the store lock and rolls
// back to a snapshot if fn returns an error.
func (s *InMemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountsSnapshot := make(map[string]Account, len(s.accounts))
	for k, v := range s.accounts {
		accountsSnapshot[k] = v
	}
	transfersLen := len(s.transfers)

	err := fn(context.WithValue(ctx, memTxKey{}, struct{}{}))
	if err != nil {
		s.accounts = accountsSnapshot
		s.transfers = s.transfers[:transfersLen]
		return err
	}
	return nil
}
