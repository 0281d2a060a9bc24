package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence boundary for links, balances, and transfer rows.
//
// Error Contract:
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
//
// Mutating account rows or creating transfers is only legal inside
// WithTransaction; implementations guarantee all-or-nothing commit semantics
// across everything the closure does.
type Store interface {
	LinkByAddress(ctx context.Context, holderAddress string) (IdentityLink, error)
	LinkByRef(ctx context.Context, bankRef string) (IdentityLink, error)
	// LinksByAccountIDs batch-resolves underlying account IDs to their links.
	// Unresolvable IDs are simply absent from the result, never an error.
	LinksByAccountIDs(ctx context.Context, accountIDs []string) (map[string]IdentityLink, error)
	SaveLink(ctx context.Context, link IdentityLink) error

	// AccountByKey locks the row for update when called inside WithTransaction.
	AccountByKey(ctx context.Context, key string) (Account, error)
	SaveAccount(ctx context.Context, account Account) error
	// CreditAccount adds amount to a row's balance, creating the row when it
	// does not exist. The write is a relative change, so two transactions
	// first-crediting the same absent row add up instead of overwriting.
	CreditAccount(ctx context.Context, key string, amount decimal.Decimal) error

	CreateTransfer(ctx context.Context, transfer Transfer) error
	// TransfersByKeys returns the newest transfers touching any of the given
	// keys (bank references or legacy account IDs), newest first.
	TransfersByKeys(ctx context.Context, keys []string, limit int) ([]Transfer, error)

	// WithTransaction runs fn inside a single atomic scope. Any error aborts
	// the whole scope; no partial mutation is ever visible.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
