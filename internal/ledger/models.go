// Package ledger owns identity links, account balances, and the transfer
// engine. Balances are mutated nowhere else.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LinkStatus tracks whether a pseudonymous link may be used for new activity.
type LinkStatus string

const (
	LinkActive   LinkStatus = "ACTIVE"
	LinkInactive LinkStatus = "INACTIVE"
)

// IdentityLink ties an opaque bank reference to an underlying account. The
// link is the only place the two sides meet: everything downstream of ticket
// issuance sees the bank reference alone.
type IdentityLink struct {
	BankRef       string
	AccountID     string
	HolderAddress string
	BankCode      string
	Status        LinkStatus
}

// Active reports whether the link may be used for new activity.
func (l IdentityLink) Active() bool { return l.Status == LinkActive }

// Account is one balance row. Key is the bank reference for rows created
// after pseudonymous keying, or the underlying account ID for rows that
// predate it. At most one row exists per underlying account.
type Account struct {
	Key          string
	Balance      decimal.Decimal
	LastSyncedAt time.Time
}

// TransferKind separates principal legs from fee-collection legs.
type TransferKind string

const (
	KindTransfer TransferKind = "TRANSFER"
	KindFee      TransferKind = "FEE"
)

// KeyScheme records which keying generation a transfer row was written under.
type KeyScheme string

const (
	SchemeBankRef KeyScheme = "BANK_REF"
	SchemeAccount KeyScheme = "ACCOUNT"
)

// StatusCompleted is the only terminal transfer status; rows are immutable
// once created.
const StatusCompleted = "COMPLETED"

// Transfer is one immutable recorded leg. A transfer with a nonzero fee is
// two legs inside the same atomic scope: the principal leg (Kind TRANSFER,
// Fee set) and a fee leg (Kind FEE, Amount = fee) referencing the same sender.
type Transfer struct {
	ID        string
	FromRef   string
	ToRef     string
	Scheme    KeyScheme
	Kind      TransferKind
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	Memo      string
	Status    string
	CreatedAt time.Time
}
