package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"giro/internal/ledger/metrics"
	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/sentinel"
)

// Stable transfer failure reasons.
const (
	ReasonInvalidAmount       = "invalid amount"
	ReasonSelfTransfer        = "self transfer"
	ReasonSenderNotFound      = "sender not found"
	ReasonRecipientNotFound   = "recipient not found"
	ReasonInsufficientBalance = "insufficient balance"
)

// TransferResult is the committed outcome of a transfer request.
type TransferResult struct {
	TransferID string
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	Status     string
}

// BalanceResult is a point-in-time balance read.
type BalanceResult struct {
	Balance      decimal.Decimal
	LastSyncedAt time.Time
}

// Resolution answers "does this recipient exist" without ever erroring.
type Resolution struct {
	Exists   bool
	BankCode string
}

// Service orchestrates transfers, balance reads, and history over the Store.
// There is deliberately no reversal path: compensating value movement is a
// new transfer.
type Service struct {
	store   Store
	fees    FeePolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, fees FeePolicy, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, fees: fees, logger: logger, metrics: m}
}

// Transfer moves amount from sender to recipient, skimming the configured
// proportional fee. Validation and fee-account resolution happen before the
// atomic scope; everything that mutates state happens inside it.
func (s *Service) Transfer(ctx context.Context, senderRef, recipientRef string, amount decimal.Decimal, memo string) (TransferResult, error) {
	start := time.Now()

	// Fail fast, outside the atomic scope.
	if amount.Sign() <= 0 {
		return TransferResult{}, s.rejectTransfer(dErrors.CodeValidation, ReasonInvalidAmount)
	}
	if senderRef == recipientRef {
		return TransferResult{}, s.rejectTransfer(dErrors.CodeValidation, ReasonSelfTransfer)
	}

	senderLink, err := s.activeLink(ctx, senderRef)
	if err != nil {
		return TransferResult{}, s.rejectTransfer(dErrors.CodeNotFound, ReasonSenderNotFound)
	}
	recipientLink, err := s.activeLink(ctx, recipientRef)
	if err != nil {
		return TransferResult{}, s.rejectTransfer(dErrors.CodeNotFound, ReasonRecipientNotFound)
	}

	// Resolve the fee account before the sufficiency check so the checked-for
	// debit always equals the applied debit. An unresolvable fee account
	// degrades the fee to zero; it never fails or misroutes the transfer.
	fee := s.fees.ComputeFee(amount)
	var feeLink IdentityLink
	if fee.Sign() > 0 {
		feeLink, err = s.activeLink(ctx, s.fees.CollectionRef())
		if err != nil {
			s.logger.ErrorContext(ctx, "fee collection account unresolvable, degrading to zero fee",
				"fee_ref", truncateRef(s.fees.CollectionRef()),
				"error", err,
			)
			s.metrics.IncrementFeeDegraded()
			fee = decimal.Zero
		}
	}

	transferID := uuid.NewString()
	now := time.Now()

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		senderAccount, err := s.accountForLink(ctx, senderLink)
		if err != nil {
			return err
		}

		// One sufficiency check covers the combined debit.
		totalDebit := amount.Add(fee)
		if senderAccount.Balance.LessThan(totalDebit) {
			return dErrors.New(dErrors.CodeInvariantViolation, ReasonInsufficientBalance)
		}

		senderAccount.Balance = senderAccount.Balance.Sub(totalDebit)
		if err := s.store.SaveAccount(ctx, senderAccount); err != nil {
			return err
		}

		if err := s.credit(ctx, recipientLink, amount); err != nil {
			return err
		}

		if err := s.store.CreateTransfer(ctx, Transfer{
			ID:        transferID,
			FromRef:   senderRef,
			ToRef:     recipientRef,
			Scheme:    SchemeBankRef,
			Kind:      KindTransfer,
			Amount:    amount,
			Fee:       fee,
			Memo:      memo,
			Status:    StatusCompleted,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		if fee.Sign() > 0 {
			if err := s.credit(ctx, feeLink, fee); err != nil {
				return err
			}
			if err := s.store.CreateTransfer(ctx, Transfer{
				ID:        uuid.NewString(),
				FromRef:   senderRef,
				ToRef:     feeLink.BankRef,
				Scheme:    SchemeBankRef,
				Kind:      KindFee,
				Amount:    fee,
				Fee:       decimal.Zero,
				Memo:      "fee:" + transferID,
				Status:    StatusCompleted,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			s.metrics.IncrementOutcome(outcomeLabel(ReasonInsufficientBalance))
			return TransferResult{}, err
		}
		s.metrics.IncrementOutcome("store_error")
		return TransferResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "transfer failed")
	}

	s.metrics.IncrementOutcome("completed")
	s.metrics.ObserveTransferLatency(time.Since(start))
	s.logger.InfoContext(ctx, "transfer completed",
		"transfer_id", transferID,
		"from_ref", truncateRef(senderRef),
		"to_ref", truncateRef(recipientRef),
		"amount", amount.String(),
		"fee", fee.String(),
	)
	return TransferResult{TransferID: transferID, Amount: amount, Fee: fee, Status: StatusCompleted}, nil
}

// Balance reads the balance for a bank reference. Missing rows mean a zero
// balance, not an error: a provisioned account that has never transacted has
// nothing to store yet.
func (s *Service) Balance(ctx context.Context, bankRef string) (BalanceResult, error) {
	account, err := s.store.AccountByKey(ctx, bankRef)
	if err == nil {
		return BalanceResult{Balance: account.Balance, LastSyncedAt: account.LastSyncedAt}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return BalanceResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}

	// Transition fallback: some rows are still keyed by the underlying
	// account from before pseudonymous keying.
	link, err := s.store.LinkByRef(ctx, bankRef)
	if err != nil {
		return BalanceResult{Balance: decimal.Zero}, nil
	}
	account, err = s.store.AccountByKey(ctx, link.AccountID)
	if err != nil {
		return BalanceResult{Balance: decimal.Zero}, nil
	}
	return BalanceResult{Balance: account.Balance, LastSyncedAt: account.LastSyncedAt}, nil
}

// ResolveRecipient reports whether a reference can receive transfers. Absent
// or inactive references resolve to exists=false; this never errors.
func (s *Service) ResolveRecipient(ctx context.Context, bankRef string) Resolution {
	link, err := s.store.LinkByRef(ctx, bankRef)
	if err != nil || !link.Active() {
		return Resolution{}
	}
	return Resolution{Exists: true, BankCode: link.BankCode}
}

// activeLink resolves a reference and requires it to be usable for transfers.
func (s *Service) activeLink(ctx context.Context, bankRef string) (IdentityLink, error) {
	if bankRef == "" {
		return IdentityLink{}, sentinel.ErrNotFound
	}
	link, err := s.store.LinkByRef(ctx, bankRef)
	if err != nil {
		return IdentityLink{}, err
	}
	if !link.Active() {
		return IdentityLink{}, sentinel.ErrInvalidState
	}
	return link, nil
}

// accountForLink finds the balance row for a link, ref-keyed rows first, then
// legacy account-keyed rows, else a fresh zero row keyed by the reference.
func (s *Service) accountForLink(ctx context.Context, link IdentityLink) (Account, error) {
	account, err := s.store.AccountByKey(ctx, link.BankRef)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Account{}, err
	}
	account, err = s.store.AccountByKey(ctx, link.AccountID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Account{}, err
	}
	return Account{Key: link.BankRef, Balance: decimal.Zero}, nil
}

// credit adds amount to the link's balance row. The write goes through
// CreditAccount rather than an absolute SaveAccount so concurrent credits of
// a not-yet-existing row compose; accountForLink only picks the key (ref-keyed
// row, legacy account-keyed row, or a fresh ref-keyed one).
func (s *Service) credit(ctx context.Context, link IdentityLink, amount decimal.Decimal) error {
	account, err := s.accountForLink(ctx, link)
	if err != nil {
		return err
	}
	return s.store.CreditAccount(ctx, account.Key, amount)
}

func (s *Service) rejectTransfer(code dErrors.Code, reason string) error {
	s.metrics.IncrementOutcome(outcomeLabel(reason))
	return dErrors.New(code, reason)
}

func outcomeLabel(reason string) string {
	return strings.ReplaceAll(reason, " ", "_")
}

// truncateRef shortens a bank reference for logging.
func truncateRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
