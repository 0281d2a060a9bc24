package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	dErrors "giro/pkg/domain-errors"
	"giro/pkg/platform/sentinel"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100

	// DirectionOut marks transfers sent by the queried reference.
	DirectionOut = "OUT"
	// DirectionIn marks transfers received by the queried reference.
	DirectionIn = "IN"

	// systemCounterparty stands in for a legacy counterparty whose account
	// no longer resolves to a live link.
	systemCounterparty = "SYSTEM"
)

// HistoryEntry is one transfer annotated from the querying reference's point
// of view. Counterparties are always pseudonymous references, never account
// identities, even for rows recorded before pseudonymous keying.
type HistoryEntry struct {
	TransferID          string
	Direction           string
	CounterpartyBankRef string
	Kind                TransferKind
	Amount              decimal.Decimal
	Fee                 decimal.Decimal
	Memo                string
	Status              string
	CreatedAt           time.Time
}

// History returns the newest transfers for a reference, reconciling rows
// recorded under the legacy account keying with the current reference keying.
// A reference without a link has no history; that is an empty result, not an
// error.
func (s *Service) History(ctx context.Context, bankRef string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	link, err := s.store.LinkByRef(ctx, bankRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []HistoryEntry{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve link")
	}

	transfers, err := s.store.TransfersByKeys(ctx, []string{bankRef, link.AccountID}, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read history")
	}

	resolved, err := s.resolveLegacyCounterparties(ctx, transfers)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve counterparties")
	}

	entries := make([]HistoryEntry, 0, len(transfers))
	for _, t := range transfers {
		fromRef := s.resolveKey(t, t.FromRef, link, resolved)
		toRef := s.resolveKey(t, t.ToRef, link, resolved)

		entry := HistoryEntry{
			TransferID: t.ID,
			Kind:       t.Kind,
			Amount:     t.Amount,
			Fee:        t.Fee,
			Memo:       t.Memo,
			Status:     t.Status,
			CreatedAt:  t.CreatedAt,
		}
		if fromRef == bankRef {
			entry.Direction = DirectionOut
			entry.CounterpartyBankRef = toRef
		} else {
			entry.Direction = DirectionIn
			entry.CounterpartyBankRef = fromRef
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// resolveLegacyCounterparties batch-resolves the account IDs appearing in
// legacy-keyed rows to their current pseudonymous references.
func (s *Service) resolveLegacyCounterparties(ctx context.Context, transfers []Transfer) (map[string]IdentityLink, error) {
	seen := make(map[string]struct{})
	var accountIDs []string
	for _, t := range transfers {
		if t.Scheme != SchemeAccount {
			continue
		}
		for _, key := range []string{t.FromRef, t.ToRef} {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				accountIDs = append(accountIDs, key)
			}
		}
	}
	if len(accountIDs) == 0 {
		return map[string]IdentityLink{}, nil
	}
	return s.store.LinksByAccountIDs(ctx, accountIDs)
}

// resolveKey maps one side of a transfer row to a pseudonymous reference.
// Reference-keyed rows pass through; legacy rows resolve via the batch
// lookup, falling back to the SYSTEM marker.
func (s *Service) resolveKey(t Transfer, key string, link IdentityLink, resolved map[string]IdentityLink) string {
	if t.Scheme != SchemeAccount {
		return key
	}
	if key == link.AccountID {
		return link.BankRef
	}
	if l, ok := resolved[key]; ok {
		return l.BankRef
	}
	return systemCounterparty
}
