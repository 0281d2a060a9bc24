// Package oracle answers one question from an external source of truth: does
// this address currently hold an eligibility token, and which one. The answer
// is queried independently on every ticket issuance and never derived from
// identity-system claims.
package oracle

import "context"

// Oracle is the read-only ownership check.
type Oracle interface {
	// HolderToken returns the eligibility token held by the address.
	// ok is false when the address holds none. err is reserved for
	// transport failures; "no token" is not an error.
	HolderToken(ctx context.Context, holderAddress string) (tokenID string, ok bool, err error)
}

// Offline is the oracle used when no RPC endpoint is configured. It fails
// closed: every eligibility check answers "no token", so no ticket issuance
// can succeed.
type Offline struct{}

func (Offline) HolderToken(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}
