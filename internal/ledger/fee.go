package ledger

import "github.com/shopspring/decimal"

// feeScale is the number of decimal places a computed fee is rounded to.
// Rounding (not truncation) keeps sub-unit fees collectible.
const feeScale = 6

var basisPointDivisor = decimal.NewFromInt(10000)

// FeePolicy computes a proportional fee in basis points and names the
// account that collects it.
type FeePolicy struct {
	basisPoints   int64
	collectionRef string
}

func NewFeePolicy(basisPoints int64, collectionRef string) FeePolicy {
	return FeePolicy{basisPoints: basisPoints, collectionRef: collectionRef}
}

// ComputeFee returns round(amount * bps / 10000, 6). Non-positive amounts
// carry no fee.
func (p FeePolicy) ComputeFee(amount decimal.Decimal) decimal.Decimal {
	if p.basisPoints <= 0 || amount.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.
		Mul(decimal.NewFromInt(p.basisPoints)).
		Div(basisPointDivisor).
		Round(feeScale)
}

// CollectionRef is the bank reference fees are credited to; empty disables
// collection entirely.
func (p FeePolicy) CollectionRef() string { return p.collectionRef }
