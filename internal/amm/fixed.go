package amm

import (
	"github.com/atmx/prediction-engine/internal/ledger"
)

// DefaultRatio is the number of points one token of payment buys.
const DefaultRatio = 10

// FixedRatio prices points at a constant rate: buying n points costs n/Ratio
// plus the creator fee. Selling is the exact inverse.
type FixedRatio struct {
	Ratio int64
}

// NewFixedRatio returns the 10:1 policy.
func NewFixedRatio() FixedRatio {
	return FixedRatio{Ratio: DefaultRatio}
}

// BasePayment returns points / Ratio.
func (f FixedRatio) BasePayment(points ledger.Amount) ledger.Amount {
	ratio := f.Ratio
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	return points.DivInt(ratio)
}

// QuoteBuy prices the purchase of points. Total is base + fee.
func (f FixedRatio) QuoteBuy(points ledger.Amount, feePercent uint8) (Quote, error) {
	if !points.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	base := f.BasePayment(points)
	fee := CreatorFee(base, feePercent)
	return Quote{Shares: points, Cost: base, Fee: fee, Total: base.Add(fee)}, nil
}

// QuoteSell prices returning points to the market. Total is base - fee.
func (f FixedRatio) QuoteSell(points ledger.Amount, feePercent uint8) (Quote, error) {
	if !points.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	base := f.BasePayment(points)
	fee := CreatorFee(base, feePercent)
	return Quote{Shares: points, Cost: base, Fee: fee, Total: base.Sub(fee)}, nil
}
