// Package amm prices trades for the two market policies the game supports.
//
// FixedRatio sells points at a constant exchange rate. BondingCurve prices
// each outcome of a multi-outcome market from
//
//	price(s) = base × (s / L)^k
//
// where s is the number of shares of that outcome already sold, L the
// market's liquidity scale and k its smoothing factor.
//
// Both strategies are stateless: market quantities are passed as arguments,
// not stored. All monetary values use shopspring/decimal; the curve's
// transcendental math runs in float64 and is immediately converted back to
// decimal at PriceScale.
package amm

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
)

var (
	// ErrInvalidCurve is returned when a curve parameter is not positive.
	ErrInvalidCurve = errors.New("amm: base price, liquidity and smoothing factor must be positive")

	// ErrInvalidQuantity is returned for zero-sized trades.
	ErrInvalidQuantity = errors.New("amm: trade quantity must be positive")

	// ErrExceedsSupply is returned when selling more shares than the pool
	// has issued.
	ErrExceedsSupply = errors.New("amm: cannot redeem more shares than were sold")

	// ErrSlippageExceeded is returned when a quote violates the caller's
	// maximum cost or minimum proceeds.
	ErrSlippageExceeded = errors.New("amm: slippage bound exceeded")

	// PriceScale is the number of decimal places curve results are rounded to.
	PriceScale int32 = 8
)

// Quote is the priced result of a prospective trade.
//
// For buys Total = Cost + Fee is what the buyer pays. For sells Total =
// Cost - Fee is what the seller receives.
type Quote struct {
	Shares ledger.Amount `json:"shares"`
	Cost   ledger.Amount `json:"cost"`
	Fee    ledger.Amount `json:"fee"`
	Total  ledger.Amount `json:"total"`
}

// CreatorFee returns base × feePercent / 100.
func CreatorFee(base ledger.Amount, feePercent uint8) ledger.Amount {
	return base.Percent(decimal.NewFromInt(int64(feePercent)))
}

// SplitFee divides a creator fee between the market creator and the platform.
// platformPercent is the platform's share of the fee (2 in the default game).
// creator + platform always equals fee exactly.
func SplitFee(fee ledger.Amount, platformPercent uint8) (creator, platform ledger.Amount) {
	platform = fee.Percent(decimal.NewFromInt(int64(platformPercent)))
	creator = fee.Sub(platform)
	return creator, platform
}

// CheckMaxCost enforces the buyer's slippage bound. A zero bound disables the
// check.
func CheckMaxCost(q Quote, maxCost ledger.Amount) error {
	if maxCost.IsZero() || !q.Total.GreaterThan(maxCost) {
		return nil
	}
	return fmt.Errorf("%w: cost %s exceeds maximum %s", ErrSlippageExceeded, q.Total, maxCost)
}

// CheckMinProceeds enforces the seller's slippage bound. A zero bound
// disables the check.
func CheckMinProceeds(q Quote, minProceeds ledger.Amount) error {
	if !q.Total.LessThan(minProceeds) {
		return nil
	}
	return fmt.Errorf("%w: proceeds %s below minimum %s", ErrSlippageExceeded, q.Total, minProceeds)
}

// CheckMinShares enforces a lower bound on shares obtained for a payment.
func CheckMinShares(q Quote, minShares ledger.Amount) error {
	if !q.Shares.LessThan(minShares) {
		return nil
	}
	return fmt.Errorf("%w: %s shares below minimum %s", ErrSlippageExceeded, q.Shares, minShares)
}
