// Package limits enforces position limits on bonding-curve markets.
//
// A player's holdings are capped per outcome and in aggregate across all
// outcomes of one market, so that a single account cannot corner an outcome
// pool before resolution.
package limits

import (
	"errors"

	"github.com/atmx/prediction-engine/internal/ledger"
)

var (
	// ErrPerOutcomeLimitExceeded is returned when a trade would push the
	// holding in one outcome beyond the per-outcome maximum.
	ErrPerOutcomeLimitExceeded = errors.New("limits: per-outcome position limit exceeded")

	// ErrPerMarketLimitExceeded is returned when a trade would push the
	// aggregate holding across the market's outcomes beyond the maximum.
	ErrPerMarketLimitExceeded = errors.New("limits: per-market position limit exceeded")
)

// PositionLimiter holds the caps. A zero cap disables that check.
type PositionLimiter struct {
	// MaxPerOutcome is the maximum shares held in any single outcome.
	MaxPerOutcome ledger.Amount

	// MaxPerMarket is the maximum shares held across all outcomes of one
	// market.
	MaxPerMarket ledger.Amount
}

// NewPositionLimiter creates a limiter with the given caps.
func NewPositionLimiter(maxPerOutcome, maxPerMarket ledger.Amount) *PositionLimiter {
	return &PositionLimiter{
		MaxPerOutcome: maxPerOutcome,
		MaxPerMarket:  maxPerMarket,
	}
}

// CheckLimit validates buying delta more shares of target given the player's
// existing holdings in the market. Returns nil if the trade is within limits.
func (l *PositionLimiter) CheckLimit(
	target ledger.OutcomeID,
	delta ledger.Amount,
	holdings map[ledger.OutcomeID]ledger.Amount,
) error {
	if l == nil {
		return nil
	}

	// 1. Per-outcome limit.
	newHolding := holdings[target].Add(delta)
	if l.MaxPerOutcome.IsPositive() && newHolding.GreaterThan(l.MaxPerOutcome) {
		return ErrPerOutcomeLimitExceeded
	}

	// 2. Aggregate across the market.
	if !l.MaxPerMarket.IsPositive() {
		return nil
	}
	total := newHolding
	for id, shares := range holdings {
		if id == target {
			continue // already counted via newHolding
		}
		total = total.Add(shares)
	}
	if total.GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}
	return nil
}
