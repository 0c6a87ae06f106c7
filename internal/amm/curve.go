package amm

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
)

// BondingCurve implements the power-law curve for one market. Every outcome
// of the market shares the same parameters but has its own share count.
type BondingCurve struct {
	base      decimal.Decimal
	liquidity decimal.Decimal
	k         decimal.Decimal
}

// NewBondingCurve creates a curve with the given base price, liquidity scale
// L and smoothing factor k. Higher L flattens the curve: more shares can be
// sold before the price reaches base.
func NewBondingCurve(basePrice, liquidity ledger.Amount, smoothing decimal.Decimal) (*BondingCurve, error) {
	if !basePrice.IsPositive() || !liquidity.IsPositive() || !smoothing.IsPositive() {
		return nil, ErrInvalidCurve
	}
	return &BondingCurve{
		base:      basePrice.Decimal(),
		liquidity: liquidity.Decimal(),
		k:         smoothing,
	}, nil
}

// Price returns the instantaneous price of the next share after sold shares
// have been issued:
//
//	p(s) = base × (s / L)^k
func (c *BondingCurve) Price(sold ledger.Amount) ledger.Amount {
	bf := c.base.InexactFloat64()
	lf := c.liquidity.InexactFloat64()
	kf := c.k.InexactFloat64()
	s := sold.InexactFloat64()

	return toAmount(bf*math.Pow(s/lf, kf), decimal.Decimal.Round)
}

// integral is the antiderivative of the price function:
//
//	F(s) = base × s^(k+1) / ((k+1) × L^k)
//
// computed as base × L/(k+1) × (s/L)^(k+1) to keep intermediate values near
// the magnitude of the result.
func (c *BondingCurve) integral(s float64) float64 {
	bf := c.base.InexactFloat64()
	lf := c.liquidity.InexactFloat64()
	kf := c.k.InexactFloat64()
	return bf * lf / (kf + 1) * math.Pow(s/lf, kf+1)
}

// inverse solves F(s) = v for s.
func (c *BondingCurve) inverse(v float64) float64 {
	bf := c.base.InexactFloat64()
	lf := c.liquidity.InexactFloat64()
	kf := c.k.InexactFloat64()
	return lf * math.Pow(v*(kf+1)/(bf*lf), 1/(kf+1))
}

// Cost computes the price of issuing shares on top of the sold ones by
// integrating the curve up to the post-trade quantity:
//
//	cost = F(sold + shares) - F(sold)
//
// The result is rounded up so that a buyer never underpays.
func (c *BondingCurve) Cost(sold, shares ledger.Amount) ledger.Amount {
	s0 := sold.InexactFloat64()
	s1 := sold.Add(shares).InexactFloat64()
	return toAmount(c.integral(s1)-c.integral(s0), decimal.Decimal.RoundCeil)
}

// Proceeds computes the gross value of redeeming shares out of sold:
//
//	proceeds = F(sold) - F(sold - shares)
//
// The result is rounded down so that redemptions never exceed what buyers
// paid in.
func (c *BondingCurve) Proceeds(sold, shares ledger.Amount) (ledger.Amount, error) {
	if shares.GreaterThan(sold) {
		return ledger.Zero(), ErrExceedsSupply
	}
	s0 := sold.Sub(shares).InexactFloat64()
	s1 := sold.InexactFloat64()
	return toAmount(c.integral(s1)-c.integral(s0), decimal.Decimal.RoundFloor), nil
}

// SharesFor inverts the curve: it returns the largest share quantity, at
// PriceScale resolution, whose Cost on top of sold does not exceed budget.
func (c *BondingCurve) SharesFor(sold, budget ledger.Amount) ledger.Amount {
	if !budget.IsPositive() {
		return ledger.Zero()
	}
	s0 := sold.InexactFloat64()
	s1 := c.inverse(c.integral(s0) + budget.InexactFloat64())
	shares := toAmount(s1-s0, decimal.Decimal.RoundFloor)

	// Float error can leave the rounded-up cost a hair above budget.
	step := ledger.New(decimal.New(1, -PriceScale))
	for i := 0; i < 8 && shares.IsPositive() && c.Cost(sold, shares).GreaterThan(budget); i++ {
		shares = shares.Sub(step)
	}
	return shares
}

// QuoteBuy prices buying shares of an outcome that has sold shares issued.
// Total is cost + fee.
func (c *BondingCurve) QuoteBuy(sold, shares ledger.Amount, feePercent uint8) (Quote, error) {
	if !shares.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	cost := c.Cost(sold, shares)
	if !cost.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	fee := CreatorFee(cost, feePercent)
	return Quote{Shares: shares, Cost: cost, Fee: fee, Total: cost.Add(fee)}, nil
}

// QuoteBuyWithPayment finds the shares a payment buys, fee included. The
// returned Total never exceeds payment.
func (c *BondingCurve) QuoteBuyWithPayment(sold, payment ledger.Amount, feePercent uint8) (Quote, error) {
	if !payment.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	// payment = cost × (100 + F) / 100
	budget := payment.Mul(decimal.NewFromInt(100)).DivInt(100 + int64(feePercent))
	shares := c.SharesFor(sold, budget)
	for i := 0; i < 8 && shares.IsPositive(); i++ {
		q, err := c.QuoteBuy(sold, shares, feePercent)
		if err != nil {
			return Quote{}, err
		}
		if !q.Total.GreaterThan(payment) {
			return q, nil
		}
		shares = shares.Sub(ledger.New(decimal.New(1, -PriceScale)))
	}
	return Quote{}, ErrInvalidQuantity
}

// QuoteSell prices redeeming shares of an outcome. Total is proceeds - fee.
func (c *BondingCurve) QuoteSell(sold, shares ledger.Amount, feePercent uint8) (Quote, error) {
	if !shares.IsPositive() {
		return Quote{}, ErrInvalidQuantity
	}
	gross, err := c.Proceeds(sold, shares)
	if err != nil {
		return Quote{}, err
	}
	fee := CreatorFee(gross, feePercent)
	return Quote{Shares: shares, Cost: gross, Fee: fee, Total: gross.Sub(fee)}, nil
}

// FillPrice returns the average execution price per share of a quote.
func FillPrice(q Quote) ledger.Amount {
	if q.Shares.IsZero() {
		return ledger.Zero()
	}
	return ledger.New(q.Cost.Decimal().DivRound(q.Shares.Decimal(), PriceScale))
}

// toAmount converts a float64 curve result to an Amount at PriceScale using
// the given rounding. NaN and non-positive values map to zero, +Inf to Max.
func toAmount(x float64, round func(decimal.Decimal, int32) decimal.Decimal) ledger.Amount {
	switch {
	case math.IsNaN(x) || x <= 0:
		return ledger.Zero()
	case math.IsInf(x, 1):
		return ledger.Max()
	}
	return ledger.New(round(decimal.NewFromFloat(x), PriceScale))
}
