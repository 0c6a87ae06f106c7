// Package ledger provides the arithmetic primitives every balance in the game
// is built on: a non-negative fixed-point Amount whose operations saturate
// instead of failing, the two named spending policies, identifiers and
// timestamps.
//
// All monetary values use shopspring/decimal, never float64 for money.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an Amount keeps. Results are
// truncated toward zero to this scale.
const Scale int32 = 18

var (
	// ErrInsufficientFunds is returned by CheckedSpend when the balance does
	// not cover the cost.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrNegativeAmount is returned when parsing a negative quantity.
	ErrNegativeAmount = errors.New("ledger: amount must not be negative")

	// maxValue is the largest representable amount (2^128-1 at Scale).
	maxValue = decimal.RequireFromString("340282366920938463463.374607431768211455")

	hundred = decimal.NewFromInt(100)
)

// Amount is a non-negative fixed-point quantity of points. The zero value is
// zero. Arithmetic saturates: underflow clamps to zero, overflow clamps to
// Max.
type Amount struct {
	d decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// Max returns the largest representable amount.
func Max() Amount { return Amount{d: maxValue} }

// New normalizes d into an Amount: negatives clamp to zero, values above Max
// clamp to Max and the result is truncated to Scale.
func New(d decimal.Decimal) Amount {
	if !d.IsPositive() {
		return Amount{}
	}
	if d.GreaterThan(maxValue) {
		return Max()
	}
	return Amount{d: d.Truncate(Scale)}
}

// FromInt returns n whole points.
func FromInt(n int64) Amount {
	return New(decimal.NewFromInt(n))
}

// Parse reads a decimal string. Negative input is rejected rather than
// clamped so that malformed requests surface as errors.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("ledger: parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %s", ErrNegativeAmount, s)
	}
	return New(d), nil
}

// MustParse is Parse for constants; it panics on invalid input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Add returns a+b, clamped to Max.
func (a Amount) Add(b Amount) Amount { return New(a.d.Add(b.d)) }

// Sub returns a-b, clamped to zero.
func (a Amount) Sub(b Amount) Amount { return New(a.d.Sub(b.d)) }

// CheckedSub returns a-b and true, or zero and false when b > a.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	if a.d.LessThan(b.d) {
		return Amount{}, false
	}
	return Amount{d: a.d.Sub(b.d)}, true
}

// Mul multiplies by a non-negative factor, truncating to Scale.
func (a Amount) Mul(f decimal.Decimal) Amount { return New(a.d.Mul(f)) }

// MulAmount multiplies two amounts, e.g. shares by a per-share payout.
func (a Amount) MulAmount(b Amount) Amount { return New(a.d.Mul(b.d)) }

// DivInt divides by a positive integer, truncating to Scale. Division by a
// non-positive divisor returns zero.
func (a Amount) DivInt(n int64) Amount {
	if n <= 0 {
		return Amount{}
	}
	return New(a.d.DivRound(decimal.NewFromInt(n), Scale+2))
}

// Div divides by another amount, returning zero when b is zero.
func (a Amount) Div(b Amount) Amount {
	if b.IsZero() {
		return Amount{}
	}
	return New(a.d.DivRound(b.d, Scale+2))
}

// Percent returns a*p/100.
func (a Amount) Percent(p decimal.Decimal) Amount {
	return New(a.d.Mul(p).DivRound(hundred, Scale+2))
}

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) IsZero() bool { return a.d.IsZero() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) String() string { return a.d.String() }
func (a Amount) InexactFloat64() float64 { return a.d.InexactFloat64() }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return a.d.MarshalJSON()
}

// UnmarshalJSON accepts quoted or bare decimals and rejects negatives.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, d)
	}
	*a = New(d)
	return nil
}

// CheckedSpend debits cost from balance. It is the policy for purchases and
// fees: the whole operation fails when the balance is short.
func CheckedSpend(balance, cost Amount) (Amount, error) {
	rest, ok := balance.CheckedSub(cost)
	if !ok {
		return balance, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, balance, cost)
	}
	return rest, nil
}

// FloorToZero debits up to penalty from balance and never fails. It returns
// the new balance and the amount actually removed. Used only for prediction
// penalties.
func FloorToZero(balance, penalty Amount) (rest, debited Amount) {
	if balance.LessThan(penalty) {
		return Amount{}, balance
	}
	return Amount{d: balance.d.Sub(penalty.d)}, penalty
}
