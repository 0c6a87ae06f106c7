package amm

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func a(s string) ledger.Amount {
	return ledger.MustParse(s)
}

func linearCurve(t *testing.T) *BondingCurve {
	t.Helper()
	c, err := NewBondingCurve(a("1"), a("100"), d(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

// --- Constructor tests ---

func TestNewBondingCurve_RejectsNonPositive(t *testing.T) {
	tests := []struct {
		name      string
		base, liq ledger.Amount
		k         decimal.Decimal
	}{
		{"zero base", a("0"), a("100"), d(1)},
		{"zero liquidity", a("1"), a("0"), d(1)},
		{"zero smoothing", a("1"), a("100"), d(0)},
		{"negative smoothing", a("1"), a("100"), d(-2)},
	}
	for _, tt := range tests {
		if _, err := NewBondingCurve(tt.base, tt.liq, tt.k); err != ErrInvalidCurve {
			t.Errorf("%s: expected ErrInvalidCurve, got %v", tt.name, err)
		}
	}
}

// --- Price function tests ---

func TestPrice_ZeroWhenNothingSold(t *testing.T) {
	c := linearCurve(t)
	if p := c.Price(a("0")); !p.IsZero() {
		t.Errorf("expected 0, got %s", p)
	}
}

func TestPrice_ReachesBaseAtLiquidity(t *testing.T) {
	c := linearCurve(t)
	if p := c.Price(a("100")); !p.Equal(a("1")) {
		t.Errorf("expected base price 1 at s=L, got %s", p)
	}
}

func TestPrice_StrictlyIncreasing(t *testing.T) {
	c, _ := NewBondingCurve(a("2"), a("500"), d(1.5))
	prev := c.Price(a("1"))
	for _, s := range []string{"5", "20", "100", "400", "1000"} {
		p := c.Price(a(s))
		if !p.GreaterThan(prev) {
			t.Fatalf("price not increasing at s=%s: %s <= %s", s, p, prev)
		}
		prev = p
	}
}

// --- Cost function tests ---

func TestCost_IntegratesToPostTradeQuantity(t *testing.T) {
	c := linearCurve(t)
	// F(s) = s^2 / 200
	if cost := c.Cost(a("0"), a("100")); !cost.Equal(a("50")) {
		t.Errorf("expected 50, got %s", cost)
	}
	if cost := c.Cost(a("100"), a("100")); !cost.Equal(a("150")) {
		t.Errorf("expected 150, got %s", cost)
	}
}

func TestCost_ExceedsMarginalPriceTimesQuantity(t *testing.T) {
	c := linearCurve(t)
	sold, shares := a("40"), a("10")
	cost := c.Cost(sold, shares)
	underpriced := c.Price(sold).MulAmount(shares)
	if !cost.GreaterThan(underpriced) {
		t.Errorf("cost %s should exceed start-price estimate %s", cost, underpriced)
	}
}

func TestCost_PathIndependent(t *testing.T) {
	c, _ := NewBondingCurve(a("1"), a("100"), d(2))
	whole := c.Cost(a("0"), a("60"))
	split := c.Cost(a("0"), a("30")).Add(c.Cost(a("30"), a("30")))
	diff := split.Sub(whole).Add(whole.Sub(split))
	if diff.GreaterThan(a("0.00000002")) {
		t.Errorf("split purchase %s differs from single purchase %s", split, whole)
	}
}

func TestCost_RoundsUpProceedsRoundDown(t *testing.T) {
	c, _ := NewBondingCurve(a("1"), a("100"), d(2))
	cost := c.Cost(a("0"), a("100"))
	proceeds, err := c.Proceeds(a("100"), a("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cost.Equal(a("33.33333334")) {
		t.Errorf("expected cost 33.33333334, got %s", cost)
	}
	if !proceeds.Equal(a("33.33333333")) {
		t.Errorf("expected proceeds 33.33333333, got %s", proceeds)
	}
}

func TestProceeds_CannotExceedSupply(t *testing.T) {
	c := linearCurve(t)
	if _, err := c.Proceeds(a("10"), a("11")); err != ErrExceedsSupply {
		t.Errorf("expected ErrExceedsSupply, got %v", err)
	}
}

// --- Inversion tests ---

func TestSharesFor_InvertsCost(t *testing.T) {
	c := linearCurve(t)
	if shares := c.SharesFor(a("0"), a("50")); !shares.Equal(a("100")) {
		t.Errorf("expected 100 shares for 50, got %s", shares)
	}
	shares := c.SharesFor(a("37"), a("12.5"))
	if cost := c.Cost(a("37"), shares); cost.GreaterThan(a("12.5")) {
		t.Errorf("inverted shares %s cost %s, over budget", shares, cost)
	}
}

func TestQuoteBuyWithPayment_FeeIncluded(t *testing.T) {
	c := linearCurve(t)
	q, err := c.QuoteBuyWithPayment(a("0"), a("55"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Shares.Equal(a("100")) || !q.Cost.Equal(a("50")) || !q.Fee.Equal(a("5")) || !q.Total.Equal(a("55")) {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestQuoteBuy_ZeroShares(t *testing.T) {
	c := linearCurve(t)
	if _, err := c.QuoteBuy(a("0"), a("0"), 0); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestQuoteSell_FeeWithheld(t *testing.T) {
	c := linearCurve(t)
	q, err := c.QuoteSell(a("200"), a("100"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Cost.Equal(a("150")) || !q.Fee.Equal(a("15")) || !q.Total.Equal(a("135")) {
		t.Errorf("unexpected quote %+v", q)
	}
}

// --- Slippage tests ---

func TestCheckMaxCost(t *testing.T) {
	q := Quote{Total: a("110")}
	if err := CheckMaxCost(q, a("0")); err != nil {
		t.Errorf("zero bound should disable check, got %v", err)
	}
	if err := CheckMaxCost(q, a("110")); err != nil {
		t.Errorf("exact bound should pass, got %v", err)
	}
	if err := CheckMaxCost(q, a("109.99")); !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("expected ErrSlippageExceeded, got %v", err)
	}
}

func TestCheckMinProceeds(t *testing.T) {
	q := Quote{Total: a("90")}
	if err := CheckMinProceeds(q, a("90")); err != nil {
		t.Errorf("exact bound should pass, got %v", err)
	}
	if err := CheckMinProceeds(q, a("90.01")); !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("expected ErrSlippageExceeded, got %v", err)
	}
}

func TestFillPrice(t *testing.T) {
	q := Quote{Shares: a("100"), Cost: a("50")}
	if p := FillPrice(q); !p.Equal(a("0.5")) {
		t.Errorf("expected 0.5, got %s", p)
	}
}
