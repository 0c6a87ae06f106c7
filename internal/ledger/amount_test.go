package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func amt(s string) Amount {
	return MustParse(s)
}

func TestNew_ClampsNegativeToZero(t *testing.T) {
	if a := New(d(-5)); !a.IsZero() {
		t.Errorf("expected 0, got %s", a)
	}
}

func TestNew_ClampsToMax(t *testing.T) {
	huge := maxValue.Mul(decimal.NewFromInt(2))
	if a := New(huge); !a.Equal(Max()) {
		t.Errorf("expected Max, got %s", a)
	}
}

func TestAdd_Saturates(t *testing.T) {
	a := Max().Add(FromInt(1))
	if !a.Equal(Max()) {
		t.Errorf("expected Max after overflow, got %s", a)
	}
}

func TestSub_FloorsAtZero(t *testing.T) {
	a := FromInt(5).Sub(FromInt(9))
	if !a.IsZero() {
		t.Errorf("expected 0, got %s", a)
	}
}

func TestCheckedSub(t *testing.T) {
	tests := []struct {
		a, b   string
		want   string
		wantOK bool
	}{
		{"10", "4", "6", true},
		{"10", "10", "0", true},
		{"10", "10.000000000000000001", "0", false},
		{"0", "1", "0", false},
	}
	for _, tt := range tests {
		got, ok := amt(tt.a).CheckedSub(amt(tt.b))
		if ok != tt.wantOK || !got.Equal(amt(tt.want)) {
			t.Errorf("%s - %s: got (%s, %v), want (%s, %v)", tt.a, tt.b, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPercent_FeeSplitHasNoLeakage(t *testing.T) {
	fee := FromInt(100).Percent(d(10))
	if !fee.Equal(FromInt(10)) {
		t.Fatalf("expected fee 10, got %s", fee)
	}
	platform := fee.Percent(d(2))
	creator := fee.Sub(platform)
	if !creator.Equal(amt("9.8")) || !platform.Equal(amt("0.2")) {
		t.Errorf("split: creator=%s platform=%s", creator, platform)
	}
	if !creator.Add(platform).Equal(fee) {
		t.Errorf("split leaks: %s + %s != %s", creator, platform, fee)
	}
}

func TestDivInt_Truncates(t *testing.T) {
	got := FromInt(1).DivInt(3)
	want := amt("0.333333333333333333")
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
	if !FromInt(5).DivInt(0).IsZero() {
		t.Error("division by zero should yield zero")
	}
}

func TestCheckedSpend(t *testing.T) {
	rest, err := CheckedSpend(FromInt(50), FromInt(20))
	if err != nil || !rest.Equal(FromInt(30)) {
		t.Fatalf("unexpected result %s, %v", rest, err)
	}

	rest, err = CheckedSpend(FromInt(10), FromInt(20))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !rest.Equal(FromInt(10)) {
		t.Errorf("failed spend must not change balance, got %s", rest)
	}
}

func TestFloorToZero(t *testing.T) {
	rest, debited := FloorToZero(FromInt(40), FromInt(100))
	if !rest.IsZero() || !debited.Equal(FromInt(40)) {
		t.Errorf("expected (0, 40), got (%s, %s)", rest, debited)
	}
	rest, debited = FloorToZero(FromInt(400), FromInt(100))
	if !rest.Equal(FromInt(300)) || !debited.Equal(FromInt(100)) {
		t.Errorf("expected (300, 100), got (%s, %s)", rest, debited)
	}
}

func TestCheckedSpendSequenceNeverNegative(t *testing.T) {
	balance := FromInt(100)
	costs := []int64{30, 50, 40, 20, 1, 100}
	for _, c := range costs {
		if next, err := CheckedSpend(balance, FromInt(c)); err == nil {
			balance = next
		}
		if balance.Decimal().IsNegative() {
			t.Fatalf("balance went negative: %s", balance)
		}
	}
	if !balance.IsZero() {
		t.Errorf("expected balance drained to 0, got %s", balance)
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(amt("12.5"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"12.5"` {
		t.Errorf("unexpected encoding %s", data)
	}

	var a Amount
	if err := json.Unmarshal([]byte(`"-1"`), &a); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	if err := json.Unmarshal([]byte(`7`), &a); err != nil || !a.Equal(FromInt(7)) {
		t.Errorf("bare number: got %s, %v", a, err)
	}
}

func TestTimestampArithmetic(t *testing.T) {
	start := Timestamp(1_000_000)
	later := start.Add(24 * time.Hour)
	if later.Sub(start) != 24*time.Hour {
		t.Errorf("expected 24h, got %s", later.Sub(start))
	}
	if !start.Before(later) || !later.After(start) {
		t.Error("ordering broken")
	}
	now := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	if !FromTime(now).Time().Equal(now) {
		t.Error("time round trip failed")
	}
}
