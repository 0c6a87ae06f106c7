package amm

import "testing"

func TestFixedRatio_QuoteBuy(t *testing.T) {
	tests := []struct {
		points string
		fee    uint8
		base   string
		feeAmt string
		total  string
	}{
		{"1000", 10, "100", "10", "110"},
		{"1000", 0, "100", "0", "100"},
		{"50", 100, "5", "5", "10"},
		{"1", 2, "0.1", "0.002", "0.102"},
	}
	f := NewFixedRatio()
	for _, tt := range tests {
		q, err := f.QuoteBuy(a(tt.points), tt.fee)
		if err != nil {
			t.Fatalf("points=%s: unexpected error %v", tt.points, err)
		}
		if !q.Cost.Equal(a(tt.base)) || !q.Fee.Equal(a(tt.feeAmt)) || !q.Total.Equal(a(tt.total)) {
			t.Errorf("points=%s fee=%d: got %+v", tt.points, tt.fee, q)
		}
	}
}

func TestFixedRatio_SellIsInverse(t *testing.T) {
	f := NewFixedRatio()
	q, err := f.QuoteSell(a("1000"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Cost.Equal(a("100")) || !q.Fee.Equal(a("10")) || !q.Total.Equal(a("90")) {
		t.Errorf("unexpected sell quote %+v", q)
	}
}

func TestFixedRatio_RejectsZero(t *testing.T) {
	if _, err := NewFixedRatio().QuoteBuy(a("0"), 5); err != ErrInvalidQuantity {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestSplitFee_NoLeakage(t *testing.T) {
	tests := []struct{ fee, creator, platform string }{
		{"10", "9.8", "0.2"},
		{"0.000000000000000003", "0.000000000000000003", "0"},
		{"123.456", "120.98688", "2.46912"},
	}
	for _, tt := range tests {
		creator, platform := SplitFee(a(tt.fee), 2)
		if !creator.Equal(a(tt.creator)) || !platform.Equal(a(tt.platform)) {
			t.Errorf("fee %s: got creator=%s platform=%s", tt.fee, creator, platform)
		}
		if !creator.Add(platform).Equal(a(tt.fee)) {
			t.Errorf("fee %s leaks: %s + %s", tt.fee, creator, platform)
		}
	}
}
