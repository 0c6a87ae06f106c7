package prediction

import (
	"errors"
	"testing"
	"time"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		kind model.PeriodKind
		want time.Duration
	}{
		{model.PeriodDaily, 24 * time.Hour},
		{model.PeriodWeekly, 7 * 24 * time.Hour},
		{model.PeriodMonthly, 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := Duration(tt.kind)
		if err != nil || got != tt.want {
			t.Errorf("Duration(%s) = %s, %v", tt.kind, got, err)
		}
	}
	if _, err := Duration("hourly"); !errors.Is(err, ErrUnknownPeriod) {
		t.Errorf("expected ErrUnknownPeriod, got %v", err)
	}
}

func TestBounds_AlignedToEpoch(t *testing.T) {
	base := ledger.Timestamp(0).Add(10 * 24 * time.Hour)
	now := base.Add(13*time.Hour + 7*time.Minute)

	start, end, err := Bounds(model.PeriodDaily, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != base {
		t.Errorf("expected start %d, got %d", base, start)
	}
	if end != base.Add(24*time.Hour) {
		t.Errorf("expected end one day later, got %d", end)
	}
}

func TestBounds_SamePeriodForWholeWindow(t *testing.T) {
	first := ledger.Timestamp(0).Add(14 * 24 * time.Hour)
	last := first.Add(7*24*time.Hour - time.Microsecond)
	s1, _, _ := Bounds(model.PeriodWeekly, first)
	s2, _, _ := Bounds(model.PeriodWeekly, last)
	if s1 != s2 {
		t.Errorf("expected one weekly period, got starts %d and %d", s1, s2)
	}
	s3, _, _ := Bounds(model.PeriodWeekly, last.Add(time.Microsecond))
	if s3 == s1 {
		t.Error("next microsecond should fall in the next period")
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		start, end int64
		want       model.PriceOutcome
	}{
		{100, 120, model.OutcomeRise},
		{100, 80, model.OutcomeFall},
		{100, 100, model.OutcomeNeutral},
	}
	for _, tt := range tests {
		if got := Outcome(ledger.FromInt(tt.start), ledger.FromInt(tt.end)); got != tt.want {
			t.Errorf("Outcome(%d, %d) = %s, want %s", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestRewardFor(t *testing.T) {
	tests := []struct {
		kind   model.PeriodKind
		points int64
		xp     uint64
	}{
		{model.PeriodDaily, 100, 50},
		{model.PeriodWeekly, 500, 250},
		{model.PeriodMonthly, 1000, 500},
	}
	for _, tt := range tests {
		r := RewardFor(tt.kind)
		if !r.Points.Equal(ledger.FromInt(tt.points)) || r.XP != tt.xp {
			t.Errorf("%s: got %s points, %d XP", tt.kind, r.Points, r.XP)
		}
	}
	if RewardFor(model.PeriodDaily).MemberXP() != 25 {
		t.Error("expected member XP of 25 for daily")
	}
}
