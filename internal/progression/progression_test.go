package progression

import (
	"math"
	"testing"
	"time"

	"github.com/atmx/prediction-engine/internal/ledger"
)

func TestThreshold(t *testing.T) {
	tests := []struct {
		level uint32
		want  uint64
	}{
		{1, 1000},
		{2, 4000},
		{3, 16000},
		{4, 64000},
		{5, 256000},
	}
	for _, tt := range tests {
		if got := Threshold(tt.level); got != tt.want {
			t.Errorf("Threshold(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestThreshold_Saturates(t *testing.T) {
	if got := Threshold(40); got != math.MaxUint64 {
		t.Errorf("expected saturation, got %d", got)
	}
}

func TestPromote_ExactlyAtThreshold(t *testing.T) {
	if got := Promote(1, 1000); got != 2 {
		t.Errorf("expected level 2 at 1000 XP, got %d", got)
	}
	if got := Promote(1, 999); got != 1 {
		t.Errorf("expected level 1 at 999 XP, got %d", got)
	}
}

func TestPromote_MultipleLevelsInOneGrant(t *testing.T) {
	if got := Promote(1, 20000); got != 4 {
		t.Errorf("expected level 4 at 20000 XP, got %d", got)
	}
}

func TestLevelFor_MatchesLargestThreshold(t *testing.T) {
	for _, xp := range []uint64{0, 1, 999, 1000, 3999, 4000, 15999, 16000, 64000, 1 << 40} {
		level := LevelFor(xp)
		if level > 1 && xp < Threshold(level-1) {
			t.Errorf("xp %d: level %d not reached", xp, level)
		}
		if level < MaxLevel && xp >= Threshold(level) {
			t.Errorf("xp %d: level %d should have been promoted", xp, level)
		}
	}
}

func TestPromote_TerminatesAtMaxXP(t *testing.T) {
	if got := Promote(1, math.MaxUint64); got != MaxLevel {
		t.Errorf("expected MaxLevel, got %d", got)
	}
}

func TestAddXP_Saturates(t *testing.T) {
	if got := AddXP(math.MaxUint64-5, 10); got != math.MaxUint64 {
		t.Errorf("expected saturation, got %d", got)
	}
	if got := AddXP(10, 5); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
}

func TestCooldownElapsed(t *testing.T) {
	last := ledger.Timestamp(0).Add(48 * time.Hour)
	if CooldownElapsed(last, last.Add(23*time.Hour), 24*time.Hour) {
		t.Error("cooldown should still be active after 23h")
	}
	if !CooldownElapsed(last, last.Add(24*time.Hour), 24*time.Hour) {
		t.Error("cooldown should have elapsed after exactly 24h")
	}
	if NextClaim(last, 24*time.Hour) != last.Add(24*time.Hour) {
		t.Error("unexpected next claim time")
	}
}
