// Package progression holds the experience and cooldown rules for players.
//
// A player starts at level 1 and is promoted from level n once their
// cumulative experience reaches 1000 × 4^(n−1): 1,000 XP for level 2, 4,000
// for level 3, 16,000 for level 4 and so on.
package progression

import (
	"math"
	"time"

	"github.com/atmx/prediction-engine/internal/ledger"
)

const (
	// BaseThreshold is the XP needed to leave level 1.
	BaseThreshold uint64 = 1000

	// Growth is the factor between consecutive thresholds.
	Growth uint64 = 4

	// MaxLevel caps promotion; thresholds beyond it overflow uint64.
	MaxLevel uint32 = 32
)

// Threshold returns the cumulative XP at which a player leaves level. It
// saturates at math.MaxUint64.
func Threshold(level uint32) uint64 {
	if level == 0 {
		return 0
	}
	t := BaseThreshold
	for i := uint32(1); i < level; i++ {
		if t > math.MaxUint64/Growth {
			return math.MaxUint64
		}
		t *= Growth
	}
	return t
}

// Promote returns the level reached from level with xp, applying every
// promotion the XP allows.
func Promote(level uint32, xp uint64) uint32 {
	if level == 0 {
		level = 1
	}
	for level < MaxLevel && xp >= Threshold(level) {
		level++
	}
	return level
}

// LevelFor returns the level a fresh player reaches with xp.
func LevelFor(xp uint64) uint32 {
	return Promote(1, xp)
}

// AddXP adds delta to xp, saturating at math.MaxUint64.
func AddXP(xp, delta uint64) uint64 {
	if xp > math.MaxUint64-delta {
		return math.MaxUint64
	}
	return xp + delta
}

// CooldownElapsed reports whether at least cooldown has passed since last.
func CooldownElapsed(last, now ledger.Timestamp, cooldown time.Duration) bool {
	return now.Sub(last) >= cooldown
}

// NextClaim returns when a cooldown started at last expires.
func NextClaim(last ledger.Timestamp, cooldown time.Duration) ledger.Timestamp {
	return last.Add(cooldown)
}
