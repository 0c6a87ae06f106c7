// Package prediction holds the period arithmetic, outcome rule and reward
// table for price-direction predictions.
//
// Periods are aligned to the epoch: a daily period starts at a multiple of
// 24h, a weekly one at a multiple of 7 days and a monthly one at a multiple
// of 30 days.
package prediction

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// ErrUnknownPeriod is returned for a period kind outside daily, weekly and
// monthly.
var ErrUnknownPeriod = errors.New("prediction: unknown period kind")

const day = 24 * time.Hour

// Duration returns the length of a period kind.
func Duration(kind model.PeriodKind) (time.Duration, error) {
	switch kind {
	case model.PeriodDaily:
		return day, nil
	case model.PeriodWeekly:
		return 7 * day, nil
	case model.PeriodMonthly:
		return 30 * day, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, kind)
}

// Bounds returns the start and end of the period of kind containing now.
func Bounds(kind model.PeriodKind, now ledger.Timestamp) (start, end ledger.Timestamp, err error) {
	dur, err := Duration(kind)
	if err != nil {
		return 0, 0, err
	}
	span := ledger.Timestamp(dur.Microseconds())
	start = now / span * span
	if now < 0 && now%span != 0 {
		start -= span
	}
	return start, start + span, nil
}

// Outcome compares the closing price with the opening price.
func Outcome(start, end ledger.Amount) model.PriceOutcome {
	switch end.Cmp(start) {
	case 1:
		return model.OutcomeRise
	case -1:
		return model.OutcomeFall
	}
	return model.OutcomeNeutral
}

// Reward is the magnitude of a settlement: credited when the prediction was
// correct, debited floor-to-zero when it was not.
type Reward struct {
	Points ledger.Amount
	XP     uint64
}

// RewardFor returns the settlement magnitude for a period kind.
func RewardFor(kind model.PeriodKind) Reward {
	switch kind {
	case model.PeriodWeekly:
		return Reward{Points: ledger.FromInt(500), XP: 250}
	case model.PeriodMonthly:
		return Reward{Points: ledger.FromInt(1000), XP: 500}
	}
	return Reward{Points: ledger.FromInt(100), XP: 50}
}

// MemberXP is the XP a guild member other than the predictor receives when
// the predictor's call was correct.
func (r Reward) MemberXP() uint64 {
	return r.XP / 2
}
