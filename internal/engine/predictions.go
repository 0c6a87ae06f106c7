package engine

import (
	"fmt"
	"sort"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
	"github.com/atmx/prediction-engine/internal/prediction"
)

// MakePrediction records the caller's call on the price direction over the
// current period of kind.
func (e *Engine) MakePrediction(c Caller, kind model.PeriodKind, outcome model.PriceOutcome, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if !outcome.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
		}
		start, end, err := prediction.Bounds(kind, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}

		key := model.PredictionKey{Player: p.ID, Kind: kind, PeriodStart: start}
		if _, ok := t.prediction(key); ok {
			return fmt.Errorf("%w: %s period starting %s", ErrDuplicatePrediction, kind, start.Time())
		}

		pk := model.PeriodKey{Kind: kind, PeriodStart: start}
		pd, ok := t.period(pk)
		if !ok {
			pd = &model.PeriodPriceData{Kind: kind, PeriodStart: start, PeriodEnd: end}
			if t.price != nil {
				sp := t.price.Price
				pd.StartPrice = &sp
			}
			t.periods[pk] = pd
		}
		if pd.Resolved {
			return fmt.Errorf("%w: %s period starting %s is already resolved", ErrInvalidInput, kind, start.Time())
		}
		pd.AddPredictor(p.ID)

		t.predictions[key] = &model.PlayerPrediction{
			Player:      p.ID,
			Kind:        kind,
			PeriodStart: start,
			Outcome:     outcome,
			PredictedAt: now,
			Status:      model.PredictionPending,
		}
		t.emit(model.PredictionMade{Player: p.ID, Period: kind, PeriodStart: start, Outcome: outcome, At: now})
		return nil
	})
}

// UpdatePrice records a new oracle price. Open periods without a start
// price take this one; periods that have ended are settled with it.
func (e *Engine) UpdatePrice(c Caller, price ledger.Amount, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		if !c.Admin {
			return fmt.Errorf("%w: price updates are admin only", ErrUnauthorized)
		}
		if !price.IsPositive() {
			return fmt.Errorf("%w: price", ErrInvalidAmount)
		}
		t.price = &model.MarketPrice{Price: price, Timestamp: now}
		t.emit(model.PriceUpdated{Price: price, At: now})

		for _, key := range t.openPeriodKeys() {
			pd := t.peekPeriod(key)
			switch {
			case !now.Before(pd.PeriodEnd):
				if err := t.settlePeriod(key, price); err != nil {
					return err
				}
			case pd.StartPrice == nil:
				staged, _ := t.period(key)
				sp := price
				staged.StartPrice = &sp
			}
		}
		return nil
	})
}

// ResolvePrediction returns the caller's prediction for the period of kind
// starting at periodStart. A pending prediction whose period has ended is
// settled first, together with the rest of its period, using the latest
// price. Without any price it stays pending.
//
// settled reports whether anything was committed. When it is false the
// returned Result is empty and the engine is unchanged.
func (e *Engine) ResolvePrediction(c Caller, kind model.PeriodKind, periodStart, now ledger.Timestamp) (pred model.PlayerPrediction, settled bool, res Result, err error) {
	key := model.PredictionKey{Player: c.ID, Kind: kind, PeriodStart: periodStart}
	pr, ok := e.state.predictions[key]
	if !ok {
		return model.PlayerPrediction{}, false, Result{}, fmt.Errorf("%w: %s prediction at %d", ErrNotFound, kind, periodStart)
	}
	pk := model.PeriodKey{Kind: kind, PeriodStart: periodStart}
	pd := e.state.periods[pk]
	if pr.Resolved() || pd == nil || now.Before(pd.PeriodEnd) || e.state.price == nil {
		return *pr, false, Result{}, nil
	}

	res, err = e.apply(c, now, func(t *tx) error {
		if err := t.settlePeriod(pk, t.price.Price); err != nil {
			return err
		}
		staged, _ := t.prediction(key)
		pred = *staged
		return nil
	})
	if err != nil {
		return model.PlayerPrediction{}, false, Result{}, err
	}
	return pred, true, res, nil
}

// Prediction returns a copy of a prediction without resolving it.
func (e *Engine) Prediction(id ledger.PlayerID, kind model.PeriodKind, periodStart ledger.Timestamp) (model.PlayerPrediction, error) {
	pr, ok := e.state.predictions[model.PredictionKey{Player: id, Kind: kind, PeriodStart: periodStart}]
	if !ok {
		return model.PlayerPrediction{}, fmt.Errorf("%w: %s prediction at %d", ErrNotFound, kind, periodStart)
	}
	return *pr, nil
}

// PlayerPredictions returns every prediction of a player, oldest period
// first.
func (e *Engine) PlayerPredictions(id ledger.PlayerID) []model.PlayerPrediction {
	var out []model.PlayerPrediction
	for key, pr := range e.state.predictions {
		if key.Player == id {
			out = append(out, *pr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodStart != out[j].PeriodStart {
			return out[i].PeriodStart < out[j].PeriodStart
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// peekPeriod returns the staged or committed period without staging it.
// The result must not be mutated.
func (t *tx) peekPeriod(key model.PeriodKey) *model.PeriodPriceData {
	if pd, ok := t.periods[key]; ok {
		return pd
	}
	return t.st.periods[key]
}

// settlePeriod fixes the closing price of a period and settles every
// pending prediction in it, in player id order.
func (t *tx) settlePeriod(key model.PeriodKey, endPrice ledger.Amount) error {
	pd, ok := t.period(key)
	if !ok || pd.Resolved {
		return nil
	}
	ep := endPrice
	pd.EndPrice = &ep
	if pd.StartPrice == nil {
		sp := endPrice
		pd.StartPrice = &sp
	}
	outcome := prediction.Outcome(*pd.StartPrice, *pd.EndPrice)
	pd.Outcome = &outcome

	for _, id := range pd.Predictors {
		pr, ok := t.prediction(model.PredictionKey{Player: id, Kind: pd.Kind, PeriodStart: pd.PeriodStart})
		if !ok || pr.Resolved() {
			continue
		}
		if err := t.settle(pr, outcome); err != nil {
			return err
		}
	}
	pd.Resolved = true
	return nil
}

// settle credits or penalizes one prediction and broadcasts the same
// magnitude to the predictor's guild.
func (t *tx) settle(pr *model.PlayerPrediction, actual model.PriceOutcome) error {
	p, err := t.player(pr.Player)
	if err != nil {
		return err
	}
	reward := prediction.RewardFor(pr.Kind)
	correct := pr.Outcome == actual

	var amount ledger.Amount
	var xp uint64
	if correct {
		amount, xp = reward.Points, reward.XP
		t.mint(p, amount)
		t.addExperience(p, xp)
		p.WinStreak++
		if p.WinStreak > p.BestWinStreak {
			p.BestWinStreak = p.WinStreak
		}
		pr.Status = model.PredictionCorrect
	} else {
		amount = t.penalize(p, reward.Points)
		p.WinStreak = 0
		pr.Status = model.PredictionIncorrect
	}
	pr.ResolvedAt = t.now
	t.rankDirty = true

	t.emit(model.PredictionResolved{
		Player:      p.ID,
		Period:      pr.Kind,
		PeriodStart: pr.PeriodStart,
		Predicted:   pr.Outcome,
		Actual:      actual,
		Correct:     correct,
		Amount:      amount,
		XP:          xp,
		At:          t.now,
	})

	if p.GuildID == nil {
		return nil
	}
	return t.broadcast(*p.GuildID, p.ID, correct, reward, amount)
}

// broadcast applies a settlement to every other member of the guild. Each
// member is credited or debited the full reward, not a share of it.
func (t *tx) broadcast(id ledger.GuildID, predictor ledger.PlayerID, correct bool, reward prediction.Reward, own ledger.Amount) error {
	g, err := t.guild(id)
	if err != nil {
		return err
	}
	credited, debited := ledger.Zero(), ledger.Zero()
	if correct {
		credited = own
	} else {
		debited = own
	}
	for _, mid := range g.Members {
		if mid == predictor {
			continue
		}
		m, err := t.player(mid)
		if err != nil {
			return err
		}
		if correct {
			t.mint(m, reward.Points)
			t.addExperience(m, reward.MemberXP())
			credited = credited.Add(reward.Points)
		} else {
			debited = debited.Add(t.penalize(m, reward.Points))
		}
	}
	g.TotalCredited = g.TotalCredited.Add(credited)
	g.TotalDebited = g.TotalDebited.Add(debited)
	g.TotalProfit = g.TotalCredited.Sub(g.TotalDebited)
	return nil
}
