package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/amm"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/limits"
	"github.com/atmx/prediction-engine/internal/model"
)

const maxTitle = 128

// fixedRatioOutcome is the single pool a fixed-ratio market trades.
const fixedRatioOutcome ledger.OutcomeID = 0

var defaultOutcomes = []string{"Rise", "Fall", "Neutral"}

// CreateMarketRequest describes a new market.
type CreateMarketRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Policy      model.PricingPolicy    `json:"policy"`
	FeePercent  uint8                  `json:"fee_percent"`
	Liquidity   ledger.Amount          `json:"liquidity"`
	Duration    time.Duration          `json:"duration,omitempty"`
	Outcomes    []string               `json:"outcomes,omitempty"`
	BasePrice   ledger.Amount          `json:"base_price,omitempty"`
	Smoothing   decimal.Decimal        `json:"smoothing_factor,omitempty"`
	Resolution  model.ResolutionMethod `json:"resolution_method,omitempty"`
}

// TradeRequest is a buy or sell order. Fixed-ratio markets read Shares as
// points and ignore Outcome. A bonding-curve buy sets exactly one of Shares
// and Payment.
type TradeRequest struct {
	MarketID    ledger.MarketID  `json:"market_id"`
	Outcome     ledger.OutcomeID `json:"outcome"`
	Shares      ledger.Amount    `json:"shares,omitempty"`
	Payment     ledger.Amount    `json:"payment,omitempty"`
	MaxCost     ledger.Amount    `json:"max_cost,omitempty"`
	MinProceeds ledger.Amount    `json:"min_proceeds,omitempty"`
	MinShares   ledger.Amount    `json:"min_shares,omitempty"`
}

// OutcomePrice is the current marginal price of one outcome.
type OutcomePrice struct {
	Outcome    ledger.OutcomeID `json:"outcome"`
	Name       string           `json:"name"`
	SharesSold ledger.Amount    `json:"shares_sold"`
	Price      ledger.Amount    `json:"price"`
}

// CreateMarket opens a market owned by the caller.
func (e *Engine) CreateMarket(c Caller, req CreateMarketRequest, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if p.Level < t.cfg.MarketCreationMinLevel {
			return fmt.Errorf("%w: level %d, need %d", ErrInsufficientLevel, p.Level, t.cfg.MarketCreationMinLevel)
		}
		if p.TokenBalance.LessThan(t.cfg.MarketCreationMinBalance) {
			return fmt.Errorf("%w: market creation requires %s", ErrInsufficientBalance, t.cfg.MarketCreationMinBalance)
		}
		if req.FeePercent > 100 {
			return fmt.Errorf("%w: %d", ErrInvalidFee, req.FeePercent)
		}
		m, err := t.newMarket(req)
		if err != nil {
			return err
		}
		if err := t.spend(p, t.cfg.MarketCreationCost); err != nil {
			return err
		}
		t.platformPool = t.platformPool.Add(t.cfg.MarketCreationCost)

		t.nextMarketID++
		m.ID = ledger.MarketID(t.nextMarketID)
		m.Creator = p.ID
		m.CreatedAt = now
		t.markets[m.ID] = m

		p.MarketsCreated++
		p.AddActiveMarket(m.ID)

		names := make([]string, len(m.Outcomes))
		for i, o := range m.Outcomes {
			names[i] = o.Name
		}
		t.emit(model.MarketCreated{
			MarketID:   m.ID,
			Creator:    p.ID,
			Title:      m.Title,
			Policy:     m.Policy,
			Outcomes:   names,
			FeePercent: m.FeePercent,
			At:         now,
		})
		return nil
	})
}

func (t *tx) newMarket(req CreateMarketRequest) (*model.Market, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitle {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidMarket, maxTitle)
	}
	if !req.Liquidity.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity must be positive", ErrInvalidMarket)
	}
	if req.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalidMarket)
	}
	m := &model.Market{
		Title:          title,
		Description:    strings.TrimSpace(req.Description),
		Policy:         req.Policy,
		FeePercent:     req.FeePercent,
		Status:         model.StatusActive,
		TotalLiquidity: req.Liquidity,
		Positions:      make(map[ledger.PlayerID]*model.Position),
	}

	switch req.Policy {
	case model.PolicyFixedRatio:
		if req.Duration > 0 && req.Duration < t.cfg.MinMarketDuration {
			return nil, fmt.Errorf("%w: duration below %s", ErrInvalidMarket, t.cfg.MinMarketDuration)
		}
		if req.Duration > 0 {
			m.CloseAt = t.now.Add(req.Duration)
		}
		m.Outcomes = []model.Outcome{{ID: fixedRatioOutcome, Name: "Points"}}
		return m, nil

	case model.PolicyBondingCurve:
		if req.Duration < t.cfg.MinMarketDuration || req.Duration == 0 {
			return nil, fmt.Errorf("%w: duration must be at least %s", ErrInvalidMarket, t.cfg.MinMarketDuration)
		}
		m.CloseAt = t.now.Add(req.Duration)

		names := req.Outcomes
		if len(names) == 0 {
			names = defaultOutcomes
		}
		if len(names) < 2 || len(names) > t.cfg.MaxOutcomesPerMarket {
			return nil, fmt.Errorf("%w: need 2-%d outcomes", ErrInvalidMarket, t.cfg.MaxOutcomesPerMarket)
		}
		seen := make(map[string]bool, len(names))
		for i, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || seen[strings.ToLower(name)] {
				return nil, fmt.Errorf("%w: outcome names must be unique and non-empty", ErrInvalidMarket)
			}
			seen[strings.ToLower(name)] = true
			m.Outcomes = append(m.Outcomes, model.Outcome{ID: ledger.OutcomeID(i), Name: name})
		}

		m.BasePrice = req.BasePrice
		if m.BasePrice.IsZero() {
			m.BasePrice = ledger.FromInt(1)
		}
		m.Smoothing = req.Smoothing
		if m.Smoothing.IsZero() {
			m.Smoothing = decimal.NewFromInt(1)
		}
		if _, err := amm.NewBondingCurve(m.BasePrice, m.TotalLiquidity, m.Smoothing); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
		}

		m.Resolution = req.Resolution
		if m.Resolution == "" {
			m.Resolution = model.ResolveByCreator
		}
		if !m.Resolution.Valid() {
			return nil, fmt.Errorf("%w: resolution method %q", ErrInvalidMarket, m.Resolution)
		}
		if m.Resolution == model.ResolveByOracleVoting {
			m.Votes = make(map[ledger.PlayerID]model.OracleVote)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: pricing policy %q", ErrInvalidMarket, req.Policy)
}

// Buy executes a buy order for the caller.
func (e *Engine) Buy(c Caller, req TradeRequest, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		m, err := t.openMarket(req.MarketID)
		if err != nil {
			return err
		}
		q, err := quoteBuy(m, req)
		if err != nil {
			return err
		}
		if err := amm.CheckMaxCost(q, req.MaxCost); err != nil {
			return fmt.Errorf("%w: %v", ErrSlippageExceeded, err)
		}
		if err := amm.CheckMinShares(q, req.MinShares); err != nil {
			return fmt.Errorf("%w: %v", ErrSlippageExceeded, err)
		}

		outcome := req.Outcome
		if m.Policy == model.PolicyFixedRatio {
			outcome = fixedRatioOutcome
		} else {
			var held map[ledger.OutcomeID]ledger.Amount
			if pos := m.Positions[p.ID]; pos != nil {
				held = pos.Shares
			}
			if err := t.limiter().CheckLimit(outcome, q.Shares, held); err != nil {
				return fmt.Errorf("%w: %v", ErrPositionLimitExceeded, err)
			}
		}

		if err := t.spend(p, q.Total); err != nil {
			return err
		}
		m.Reserve = m.Reserve.Add(q.Cost)
		if err := t.distributeFee(m, q.Fee); err != nil {
			return err
		}
		if m.Policy == model.PolicyFixedRatio {
			t.mint(p, q.Shares)
			m.TotalLiquidity = m.TotalLiquidity.Sub(q.Shares)
		}
		o := m.Outcome(outcome)
		o.SharesSold = o.SharesSold.Add(q.Shares)

		pos := t.position(p, m)
		pos.Shares[outcome] = pos.Shares[outcome].Add(q.Shares)
		pos.TotalInvested = pos.TotalInvested.Add(q.Total)
		p.BuyCount++
		t.recordTrade(p, m, model.SideBuy, outcome, q)
		return nil
	})
}

// Sell executes a sell order for the caller.
func (e *Engine) Sell(c Caller, req TradeRequest, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		m, err := t.openMarket(req.MarketID)
		if err != nil {
			return err
		}
		if m.Policy == model.PolicyFixedRatio {
			return t.sellPoints(p, m, req)
		}

		o := m.Outcome(req.Outcome)
		if o == nil {
			return fmt.Errorf("%w: market %d has no outcome %d", ErrInvalidOutcome, m.ID, req.Outcome)
		}
		if !req.Shares.IsPositive() {
			return fmt.Errorf("%w: shares", ErrInvalidAmount)
		}
		pos := m.Positions[p.ID]
		if pos == nil || pos.Shares[o.ID].LessThan(req.Shares) {
			return fmt.Errorf("%w: selling %s of outcome %d", ErrInsufficientShares, req.Shares, o.ID)
		}
		q, err := quoteSell(m, o, req.Shares)
		if err != nil {
			return err
		}
		if err := amm.CheckMinProceeds(q, req.MinProceeds); err != nil {
			return fmt.Errorf("%w: %v", ErrSlippageExceeded, err)
		}

		m.Reserve = m.Reserve.Sub(q.Cost)
		t.pay(p, q.Total)
		if err := t.distributeFee(m, q.Fee); err != nil {
			return err
		}
		o.SharesSold = o.SharesSold.Sub(q.Shares)
		pos.ReduceCostBasis(q.Shares)
		pos.Shares[o.ID] = pos.Shares[o.ID].Sub(q.Shares)
		p.SellCount++
		t.recordTrade(p, m, model.SideSell, o.ID, q)
		return nil
	})
}

// sellPoints returns points to a fixed-ratio market. It is the exact inverse
// of a buy: the points are burned and the base payment leaves the reserve.
func (t *tx) sellPoints(p *model.Player, m *model.Market, req TradeRequest) error {
	if p.Level < t.cfg.SellMinLevel {
		return fmt.Errorf("%w: level %d, selling requires %d", ErrInsufficientLevel, p.Level, t.cfg.SellMinLevel)
	}
	q, err := amm.NewFixedRatio().QuoteSell(req.Shares, m.FeePercent)
	if err != nil {
		return fmt.Errorf("%w: points", ErrInvalidAmount)
	}
	if m.Reserve.LessThan(q.Cost) {
		return fmt.Errorf("%w: reserve %s, need %s", ErrInsufficientLiquidity, m.Reserve, q.Cost)
	}
	if err := amm.CheckMinProceeds(q, req.MinProceeds); err != nil {
		return fmt.Errorf("%w: %v", ErrSlippageExceeded, err)
	}
	if err := t.burn(p, q.Shares); err != nil {
		return err
	}
	m.Reserve = m.Reserve.Sub(q.Cost)
	t.pay(p, q.Total)
	if err := t.distributeFee(m, q.Fee); err != nil {
		return err
	}
	m.TotalLiquidity = m.TotalLiquidity.Add(q.Shares)
	o := m.Outcome(fixedRatioOutcome)
	o.SharesSold = o.SharesSold.Sub(q.Shares)

	pos := t.position(p, m)
	pos.ReduceCostBasis(q.Shares)
	pos.Shares[fixedRatioOutcome] = pos.Shares[fixedRatioOutcome].Sub(q.Shares)
	p.SellCount++
	t.recordTrade(p, m, model.SideSell, fixedRatioOutcome, q)
	return nil
}

// QuoteBuy prices a buy order without executing it.
func (e *Engine) QuoteBuy(req TradeRequest) (amm.Quote, error) {
	m, ok := e.state.markets[req.MarketID]
	if !ok {
		return amm.Quote{}, fmt.Errorf("%w: market %d", ErrNotFound, req.MarketID)
	}
	return quoteBuy(m, req)
}

// QuoteSell prices a sell order without executing it.
func (e *Engine) QuoteSell(req TradeRequest) (amm.Quote, error) {
	m, ok := e.state.markets[req.MarketID]
	if !ok {
		return amm.Quote{}, fmt.Errorf("%w: market %d", ErrNotFound, req.MarketID)
	}
	if m.Policy == model.PolicyFixedRatio {
		q, err := amm.NewFixedRatio().QuoteSell(req.Shares, m.FeePercent)
		if err != nil {
			return amm.Quote{}, fmt.Errorf("%w: points", ErrInvalidAmount)
		}
		return q, nil
	}
	o := m.Outcome(req.Outcome)
	if o == nil {
		return amm.Quote{}, fmt.Errorf("%w: market %d has no outcome %d", ErrInvalidOutcome, m.ID, req.Outcome)
	}
	return quoteSell(m, o, req.Shares)
}

func quoteBuy(m *model.Market, req TradeRequest) (amm.Quote, error) {
	if m.Policy == model.PolicyFixedRatio {
		if !req.Shares.IsPositive() {
			return amm.Quote{}, fmt.Errorf("%w: points", ErrInvalidAmount)
		}
		points := ledger.Min(req.Shares, m.TotalLiquidity)
		if points.IsZero() {
			return amm.Quote{}, fmt.Errorf("%w: market %d has no points left", ErrInsufficientLiquidity, m.ID)
		}
		q, err := amm.NewFixedRatio().QuoteBuy(points, m.FeePercent)
		if err != nil {
			return amm.Quote{}, fmt.Errorf("%w: points", ErrInvalidAmount)
		}
		return q, nil
	}

	o := m.Outcome(req.Outcome)
	if o == nil {
		return amm.Quote{}, fmt.Errorf("%w: market %d has no outcome %d", ErrInvalidOutcome, m.ID, req.Outcome)
	}
	if req.Shares.IsPositive() == req.Payment.IsPositive() {
		return amm.Quote{}, fmt.Errorf("%w: set exactly one of shares and payment", ErrInvalidAmount)
	}
	curve, err := amm.NewBondingCurve(m.BasePrice, m.TotalLiquidity, m.Smoothing)
	if err != nil {
		return amm.Quote{}, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	var q amm.Quote
	if req.Shares.IsPositive() {
		q, err = curve.QuoteBuy(o.SharesSold, req.Shares, m.FeePercent)
	} else {
		q, err = curve.QuoteBuyWithPayment(o.SharesSold, req.Payment, m.FeePercent)
	}
	if err != nil {
		return amm.Quote{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return q, nil
}

// quoteSell prices a bonding-curve sale. Gross proceeds never exceed the
// market reserve.
func quoteSell(m *model.Market, o *model.Outcome, shares ledger.Amount) (amm.Quote, error) {
	curve, err := amm.NewBondingCurve(m.BasePrice, m.TotalLiquidity, m.Smoothing)
	if err != nil {
		return amm.Quote{}, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	q, err := curve.QuoteSell(o.SharesSold, shares, m.FeePercent)
	switch {
	case errors.Is(err, amm.ErrExceedsSupply):
		return amm.Quote{}, fmt.Errorf("%w: %v", ErrInsufficientShares, err)
	case err != nil:
		return amm.Quote{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if q.Cost.GreaterThan(m.Reserve) {
		q.Cost = m.Reserve
		q.Fee = amm.CreatorFee(q.Cost, m.FeePercent)
		q.Total = q.Cost.Sub(q.Fee)
	}
	return q, nil
}

// MarketPrices returns the marginal price of every outcome.
func (e *Engine) MarketPrices(id ledger.MarketID) ([]OutcomePrice, error) {
	m, ok := e.state.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	out := make([]OutcomePrice, 0, len(m.Outcomes))
	if m.Policy == model.PolicyFixedRatio {
		unit := amm.NewFixedRatio().BasePayment(ledger.FromInt(1))
		for _, o := range m.Outcomes {
			out = append(out, OutcomePrice{Outcome: o.ID, Name: o.Name, SharesSold: o.SharesSold, Price: unit})
		}
		return out, nil
	}
	curve, err := amm.NewBondingCurve(m.BasePrice, m.TotalLiquidity, m.Smoothing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMarket, err)
	}
	for _, o := range m.Outcomes {
		out = append(out, OutcomePrice{Outcome: o.ID, Name: o.Name, SharesSold: o.SharesSold, Price: curve.Price(o.SharesSold)})
	}
	return out, nil
}

// VoteOutcome records the caller's oracle vote. Votes are accepted from
// close until the voting window ends and are weighted by reputation.
func (e *Engine) VoteOutcome(c Caller, id ledger.MarketID, outcome ledger.OutcomeID, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		m, err := t.market(id)
		if err != nil {
			return err
		}
		if m.Resolution != model.ResolveByOracleVoting {
			return fmt.Errorf("%w: market %d is not resolved by vote", ErrInvalidMarket, id)
		}
		if m.Status != model.StatusActive {
			return fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, id, m.Status)
		}
		if now.Before(m.CloseAt) || !now.Before(m.CloseAt.Add(t.cfg.OracleVotingDuration)) {
			return fmt.Errorf("%w: market %d", ErrVotingClosed, id)
		}
		if m.Outcome(outcome) == nil {
			return fmt.Errorf("%w: market %d has no outcome %d", ErrInvalidOutcome, id, outcome)
		}
		if _, ok := m.Votes[p.ID]; ok {
			return fmt.Errorf("%w: market %d", ErrAlreadyVoted, id)
		}
		weight := p.Reputation
		if weight == 0 {
			weight = 1
		}
		if m.Votes == nil {
			m.Votes = make(map[ledger.PlayerID]model.OracleVote)
		}
		m.Votes[p.ID] = model.OracleVote{Outcome: outcome, Weight: weight, At: now}
		t.emit(model.OracleVoteCast{MarketID: id, Player: p.ID, Outcome: outcome, Weight: weight, At: now})
		return nil
	})
}

// ResolveMarket settles a closed bonding-curve market using its resolution
// method. winner is ignored for oracle-voting markets, whose result comes
// from the tally.
func (e *Engine) ResolveMarket(c Caller, id ledger.MarketID, winner ledger.OutcomeID, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		m, err := t.market(id)
		if err != nil {
			return err
		}
		if m.Policy != model.PolicyBondingCurve {
			return fmt.Errorf("%w: fixed-ratio markets do not resolve", ErrInvalidMarket)
		}
		if m.Status != model.StatusActive {
			return fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, id, m.Status)
		}
		if now.Before(m.CloseAt) {
			return fmt.Errorf("%w: market %d closes at %s", ErrMarketOpen, id, m.CloseAt.Time())
		}

		switch m.Resolution {
		case model.ResolveByCreator:
			if c.ID != m.Creator {
				return fmt.Errorf("%w: only the creator resolves market %d", ErrUnauthorized, id)
			}
		case model.ResolveAutomated:
			if !c.Admin {
				return fmt.Errorf("%w: market %d is resolved by the oracle", ErrUnauthorized, id)
			}
		case model.ResolveByOracleVoting:
			end := m.CloseAt.Add(t.cfg.OracleVotingDuration)
			if now.Before(end) {
				return fmt.Errorf("%w: voting on market %d ends at %s", ErrMarketOpen, id, end.Time())
			}
			winner, err = tally(m, t.cfg.MinOracleVoters)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: resolution method %q", ErrInvalidMarket, m.Resolution)
		}

		o := m.Outcome(winner)
		if o == nil {
			return fmt.Errorf("%w: market %d has no outcome %d", ErrInvalidOutcome, id, winner)
		}
		if o.SharesSold.IsZero() {
			t.platformPool = t.platformPool.Add(m.Reserve)
			m.Reserve = ledger.Zero()
			m.PayoutPerShare = ledger.Zero()
		} else {
			m.PayoutPerShare = m.Reserve.Div(o.SharesSold)
		}
		w := winner
		m.WinningOutcome = &w
		m.Status = model.StatusResolved
		m.ResolvedAt = now

		if _, held := m.Positions[m.Creator]; !held {
			creator, err := t.player(m.Creator)
			if err != nil {
				return err
			}
			creator.RemoveActiveMarket(id)
		}
		t.emit(model.MarketResolved{
			MarketID:       id,
			Method:         m.Resolution,
			WinningOutcome: winner,
			PayoutPerShare: m.PayoutPerShare,
			At:             now,
		})
		return nil
	})
}

// tally picks the outcome with the most vote weight. Ties go to the lowest
// outcome id.
func tally(m *model.Market, minVoters int) (ledger.OutcomeID, error) {
	if len(m.Votes) < minVoters {
		return 0, fmt.Errorf("%w: %d of %d", ErrNotEnoughVoters, len(m.Votes), minVoters)
	}
	weights := make(map[ledger.OutcomeID]uint64)
	for _, v := range m.Votes {
		weights[v.Outcome] += v.Weight
	}
	ids := make([]ledger.OutcomeID, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	best := ids[0]
	for _, id := range ids[1:] {
		if weights[id] > weights[best] {
			best = id
		}
	}
	return best, nil
}

// ClaimWinnings pays out the caller's winning shares in a resolved market
// and closes their position.
func (e *Engine) ClaimWinnings(c Caller, id ledger.MarketID, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		m, err := t.market(id)
		if err != nil {
			return err
		}
		if m.Status != model.StatusResolved || m.WinningOutcome == nil {
			return fmt.Errorf("%w: market %d", ErrMarketNotResolved, id)
		}
		pos := m.Positions[p.ID]
		if pos == nil || pos.Claimed {
			return fmt.Errorf("%w: market %d", ErrNothingToClaim, id)
		}

		payout := ledger.Min(pos.Shares[*m.WinningOutcome].MulAmount(m.PayoutPerShare), m.Reserve)
		m.Reserve = m.Reserve.Sub(payout)
		pos.Claimed = true
		p.RemoveActiveMarket(id)
		if payout.IsPositive() {
			t.pay(p, payout)
			p.MarketsWon++
			p.TotalProfit = p.TotalProfit.Add(payout.Sub(pos.TotalInvested))
		}
		t.emit(model.WinningsClaimed{MarketID: id, Player: p.ID, Payout: payout, At: now})
		return nil
	})
}

// CancelMarket withdraws a market nobody has traded in. Only the creator or
// an admin may cancel.
func (e *Engine) CancelMarket(c Caller, id ledger.MarketID, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		m, err := t.market(id)
		if err != nil {
			return err
		}
		if c.ID != m.Creator && !c.Admin {
			return fmt.Errorf("%w: only the creator or an admin cancels market %d", ErrUnauthorized, id)
		}
		if m.Status != model.StatusActive {
			return fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, id, m.Status)
		}
		if m.TotalParticipants > 0 {
			return fmt.Errorf("%w: market %d", ErrMarketHasPositions, id)
		}
		m.Status = model.StatusCancelled
		creator, err := t.player(m.Creator)
		if err != nil {
			return err
		}
		creator.RemoveActiveMarket(id)
		t.emit(model.MarketCancelled{MarketID: id, By: c.ID, At: now})
		return nil
	})
}

func (t *tx) openMarket(id ledger.MarketID) (*model.Market, error) {
	m, err := t.market(id)
	if err != nil {
		return nil, err
	}
	if !m.IsOpen(t.now) {
		return nil, fmt.Errorf("%w: market %d", ErrMarketNotActive, id)
	}
	return m, nil
}

func (t *tx) limiter() *limits.PositionLimiter {
	return limits.NewPositionLimiter(t.cfg.MaxSharesPerOutcome, t.cfg.MaxSharesPerMarket)
}

// position returns p's position in m, opening one on first trade.
func (t *tx) position(p *model.Player, m *model.Market) *model.Position {
	pos, ok := m.Positions[p.ID]
	if !ok {
		pos = &model.Position{Shares: make(map[ledger.OutcomeID]ledger.Amount), EntryTime: t.now}
		m.Positions[p.ID] = pos
		m.TotalParticipants++
	}
	if pos.Shares == nil {
		pos.Shares = make(map[ledger.OutcomeID]ledger.Amount)
	}
	return pos
}

// distributeFee splits a creator fee between the market creator and the
// platform pool.
func (t *tx) distributeFee(m *model.Market, fee ledger.Amount) error {
	if fee.IsZero() {
		return nil
	}
	creatorShare, platformShare := amm.SplitFee(fee, t.cfg.PlatformFeeShare)
	creator, err := t.player(m.Creator)
	if err != nil {
		return err
	}
	t.pay(creator, creatorShare)
	m.CreatorFees = m.CreatorFees.Add(creatorShare)
	t.platformPool = t.platformPool.Add(platformShare)
	return nil
}

func (t *tx) recordTrade(p *model.Player, m *model.Market, side model.TradeSide, outcome ledger.OutcomeID, q amm.Quote) {
	p.AddActiveMarket(m.ID)
	p.MarketsParticipated++
	t.addExperience(p, t.cfg.TradeXP)
	o := outcome
	t.emit(model.TradeExecuted{
		MarketID: m.ID,
		Player:   p.ID,
		Side:     side,
		Outcome:  &o,
		Shares:   q.Shares,
		Cost:     q.Cost,
		Fee:      q.Fee,
		At:       t.now,
	})
}
