// Package model defines the entities owned by the game engine.
// All monetary values use ledger.Amount (shopspring/decimal underneath),
// never float64 for money.
//
// Entities refer to each other by identifier only. Clone methods return deep
// copies so that a transaction can stage changes without aliasing committed
// state.
package model

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
)

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusActive    MarketStatus = "active"
	StatusResolved  MarketStatus = "resolved"
	StatusCancelled MarketStatus = "cancelled"
)

// PricingPolicy names the strategy a market prices trades with.
type PricingPolicy string

const (
	PolicyFixedRatio   PricingPolicy = "fixed_ratio"
	PolicyBondingCurve PricingPolicy = "bonding_curve"
)

// ResolutionMethod is the tagged variant selecting how a market's winning
// outcome is decided.
type ResolutionMethod string

const (
	ResolveByOracleVoting ResolutionMethod = "oracle_voting"
	ResolveAutomated      ResolutionMethod = "automated"
	ResolveByCreator      ResolutionMethod = "creator_decides"
)

// Valid reports whether m is a known resolution method.
func (m ResolutionMethod) Valid() bool {
	switch m {
	case ResolveByOracleVoting, ResolveAutomated, ResolveByCreator:
		return true
	}
	return false
}

// PeriodKind is the length of a prediction window.
type PeriodKind string

const (
	PeriodDaily   PeriodKind = "daily"
	PeriodWeekly  PeriodKind = "weekly"
	PeriodMonthly PeriodKind = "monthly"
)

// PriceOutcome is the direction of the oracle price over a period.
type PriceOutcome string

const (
	OutcomeRise    PriceOutcome = "rise"
	OutcomeFall    PriceOutcome = "fall"
	OutcomeNeutral PriceOutcome = "neutral"
)

// Valid reports whether o is one of rise, fall or neutral.
func (o PriceOutcome) Valid() bool {
	return o == OutcomeRise || o == OutcomeFall || o == OutcomeNeutral
}

// PredictionStatus is the resolution state of a PlayerPrediction.
type PredictionStatus string

const (
	PredictionPending   PredictionStatus = "pending"
	PredictionCorrect   PredictionStatus = "correct"
	PredictionIncorrect PredictionStatus = "incorrect"
)

// Player is a registered participant.
type Player struct {
	ID                  ledger.PlayerID        `json:"id"`
	DisplayName         string                 `json:"display_name"`
	RegisteredAt        ledger.Timestamp       `json:"registered_at"`
	LastLogin           ledger.Timestamp       `json:"last_login"`
	TokenBalance        ledger.Amount          `json:"token_balance"`
	TotalEarned         ledger.Amount          `json:"total_earned"`
	TotalSpent          ledger.Amount          `json:"total_spent"`
	TotalProfit         ledger.Amount          `json:"total_profit"`
	Level               uint32                 `json:"level"`
	ExperiencePoints    uint64                 `json:"experience_points"`
	Reputation          uint64                 `json:"reputation"`
	MarketsParticipated uint64                 `json:"markets_participated"`
	MarketsWon          uint64                 `json:"markets_won"`
	MarketsCreated      uint64                 `json:"markets_created"`
	BuyCount            uint64                 `json:"buy_count"`
	SellCount           uint64                 `json:"sell_count"`
	WinStreak           uint32                 `json:"win_streak"`
	BestWinStreak       uint32                 `json:"best_win_streak"`
	GuildID             *ledger.GuildID        `json:"guild_id,omitempty"`
	Achievements        []ledger.AchievementID `json:"achievements_earned"`
	ActiveMarkets       []ledger.MarketID      `json:"active_markets"`
}

// Clone returns a deep copy.
func (p *Player) Clone() *Player {
	c := *p
	if p.GuildID != nil {
		g := *p.GuildID
		c.GuildID = &g
	}
	c.Achievements = append([]ledger.AchievementID(nil), p.Achievements...)
	c.ActiveMarkets = append([]ledger.MarketID(nil), p.ActiveMarkets...)
	return &c
}

// HasAchievement reports whether id is in the earned set.
func (p *Player) HasAchievement(id ledger.AchievementID) bool {
	i := sort.Search(len(p.Achievements), func(i int) bool { return p.Achievements[i] >= id })
	return i < len(p.Achievements) && p.Achievements[i] == id
}

// AddAchievement inserts id keeping the set sorted. It returns false if the
// achievement was already earned.
func (p *Player) AddAchievement(id ledger.AchievementID) bool {
	i := sort.Search(len(p.Achievements), func(i int) bool { return p.Achievements[i] >= id })
	if i < len(p.Achievements) && p.Achievements[i] == id {
		return false
	}
	p.Achievements = append(p.Achievements, 0)
	copy(p.Achievements[i+1:], p.Achievements[i:])
	p.Achievements[i] = id
	return true
}

// HasActiveMarket reports whether the player holds an open position in id.
func (p *Player) HasActiveMarket(id ledger.MarketID) bool {
	i := sort.Search(len(p.ActiveMarkets), func(i int) bool { return p.ActiveMarkets[i] >= id })
	return i < len(p.ActiveMarkets) && p.ActiveMarkets[i] == id
}

// AddActiveMarket inserts id, returning false if already present.
func (p *Player) AddActiveMarket(id ledger.MarketID) bool {
	i := sort.Search(len(p.ActiveMarkets), func(i int) bool { return p.ActiveMarkets[i] >= id })
	if i < len(p.ActiveMarkets) && p.ActiveMarkets[i] == id {
		return false
	}
	p.ActiveMarkets = append(p.ActiveMarkets, 0)
	copy(p.ActiveMarkets[i+1:], p.ActiveMarkets[i:])
	p.ActiveMarkets[i] = id
	return true
}

// RemoveActiveMarket deletes id from the set if present.
func (p *Player) RemoveActiveMarket(id ledger.MarketID) {
	i := sort.Search(len(p.ActiveMarkets), func(i int) bool { return p.ActiveMarkets[i] >= id })
	if i < len(p.ActiveMarkets) && p.ActiveMarkets[i] == id {
		p.ActiveMarkets = append(p.ActiveMarkets[:i], p.ActiveMarkets[i+1:]...)
	}
}

// Outcome is one independently priced share pool of a market.
type Outcome struct {
	ID         ledger.OutcomeID `json:"id"`
	Name       string           `json:"name"`
	SharesSold ledger.Amount    `json:"shares_sold"`
}

// Position is one player's holdings in a market.
type Position struct {
	Shares        map[ledger.OutcomeID]ledger.Amount `json:"shares"`
	TotalInvested ledger.Amount                      `json:"total_invested"`
	EntryTime     ledger.Timestamp                   `json:"entry_time"`
	Claimed       bool                               `json:"claimed,omitempty"`
}

// Held is the total number of shares across every outcome.
func (p *Position) Held() ledger.Amount {
	var n ledger.Amount
	for _, v := range p.Shares {
		n = n.Add(v)
	}
	return n
}

// ReduceCostBasis removes the part of TotalInvested that belongs to sold
// shares, pro rata to the shares held before the sale. Call it before the
// shares are taken out of the position.
func (p *Position) ReduceCostBasis(sold ledger.Amount) {
	held := p.Held()
	if !sold.LessThan(held) {
		p.TotalInvested = ledger.Zero()
		return
	}
	p.TotalInvested = p.TotalInvested.Sub(p.TotalInvested.MulAmount(sold).Div(held))
}

func (p *Position) clone() *Position {
	c := *p
	c.Shares = make(map[ledger.OutcomeID]ledger.Amount, len(p.Shares))
	for k, v := range p.Shares {
		c.Shares[k] = v
	}
	return &c
}

// OracleVote is one player's vote during an oracle-voting window.
type OracleVote struct {
	Outcome ledger.OutcomeID `json:"outcome"`
	Weight  uint64           `json:"weight"`
	At      ledger.Timestamp `json:"at"`
}

// Market is a tradable prediction market.
//
// For fixed-ratio markets TotalLiquidity is the pool of points still for
// sale. For bonding-curve markets it is the curve's scale parameter and stays
// constant.
type Market struct {
	ID                ledger.MarketID                `json:"id"`
	Creator           ledger.PlayerID                `json:"creator"`
	Title             string                         `json:"title"`
	Description       string                         `json:"description,omitempty"`
	Policy            PricingPolicy                  `json:"policy"`
	Outcomes          []Outcome                      `json:"outcomes"`
	FeePercent        uint8                          `json:"fee_percent"`
	Status            MarketStatus                   `json:"status"`
	CreatedAt         ledger.Timestamp               `json:"created_at"`
	CloseAt           ledger.Timestamp               `json:"close_at,omitempty"`
	TotalLiquidity    ledger.Amount                  `json:"total_liquidity"`
	BasePrice         ledger.Amount                  `json:"base_price"`
	Smoothing         decimal.Decimal                `json:"smoothing_factor"`
	Reserve           ledger.Amount                  `json:"reserve"`
	CreatorFees       ledger.Amount                  `json:"creator_fees"`
	Positions         map[ledger.PlayerID]*Position  `json:"positions"`
	TotalParticipants uint64                         `json:"total_participants"`
	Resolution        ResolutionMethod               `json:"resolution_method"`
	Votes             map[ledger.PlayerID]OracleVote `json:"votes,omitempty"`
	WinningOutcome    *ledger.OutcomeID              `json:"winning_outcome,omitempty"`
	PayoutPerShare    ledger.Amount                  `json:"payout_per_share"`
	ResolvedAt        ledger.Timestamp               `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy.
func (m *Market) Clone() *Market {
	c := *m
	c.Outcomes = append([]Outcome(nil), m.Outcomes...)
	c.Positions = make(map[ledger.PlayerID]*Position, len(m.Positions))
	for k, v := range m.Positions {
		c.Positions[k] = v.clone()
	}
	if m.Votes != nil {
		c.Votes = make(map[ledger.PlayerID]OracleVote, len(m.Votes))
		for k, v := range m.Votes {
			c.Votes[k] = v
		}
	}
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		c.WinningOutcome = &w
	}
	return &c
}

// Outcome returns a pointer into the outcome slice, or nil.
func (m *Market) Outcome(id ledger.OutcomeID) *Outcome {
	for i := range m.Outcomes {
		if m.Outcomes[i].ID == id {
			return &m.Outcomes[i]
		}
	}
	return nil
}

// IsOpen reports whether trading is allowed at now.
func (m *Market) IsOpen(now ledger.Timestamp) bool {
	if m.Status != StatusActive {
		return false
	}
	return m.CloseAt == 0 || now.Before(m.CloseAt)
}

// PredictionKey uniquely identifies a prediction.
type PredictionKey struct {
	Player      ledger.PlayerID
	Kind        PeriodKind
	PeriodStart ledger.Timestamp
}

// PeriodKey identifies a prediction window.
type PeriodKey struct {
	Kind        PeriodKind
	PeriodStart ledger.Timestamp
}

// Less orders period keys by kind then start.
func (k PeriodKey) Less(o PeriodKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.PeriodStart < o.PeriodStart
}

// PlayerPrediction is a player's call on the price direction over a period.
type PlayerPrediction struct {
	Player      ledger.PlayerID  `json:"player"`
	Kind        PeriodKind       `json:"period"`
	PeriodStart ledger.Timestamp `json:"period_start"`
	Outcome     PriceOutcome     `json:"outcome"`
	PredictedAt ledger.Timestamp `json:"predicted_at"`
	Status      PredictionStatus `json:"status"`
	ResolvedAt  ledger.Timestamp `json:"resolved_at,omitempty"`
}

// Key returns the structured identity of the prediction.
func (p *PlayerPrediction) Key() PredictionKey {
	return PredictionKey{Player: p.Player, Kind: p.Kind, PeriodStart: p.PeriodStart}
}

// Resolved reports whether the prediction has been settled.
func (p *PlayerPrediction) Resolved() bool { return p.Status != PredictionPending }

// PeriodPriceData tracks the oracle prices bracketing one prediction window.
// Predictors lists the players with a prediction in the window, sorted.
type PeriodPriceData struct {
	Kind        PeriodKind        `json:"period"`
	PeriodStart ledger.Timestamp  `json:"period_start"`
	PeriodEnd   ledger.Timestamp  `json:"period_end"`
	StartPrice  *ledger.Amount    `json:"start_price,omitempty"`
	EndPrice    *ledger.Amount    `json:"end_price,omitempty"`
	Outcome     *PriceOutcome     `json:"outcome,omitempty"`
	Resolved    bool              `json:"resolved"`
	Predictors  []ledger.PlayerID `json:"predictors"`
}

// Key returns the period identity.
func (p *PeriodPriceData) Key() PeriodKey {
	return PeriodKey{Kind: p.Kind, PeriodStart: p.PeriodStart}
}

// Clone returns a deep copy.
func (p *PeriodPriceData) Clone() *PeriodPriceData {
	c := *p
	if p.StartPrice != nil {
		v := *p.StartPrice
		c.StartPrice = &v
	}
	if p.EndPrice != nil {
		v := *p.EndPrice
		c.EndPrice = &v
	}
	if p.Outcome != nil {
		v := *p.Outcome
		c.Outcome = &v
	}
	c.Predictors = append([]ledger.PlayerID(nil), p.Predictors...)
	return &c
}

// AddPredictor inserts id keeping Predictors sorted.
func (p *PeriodPriceData) AddPredictor(id ledger.PlayerID) {
	i := sort.Search(len(p.Predictors), func(i int) bool { return p.Predictors[i] >= id })
	if i < len(p.Predictors) && p.Predictors[i] == id {
		return
	}
	p.Predictors = append(p.Predictors, "")
	copy(p.Predictors[i+1:], p.Predictors[i:])
	p.Predictors[i] = id
}

// MarketPrice is the latest oracle observation.
type MarketPrice struct {
	Price     ledger.Amount    `json:"price"`
	Timestamp ledger.Timestamp `json:"timestamp"`
}

// Guild is a group of players sharing prediction outcomes. Members is sorted
// and always contains Founder. TotalProfit is TotalCredited minus
// TotalDebited, floored at zero.
type Guild struct {
	ID            ledger.GuildID    `json:"id"`
	Name          string            `json:"name"`
	Founder       ledger.PlayerID   `json:"founder"`
	Members       []ledger.PlayerID `json:"members"`
	SharedPool    ledger.Amount     `json:"shared_pool"`
	TotalProfit   ledger.Amount     `json:"total_guild_profit"`
	TotalCredited ledger.Amount     `json:"total_credited"`
	TotalDebited  ledger.Amount     `json:"total_debited"`
	CreatedAt     ledger.Timestamp  `json:"created_at"`
}

// Clone returns a deep copy.
func (g *Guild) Clone() *Guild {
	c := *g
	c.Members = append([]ledger.PlayerID(nil), g.Members...)
	return &c
}

// HasMember reports whether id belongs to the guild.
func (g *Guild) HasMember(id ledger.PlayerID) bool {
	i := sort.Search(len(g.Members), func(i int) bool { return g.Members[i] >= id })
	return i < len(g.Members) && g.Members[i] == id
}

// AddMember inserts id keeping Members sorted.
func (g *Guild) AddMember(id ledger.PlayerID) {
	i := sort.Search(len(g.Members), func(i int) bool { return g.Members[i] >= id })
	if i < len(g.Members) && g.Members[i] == id {
		return
	}
	g.Members = append(g.Members, "")
	copy(g.Members[i+1:], g.Members[i:])
	g.Members[i] = id
}

// RemoveMember deletes id if present.
func (g *Guild) RemoveMember(id ledger.PlayerID) {
	i := sort.Search(len(g.Members), func(i int) bool { return g.Members[i] >= id })
	if i < len(g.Members) && g.Members[i] == id {
		g.Members = append(g.Members[:i], g.Members[i+1:]...)
	}
}

// RequirementKind tags the predicate an achievement checks.
type RequirementKind string

const (
	ReqCreateMarket         RequirementKind = "create_market"
	ReqFirstBuy             RequirementKind = "first_buy"
	ReqFirstSell            RequirementKind = "first_sell"
	ReqJoinGuild            RequirementKind = "join_guild"
	ReqReachLevel           RequirementKind = "reach_level"
	ReqWinMarkets           RequirementKind = "win_markets"
	ReqWinStreak            RequirementKind = "win_streak"
	ReqTotalProfit          RequirementKind = "total_profit"
	ReqParticipateInMarkets RequirementKind = "participate_in_markets"
	ReqCreateMarkets        RequirementKind = "create_markets"
)

// Requirement is a tagged predicate over player state. Threshold is unused by
// the one-shot kinds.
type Requirement struct {
	Kind      RequirementKind `json:"kind"`
	Threshold uint64          `json:"threshold,omitempty"`
}

// Achievement is an immutable catalogue entry.
type Achievement struct {
	ID           ledger.AchievementID `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Requirement  Requirement          `json:"requirement"`
	RewardTokens ledger.Amount        `json:"reward_tokens"`
	RewardXP     uint64               `json:"reward_xp"`
}

// PlayerEntry is one ranked player row.
type PlayerEntry struct {
	Rank        int             `json:"rank"`
	PlayerID    ledger.PlayerID `json:"player_id"`
	DisplayName string          `json:"display_name"`
	TotalEarned ledger.Amount   `json:"total_earned"`
	WinRate     decimal.Decimal `json:"win_rate"`
	Level       uint32          `json:"level"`
}

// GuildEntry is one ranked guild row.
type GuildEntry struct {
	Rank        int            `json:"rank"`
	GuildID     ledger.GuildID `json:"guild_id"`
	Name        string         `json:"name"`
	TotalEarned ledger.Amount  `json:"total_earned"`
	MemberCount int            `json:"member_count"`
}

// Leaderboard is a derived view, always rebuildable from players and guilds.
type Leaderboard struct {
	Players   []PlayerEntry    `json:"top_players"`
	Guilds    []GuildEntry     `json:"top_guilds"`
	UpdatedAt ledger.Timestamp `json:"last_updated"`
}

// Snapshot carries engine state across the persistence boundary. A full
// snapshot holds every entity; a change set holds only what one committed
// action touched.
type Snapshot struct {
	Players       []Player           `json:"players,omitempty"`
	Markets       []Market           `json:"markets,omitempty"`
	Guilds        []Guild            `json:"guilds,omitempty"`
	DeletedGuilds []ledger.GuildID   `json:"deleted_guilds,omitempty"`
	Predictions   []PlayerPrediction `json:"predictions,omitempty"`
	Periods       []PeriodPriceData  `json:"periods,omitempty"`
	Globals       Globals            `json:"globals"`
}

// Globals are the engine-wide scalars.
type Globals struct {
	Config       json.RawMessage `json:"config,omitempty"`
	Price        *MarketPrice    `json:"price,omitempty"`
	TotalSupply  ledger.Amount   `json:"total_supply"`
	PlatformPool ledger.Amount   `json:"platform_pool"`
	NextMarketID uint64          `json:"next_market_id"`
	NextGuildID  uint64          `json:"next_guild_id"`
}
