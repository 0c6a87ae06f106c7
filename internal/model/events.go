package model

import (
	"encoding/json"

	"github.com/atmx/prediction-engine/internal/ledger"
)

// EventType names an engine event on the wire.
type EventType string

const (
	EventPlayerRegistered   EventType = "player_registered"
	EventDailyReward        EventType = "daily_reward_claimed"
	EventMarketCreated      EventType = "market_created"
	EventMarketResolved     EventType = "market_resolved"
	EventMarketCancelled    EventType = "market_cancelled"
	EventTradeExecuted      EventType = "trade_executed"
	EventWinningsClaimed    EventType = "winnings_claimed"
	EventOracleVoteCast     EventType = "oracle_vote_cast"
	EventPlayerLeveledUp    EventType = "player_leveled_up"
	EventAchievementUnlock  EventType = "achievement_unlocked"
	EventGuildCreated       EventType = "guild_created"
	EventGuildJoined        EventType = "guild_joined"
	EventGuildLeft          EventType = "guild_left"
	EventGuildContribution  EventType = "guild_contribution"
	EventPredictionMade     EventType = "prediction_made"
	EventPredictionResolved EventType = "prediction_resolved"
	EventPriceUpdated       EventType = "price_updated"
	EventPointsMinted       EventType = "points_minted"
	EventConfigUpdated      EventType = "config_updated"
)

// Event is a typed output value of a committed action. Subjects lists the
// players the event concerns, used to index event history.
type Event interface {
	EventType() EventType
	Subjects() []ledger.PlayerID
}

// TradeSide distinguishes purchases from sales.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

type PlayerRegistered struct {
	Player      ledger.PlayerID  `json:"player"`
	DisplayName string           `json:"display_name"`
	Tokens      ledger.Amount    `json:"tokens"`
	At          ledger.Timestamp `json:"at"`
}

type DailyRewardClaimed struct {
	Player ledger.PlayerID  `json:"player"`
	Amount ledger.Amount    `json:"amount"`
	At     ledger.Timestamp `json:"at"`
}

type MarketCreated struct {
	MarketID   ledger.MarketID  `json:"market_id"`
	Creator    ledger.PlayerID  `json:"creator"`
	Title      string           `json:"title"`
	Policy     PricingPolicy    `json:"policy"`
	Outcomes   []string         `json:"outcomes,omitempty"`
	FeePercent uint8            `json:"fee_percent"`
	At         ledger.Timestamp `json:"at"`
}

type MarketResolved struct {
	MarketID       ledger.MarketID  `json:"market_id"`
	Method         ResolutionMethod `json:"method"`
	WinningOutcome ledger.OutcomeID `json:"winning_outcome"`
	PayoutPerShare ledger.Amount    `json:"payout_per_share"`
	At             ledger.Timestamp `json:"at"`
}

type MarketCancelled struct {
	MarketID ledger.MarketID  `json:"market_id"`
	By       ledger.PlayerID  `json:"by"`
	At       ledger.Timestamp `json:"at"`
}

// TradeExecuted reports one fill. Cost is the gross curve or base amount,
// Fee the creator fee charged on top (buys) or withheld (sells).
type TradeExecuted struct {
	MarketID ledger.MarketID   `json:"market_id"`
	Player   ledger.PlayerID   `json:"player"`
	Side     TradeSide         `json:"side"`
	Outcome  *ledger.OutcomeID `json:"outcome,omitempty"`
	Shares   ledger.Amount     `json:"shares"`
	Cost     ledger.Amount     `json:"cost"`
	Fee      ledger.Amount     `json:"fee"`
	At       ledger.Timestamp  `json:"at"`
}

type WinningsClaimed struct {
	MarketID ledger.MarketID  `json:"market_id"`
	Player   ledger.PlayerID  `json:"player"`
	Payout   ledger.Amount    `json:"payout"`
	At       ledger.Timestamp `json:"at"`
}

type OracleVoteCast struct {
	MarketID ledger.MarketID  `json:"market_id"`
	Player   ledger.PlayerID  `json:"player"`
	Outcome  ledger.OutcomeID `json:"outcome"`
	Weight   uint64           `json:"weight"`
	At       ledger.Timestamp `json:"at"`
}

type PlayerLeveledUp struct {
	Player   ledger.PlayerID  `json:"player"`
	OldLevel uint32           `json:"old_level"`
	NewLevel uint32           `json:"new_level"`
	At       ledger.Timestamp `json:"at"`
}

type AchievementUnlocked struct {
	Player        ledger.PlayerID      `json:"player"`
	AchievementID ledger.AchievementID `json:"achievement_id"`
	Name          string               `json:"name"`
	RewardTokens  ledger.Amount        `json:"reward_tokens"`
	RewardXP      uint64               `json:"reward_xp"`
	At            ledger.Timestamp     `json:"at"`
}

type GuildCreated struct {
	GuildID ledger.GuildID   `json:"guild_id"`
	Name    string           `json:"name"`
	Founder ledger.PlayerID  `json:"founder"`
	At      ledger.Timestamp `json:"at"`
}

type GuildJoined struct {
	GuildID ledger.GuildID   `json:"guild_id"`
	Player  ledger.PlayerID  `json:"player"`
	At      ledger.Timestamp `json:"at"`
}

// GuildLeft reports a departure. Disbanded is set when the last member left
// and the guild was deleted.
type GuildLeft struct {
	GuildID   ledger.GuildID   `json:"guild_id"`
	Player    ledger.PlayerID  `json:"player"`
	Disbanded bool             `json:"disbanded"`
	At        ledger.Timestamp `json:"at"`
}

type GuildContribution struct {
	GuildID ledger.GuildID   `json:"guild_id"`
	Player  ledger.PlayerID  `json:"player"`
	Amount  ledger.Amount    `json:"amount"`
	At      ledger.Timestamp `json:"at"`
}

type PredictionMade struct {
	Player      ledger.PlayerID  `json:"player"`
	Period      PeriodKind       `json:"period"`
	PeriodStart ledger.Timestamp `json:"period_start"`
	Outcome     PriceOutcome     `json:"outcome"`
	At          ledger.Timestamp `json:"at"`
}

// PredictionResolved reports one settlement. Amount is the reward credited
// or the penalty actually debited.
type PredictionResolved struct {
	Player      ledger.PlayerID  `json:"player"`
	Period      PeriodKind       `json:"period"`
	PeriodStart ledger.Timestamp `json:"period_start"`
	Predicted   PriceOutcome     `json:"predicted"`
	Actual      PriceOutcome     `json:"actual"`
	Correct     bool             `json:"correct"`
	Amount      ledger.Amount    `json:"amount"`
	XP          uint64           `json:"xp"`
	At          ledger.Timestamp `json:"at"`
}

type PriceUpdated struct {
	Price ledger.Amount    `json:"price"`
	At    ledger.Timestamp `json:"at"`
}

type PointsMinted struct {
	Amount ledger.Amount    `json:"amount"`
	At     ledger.Timestamp `json:"at"`
}

type ConfigUpdated struct {
	By ledger.PlayerID  `json:"by"`
	At ledger.Timestamp `json:"at"`
}

func (PlayerRegistered) EventType() EventType { return EventPlayerRegistered }
func (DailyRewardClaimed) EventType() EventType { return EventDailyReward }
func (MarketCreated) EventType() EventType { return EventMarketCreated }
func (MarketResolved) EventType() EventType { return EventMarketResolved }
func (MarketCancelled) EventType() EventType { return EventMarketCancelled }
func (TradeExecuted) EventType() EventType { return EventTradeExecuted }
func (WinningsClaimed) EventType() EventType { return EventWinningsClaimed }
func (OracleVoteCast) EventType() EventType { return EventOracleVoteCast }
func (PlayerLeveledUp) EventType() EventType { return EventPlayerLeveledUp }
func (AchievementUnlocked) EventType() EventType { return EventAchievementUnlock }
func (GuildCreated) EventType() EventType { return EventGuildCreated }
func (GuildJoined) EventType() EventType { return EventGuildJoined }
func (GuildLeft) EventType() EventType { return EventGuildLeft }
func (GuildContribution) EventType() EventType { return EventGuildContribution }
func (PredictionMade) EventType() EventType { return EventPredictionMade }
func (PredictionResolved) EventType() EventType { return EventPredictionResolved }
func (PriceUpdated) EventType() EventType { return EventPriceUpdated }
func (PointsMinted) EventType() EventType { return EventPointsMinted }
func (ConfigUpdated) EventType() EventType { return EventConfigUpdated }

func subjects(ids ...ledger.PlayerID) []ledger.PlayerID { return ids }

func (e PlayerRegistered) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e DailyRewardClaimed) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e MarketCreated) Subjects() []ledger.PlayerID { return subjects(e.Creator) }
func (MarketResolved) Subjects() []ledger.PlayerID { return nil }
func (e MarketCancelled) Subjects() []ledger.PlayerID { return subjects(e.By) }
func (e TradeExecuted) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e WinningsClaimed) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e OracleVoteCast) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e PlayerLeveledUp) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e AchievementUnlocked) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e GuildCreated) Subjects() []ledger.PlayerID { return subjects(e.Founder) }
func (e GuildJoined) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e GuildLeft) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e GuildContribution) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e PredictionMade) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (e PredictionResolved) Subjects() []ledger.PlayerID { return subjects(e.Player) }
func (PriceUpdated) Subjects() []ledger.PlayerID { return nil }
func (PointsMinted) Subjects() []ledger.PlayerID { return nil }
func (e ConfigUpdated) Subjects() []ledger.PlayerID { return subjects(e.By) }

// EventRecord is the persisted form of an event.
type EventRecord struct {
	ID       string            `json:"id"`
	Seq      uint64            `json:"seq"`
	Type     EventType         `json:"type"`
	Subjects []ledger.PlayerID `json:"subjects,omitempty"`
	At       ledger.Timestamp  `json:"at"`
	Payload  json.RawMessage   `json:"payload"`
}
