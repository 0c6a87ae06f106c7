package engine

import (
	"fmt"
	"time"

	"github.com/atmx/prediction-engine/internal/ledger"
)

// Config holds the game's tunables. Admins may replace it at runtime with
// UpdateConfig.
type Config struct {
	InitialPlayerTokens      ledger.Amount `json:"initial_player_tokens"`
	InitialReputation        uint64        `json:"initial_reputation"`
	DailyLoginReward         ledger.Amount `json:"daily_login_reward"`
	DailyCooldown            time.Duration `json:"daily_cooldown"`
	MarketCreationCost       ledger.Amount `json:"market_creation_cost"`
	MarketCreationMinBalance ledger.Amount `json:"market_creation_min_balance"`
	MarketCreationMinLevel   uint32        `json:"market_creation_min_level"`
	SellMinLevel             uint32        `json:"sell_min_level"`
	PlatformFeeShare         uint8         `json:"platform_fee_share"`
	TradeXP                  uint64        `json:"trade_xp"`
	MinMarketDuration        time.Duration `json:"min_market_duration"`
	MaxOutcomesPerMarket     int           `json:"max_outcomes_per_market"`
	OracleVotingDuration     time.Duration `json:"oracle_voting_duration"`
	MinOracleVoters          int           `json:"min_oracle_voters"`
	MaxSharesPerOutcome      ledger.Amount `json:"max_shares_per_outcome"`
	MaxSharesPerMarket       ledger.Amount `json:"max_shares_per_market"`
	LeaderboardPlayers       int           `json:"leaderboard_players"`
	LeaderboardGuilds        int           `json:"leaderboard_guilds"`
}

// DefaultConfig returns the standard game configuration.
func DefaultConfig() Config {
	return Config{
		InitialPlayerTokens:      ledger.FromInt(100),
		InitialReputation:        100,
		DailyLoginReward:         ledger.FromInt(10),
		DailyCooldown:            24 * time.Hour,
		MarketCreationCost:       ledger.FromInt(100),
		MarketCreationMinBalance: ledger.FromInt(10000),
		MarketCreationMinLevel:   5,
		SellMinLevel:             5,
		PlatformFeeShare:         2,
		TradeXP:                  10,
		MinMarketDuration:        5 * time.Minute,
		MaxOutcomesPerMarket:     10,
		OracleVotingDuration:     time.Hour,
		MinOracleVoters:          3,
		MaxSharesPerOutcome:      ledger.FromInt(1_000_000),
		MaxSharesPerMarket:       ledger.FromInt(5_000_000),
		LeaderboardPlayers:       50,
		LeaderboardGuilds:        20,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.DailyCooldown <= 0 {
		return fmt.Errorf("%w: daily_cooldown must be positive", ErrInvalidInput)
	}
	if c.PlatformFeeShare > 100 {
		return fmt.Errorf("%w: platform_fee_share must be between 0 and 100", ErrInvalidInput)
	}
	if c.MaxOutcomesPerMarket < 2 {
		return fmt.Errorf("%w: max_outcomes_per_market must be at least 2", ErrInvalidInput)
	}
	if c.MinMarketDuration < 0 || c.OracleVotingDuration <= 0 {
		return fmt.Errorf("%w: market and voting durations must be positive", ErrInvalidInput)
	}
	if c.MinOracleVoters < 1 {
		return fmt.Errorf("%w: min_oracle_voters must be at least 1", ErrInvalidInput)
	}
	if c.LeaderboardPlayers < 1 || c.LeaderboardGuilds < 1 {
		return fmt.Errorf("%w: leaderboard sizes must be positive", ErrInvalidInput)
	}
	return nil
}
