// Package config loads the server configuration from an optional YAML file,
// an optional .env file and PREDICT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/atmx/prediction-engine/internal/action"
	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/ledger"
)

// EnvPrefix prefixes every environment override, e.g. PREDICT_SERVER_PORT.
const EnvPrefix = "PREDICT"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Log      LogConfig      `mapstructure:"log"`
	Admins   []string       `mapstructure:"admins"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per second per caller; 0 disables throttling.
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// DatabaseConfig selects PostgreSQL. An empty URL means the in-memory store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig enables the history cache in front of PostgreSQL.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// JournalConfig locates the SQLite action journal. An empty path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// GameConfig mirrors engine.Config. Amounts are decimal strings.
type GameConfig struct {
	InitialPlayerTokens      string        `mapstructure:"initial_player_tokens"`
	InitialReputation        uint64        `mapstructure:"initial_reputation"`
	DailyLoginReward         string        `mapstructure:"daily_login_reward"`
	DailyCooldown            time.Duration `mapstructure:"daily_cooldown"`
	MarketCreationCost       string        `mapstructure:"market_creation_cost"`
	MarketCreationMinBalance string        `mapstructure:"market_creation_min_balance"`
	MarketCreationMinLevel   uint32        `mapstructure:"market_creation_min_level"`
	SellMinLevel             uint32        `mapstructure:"sell_min_level"`
	PlatformFeeShare         uint8         `mapstructure:"platform_fee_share"`
	TradeXP                  uint64        `mapstructure:"trade_xp"`
	MinMarketDuration        time.Duration `mapstructure:"min_market_duration"`
	MaxOutcomesPerMarket     int           `mapstructure:"max_outcomes_per_market"`
	OracleVotingDuration     time.Duration `mapstructure:"oracle_voting_duration"`
	MinOracleVoters          int           `mapstructure:"min_oracle_voters"`
	MaxSharesPerOutcome      string        `mapstructure:"max_shares_per_outcome"`
	MaxSharesPerMarket       string        `mapstructure:"max_shares_per_market"`
	LeaderboardPlayers       int           `mapstructure:"leaderboard_players"`
	LeaderboardGuilds        int           `mapstructure:"leaderboard_guilds"`
}

// Load reads configuration from an optional file and the environment. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", "30s")
	v.SetDefault("journal.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("admins", []string{})

	d := engine.DefaultConfig()
	v.SetDefault("game.initial_player_tokens", d.InitialPlayerTokens.String())
	v.SetDefault("game.initial_reputation", d.InitialReputation)
	v.SetDefault("game.daily_login_reward", d.DailyLoginReward.String())
	v.SetDefault("game.daily_cooldown", d.DailyCooldown)
	v.SetDefault("game.market_creation_cost", d.MarketCreationCost.String())
	v.SetDefault("game.market_creation_min_balance", d.MarketCreationMinBalance.String())
	v.SetDefault("game.market_creation_min_level", d.MarketCreationMinLevel)
	v.SetDefault("game.sell_min_level", d.SellMinLevel)
	v.SetDefault("game.platform_fee_share", d.PlatformFeeShare)
	v.SetDefault("game.trade_xp", d.TradeXP)
	v.SetDefault("game.min_market_duration", d.MinMarketDuration)
	v.SetDefault("game.max_outcomes_per_market", d.MaxOutcomesPerMarket)
	v.SetDefault("game.oracle_voting_duration", d.OracleVotingDuration)
	v.SetDefault("game.min_oracle_voters", d.MinOracleVoters)
	v.SetDefault("game.max_shares_per_outcome", d.MaxSharesPerOutcome.String())
	v.SetDefault("game.max_shares_per_market", d.MaxSharesPerMarket.String())
	v.SetDefault("game.leaderboard_players", d.LeaderboardPlayers)
	v.SetDefault("game.leaderboard_guilds", d.LeaderboardGuilds)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be at least 1")
	}
	if c.Redis.URL != "" && c.Database.URL == "" {
		return fmt.Errorf("redis.url requires database.url")
	}
	if c.Redis.URL != "" && c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("redis.cache_ttl must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	for _, id := range c.Admins {
		if err := action.ValidatePlayerID(ledger.PlayerID(id)); err != nil {
			return fmt.Errorf("admins: %w", err)
		}
	}

	g, err := c.Game.Engine()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}

// IsAdmin reports whether id is configured as an admin.
func (c *Config) IsAdmin(id ledger.PlayerID) bool {
	for _, a := range c.Admins {
		if ledger.PlayerID(a) == id {
			return true
		}
	}
	return false
}

// Engine converts the game section to the engine's configuration.
func (g GameConfig) Engine() (engine.Config, error) {
	cfg := engine.Config{
		InitialReputation:      g.InitialReputation,
		DailyCooldown:          g.DailyCooldown,
		MarketCreationMinLevel: g.MarketCreationMinLevel,
		SellMinLevel:           g.SellMinLevel,
		PlatformFeeShare:       g.PlatformFeeShare,
		TradeXP:                g.TradeXP,
		MinMarketDuration:      g.MinMarketDuration,
		MaxOutcomesPerMarket:   g.MaxOutcomesPerMarket,
		OracleVotingDuration:   g.OracleVotingDuration,
		MinOracleVoters:        g.MinOracleVoters,
		LeaderboardPlayers:     g.LeaderboardPlayers,
		LeaderboardGuilds:      g.LeaderboardGuilds,
	}

	var err error
	parse := func(key, src string, dst *ledger.Amount) {
		if err != nil {
			return
		}
		if *dst, err = ledger.Parse(src); err != nil {
			err = fmt.Errorf("game.%s: %w", key, err)
		}
	}
	parse("initial_player_tokens", g.InitialPlayerTokens, &cfg.InitialPlayerTokens)
	parse("daily_login_reward", g.DailyLoginReward, &cfg.DailyLoginReward)
	parse("market_creation_cost", g.MarketCreationCost, &cfg.MarketCreationCost)
	parse("market_creation_min_balance", g.MarketCreationMinBalance, &cfg.MarketCreationMinBalance)
	parse("max_shares_per_outcome", g.MaxSharesPerOutcome, &cfg.MaxSharesPerOutcome)
	parse("max_shares_per_market", g.MaxSharesPerMarket, &cfg.MaxSharesPerMarket)
	if err != nil {
		return engine.Config{}, err
	}
	return cfg, nil
}
