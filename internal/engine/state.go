// Package engine is the deterministic state-transition core of the game.
//
// Every state-changing action runs inside a transaction: entities are loaded
// into a staging area as deep copies, mutated there, and written back to the
// State only if the whole action succeeds. A failed action leaves no trace.
//
// The engine never reads a clock and never locks. Callers pass the current
// time into each action and serialize conflicting calls themselves.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/atmx/prediction-engine/internal/achievement"
	"github.com/atmx/prediction-engine/internal/leaderboard"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// Caller is the verified identity behind an action.
type Caller struct {
	ID    ledger.PlayerID
	Admin bool
}

// Result is the output of a committed action.
type Result struct {
	// Events in emission order.
	Events []model.Event

	// Changes holds deep copies of every entity the action touched plus the
	// engine-wide scalars, ready to persist.
	Changes *model.Snapshot
}

// State is the authoritative entity set.
type State struct {
	cfg          Config
	catalogue    []model.Achievement
	players      map[ledger.PlayerID]*model.Player
	markets      map[ledger.MarketID]*model.Market
	guilds       map[ledger.GuildID]*model.Guild
	predictions  map[model.PredictionKey]*model.PlayerPrediction
	periods      map[model.PeriodKey]*model.PeriodPriceData
	openPeriods  map[model.PeriodKey]struct{}
	price        *model.MarketPrice
	totalSupply  ledger.Amount
	platformPool ledger.Amount
	nextMarketID uint64
	nextGuildID  uint64
}

func newState(cfg Config) *State {
	return &State{
		cfg:         cfg,
		catalogue:   achievement.Catalogue(),
		players:     make(map[ledger.PlayerID]*model.Player),
		markets:     make(map[ledger.MarketID]*model.Market),
		guilds:      make(map[ledger.GuildID]*model.Guild),
		predictions: make(map[model.PredictionKey]*model.PlayerPrediction),
		periods:     make(map[model.PeriodKey]*model.PeriodPriceData),
		openPeriods: make(map[model.PeriodKey]struct{}),
	}
}

// Engine owns a State and the cached leaderboard derived from it.
type Engine struct {
	state      *State
	board      model.Leaderboard
	boardDirty bool
	lastUpdate ledger.Timestamp
}

// New creates an engine with an empty state.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{state: newState(cfg), boardDirty: true}, nil
}

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.state.cfg }

// Catalogue returns the achievement catalogue.
func (e *Engine) Catalogue() []model.Achievement {
	return append([]model.Achievement(nil), e.state.catalogue...)
}

// Player returns a copy of a player record.
func (e *Engine) Player(id ledger.PlayerID) (*model.Player, error) {
	p, ok := e.state.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

// Market returns a copy of a market.
func (e *Engine) Market(id ledger.MarketID) (*model.Market, error) {
	m, ok := e.state.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	return m.Clone(), nil
}

// Markets returns copies of all markets ordered by id.
func (e *Engine) Markets() []*model.Market {
	out := make([]*model.Market, 0, len(e.state.markets))
	for _, m := range e.state.markets {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Guild returns a copy of a guild.
func (e *Engine) Guild(id ledger.GuildID) (*model.Guild, error) {
	g, ok := e.state.guilds[id]
	if !ok {
		return nil, fmt.Errorf("%w: guild %d", ErrNotFound, id)
	}
	return g.Clone(), nil
}

// Period returns a copy of the price data for a prediction window.
func (e *Engine) Period(kind model.PeriodKind, start ledger.Timestamp) (*model.PeriodPriceData, error) {
	pd, ok := e.state.periods[model.PeriodKey{Kind: kind, PeriodStart: start}]
	if !ok {
		return nil, fmt.Errorf("%w: %s period at %d", ErrNotFound, kind, start)
	}
	return pd.Clone(), nil
}

// Price returns the latest oracle price, if any.
func (e *Engine) Price() (model.MarketPrice, bool) {
	if e.state.price == nil {
		return model.MarketPrice{}, false
	}
	return *e.state.price, true
}

// TotalSupply returns the points in existence.
func (e *Engine) TotalSupply() ledger.Amount { return e.state.totalSupply }

// PlatformPool returns the platform's accumulated fees.
func (e *Engine) PlatformPool() ledger.Amount { return e.state.platformPool }

// Leaderboard returns the current rankings, recomputing them if any action
// since the last call could have changed them.
func (e *Engine) Leaderboard() model.Leaderboard {
	if e.boardDirty {
		e.board = e.recompute()
		e.boardDirty = false
	}
	return e.board
}

func (e *Engine) recompute() model.Leaderboard {
	players := make([]*model.Player, 0, len(e.state.players))
	for _, p := range e.state.players {
		players = append(players, p)
	}
	guilds := make([]*model.Guild, 0, len(e.state.guilds))
	for _, g := range e.state.guilds {
		guilds = append(guilds, g)
	}
	return leaderboard.Recompute(players, guilds, e.lastUpdate, leaderboard.Options{
		TopPlayers: e.state.cfg.LeaderboardPlayers,
		TopGuilds:  e.state.cfg.LeaderboardGuilds,
	})
}

// Snapshot returns a deep copy of the whole state.
func (e *Engine) Snapshot() (*model.Snapshot, error) {
	st := e.state
	snap := &model.Snapshot{}
	for _, p := range st.players {
		snap.Players = append(snap.Players, *p.Clone())
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	for _, m := range st.markets {
		snap.Markets = append(snap.Markets, *m.Clone())
	}
	sort.Slice(snap.Markets, func(i, j int) bool { return snap.Markets[i].ID < snap.Markets[j].ID })
	for _, g := range st.guilds {
		snap.Guilds = append(snap.Guilds, *g.Clone())
	}
	sort.Slice(snap.Guilds, func(i, j int) bool { return snap.Guilds[i].ID < snap.Guilds[j].ID })
	for _, pr := range st.predictions {
		snap.Predictions = append(snap.Predictions, *pr)
	}
	sort.Slice(snap.Predictions, func(i, j int) bool {
		a, b := snap.Predictions[i], snap.Predictions[j]
		if a.Player != b.Player {
			return a.Player < b.Player
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.PeriodStart < b.PeriodStart
	})
	for _, pd := range st.periods {
		snap.Periods = append(snap.Periods, *pd.Clone())
	}
	sort.Slice(snap.Periods, func(i, j int) bool { return snap.Periods[i].Key().Less(snap.Periods[j].Key()) })

	globals, err := st.globals()
	if err != nil {
		return nil, err
	}
	snap.Globals = globals
	return snap, nil
}

func (st *State) globals() (model.Globals, error) {
	cfg, err := json.Marshal(st.cfg)
	if err != nil {
		return model.Globals{}, fmt.Errorf("encode config: %w", err)
	}
	g := model.Globals{
		Config:       cfg,
		TotalSupply:  st.totalSupply,
		PlatformPool: st.platformPool,
		NextMarketID: st.nextMarketID,
		NextGuildID:  st.nextGuildID,
	}
	if st.price != nil {
		p := *st.price
		g.Price = &p
	}
	return g, nil
}

// Restore builds an engine from a full snapshot. A snapshot without a stored
// config uses fallback.
func Restore(snap *model.Snapshot, fallback Config) (*Engine, error) {
	cfg := fallback
	if len(snap.Globals.Config) > 0 {
		if err := json.Unmarshal(snap.Globals.Config, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	st := e.state
	for i := range snap.Players {
		p := snap.Players[i].Clone()
		st.players[p.ID] = p
	}
	for i := range snap.Markets {
		m := snap.Markets[i].Clone()
		st.markets[m.ID] = m
	}
	for i := range snap.Guilds {
		g := snap.Guilds[i].Clone()
		st.guilds[g.ID] = g
	}
	for i := range snap.Predictions {
		pr := snap.Predictions[i]
		st.predictions[pr.Key()] = &pr
	}
	for i := range snap.Periods {
		pd := snap.Periods[i].Clone()
		st.periods[pd.Key()] = pd
		if !pd.Resolved {
			st.openPeriods[pd.Key()] = struct{}{}
		}
	}
	if snap.Globals.Price != nil {
		p := *snap.Globals.Price
		st.price = &p
	}
	st.totalSupply = snap.Globals.TotalSupply
	st.platformPool = snap.Globals.PlatformPool
	st.nextMarketID = snap.Globals.NextMarketID
	st.nextGuildID = snap.Globals.NextGuildID
	return e, nil
}
