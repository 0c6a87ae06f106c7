package engine

import (
	"fmt"
	"sort"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// tx stages the effects of one action. Entities are cloned into the staging
// maps on first access; the committed State is not touched until commit.
type tx struct {
	st     *State
	now    ledger.Timestamp
	caller Caller

	cfg        Config
	cfgChanged bool

	players       map[ledger.PlayerID]*model.Player
	markets       map[ledger.MarketID]*model.Market
	guilds        map[ledger.GuildID]*model.Guild
	deletedGuilds map[ledger.GuildID]bool
	predictions   map[model.PredictionKey]*model.PlayerPrediction
	periods       map[model.PeriodKey]*model.PeriodPriceData

	price        *model.MarketPrice
	totalSupply  ledger.Amount
	platformPool ledger.Amount
	nextMarketID uint64
	nextGuildID  uint64

	events    []model.Event
	rankDirty bool
}

func (e *Engine) begin(c Caller, now ledger.Timestamp) *tx {
	st := e.state
	return &tx{
		st:            st,
		now:           now,
		caller:        c,
		cfg:           st.cfg,
		players:       make(map[ledger.PlayerID]*model.Player),
		markets:       make(map[ledger.MarketID]*model.Market),
		guilds:        make(map[ledger.GuildID]*model.Guild),
		deletedGuilds: make(map[ledger.GuildID]bool),
		predictions:   make(map[model.PredictionKey]*model.PlayerPrediction),
		periods:       make(map[model.PeriodKey]*model.PeriodPriceData),
		price:         st.price,
		totalSupply:   st.totalSupply,
		platformPool:  st.platformPool,
		nextMarketID:  st.nextMarketID,
		nextGuildID:   st.nextGuildID,
	}
}

// apply runs fn as one all-or-nothing transaction. Achievement evaluation
// runs as a post-condition over every player the action touched.
func (e *Engine) apply(c Caller, now ledger.Timestamp, fn func(t *tx) error) (Result, error) {
	t := e.begin(c, now)
	if err := fn(t); err != nil {
		return Result{}, err
	}
	t.evaluateAchievements()
	return e.commit(t), nil
}

func (e *Engine) commit(t *tx) Result {
	st := e.state
	changes := &model.Snapshot{}

	for _, id := range sortedKeys(t.players) {
		p := t.players[id]
		st.players[id] = p
		changes.Players = append(changes.Players, *p.Clone())
	}
	for _, id := range sortedKeys(t.markets) {
		m := t.markets[id]
		st.markets[id] = m
		changes.Markets = append(changes.Markets, *m.Clone())
	}
	for _, id := range sortedKeys(t.guilds) {
		if t.deletedGuilds[id] {
			continue
		}
		g := t.guilds[id]
		st.guilds[id] = g
		changes.Guilds = append(changes.Guilds, *g.Clone())
	}
	for _, id := range sortedKeys(t.deletedGuilds) {
		delete(st.guilds, id)
		changes.DeletedGuilds = append(changes.DeletedGuilds, id)
	}
	for _, key := range sortedPredictionKeys(t.predictions) {
		pr := t.predictions[key]
		st.predictions[key] = pr
		changes.Predictions = append(changes.Predictions, *pr)
	}
	for _, key := range sortedPeriodKeys(t.periods) {
		pd := t.periods[key]
		st.periods[key] = pd
		if pd.Resolved {
			delete(st.openPeriods, key)
		} else {
			st.openPeriods[key] = struct{}{}
		}
		changes.Periods = append(changes.Periods, *pd.Clone())
	}

	st.cfg = t.cfg
	st.price = t.price
	st.totalSupply = t.totalSupply
	st.platformPool = t.platformPool
	st.nextMarketID = t.nextMarketID
	st.nextGuildID = t.nextGuildID

	// Config marshaling cannot fail for this struct; keep the other scalars
	// even if it somehow does.
	if g, err := st.globals(); err == nil {
		changes.Globals = g
	}

	if t.rankDirty || t.cfgChanged {
		e.boardDirty = true
	}
	e.lastUpdate = t.now

	return Result{Events: t.events, Changes: changes}
}

func (t *tx) emit(ev model.Event) {
	t.events = append(t.events, ev)
}

func (t *tx) hasPlayer(id ledger.PlayerID) bool {
	if _, ok := t.players[id]; ok {
		return true
	}
	_, ok := t.st.players[id]
	return ok
}

func (t *tx) player(id ledger.PlayerID) (*model.Player, error) {
	if p, ok := t.players[id]; ok {
		return p, nil
	}
	p, ok := t.st.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, id)
	}
	c := p.Clone()
	t.players[id] = c
	return c, nil
}

// self loads the calling player.
func (t *tx) self() (*model.Player, error) {
	return t.player(t.caller.ID)
}

func (t *tx) market(id ledger.MarketID) (*model.Market, error) {
	if m, ok := t.markets[id]; ok {
		return m, nil
	}
	m, ok := t.st.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	c := m.Clone()
	t.markets[id] = c
	return c, nil
}

func (t *tx) guild(id ledger.GuildID) (*model.Guild, error) {
	if t.deletedGuilds[id] {
		return nil, fmt.Errorf("%w: guild %d", ErrNotFound, id)
	}
	if g, ok := t.guilds[id]; ok {
		return g, nil
	}
	g, ok := t.st.guilds[id]
	if !ok {
		return nil, fmt.Errorf("%w: guild %d", ErrNotFound, id)
	}
	c := g.Clone()
	t.guilds[id] = c
	return c, nil
}

func (t *tx) deleteGuild(id ledger.GuildID) {
	t.deletedGuilds[id] = true
}

func (t *tx) prediction(key model.PredictionKey) (*model.PlayerPrediction, bool) {
	if pr, ok := t.predictions[key]; ok {
		return pr, true
	}
	pr, ok := t.st.predictions[key]
	if !ok {
		return nil, false
	}
	c := *pr
	t.predictions[key] = &c
	return &c, true
}

func (t *tx) period(key model.PeriodKey) (*model.PeriodPriceData, bool) {
	if pd, ok := t.periods[key]; ok {
		return pd, true
	}
	pd, ok := t.st.periods[key]
	if !ok {
		return nil, false
	}
	c := pd.Clone()
	t.periods[key] = c
	return c, true
}

// openPeriodKeys returns every unresolved period, committed or staged, in
// key order.
func (t *tx) openPeriodKeys() []model.PeriodKey {
	seen := make(map[model.PeriodKey]struct{}, len(t.st.openPeriods)+len(t.periods))
	for k := range t.st.openPeriods {
		seen[k] = struct{}{}
	}
	for k, pd := range t.periods {
		if pd.Resolved {
			delete(seen, k)
		} else {
			seen[k] = struct{}{}
		}
	}
	keys := make([]model.PeriodKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func sortedKeys[K ~string | ~uint64, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedPredictionKeys(m map[model.PredictionKey]*model.PlayerPrediction) []model.PredictionKey {
	keys := make([]model.PredictionKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Player != b.Player {
			return a.Player < b.Player
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.PeriodStart < b.PeriodStart
	})
	return keys
}

func sortedPeriodKeys(m map[model.PeriodKey]*model.PeriodPriceData) []model.PeriodKey {
	keys := make([]model.PeriodKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
