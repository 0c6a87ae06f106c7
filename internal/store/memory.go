package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	players     map[ledger.PlayerID]model.Player
	markets     map[ledger.MarketID]model.Market
	guilds      map[ledger.GuildID]model.Guild
	predictions map[model.PredictionKey]model.PlayerPrediction
	periods     map[model.PeriodKey]model.PeriodPriceData
	globals     *model.Globals
	events      []model.EventRecord
	seen        map[string]struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:     make(map[ledger.PlayerID]model.Player),
		markets:     make(map[ledger.MarketID]model.Market),
		guilds:      make(map[ledger.GuildID]model.Guild),
		predictions: make(map[model.PredictionKey]model.PlayerPrediction),
		periods:     make(map[model.PeriodKey]model.PeriodPriceData),
		seen:        make(map[string]struct{}),
	}
}

func (s *MemoryStore) Load(_ context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.globals == nil {
		return nil, ErrNoState
	}

	snap := &model.Snapshot{Globals: *s.globals}
	for _, p := range s.players {
		snap.Players = append(snap.Players, *p.Clone())
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	for _, m := range s.markets {
		snap.Markets = append(snap.Markets, *m.Clone())
	}
	sort.Slice(snap.Markets, func(i, j int) bool { return snap.Markets[i].ID < snap.Markets[j].ID })
	for _, g := range s.guilds {
		snap.Guilds = append(snap.Guilds, *g.Clone())
	}
	sort.Slice(snap.Guilds, func(i, j int) bool { return snap.Guilds[i].ID < snap.Guilds[j].ID })
	for _, p := range s.predictions {
		snap.Predictions = append(snap.Predictions, p)
	}
	sort.Slice(snap.Predictions, func(i, j int) bool {
		a, b := snap.Predictions[i], snap.Predictions[j]
		if a.Player != b.Player {
			return a.Player < b.Player
		}
		return model.PeriodKey{Kind: a.Kind, PeriodStart: a.PeriodStart}.Less(
			model.PeriodKey{Kind: b.Kind, PeriodStart: b.PeriodStart})
	})
	for _, p := range s.periods {
		snap.Periods = append(snap.Periods, *p.Clone())
	}
	sort.Slice(snap.Periods, func(i, j int) bool { return snap.Periods[i].Key().Less(snap.Periods[j].Key()) })
	return snap, nil
}

func (s *MemoryStore) Save(_ context.Context, changes *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store copies to avoid external mutation.
	for i := range changes.Players {
		s.players[changes.Players[i].ID] = *changes.Players[i].Clone()
	}
	for i := range changes.Markets {
		s.markets[changes.Markets[i].ID] = *changes.Markets[i].Clone()
	}
	for i := range changes.Guilds {
		s.guilds[changes.Guilds[i].ID] = *changes.Guilds[i].Clone()
	}
	for _, id := range changes.DeletedGuilds {
		delete(s.guilds, id)
	}
	for _, p := range changes.Predictions {
		s.predictions[p.Key()] = p
	}
	for i := range changes.Periods {
		s.periods[changes.Periods[i].Key()] = *changes.Periods[i].Clone()
	}
	g := changes.Globals
	s.globals = &g
	return nil
}

func (s *MemoryStore) AppendEvents(_ context.Context, records []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.seen[r.ID]; ok {
			continue
		}
		s.seen[r.ID] = struct{}{}
		s.events = append(s.events, r)
	}
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].Seq < s.events[j].Seq })
	return nil
}

func (s *MemoryStore) EventsByPlayer(_ context.Context, id ledger.PlayerID, limit int) ([]model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EventRecord
	for _, r := range s.events {
		if mentions(r, id) {
			out = append(out, r)
		}
	}
	return tail(out, limit), nil
}

func (s *MemoryStore) RecentEvents(_ context.Context, limit int) ([]model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.events, limit), nil
}
