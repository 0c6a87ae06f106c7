// Package api exposes the game engine over HTTP and streams its events over
// WebSocket.
//
// Every state-changing request becomes an action envelope stamped with the
// wall-clock time at the boundary. Envelopes are applied one at a time, then
// journalled, persisted and broadcast, so replaying the journal rebuilds the
// same state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/prediction-engine/internal/action"
	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/metrics"
	"github.com/atmx/prediction-engine/internal/model"
	"github.com/atmx/prediction-engine/internal/store"
)

// Journal records accepted actions.
type Journal interface {
	Append(ctx context.Context, env action.Envelope) (int64, error)
}

// Deps wires a Service. Journal, Hub, IsAdmin and Clock are optional.
type Deps struct {
	Engine  *engine.Engine
	Store   store.Store
	Journal Journal
	Hub     *WSHub
	IsAdmin func(ledger.PlayerID) bool
	Clock   func() time.Time
}

// Service handles engine operations. Uses a mutex for serialized action
// execution (single-instance); the engine itself never locks.
type Service struct {
	engine  *engine.Engine
	store   store.Store
	journal Journal
	hub     *WSHub
	isAdmin func(ledger.PlayerID) bool
	clock   func() time.Time
	mu      sync.Mutex
	seq     uint64 // last event sequence number handed out
}

// NewService creates a service and resumes the event sequence from the store.
func NewService(ctx context.Context, d Deps) (*Service, error) {
	if d.Engine == nil || d.Store == nil {
		return nil, errors.New("api: engine and store are required")
	}
	s := &Service{
		engine:  d.Engine,
		store:   d.Store,
		journal: d.Journal,
		hub:     d.Hub,
		isAdmin: d.IsAdmin,
		clock:   d.Clock,
	}
	if s.isAdmin == nil {
		s.isAdmin = func(ledger.PlayerID) bool { return false }
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	last, err := d.Store.RecentEvents(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("api: resume event sequence: %w", err)
	}
	if len(last) > 0 {
		s.seq = last[0].Seq
	}
	s.observeState()
	return s, nil
}

// Now is the service's clock as an engine timestamp.
func (s *Service) Now() ledger.Timestamp {
	return ledger.FromTime(s.clock())
}

// Caller returns the engine identity for id.
func (s *Service) Caller(id ledger.PlayerID) engine.Caller {
	return engine.Caller{ID: id, Admin: s.isAdmin(id)}
}

// Execute applies env, then journals and persists the result and publishes
// its events. It is the only write path into the engine.
func (s *Service) Execute(ctx context.Context, env action.Envelope) (engine.Result, []model.EventRecord, error) {
	start := time.Now()
	defer func() {
		metrics.ActionLatency.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := action.Apply(s.engine, env)
	if err != nil {
		kind := engine.Kind(err)
		metrics.ActionsTotal.WithLabelValues(string(env.Kind), kind).Inc()
		if errors.Is(err, engine.ErrPositionLimitExceeded) {
			metrics.PositionLimitRejections.Inc()
		}
		if kind == "Internal" {
			slog.Error("action failed", "kind", env.Kind, "player", env.Caller, "err", err)
		} else {
			slog.Debug("action rejected", "kind", env.Kind, "player", env.Caller, "reason", kind)
		}
		return engine.Result{}, nil, err
	}
	metrics.ActionsTotal.WithLabelValues(string(env.Kind), "ok").Inc()

	// Nothing committed; a replay of the journal would not see this action.
	if res.Changes == nil {
		slog.Debug("action was a no-op", "kind", env.Kind, "player", env.Caller)
		return res, nil, nil
	}

	// The engine has committed; a cancelled request must not stop the writes.
	ctx = context.WithoutCancel(ctx)

	if s.journal != nil {
		if _, err := s.journal.Append(ctx, env); err != nil {
			slog.Error("journal append failed", "kind", env.Kind, "player", env.Caller, "err", err)
		}
	}

	records := s.records(env, res.Events)
	if err := s.store.Save(ctx, res.Changes); err != nil {
		slog.Error("failed to persist changes", "kind", env.Kind, "err", err)
	}
	if err := s.store.AppendEvents(ctx, records); err != nil {
		slog.Error("failed to persist events", "kind", env.Kind, "count", len(records), "err", err)
	}

	s.observe(res.Events)
	if s.hub != nil {
		for _, r := range records {
			s.hub.Broadcast(r)
		}
	}

	slog.Info("action applied",
		"kind", env.Kind,
		"player", env.Caller,
		"events", len(records),
		"total_supply", s.engine.TotalSupply().String(),
	)
	return res, records, nil
}

// records stamps events with ids and sequence numbers.
func (s *Service) records(env action.Envelope, events []model.Event) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Error("failed to encode event", "type", ev.EventType(), "err", err)
			continue
		}
		s.seq++
		out = append(out, model.EventRecord{
			ID:       uuid.NewString(),
			Seq:      s.seq,
			Type:     ev.EventType(),
			Subjects: ev.Subjects(),
			At:       env.At,
			Payload:  payload,
		})
	}
	return out
}

func (s *Service) observe(events []model.Event) {
	for _, ev := range events {
		switch ev := ev.(type) {
		case model.TradeExecuted:
			policy := "unknown"
			if m, err := s.engine.Market(ev.MarketID); err == nil {
				policy = string(m.Policy)
			}
			metrics.TradesTotal.WithLabelValues(policy, string(ev.Side)).Inc()
			metrics.MarketVolume.WithLabelValues(strconv.FormatUint(uint64(ev.MarketID), 10), string(ev.Side)).
				Add(ev.Shares.InexactFloat64())
		case model.PredictionResolved:
			status := "incorrect"
			if ev.Correct {
				status = "correct"
			}
			metrics.PredictionsSettled.WithLabelValues(string(ev.Period), status).Inc()
		case model.AchievementUnlocked:
			metrics.AchievementsUnlocked.Inc()
		case model.PlayerLeveledUp:
			metrics.LevelUps.Inc()
		}
	}
	s.observeState()
}

func (s *Service) observeState() {
	metrics.TotalSupply.Set(s.engine.TotalSupply().InexactFloat64())
	active := 0
	for _, m := range s.engine.Markets() {
		if m.Status == model.StatusActive {
			active++
		}
	}
	metrics.ActiveMarkets.Set(float64(active))
}
