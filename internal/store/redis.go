package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for event history. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// A player's cached histories live in one hash keyed by limit, so a single
// DEL invalidates every page.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Save(ctx context.Context, changes *model.Snapshot) error {
	return s.primary.Save(ctx, changes)
}

func (s *CachedStore) AppendEvents(ctx context.Context, records []model.EventRecord) error {
	if err := s.primary.AppendEvents(ctx, records); err != nil {
		return err
	}
	keys := []string{recentKey()}
	seen := make(map[ledger.PlayerID]bool)
	for _, r := range records {
		for _, id := range r.Subjects {
			if !seen[id] {
				seen[id] = true
				keys = append(keys, historyKey(id))
			}
		}
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) EventsByPlayer(ctx context.Context, id ledger.PlayerID, limit int) ([]model.EventRecord, error) {
	return s.readThrough(ctx, historyKey(id), limit, func() ([]model.EventRecord, error) {
		return s.primary.EventsByPlayer(ctx, id, limit)
	})
}

func (s *CachedStore) RecentEvents(ctx context.Context, limit int) ([]model.EventRecord, error) {
	return s.readThrough(ctx, recentKey(), limit, func() ([]model.EventRecord, error) {
		return s.primary.RecentEvents(ctx, limit)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) Load(ctx context.Context) (*model.Snapshot, error) {
	return s.primary.Load(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) readThrough(ctx context.Context, key string, limit int, load func() ([]model.EventRecord, error)) ([]model.EventRecord, error) {
	field := strconv.Itoa(limit)

	// Try cache.
	data, err := s.rdb.HGet(ctx, key, field).Bytes()
	if err == nil {
		var records []model.EventRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	// Cache miss: read from primary.
	records, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, s.ttl)
		_, _ = pipe.Exec(ctx)
	}
	return records, nil
}

func historyKey(id ledger.PlayerID) string { return fmt.Sprintf("events:player:%s", id) }
func recentKey() string                    { return "events:recent" }
