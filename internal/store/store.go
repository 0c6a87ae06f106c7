// Package store persists engine state and the event history. PostgreSQL is
// the source of truth, Redis a read-through cache for event history, and the
// in-memory store backs tests and development.
package store

import (
	"context"
	"errors"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// ErrNoState is returned by Load when nothing has been persisted yet.
var ErrNoState = errors.New("store: no persisted state")

// Store is the persistence interface.
type Store interface {
	// --- Entity state ---

	// Load returns every persisted entity as a full snapshot.
	Load(ctx context.Context) (*model.Snapshot, error)

	// Save upserts the entities in a change set and deletes the guilds it
	// lists as deleted. The change set's globals replace the stored ones.
	Save(ctx context.Context, changes *model.Snapshot) error

	// --- Event history ---

	// AppendEvents stores records. Records already stored are ignored.
	AppendEvents(ctx context.Context, records []model.EventRecord) error

	// EventsByPlayer returns the latest limit events naming the player,
	// oldest first. A limit of zero or less returns the whole history.
	EventsByPlayer(ctx context.Context, id ledger.PlayerID, limit int) ([]model.EventRecord, error)

	// RecentEvents returns the latest limit events, oldest first.
	RecentEvents(ctx context.Context, limit int) ([]model.EventRecord, error)
}

func mentions(r model.EventRecord, id ledger.PlayerID) bool {
	for _, s := range r.Subjects {
		if s == id {
			return true
		}
	}
	return false
}

// tail returns the last n records, or all of them when n <= 0.
func tail(records []model.EventRecord, n int) []model.EventRecord {
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]model.EventRecord, len(records))
	copy(out, records)
	return out
}
