package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)

func record(seq uint64, subjects ...ledger.PlayerID) model.EventRecord {
	return model.EventRecord{
		ID:       "ev-" + ledger.MarketID(seq).String(),
		Seq:      seq,
		Type:     model.EventTradeExecuted,
		Subjects: subjects,
		At:       ledger.Timestamp(seq),
		Payload:  json.RawMessage(`{}`),
	}
}

func TestMemoryStore_LoadEmpty(t *testing.T) {
	_, err := NewMemoryStore().Load(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestMemoryStore_SaveMergesChangeSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	gid := ledger.GuildID(1)
	require.NoError(t, s.Save(ctx, &model.Snapshot{
		Players: []model.Player{
			{ID: "bob", TokenBalance: ledger.FromInt(10), Level: 1},
			{ID: "alice", TokenBalance: ledger.FromInt(5), Level: 1, GuildID: &gid},
		},
		Guilds:  []model.Guild{{ID: gid, Name: "owls", Founder: "alice", Members: []ledger.PlayerID{"alice"}}},
		Globals: model.Globals{TotalSupply: ledger.FromInt(15), NextGuildID: 2},
	}))
	require.NoError(t, s.Save(ctx, &model.Snapshot{
		Players:       []model.Player{{ID: "alice", TokenBalance: ledger.FromInt(7), Level: 2}},
		DeletedGuilds: []ledger.GuildID{gid},
		Globals:       model.Globals{TotalSupply: ledger.FromInt(17), NextGuildID: 2},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, ledger.PlayerID("alice"), snap.Players[0].ID)
	assert.True(t, snap.Players[0].TokenBalance.Equal(ledger.FromInt(7)))
	assert.Nil(t, snap.Players[0].GuildID)
	assert.Empty(t, snap.Guilds)
	assert.True(t, snap.Globals.TotalSupply.Equal(ledger.FromInt(17)))
}

func TestMemoryStore_SaveCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	changes := &model.Snapshot{Players: []model.Player{{ID: "bob", Achievements: []ledger.AchievementID{1}}}}
	require.NoError(t, s.Save(ctx, changes))
	changes.Players[0].Achievements[0] = 99

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.AchievementID{1}, snap.Players[0].Achievements)
}

func TestMemoryStore_EventHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendEvents(ctx, []model.EventRecord{
		record(1, "alice"),
		record(2, "bob"),
		record(3, "alice", "bob"),
		record(4),
	}))
	// Re-appending is a no-op.
	require.NoError(t, s.AppendEvents(ctx, []model.EventRecord{record(3, "alice", "bob")}))

	all, err := s.EventsByPlayer(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].Seq)
	assert.Equal(t, uint64(3), all[1].Seq)

	latest, err := s.EventsByPlayer(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, uint64(3), latest[0].Seq)

	recent, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(3), recent[0].Seq)
	assert.Equal(t, uint64(4), recent[1].Seq)
}
