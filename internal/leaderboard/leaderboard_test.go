package leaderboard

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

func player(id string, earned int64) *model.Player {
	return &model.Player{ID: ledger.PlayerID(id), DisplayName: id, TotalEarned: ledger.FromInt(earned), Level: 1}
}

func TestRecompute_SortsDescendingWithIDTieBreak(t *testing.T) {
	players := []*model.Player{
		player("carol", 300),
		player("bob", 500),
		player("dave", 300),
		player("alice", 500),
	}
	lb := Recompute(players, nil, 42, Options{})

	want := []ledger.PlayerID{"alice", "bob", "carol", "dave"}
	for i, e := range lb.Players {
		if e.PlayerID != want[i] {
			t.Errorf("rank %d: expected %s, got %s", i+1, want[i], e.PlayerID)
		}
		if e.Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, e.Rank)
		}
	}
	if lb.UpdatedAt != 42 {
		t.Errorf("expected UpdatedAt 42, got %d", lb.UpdatedAt)
	}
}

func TestRecompute_Deterministic(t *testing.T) {
	var players []*model.Player
	for i := 0; i < 80; i++ {
		players = append(players, player(fmt.Sprintf("p%02d", i), int64(i%7)*100))
	}
	first := Recompute(players, nil, 1, Options{})

	// Reverse the input order; output must not change.
	reversed := make([]*model.Player, len(players))
	for i, p := range players {
		reversed[len(players)-1-i] = p
	}
	second := Recompute(reversed, nil, 1, Options{})

	if !reflect.DeepEqual(first, second) {
		t.Error("recomputations differ for identical state")
	}
	if len(first.Players) != DefaultTopPlayers {
		t.Errorf("expected truncation to %d, got %d", DefaultTopPlayers, len(first.Players))
	}
}

func TestRecompute_GuildScoreFromCurrentMembers(t *testing.T) {
	players := []*model.Player{player("a", 100), player("b", 200), player("c", 1000)}
	guilds := []*model.Guild{
		{ID: 1, Name: "one", Founder: "a", Members: []ledger.PlayerID{"a", "b"}},
		{ID: 2, Name: "two", Founder: "c", Members: []ledger.PlayerID{"c"}},
		{ID: 3, Name: "three", Founder: "x", Members: []ledger.PlayerID{"x"}},
	}
	lb := Recompute(players, guilds, 0, Options{})

	if len(lb.Guilds) != 3 {
		t.Fatalf("expected 3 guilds, got %d", len(lb.Guilds))
	}
	if lb.Guilds[0].GuildID != 2 || !lb.Guilds[0].TotalEarned.Equal(ledger.FromInt(1000)) {
		t.Errorf("unexpected first guild %+v", lb.Guilds[0])
	}
	if lb.Guilds[1].GuildID != 1 || !lb.Guilds[1].TotalEarned.Equal(ledger.FromInt(300)) || lb.Guilds[1].MemberCount != 2 {
		t.Errorf("unexpected second guild %+v", lb.Guilds[1])
	}
	if !lb.Guilds[2].TotalEarned.IsZero() {
		t.Errorf("unknown members contribute nothing, got %s", lb.Guilds[2].TotalEarned)
	}
}

func TestRecompute_TruncatesGuilds(t *testing.T) {
	var guilds []*model.Guild
	for i := 1; i <= 25; i++ {
		guilds = append(guilds, &model.Guild{ID: ledger.GuildID(i)})
	}
	lb := Recompute(nil, guilds, 0, Options{TopGuilds: 5})
	if len(lb.Guilds) != 5 {
		t.Errorf("expected 5 guilds, got %d", len(lb.Guilds))
	}
	if lb.Guilds[0].GuildID != 1 {
		t.Errorf("ties should break by id ascending, got %d first", lb.Guilds[0].GuildID)
	}
}

func TestRecompute_DoesNotMutateInput(t *testing.T) {
	players := []*model.Player{player("b", 1), player("a", 2)}
	Recompute(players, nil, 0, Options{})
	if players[0].ID != "b" || players[1].ID != "a" {
		t.Error("input slice was reordered")
	}
}

func TestWinRate(t *testing.T) {
	p := player("a", 0)
	if !WinRate(p).IsZero() {
		t.Error("expected zero win rate with no participation")
	}
	p.MarketsParticipated = 3
	p.MarketsWon = 1
	if got := WinRate(p); !got.Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("expected 33.33, got %s", got)
	}
}
