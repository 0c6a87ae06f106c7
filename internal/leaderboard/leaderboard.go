// Package leaderboard ranks players and guilds by cumulative earnings.
//
// Recompute is pure: it reads the given players and guilds, never modifies
// them, and returns the same ordering for the same input regardless of when
// or how often it is called.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// Default truncation sizes.
const (
	DefaultTopPlayers = 50
	DefaultTopGuilds  = 20
)

// Options controls truncation. Zero values select the defaults.
type Options struct {
	TopPlayers int
	TopGuilds  int
}

func (o Options) withDefaults() Options {
	if o.TopPlayers <= 0 {
		o.TopPlayers = DefaultTopPlayers
	}
	if o.TopGuilds <= 0 {
		o.TopGuilds = DefaultTopGuilds
	}
	return o
}

var hundred = decimal.NewFromInt(100)

// WinRate returns markets won over markets participated as a percentage
// rounded to two places.
func WinRate(p *model.Player) decimal.Decimal {
	if p.MarketsParticipated == 0 {
		return decimal.Zero
	}
	won := decimal.NewFromUint64(p.MarketsWon)
	total := decimal.NewFromUint64(p.MarketsParticipated)
	return won.Mul(hundred).DivRound(total, 2)
}

// Recompute builds the leaderboard. Players are scored by total_earned and
// guilds by the sum of their current members' total_earned; both sort
// descending with ties broken by identifier ascending.
func Recompute(players []*model.Player, guilds []*model.Guild, now ledger.Timestamp, opts Options) model.Leaderboard {
	opts = opts.withDefaults()

	byID := make(map[ledger.PlayerID]*model.Player, len(players))
	ranked := make([]*model.Player, 0, len(players))
	for _, p := range players {
		byID[p.ID] = p
		ranked = append(ranked, p)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].TotalEarned.Cmp(ranked[j].TotalEarned); c != 0 {
			return c > 0
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > opts.TopPlayers {
		ranked = ranked[:opts.TopPlayers]
	}

	lb := model.Leaderboard{
		Players:   make([]model.PlayerEntry, 0, len(ranked)),
		Guilds:    []model.GuildEntry{},
		UpdatedAt: now,
	}
	for i, p := range ranked {
		lb.Players = append(lb.Players, model.PlayerEntry{
			Rank:        i + 1,
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			TotalEarned: p.TotalEarned,
			WinRate:     WinRate(p),
			Level:       p.Level,
		})
	}

	guildEntries := make([]model.GuildEntry, 0, len(guilds))
	for _, g := range guilds {
		total := ledger.Zero()
		for _, m := range g.Members {
			if p, ok := byID[m]; ok {
				total = total.Add(p.TotalEarned)
			}
		}
		guildEntries = append(guildEntries, model.GuildEntry{
			GuildID:     g.ID,
			Name:        g.Name,
			TotalEarned: total,
			MemberCount: len(g.Members),
		})
	}
	sort.Slice(guildEntries, func(i, j int) bool {
		if c := guildEntries[i].TotalEarned.Cmp(guildEntries[j].TotalEarned); c != 0 {
			return c > 0
		}
		return guildEntries[i].GuildID < guildEntries[j].GuildID
	})
	if len(guildEntries) > opts.TopGuilds {
		guildEntries = guildEntries[:opts.TopGuilds]
	}
	for i := range guildEntries {
		guildEntries[i].Rank = i + 1
	}
	lb.Guilds = guildEntries

	return lb
}
