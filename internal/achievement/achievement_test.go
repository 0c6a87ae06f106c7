package achievement

import (
	"testing"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

func freshPlayer() *model.Player {
	return &model.Player{ID: "alice", Level: 1}
}

func TestCatalogue_OrderedUniqueIDs(t *testing.T) {
	seen := map[ledger.AchievementID]bool{}
	var prev ledger.AchievementID
	for _, a := range Catalogue() {
		if seen[a.ID] {
			t.Fatalf("duplicate achievement id %d", a.ID)
		}
		if a.ID <= prev {
			t.Fatalf("catalogue not in id order at %d", a.ID)
		}
		seen[a.ID] = true
		prev = a.ID
	}
}

func TestSatisfied(t *testing.T) {
	guild := ledger.GuildID(1)
	tests := []struct {
		name   string
		req    model.Requirement
		mutate func(p *model.Player)
	}{
		{"create market", model.Requirement{Kind: model.ReqCreateMarket}, func(p *model.Player) { p.MarketsCreated = 1 }},
		{"first buy", model.Requirement{Kind: model.ReqFirstBuy}, func(p *model.Player) { p.BuyCount = 1 }},
		{"first sell", model.Requirement{Kind: model.ReqFirstSell}, func(p *model.Player) { p.SellCount = 1 }},
		{"join guild", model.Requirement{Kind: model.ReqJoinGuild}, func(p *model.Player) { p.GuildID = &guild }},
		{"reach level", model.Requirement{Kind: model.ReqReachLevel, Threshold: 3}, func(p *model.Player) { p.Level = 3 }},
		{"win markets", model.Requirement{Kind: model.ReqWinMarkets, Threshold: 2}, func(p *model.Player) { p.MarketsWon = 2 }},
		{"win streak", model.Requirement{Kind: model.ReqWinStreak, Threshold: 3}, func(p *model.Player) { p.BestWinStreak = 3 }},
		{"total profit", model.Requirement{Kind: model.ReqTotalProfit, Threshold: 1000}, func(p *model.Player) { p.TotalProfit = ledger.FromInt(1000) }},
		{"participate", model.Requirement{Kind: model.ReqParticipateInMarkets, Threshold: 10}, func(p *model.Player) { p.MarketsParticipated = 10 }},
		{"create markets", model.Requirement{Kind: model.ReqCreateMarkets, Threshold: 5}, func(p *model.Player) { p.MarketsCreated = 5 }},
	}
	for _, tt := range tests {
		p := freshPlayer()
		if Satisfied(tt.req, p) {
			t.Errorf("%s: fresh player should not satisfy", tt.name)
		}
		tt.mutate(p)
		if !Satisfied(tt.req, p) {
			t.Errorf("%s: mutated player should satisfy", tt.name)
		}
	}
}

func TestSatisfied_UnknownKind(t *testing.T) {
	if Satisfied(model.Requirement{Kind: "bogus"}, freshPlayer()) {
		t.Error("unknown requirement must not be satisfied")
	}
}

func TestNext_SkipsEarnedInCatalogueOrder(t *testing.T) {
	p := freshPlayer()
	p.BuyCount = 1
	p.SellCount = 1

	a, ok := Next(Catalogue(), p)
	if !ok || a.ID != 2 {
		t.Fatalf("expected achievement 2 first, got %d (ok=%v)", a.ID, ok)
	}
	p.AddAchievement(a.ID)

	a, ok = Next(Catalogue(), p)
	if !ok || a.ID != 3 {
		t.Fatalf("expected achievement 3 next, got %d (ok=%v)", a.ID, ok)
	}
	p.AddAchievement(a.ID)

	if _, ok := Next(Catalogue(), p); ok {
		t.Error("nothing else should be pending")
	}
}
