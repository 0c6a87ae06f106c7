// Package achievement holds the fixed achievement catalogue and evaluates
// requirement predicates against player state.
package achievement

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

func entry(id ledger.AchievementID, name, desc string, req model.Requirement, tokens int64, xp uint64) model.Achievement {
	return model.Achievement{
		ID:           id,
		Name:         name,
		Description:  desc,
		Requirement:  req,
		RewardTokens: ledger.FromInt(tokens),
		RewardXP:     xp,
	}
}

// Catalogue returns the achievements in evaluation order. The slice is a
// fresh copy on every call.
func Catalogue() []model.Achievement {
	return []model.Achievement{
		entry(1, "Market Creator", "Create your first market", model.Requirement{Kind: model.ReqCreateMarket}, 100, 200),
		entry(2, "First Buyer", "Make your first purchase", model.Requirement{Kind: model.ReqFirstBuy}, 50, 100),
		entry(3, "First Seller", "Make your first sale", model.Requirement{Kind: model.ReqFirstSell}, 50, 100),
		entry(4, "Guild Member", "Join a guild", model.Requirement{Kind: model.ReqJoinGuild}, 150, 300),
		entry(5, "Level 2 Achiever", "Reach level 2", model.Requirement{Kind: model.ReqReachLevel, Threshold: 2}, 200, 400),
		entry(6, "Level 3 Achiever", "Reach level 3", model.Requirement{Kind: model.ReqReachLevel, Threshold: 3}, 400, 800),
		entry(7, "Level 5 Achiever", "Reach level 5", model.Requirement{Kind: model.ReqReachLevel, Threshold: 5}, 1000, 2000),
		entry(8, "First Victory", "Win a market", model.Requirement{Kind: model.ReqWinMarkets, Threshold: 1}, 250, 500),
		entry(9, "Hot Streak", "Call three periods in a row", model.Requirement{Kind: model.ReqWinStreak, Threshold: 3}, 300, 600),
		entry(10, "Profiteer", "Take 1,000 points of profit from markets", model.Requirement{Kind: model.ReqTotalProfit, Threshold: 1000}, 500, 1000),
		entry(11, "Regular", "Trade in markets ten times", model.Requirement{Kind: model.ReqParticipateInMarkets, Threshold: 10}, 200, 400),
		entry(12, "Market Mogul", "Create five markets", model.Requirement{Kind: model.ReqCreateMarkets, Threshold: 5}, 500, 1000),
	}
}

// Satisfied evaluates req against p.
func Satisfied(req model.Requirement, p *model.Player) bool {
	switch req.Kind {
	case model.ReqCreateMarket:
		return p.MarketsCreated > 0
	case model.ReqFirstBuy:
		return p.BuyCount > 0
	case model.ReqFirstSell:
		return p.SellCount > 0
	case model.ReqJoinGuild:
		return p.GuildID != nil
	case model.ReqReachLevel:
		return uint64(p.Level) >= req.Threshold
	case model.ReqWinMarkets:
		return p.MarketsWon >= req.Threshold
	case model.ReqWinStreak:
		return uint64(p.BestWinStreak) >= req.Threshold
	case model.ReqTotalProfit:
		return p.TotalProfit.Decimal().GreaterThanOrEqual(decimal.NewFromUint64(req.Threshold))
	case model.ReqParticipateInMarkets:
		return p.MarketsParticipated >= req.Threshold
	case model.ReqCreateMarkets:
		return p.MarketsCreated >= req.Threshold
	}
	return false
}

// Next returns the first catalogue entry, in order, that p has not earned
// and now satisfies. ok is false when nothing is pending.
func Next(catalogue []model.Achievement, p *model.Player) (a model.Achievement, ok bool) {
	for _, a := range catalogue {
		if p.HasAchievement(a.ID) {
			continue
		}
		if Satisfied(a.Requirement, p) {
			return a, true
		}
	}
	return model.Achievement{}, false
}
