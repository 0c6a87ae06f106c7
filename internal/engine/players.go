package engine

import (
	"fmt"
	"strings"

	"github.com/atmx/prediction-engine/internal/achievement"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
	"github.com/atmx/prediction-engine/internal/progression"
)

const maxDisplayName = 64

func validDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxDisplayName {
		return fmt.Errorf("%w: display name must be 1-%d characters", ErrInvalidInput, maxDisplayName)
	}
	return nil
}

// Register creates the caller's player record with the initial token
// allocation.
func (e *Engine) Register(c Caller, displayName string, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		if c.ID == "" {
			return fmt.Errorf("%w: empty player id", ErrUnauthorized)
		}
		if err := validDisplayName(displayName); err != nil {
			return err
		}
		if t.hasPlayer(c.ID) {
			return fmt.Errorf("%w: player %s", ErrAlreadyExists, c.ID)
		}
		p := &model.Player{
			ID:           c.ID,
			DisplayName:  strings.TrimSpace(displayName),
			RegisteredAt: now,
			LastLogin:    now,
			Level:        1,
			Reputation:   t.cfg.InitialReputation,
		}
		t.players[c.ID] = p
		t.mint(p, t.cfg.InitialPlayerTokens)
		t.emit(model.PlayerRegistered{Player: p.ID, DisplayName: p.DisplayName, Tokens: t.cfg.InitialPlayerTokens, At: now})
		return nil
	})
}

// ClaimDailyReward grants the login reward once per cooldown.
func (e *Engine) ClaimDailyReward(c Caller, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if !progression.CooldownElapsed(p.LastLogin, now, t.cfg.DailyCooldown) {
			next := progression.NextClaim(p.LastLogin, t.cfg.DailyCooldown)
			return fmt.Errorf("%w: next claim at %s", ErrCooldownActive, next.Time())
		}
		p.LastLogin = now
		t.mint(p, t.cfg.DailyLoginReward)
		t.emit(model.DailyRewardClaimed{Player: p.ID, Amount: t.cfg.DailyLoginReward, At: now})
		return nil
	})
}

// UpdateProfile changes the caller's display name.
func (e *Engine) UpdateProfile(c Caller, displayName string, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		if err := validDisplayName(displayName); err != nil {
			return err
		}
		p, err := t.self()
		if err != nil {
			return err
		}
		p.DisplayName = strings.TrimSpace(displayName)
		t.rankDirty = true
		return nil
	})
}

// mint creates amount new points in p's balance.
func (t *tx) mint(p *model.Player, amount ledger.Amount) {
	if amount.IsZero() {
		return
	}
	p.TokenBalance = p.TokenBalance.Add(amount)
	p.TotalEarned = p.TotalEarned.Add(amount)
	t.totalSupply = t.totalSupply.Add(amount)
	t.rankDirty = true
}

// pay moves existing points into p's balance. Supply is unchanged.
func (t *tx) pay(p *model.Player, amount ledger.Amount) {
	if amount.IsZero() {
		return
	}
	p.TokenBalance = p.TokenBalance.Add(amount)
	p.TotalEarned = p.TotalEarned.Add(amount)
	t.rankDirty = true
}

// spend is a checked-spend from p's balance.
func (t *tx) spend(p *model.Player, cost ledger.Amount) error {
	rest, err := ledger.CheckedSpend(p.TokenBalance, cost)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	p.TokenBalance = rest
	p.TotalSpent = p.TotalSpent.Add(cost)
	return nil
}

// burn is a checked-spend whose points leave circulation.
func (t *tx) burn(p *model.Player, amount ledger.Amount) error {
	if err := t.spend(p, amount); err != nil {
		return err
	}
	t.totalSupply = t.totalSupply.Sub(amount)
	return nil
}

// penalize debits floor-to-zero and burns what was actually removed.
func (t *tx) penalize(p *model.Player, penalty ledger.Amount) ledger.Amount {
	rest, debited := ledger.FloorToZero(p.TokenBalance, penalty)
	p.TokenBalance = rest
	p.TotalSpent = p.TotalSpent.Add(debited)
	t.totalSupply = t.totalSupply.Sub(debited)
	return debited
}

// addExperience grants XP and applies every promotion it allows.
func (t *tx) addExperience(p *model.Player, xp uint64) {
	if xp == 0 {
		return
	}
	p.ExperiencePoints = progression.AddXP(p.ExperiencePoints, xp)
	for {
		next := progression.Promote(p.Level, p.ExperiencePoints)
		if next == p.Level {
			return
		}
		// One event per level crossed.
		old := p.Level
		p.Level = old + 1
		t.emit(model.PlayerLeveledUp{Player: p.ID, OldLevel: old, NewLevel: p.Level, At: t.now})
		t.rankDirty = true
	}
}

// evaluateAchievements grants every pending achievement to each staged
// player. Rewards can raise the level, which can unlock further entries, so
// evaluation repeats until nothing new is earned.
func (t *tx) evaluateAchievements() {
	for _, id := range sortedKeys(t.players) {
		p := t.players[id]
		for {
			a, ok := achievement.Next(t.st.catalogue, p)
			if !ok {
				break
			}
			p.AddAchievement(a.ID)
			t.mint(p, a.RewardTokens)
			t.emit(model.AchievementUnlocked{
				Player:        p.ID,
				AchievementID: a.ID,
				Name:          a.Name,
				RewardTokens:  a.RewardTokens,
				RewardXP:      a.RewardXP,
				At:            t.now,
			})
			t.addExperience(p, a.RewardXP)
		}
	}
}
