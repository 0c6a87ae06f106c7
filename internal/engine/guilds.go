package engine

import (
	"fmt"
	"strings"

	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

const maxGuildName = 64

// CreateGuild founds a guild with the caller as its only member.
func (e *Engine) CreateGuild(c Caller, name string, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if p.GuildID != nil {
			return fmt.Errorf("%w: player %s is in guild %d", ErrGuildMembershipConflict, p.ID, *p.GuildID)
		}
		name = strings.TrimSpace(name)
		if name == "" || len(name) > maxGuildName {
			return fmt.Errorf("%w: guild name must be 1-%d characters", ErrInvalidInput, maxGuildName)
		}
		if t.guildNameTaken(name) {
			return fmt.Errorf("%w: guild %q", ErrAlreadyExists, name)
		}

		t.nextGuildID++
		g := &model.Guild{
			ID:        ledger.GuildID(t.nextGuildID),
			Name:      name,
			Founder:   p.ID,
			Members:   []ledger.PlayerID{p.ID},
			CreatedAt: now,
		}
		t.guilds[g.ID] = g
		id := g.ID
		p.GuildID = &id
		t.rankDirty = true
		t.emit(model.GuildCreated{GuildID: g.ID, Name: g.Name, Founder: p.ID, At: now})
		return nil
	})
}

// JoinGuild adds the caller to a guild.
func (e *Engine) JoinGuild(c Caller, id ledger.GuildID, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if p.GuildID != nil {
			return fmt.Errorf("%w: player %s is in guild %d", ErrGuildMembershipConflict, p.ID, *p.GuildID)
		}
		g, err := t.guild(id)
		if err != nil {
			return err
		}
		g.AddMember(p.ID)
		gid := g.ID
		p.GuildID = &gid
		t.rankDirty = true
		t.emit(model.GuildJoined{GuildID: id, Player: p.ID, At: now})
		return nil
	})
}

// LeaveGuild removes the caller from their guild. The founder may only leave
// once every other member has; the guild is then disbanded and its shared
// pool is paid to the founder.
func (e *Engine) LeaveGuild(c Caller, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if p.GuildID == nil {
			return fmt.Errorf("%w: player %s", ErrNotGuildMember, p.ID)
		}
		g, err := t.guild(*p.GuildID)
		if err != nil {
			return err
		}
		if p.ID == g.Founder && len(g.Members) > 1 {
			return fmt.Errorf("%w: the founder cannot leave guild %d while it has members", ErrGuildMembershipConflict, g.ID)
		}
		g.RemoveMember(p.ID)
		p.GuildID = nil

		disbanded := len(g.Members) == 0
		if disbanded {
			t.pay(p, g.SharedPool)
			g.SharedPool = ledger.Zero()
			t.deleteGuild(g.ID)
		}
		t.rankDirty = true
		t.emit(model.GuildLeft{GuildID: g.ID, Player: p.ID, Disbanded: disbanded, At: now})
		return nil
	})
}

// ContributeToGuild moves points from the caller into their guild's shared
// pool.
func (e *Engine) ContributeToGuild(c Caller, amount ledger.Amount, now ledger.Timestamp) (Result, error) {
	return e.apply(c, now, func(t *tx) error {
		p, err := t.self()
		if err != nil {
			return err
		}
		if p.GuildID == nil {
			return fmt.Errorf("%w: player %s", ErrNotGuildMember, p.ID)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: contribution", ErrInvalidAmount)
		}
		g, err := t.guild(*p.GuildID)
		if err != nil {
			return err
		}
		if err := t.spend(p, amount); err != nil {
			return err
		}
		g.SharedPool = g.SharedPool.Add(amount)
		t.emit(model.GuildContribution{GuildID: g.ID, Player: p.ID, Amount: amount, At: now})
		return nil
	})
}

// Guilds returns copies of all guilds ordered by id.
func (e *Engine) Guilds() []*model.Guild {
	out := make([]*model.Guild, 0, len(e.state.guilds))
	for _, id := range sortedKeys(e.state.guilds) {
		out = append(out, e.state.guilds[id].Clone())
	}
	return out
}

func (t *tx) guildNameTaken(name string) bool {
	for id, g := range t.guilds {
		if !t.deletedGuilds[id] && strings.EqualFold(g.Name, name) {
			return true
		}
	}
	for id, g := range t.st.guilds {
		if _, staged := t.guilds[id]; staged {
			continue
		}
		if strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}
