// Package action defines the serialized form of engine actions.
//
// Every state-changing request is captured as an Envelope: the action kind,
// the verified caller, the timestamp the host assigned and a JSON payload.
// Applying the same envelopes in the same order to an empty engine always
// yields the same state, which is what the journal relies on for replay.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// Kind names an action.
type Kind string

const (
	KindRegister          Kind = "register"
	KindClaimDailyReward  Kind = "claim_daily_reward"
	KindUpdateProfile     Kind = "update_profile"
	KindCreateMarket      Kind = "create_market"
	KindBuy               Kind = "buy"
	KindSell              Kind = "sell"
	KindVoteOutcome       Kind = "vote_outcome"
	KindResolveMarket     Kind = "resolve_market"
	KindClaimWinnings     Kind = "claim_winnings"
	KindCancelMarket      Kind = "cancel_market"
	KindMakePrediction    Kind = "make_prediction"
	KindResolvePrediction Kind = "resolve_prediction"
	KindUpdatePrice       Kind = "update_price"
	KindCreateGuild       Kind = "create_guild"
	KindJoinGuild         Kind = "join_guild"
	KindLeaveGuild        Kind = "leave_guild"
	KindContributeToGuild Kind = "contribute_to_guild"
	KindUpdateConfig      Kind = "update_config"
	KindMintPoints        Kind = "mint_points"
)

// playerIDRegex matches identifiers like "alice", "0xa1b2c3" or "bot_7-b".
var playerIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

var (
	ErrInvalidPlayerID = errors.New("action: invalid player id")
	ErrUnknownKind     = errors.New("action: unknown action kind")
)

// Envelope is one journalled action.
type Envelope struct {
	Kind    Kind             `json:"kind"`
	Caller  ledger.PlayerID  `json:"caller"`
	Admin   bool             `json:"admin,omitempty"`
	At      ledger.Timestamp `json:"at"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// Payloads. Actions that need nothing beyond the caller have none.
type (
	Profile struct {
		DisplayName string `json:"display_name"`
	}
	MarketRef struct {
		MarketID ledger.MarketID `json:"market_id"`
	}
	OutcomeChoice struct {
		MarketID ledger.MarketID  `json:"market_id"`
		Outcome  ledger.OutcomeID `json:"outcome"`
	}
	PredictionChoice struct {
		Period  model.PeriodKind   `json:"period"`
		Outcome model.PriceOutcome `json:"outcome"`
	}
	PeriodRef struct {
		Period      model.PeriodKind `json:"period"`
		PeriodStart ledger.Timestamp `json:"period_start"`
	}
	Price struct {
		Price ledger.Amount `json:"price"`
	}
	GuildName struct {
		Name string `json:"name"`
	}
	GuildRef struct {
		GuildID ledger.GuildID `json:"guild_id"`
	}
	Points struct {
		Amount ledger.Amount `json:"amount"`
	}
)

// ValidatePlayerID checks the shape of a caller identity.
func ValidatePlayerID(id ledger.PlayerID) error {
	if !playerIDRegex.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidPlayerID, id)
	}
	return nil
}

// New builds an envelope, encoding payload as JSON. A nil payload is
// omitted.
func New(kind Kind, c engine.Caller, at ledger.Timestamp, payload any) (Envelope, error) {
	env := Envelope{Kind: kind, Caller: c.ID, Admin: c.Admin, At: at}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("action: encode %s payload: %w", kind, err)
	}
	env.Payload = raw
	return env, nil
}

// Identity returns the engine caller of the envelope.
func (env Envelope) Identity() engine.Caller {
	return engine.Caller{ID: env.Caller, Admin: env.Admin}
}

// Encode serializes an envelope.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses and validates a serialized envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("action: decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: empty", ErrUnknownKind)
	}
	return env, nil
}

func decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Payload) == 0 {
		return v, fmt.Errorf("%w: %s requires a payload", engine.ErrInvalidInput, env.Kind)
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", engine.ErrInvalidInput, env.Kind, err)
	}
	return v, nil
}

// Apply validates env and dispatches it onto e.
func Apply(e *engine.Engine, env Envelope) (engine.Result, error) {
	if err := ValidatePlayerID(env.Caller); err != nil {
		return engine.Result{}, fmt.Errorf("%w: %v", engine.ErrUnauthorized, err)
	}
	c, at := env.Identity(), env.At

	switch env.Kind {
	case KindRegister:
		p, err := decode[Profile](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.Register(c, p.DisplayName, at)

	case KindClaimDailyReward:
		return e.ClaimDailyReward(c, at)

	case KindUpdateProfile:
		p, err := decode[Profile](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.UpdateProfile(c, p.DisplayName, at)

	case KindCreateMarket:
		req, err := decode[engine.CreateMarketRequest](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.CreateMarket(c, req, at)

	case KindBuy, KindSell:
		req, err := decode[engine.TradeRequest](env)
		if err != nil {
			return engine.Result{}, err
		}
		if env.Kind == KindBuy {
			return e.Buy(c, req, at)
		}
		return e.Sell(c, req, at)

	case KindVoteOutcome:
		v, err := decode[OutcomeChoice](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.VoteOutcome(c, v.MarketID, v.Outcome, at)

	case KindResolveMarket:
		v, err := decode[OutcomeChoice](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.ResolveMarket(c, v.MarketID, v.Outcome, at)

	case KindClaimWinnings, KindCancelMarket:
		ref, err := decode[MarketRef](env)
		if err != nil {
			return engine.Result{}, err
		}
		if env.Kind == KindClaimWinnings {
			return e.ClaimWinnings(c, ref.MarketID, at)
		}
		return e.CancelMarket(c, ref.MarketID, at)

	case KindMakePrediction:
		v, err := decode[PredictionChoice](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.MakePrediction(c, v.Period, v.Outcome, at)

	case KindResolvePrediction:
		ref, err := decode[PeriodRef](env)
		if err != nil {
			return engine.Result{}, err
		}
		_, _, res, err := e.ResolvePrediction(c, ref.Period, ref.PeriodStart, at)
		return res, err

	case KindUpdatePrice:
		v, err := decode[Price](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.UpdatePrice(c, v.Price, at)

	case KindCreateGuild:
		v, err := decode[GuildName](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.CreateGuild(c, v.Name, at)

	case KindJoinGuild:
		ref, err := decode[GuildRef](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.JoinGuild(c, ref.GuildID, at)

	case KindLeaveGuild:
		return e.LeaveGuild(c, at)

	case KindContributeToGuild:
		v, err := decode[Points](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.ContributeToGuild(c, v.Amount, at)

	case KindUpdateConfig:
		cfg, err := decode[engine.Config](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.UpdateConfig(c, cfg, at)

	case KindMintPoints:
		v, err := decode[Points](env)
		if err != nil {
			return engine.Result{}, err
		}
		return e.MintPoints(c, v.Amount, at)
	}
	return engine.Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}
