package action

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

var t0 = ledger.FromTime(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

func env(t *testing.T, kind Kind, caller ledger.PlayerID, admin bool, at ledger.Timestamp, payload any) Envelope {
	t.Helper()
	e, err := New(kind, engine.Caller{ID: caller, Admin: admin}, at, payload)
	require.NoError(t, err)
	return e
}

// script is a small game: two players, a guild, a prediction cycle and a
// fixed-ratio market.
func script(t *testing.T) []Envelope {
	t.Helper()
	hour := func(h int) ledger.Timestamp { return t0.Add(time.Duration(h) * time.Hour) }
	return []Envelope{
		env(t, KindRegister, "alice", false, hour(0), Profile{DisplayName: "Alice"}),
		env(t, KindRegister, "bob", false, hour(0), Profile{DisplayName: "Bob"}),
		env(t, KindMintPoints, "oracle", true, hour(0), Points{Amount: ledger.FromInt(1000)}),
		env(t, KindCreateGuild, "alice", false, hour(1), GuildName{Name: "Owls"}),
		env(t, KindJoinGuild, "bob", false, hour(1), GuildRef{GuildID: 1}),
		env(t, KindUpdatePrice, "oracle", true, hour(1), Price{Price: ledger.FromInt(100)}),
		env(t, KindMakePrediction, "alice", false, hour(2), PredictionChoice{Period: model.PeriodDaily, Outcome: model.OutcomeRise}),
		env(t, KindUpdatePrice, "oracle", true, hour(24), Price{Price: ledger.FromInt(120)}),
		env(t, KindClaimDailyReward, "bob", false, hour(25), nil),
		env(t, KindContributeToGuild, "bob", false, hour(26), Points{Amount: ledger.FromInt(25)}),
	}
}

func snapshot(t *testing.T, e *engine.Engine) string {
	t.Helper()
	snap, err := e.Snapshot()
	require.NoError(t, err)
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	return string(b)
}

func TestApply_ReplayIsDeterministic(t *testing.T) {
	run := func() *engine.Engine {
		e, err := engine.New(engine.DefaultConfig())
		require.NoError(t, err)
		for i, en := range script(t) {
			_, err := Apply(e, en)
			require.NoError(t, err, "action %d (%s)", i, en.Kind)
		}
		return e
	}
	a, b := run(), run()
	assert.JSONEq(t, snapshot(t, a), snapshot(t, b))
	assert.Equal(t, a.Leaderboard(), b.Leaderboard())

	alice, err := a.Player("alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), alice.WinStreak)
}

func TestApply_RoundTripThroughEncoding(t *testing.T) {
	direct, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)
	decoded, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)

	for _, en := range script(t) {
		_, err := Apply(direct, en)
		require.NoError(t, err)

		raw, err := Encode(en)
		require.NoError(t, err)
		back, err := Decode(raw)
		require.NoError(t, err)
		_, err = Apply(decoded, back)
		require.NoError(t, err)
	}
	assert.JSONEq(t, snapshot(t, direct), snapshot(t, decoded))
}

func TestApply_Errors(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)

	_, err = Apply(e, Envelope{Kind: "teleport", Caller: "alice", At: t0})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Apply(e, env(t, KindRegister, "bad id!", false, t0, Profile{DisplayName: "x"}))
	assert.ErrorIs(t, err, engine.ErrUnauthorized)

	_, err = Apply(e, Envelope{Kind: KindRegister, Caller: "alice", At: t0})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = Apply(e, Envelope{Kind: KindRegister, Caller: "alice", At: t0, Payload: json.RawMessage(`{"display_name":"A","extra":1}`)})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = Apply(e, Envelope{Kind: KindMintPoints, Caller: "oracle", Admin: true, At: t0, Payload: json.RawMessage(`{"amount":"-5"}`)})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = Apply(e, env(t, KindMintPoints, "alice", false, t0, Points{Amount: ledger.FromInt(5)}))
	assert.ErrorIs(t, err, engine.ErrUnauthorized)
}

func TestApply_TradeRoundTrip(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig())
	require.NoError(t, err)
	_, err = Apply(e, env(t, KindRegister, "dave", false, t0, Profile{DisplayName: "Dave"}))
	require.NoError(t, err)

	_, err = Apply(e, env(t, KindBuy, "dave", false, t0, engine.TradeRequest{MarketID: 9, Shares: ledger.FromInt(10)}))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = Apply(e, env(t, KindCreateMarket, "dave", false, t0, engine.CreateMarketRequest{
		Title:     "Too early",
		Policy:    model.PolicyFixedRatio,
		Liquidity: ledger.FromInt(10),
	}))
	assert.ErrorIs(t, err, engine.ErrInsufficientLevel)
}

func TestValidatePlayerID(t *testing.T) {
	for _, id := range []ledger.PlayerID{"alice", "0xa1b2c3", "bot_7-b", "chain:abc.1"} {
		assert.NoError(t, ValidatePlayerID(id), id)
	}
	for _, id := range []ledger.PlayerID{"", "-lead", "has space", "semi;colon"} {
		assert.ErrorIs(t, ValidatePlayerID(id), ErrInvalidPlayerID, id)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"caller":"alice"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}
