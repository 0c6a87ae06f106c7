package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/prediction-engine/internal/api"
	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/journal"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
	"github.com/atmx/prediction-engine/internal/store"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     *api.Service
	engine  *engine.Engine
	store   *store.MemoryStore
	journal *journal.SQLite
	router  chi.Router
	now     time.Time
}

// newTestEnv creates a Service with in-memory store, an in-memory journal
// and a chi router. "oracle" is the only admin.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })

	env := &testEnv{engine: e, store: store.NewMemoryStore(), journal: j, now: t0}
	env.svc, err = api.NewService(context.Background(), api.Deps{
		Engine:  e,
		Store:   env.store,
		Journal: j,
		IsAdmin: func(id ledger.PlayerID) bool { return id == "oracle" },
		Clock:   func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Route("/api/v1", env.svc.Routes)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path, player string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if player != "" {
		req.Header.Set(api.PlayerHeader, player)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) register(t *testing.T, id string) {
	t.Helper()
	w := env.do(t, "POST", "/players", id, map[string]string{"display_name": id})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", id, w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return v
}

func expectKind(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	body := decode[map[string]string](t, w)
	if kind != "" && body["kind"] != kind {
		t.Errorf("expected kind %s, got %q (%s)", kind, body["kind"], body["error"])
	}
}

// --- Player tests ---

func TestRegister_CreatesPlayer(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/players", "alice", map[string]string{"display_name": "Alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.ActionResponse](t, w)
	if len(resp.Events) == 0 || resp.Events[0].Type != model.EventPlayerRegistered {
		t.Fatalf("expected player_registered first, got %+v", resp.Events)
	}
	if resp.Events[0].ID == "" || resp.Events[0].Seq != 1 {
		t.Errorf("expected stamped record, got id=%q seq=%d", resp.Events[0].ID, resp.Events[0].Seq)
	}

	w = env.do(t, "GET", "/players/alice", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	p := decode[model.Player](t, w)
	if p.DisplayName != "Alice" || !p.TokenBalance.Equal(ledger.FromInt(100)) {
		t.Errorf("unexpected player %+v", p)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	w := env.do(t, "POST", "/players", "alice", map[string]string{"display_name": "again"})
	expectKind(t, w, http.StatusConflict, "AlreadyExists")
}

func TestRegister_MissingCaller(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/players", "", map[string]string{"display_name": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/players", bytes.NewBufferString("{"))
	req.Header.Set(api.PlayerHeader, "alice")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetPlayer_NotFound(t *testing.T) {
	env := newTestEnv(t)
	expectKind(t, env.do(t, "GET", "/players/ghost", "", nil), http.StatusNotFound, "NotFound")
}

func TestDailyReward_Cooldown(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	// Registration starts the cooldown.
	expectKind(t, env.do(t, "POST", "/me/daily-reward", "alice", nil), http.StatusConflict, "CooldownActive")

	env.now = env.now.Add(24 * time.Hour)
	if w := env.do(t, "POST", "/me/daily-reward", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("first claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectKind(t, env.do(t, "POST", "/me/daily-reward", "alice", nil), http.StatusConflict, "CooldownActive")

	env.now = env.now.Add(24 * time.Hour)
	if w := env.do(t, "POST", "/me/daily-reward", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("claim after cooldown: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Prediction tests ---

func TestPrediction_LazyResolution(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	if w := env.do(t, "POST", "/price", "oracle", map[string]string{"price": "100"}); w.Code != http.StatusOK {
		t.Fatalf("price: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w := env.do(t, "POST", "/predictions", "alice", map[string]string{"period": "daily", "outcome": "rise"})
	if w.Code != http.StatusCreated {
		t.Fatalf("predict: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	env.now = t0.Add(12 * time.Hour)
	if w := env.do(t, "POST", "/price", "oracle", map[string]string{"price": "120"}); w.Code != http.StatusOK {
		t.Fatalf("price: expected 200, got %d", w.Code)
	}

	path := "/predictions/daily/" + t0.Format(time.RFC3339)
	journalled, err := env.journal.Len(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Still inside the period.
	w = env.do(t, "GET", path, "alice", nil)
	if got := decode[model.PlayerPrediction](t, w); got.Status != model.PredictionPending {
		t.Fatalf("expected pending before period end, got %s", got.Status)
	}
	if n, _ := env.journal.Len(context.Background()); n != journalled {
		t.Fatalf("a read inside the period was journalled: %d -> %d actions", journalled, n)
	}

	env.now = t0.Add(25 * time.Hour)
	w = env.do(t, "GET", path, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[model.PlayerPrediction](t, w); got.Status != model.PredictionCorrect {
		t.Fatalf("expected correct, got %s", got.Status)
	}
	if n, _ := env.journal.Len(context.Background()); n != journalled+1 {
		t.Fatalf("expected the settling read to be journalled once, got %d -> %d", journalled, n)
	}

	// Already settled; reading again changes nothing.
	env.do(t, "GET", path, "alice", nil)
	if n, _ := env.journal.Len(context.Background()); n != journalled+1 {
		t.Fatalf("a settled read was journalled again: %d actions", n)
	}

	w = env.do(t, "GET", path, "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", w.Code)
	}
}

func TestUpdatePrice_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	w := env.do(t, "POST", "/price", "alice", map[string]string{"price": "100"})
	expectKind(t, w, http.StatusForbidden, "Unauthorized")

	if w := env.do(t, "GET", "/price", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any price, got %d", w.Code)
	}
}

// --- Market tests ---

func TestMarket_BadIDs(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, "GET", "/markets/abc", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
	expectKind(t, env.do(t, "GET", "/markets/42", "", nil), http.StatusNotFound, "NotFound")
	if w := env.do(t, "GET", "/markets/1/quote?side=sideways", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown side, got %d", w.Code)
	}
}

func TestCreateMarket_InsufficientLevel(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	w := env.do(t, "POST", "/markets", "alice", engine.CreateMarketRequest{
		Title:      "Will it rain?",
		Policy:     model.PolicyFixedRatio,
		FeePercent: 10,
		Liquidity:  ledger.FromInt(1000),
	})
	expectKind(t, w, http.StatusConflict, "InsufficientLevel")
}

func TestListMarkets_Empty(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/markets", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[[]model.Market](t, w); len(got) != 0 {
		t.Errorf("expected no markets, got %d", len(got))
	}
}

// --- Guild tests ---

func TestGuild_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")

	w := env.do(t, "POST", "/guilds", "alice", map[string]string{"name": "Owls"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create guild: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	expectKind(t, env.do(t, "POST", "/guilds", "bob", map[string]string{"name": "owls"}), http.StatusConflict, "AlreadyExists")

	if w := env.do(t, "POST", "/guilds/1/join", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, "GET", "/guilds/1", "", nil)
	g := decode[model.Guild](t, w)
	if len(g.Members) != 2 {
		t.Fatalf("expected 2 members, got %v", g.Members)
	}

	if w := env.do(t, "POST", "/me/guild/contribute", "bob", map[string]string{"amount": "30"}); w.Code != http.StatusOK {
		t.Fatalf("contribute: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectKind(t, env.do(t, "POST", "/me/guild/contribute", "bob", map[string]string{"amount": "100000"}),
		http.StatusConflict, "InsufficientBalance")
}

// --- History, leaderboard and replay ---

func TestEvents_PersistedAndQueryable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	env.now = env.now.Add(24 * time.Hour)
	if w := env.do(t, "POST", "/me/daily-reward", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("daily reward: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w := env.do(t, "GET", "/players/alice/events", "", nil)
	records := decode[[]model.EventRecord](t, w)
	if len(records) < 2 {
		t.Fatalf("expected alice's registration and reward, got %d records", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Seq <= records[i-1].Seq {
			t.Fatalf("records out of order: %d after %d", records[i].Seq, records[i-1].Seq)
		}
	}
	for _, r := range records {
		found := false
		for _, s := range r.Subjects {
			found = found || s == "alice"
		}
		if !found {
			t.Errorf("record %s does not name alice", r.Type)
		}
	}

	if w := env.do(t, "GET", "/events?limit=0", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for limit=0, got %d", w.Code)
	}
	recent := decode[[]model.EventRecord](t, env.do(t, "GET", "/events?limit=1", "", nil))
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent record, got %d", len(recent))
	}
}

func TestLeaderboard_RanksPlayers(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	env.now = env.now.Add(24 * time.Hour)
	if w := env.do(t, "POST", "/me/daily-reward", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("daily reward: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	board := decode[model.Leaderboard](t, env.do(t, "GET", "/leaderboard", "", nil))
	if len(board.Players) != 2 || board.Players[0].PlayerID != "bob" {
		t.Fatalf("expected bob first, got %+v", board.Players)
	}
}

func TestJournal_ReplayMatchesLiveState(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	env.do(t, "POST", "/price", "oracle", map[string]string{"price": "100"})
	env.do(t, "POST", "/predictions", "alice", map[string]string{"period": "daily", "outcome": "fall"})
	env.do(t, "POST", "/guilds", "alice", map[string]string{"name": "Owls"})
	env.do(t, "POST", "/guilds/1/join", "bob", nil)
	// Rejected actions are not journalled.
	env.do(t, "POST", "/players", "alice", map[string]string{"display_name": "dup"})
	env.now = t0.Add(26 * time.Hour)
	env.do(t, "POST", "/price", "oracle", map[string]string{"price": "90"})

	fresh, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	n, err := journal.Replay(context.Background(), env.journal, fresh)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 journalled actions, got %d", n)
	}

	want, _ := env.engine.Snapshot()
	got, _ := fresh.Snapshot()
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Fatalf("replayed state differs:\nlive:   %s\nreplay: %s", wantJSON, gotJSON)
	}

	// The store holds the same state the engine committed.
	stored, err := env.store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	storedJSON, _ := json.Marshal(stored)
	if !bytes.Equal(wantJSON, storedJSON) {
		t.Fatalf("stored state differs:\nlive:  %s\nstore: %s", wantJSON, storedJSON)
	}
}
