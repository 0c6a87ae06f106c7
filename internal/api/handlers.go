package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/prediction-engine/internal/action"
	"github.com/atmx/prediction-engine/internal/engine"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/model"
)

// PlayerHeader carries the authenticated player id, set by the gateway in
// front of the service.
const PlayerHeader = "X-Player-ID"

const (
	defaultHistory = 50
	maxHistory     = 500
)

var errMissingCaller = errors.New("missing " + PlayerHeader + " header")

// ActionResponse is returned by every state-changing endpoint.
type ActionResponse struct {
	Events []model.EventRecord `json:"events"`
}

// OutcomeRequest is the JSON body for vote and resolve.
type OutcomeRequest struct {
	Outcome ledger.OutcomeID `json:"outcome"`
}

// Routes mounts every endpoint under r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/players", s.Register)
	r.Get("/players/{playerID}", s.GetPlayer)
	r.Get("/players/{playerID}/events", s.PlayerEvents)
	r.Get("/players/{playerID}/predictions", s.PlayerPredictions)
	r.Put("/me/profile", s.UpdateProfile)
	r.Post("/me/daily-reward", s.ClaimDailyReward)

	r.Get("/markets", s.ListMarkets)
	r.Post("/markets", s.CreateMarket)
	r.Route("/markets/{marketID}", func(r chi.Router) {
		r.Get("/", s.GetMarket)
		r.Get("/prices", s.GetPrices)
		r.Get("/quote", s.Quote)
		r.Post("/buy", s.Buy)
		r.Post("/sell", s.Sell)
		r.Post("/vote", s.Vote)
		r.Post("/resolve", s.Resolve)
		r.Post("/claim", s.Claim)
		r.Post("/cancel", s.Cancel)
	})

	r.Post("/predictions", s.MakePrediction)
	r.Get("/predictions/{period}/{start}", s.GetPrediction)
	r.Get("/periods/{period}/{start}", s.GetPeriod)
	r.Get("/price", s.GetPrice)
	r.Post("/price", s.UpdatePrice)

	r.Get("/guilds", s.ListGuilds)
	r.Post("/guilds", s.CreateGuild)
	r.Get("/guilds/{guildID}", s.GetGuild)
	r.Post("/guilds/{guildID}/join", s.JoinGuild)
	r.Post("/me/guild/leave", s.LeaveGuild)
	r.Post("/me/guild/contribute", s.Contribute)

	r.Get("/leaderboard", s.Leaderboard)
	r.Get("/achievements", s.Achievements)
	r.Get("/events", s.RecentEvents)

	r.Put("/admin/config", s.UpdateConfig)
	r.Post("/admin/mint", s.MintPoints)
}

// --- Players ---

// Register handles POST /api/v1/players
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.Profile](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindRegister, body, http.StatusCreated)
}

// GetPlayer handles GET /api/v1/players/{playerID}
func (s *Service) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlayerID(chi.URLParam(r, "playerID"))

	s.mu.Lock()
	p, err := s.engine.Player(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile handles PUT /api/v1/me/profile
func (s *Service) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.Profile](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindUpdateProfile, body, http.StatusOK)
}

// ClaimDailyReward handles POST /api/v1/me/daily-reward
func (s *Service) ClaimDailyReward(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, action.KindClaimDailyReward, nil, http.StatusOK)
}

// PlayerEvents handles GET /api/v1/players/{playerID}/events?limit=N
func (s *Service) PlayerEvents(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlayerID(chi.URLParam(r, "playerID"))
	limit, err := historyLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.store.EventsByPlayer(r.Context(), id, limit)
	if err != nil {
		writeError(w, "failed to load event history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// PlayerPredictions handles GET /api/v1/players/{playerID}/predictions
func (s *Service) PlayerPredictions(w http.ResponseWriter, r *http.Request) {
	id := ledger.PlayerID(chi.URLParam(r, "playerID"))

	s.mu.Lock()
	preds := s.engine.PlayerPredictions(id)
	s.mu.Unlock()
	if preds == nil {
		preds = []model.PlayerPrediction{}
	}
	writeJSON(w, http.StatusOK, preds)
}

// --- Markets ---

// ListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?status=<status>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	markets := s.engine.Markets()
	s.mu.Unlock()

	out := make([]*model.Market, 0, len(markets))
	status := model.MarketStatus(r.URL.Query().Get("status"))
	for _, m := range markets {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[engine.CreateMarketRequest](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindCreateMarket, body, http.StatusCreated)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	m, err := s.engine.Market(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPrices handles GET /api/v1/markets/{marketID}/prices
func (s *Service) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	prices, err := s.engine.MarketPrices(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// Quote handles GET /api/v1/markets/{marketID}/quote?side=buy&outcome=0&shares=10
// Prices an order without executing it.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := engine.TradeRequest{MarketID: id}
	if v := q.Get("outcome"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			writeError(w, "invalid outcome", http.StatusBadRequest)
			return
		}
		req.Outcome = ledger.OutcomeID(n)
	}
	for _, f := range []struct {
		key string
		dst *ledger.Amount
	}{{"shares", &req.Shares}, {"payment", &req.Payment}} {
		if v := q.Get(f.key); v != "" {
			a, err := ledger.Parse(v)
			if err != nil {
				writeError(w, "invalid "+f.key, http.StatusBadRequest)
				return
			}
			*f.dst = a
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch q.Get("side") {
	case "", string(model.SideBuy):
		quote, err := s.engine.QuoteBuy(req)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quote)
	case string(model.SideSell):
		quote, err := s.engine.QuoteSell(req)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quote)
	default:
		writeError(w, "side must be buy or sell", http.StatusBadRequest)
	}
}

// Buy handles POST /api/v1/markets/{marketID}/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, action.KindBuy)
}

// Sell handles POST /api/v1/markets/{marketID}/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, action.KindSell)
}

func (s *Service) trade(w http.ResponseWriter, r *http.Request, kind action.Kind) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody[engine.TradeRequest](w, r)
	if !ok {
		return
	}
	body.MarketID = id
	s.act(w, r, kind, body, http.StatusOK)
}

// Vote handles POST /api/v1/markets/{marketID}/vote
func (s *Service) Vote(w http.ResponseWriter, r *http.Request) {
	s.outcome(w, r, action.KindVoteOutcome)
}

// Resolve handles POST /api/v1/markets/{marketID}/resolve
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request) {
	s.outcome(w, r, action.KindResolveMarket)
}

func (s *Service) outcome(w http.ResponseWriter, r *http.Request, kind action.Kind) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody[OutcomeRequest](w, r)
	if !ok {
		return
	}
	s.act(w, r, kind, action.OutcomeChoice{MarketID: id, Outcome: body.Outcome}, http.StatusOK)
}

// Claim handles POST /api/v1/markets/{marketID}/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	if id, ok := marketID(w, r); ok {
		s.act(w, r, action.KindClaimWinnings, action.MarketRef{MarketID: id}, http.StatusOK)
	}
}

// Cancel handles POST /api/v1/markets/{marketID}/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	if id, ok := marketID(w, r); ok {
		s.act(w, r, action.KindCancelMarket, action.MarketRef{MarketID: id}, http.StatusOK)
	}
}

// --- Predictions ---

// MakePrediction handles POST /api/v1/predictions
func (s *Service) MakePrediction(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.PredictionChoice](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindMakePrediction, body, http.StatusCreated)
}

// GetPrediction handles GET /api/v1/predictions/{period}/{start}
// Returns the caller's prediction, settling its period first when it has
// ended.
func (s *Service) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ref, ok := periodRef(w, r)
	if !ok {
		return
	}
	c, err := s.caller(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	env, err := action.New(action.KindResolvePrediction, c, s.Now(), ref)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, _, err := s.Execute(r.Context(), env); err != nil {
		writeEngineError(w, err)
		return
	}

	s.mu.Lock()
	pred, err := s.engine.Prediction(c.ID, ref.Period, ref.PeriodStart)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// GetPeriod handles GET /api/v1/periods/{period}/{start}
func (s *Service) GetPeriod(w http.ResponseWriter, r *http.Request) {
	ref, ok := periodRef(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	pd, err := s.engine.Period(ref.Period, ref.PeriodStart)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pd)
}

// GetPrice handles GET /api/v1/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	price, ok := s.engine.Price()
	s.mu.Unlock()
	if !ok {
		writeError(w, "no price published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

// UpdatePrice handles POST /api/v1/price (oracle only)
func (s *Service) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.Price](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindUpdatePrice, body, http.StatusOK)
}

// --- Guilds ---

// ListGuilds handles GET /api/v1/guilds
func (s *Service) ListGuilds(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	guilds := s.engine.Guilds()
	s.mu.Unlock()
	if guilds == nil {
		guilds = []*model.Guild{}
	}
	writeJSON(w, http.StatusOK, guilds)
}

// CreateGuild handles POST /api/v1/guilds
func (s *Service) CreateGuild(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.GuildName](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindCreateGuild, body, http.StatusCreated)
}

// GetGuild handles GET /api/v1/guilds/{guildID}
func (s *Service) GetGuild(w http.ResponseWriter, r *http.Request) {
	id, ok := guildID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	g, err := s.engine.Guild(id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// JoinGuild handles POST /api/v1/guilds/{guildID}/join
func (s *Service) JoinGuild(w http.ResponseWriter, r *http.Request) {
	if id, ok := guildID(w, r); ok {
		s.act(w, r, action.KindJoinGuild, action.GuildRef{GuildID: id}, http.StatusOK)
	}
}

// LeaveGuild handles POST /api/v1/me/guild/leave
func (s *Service) LeaveGuild(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, action.KindLeaveGuild, nil, http.StatusOK)
}

// Contribute handles POST /api/v1/me/guild/contribute
func (s *Service) Contribute(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.Points](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindContributeToGuild, body, http.StatusOK)
}

// --- Rankings and history ---

// Leaderboard handles GET /api/v1/leaderboard
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	board := s.engine.Leaderboard()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, board)
}

// Achievements handles GET /api/v1/achievements
func (s *Service) Achievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Catalogue())
}

// RecentEvents handles GET /api/v1/events?limit=N
func (s *Service) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := historyLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Admin ---

// UpdateConfig handles PUT /api/v1/admin/config
func (s *Service) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[engine.Config](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindUpdateConfig, body, http.StatusOK)
}

// MintPoints handles POST /api/v1/admin/mint
func (s *Service) MintPoints(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[action.Points](w, r)
	if !ok {
		return
	}
	s.act(w, r, action.KindMintPoints, body, http.StatusOK)
}

// --- Helpers ---

func (s *Service) caller(r *http.Request) (engine.Caller, error) {
	id := ledger.PlayerID(r.Header.Get(PlayerHeader))
	if id == "" {
		return engine.Caller{}, errMissingCaller
	}
	if err := action.ValidatePlayerID(id); err != nil {
		return engine.Caller{}, err
	}
	return s.Caller(id), nil
}

// act runs a state-changing request end to end.
func (s *Service) act(w http.ResponseWriter, r *http.Request, kind action.Kind, payload any, status int) {
	c, err := s.caller(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	env, err := action.New(kind, c, s.Now(), payload)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, records, err := s.Execute(r.Context(), env)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if records == nil {
		records = []model.EventRecord{}
	}
	writeJSON(w, status, ActionResponse{Events: records})
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return v, false
	}
	return v, true
}

func marketID(w http.ResponseWriter, r *http.Request) (ledger.MarketID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return 0, false
	}
	return ledger.MarketID(n), true
}

func guildID(w http.ResponseWriter, r *http.Request) (ledger.GuildID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "guildID"), 10, 64)
	if err != nil {
		writeError(w, "invalid guild id", http.StatusBadRequest)
		return 0, false
	}
	return ledger.GuildID(n), true
}

// periodRef reads {period}/{start}. start is RFC 3339 or Unix microseconds.
func periodRef(w http.ResponseWriter, r *http.Request) (action.PeriodRef, bool) {
	ref := action.PeriodRef{Period: model.PeriodKind(chi.URLParam(r, "period"))}
	raw := chi.URLParam(r, "start")
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		ref.PeriodStart = ledger.FromTime(t)
		return ref, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, "period start must be RFC 3339 or unix microseconds", http.StatusBadRequest)
		return ref, false
	}
	ref.PeriodStart = ledger.Timestamp(n)
	return ref, true
}

func historyLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistory, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxHistory {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(maxHistory))
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps an engine error to a status code and reports its
// taxonomy kind alongside the message.
func writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.Kind(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "kind": kind})
}

func statusFor(kind string) int {
	switch kind {
	case "NotFound":
		return http.StatusNotFound
	case "Unauthorized":
		return http.StatusForbidden
	case "InvalidInput", "InvalidAmount", "InvalidOutcome", "InvalidMarket", "InvalidFee":
		return http.StatusBadRequest
	case "Internal":
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}
