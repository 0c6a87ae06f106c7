// Package metrics provides Prometheus instrumentation for the prediction engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActionsTotal counts applied actions by kind and outcome ("ok" or the
	// error kind).
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_actions_total",
		Help: "Total number of actions applied to the engine",
	}, []string{"kind", "result"})

	ActionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predict_action_latency_seconds",
		Help:    "Action execution latency in seconds, including persistence",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// TradesTotal counts executed trades by pricing policy and side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_trades_total",
		Help: "Total number of trades executed",
	}, []string{"policy", "side"})

	// MarketVolume tracks cumulative traded quantity per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_market_volume_total",
		Help: "Cumulative trade volume in shares or points",
	}, []string{"market_id", "side"})

	// PredictionsSettled counts settled predictions by period kind and result.
	PredictionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_predictions_settled_total",
		Help: "Predictions settled",
	}, []string{"period", "status"})

	AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_achievements_unlocked_total",
		Help: "Achievements unlocked",
	})

	LevelUps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_level_ups_total",
		Help: "Player level-ups",
	})

	// PositionLimitRejections counts trades rejected by the position limiter.
	PositionLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_position_limit_rejections_total",
		Help: "Trades rejected by position limiter",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predict_rate_limited_total",
		Help: "Requests rejected by the per-caller rate limiter",
	})

	// TotalSupply mirrors the engine's circulating supply.
	TotalSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_total_supply",
		Help: "Points in circulation",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predict_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predict_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predict_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
