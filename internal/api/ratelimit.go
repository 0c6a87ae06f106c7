package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/atmx/prediction-engine/internal/action"
	"github.com/atmx/prediction-engine/internal/ledger"
	"github.com/atmx/prediction-engine/internal/metrics"
)

// DefaultMaxCallers bounds the number of per-caller buckets held at once.
const DefaultMaxCallers = 10000

// anonymous is the bucket shared by requests without a well-formed caller id
// and by callers that arrive while the table is full.
const anonymous = ""

// CallerLimiter throttles requests per X-Player-ID.
type CallerLimiter struct {
	limit      rate.Limit
	burst      int
	maxCallers int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewCallerLimiter returns nil when perSecond is not positive, which
// disables throttling.
func NewCallerLimiter(perSecond float64, burst int) *CallerLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &CallerLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		maxCallers: DefaultMaxCallers,
		buckets:    make(map[string]*rate.Limiter),
	}
}

// WithMaxCallers overrides the bucket table size.
func (l *CallerLimiter) WithMaxCallers(n int) *CallerLimiter {
	if l != nil && n > 0 {
		l.maxCallers = n
	}
	return l
}

// Allow reports whether caller may make another request now.
func (l *CallerLimiter) Allow(caller string) bool {
	if l == nil {
		return true
	}
	if action.ValidatePlayerID(ledger.PlayerID(caller)) != nil {
		caller = anonymous
	}

	l.mu.Lock()
	b, ok := l.buckets[caller]
	if !ok {
		if len(l.buckets) >= l.maxCallers {
			l.sweep()
		}
		if len(l.buckets) >= l.maxCallers {
			caller = anonymous
			b, ok = l.buckets[caller]
		}
		if !ok {
			b = rate.NewLimiter(l.limit, l.burst)
			l.buckets[caller] = b
		}
	}
	l.mu.Unlock()
	return b.Allow()
}

// sweep drops buckets that have refilled completely. A full bucket behaves
// exactly like a new one. Caller must hold l.mu.
func (l *CallerLimiter) sweep() {
	for id, b := range l.buckets {
		if id != anonymous && b.Tokens() >= float64(l.burst) {
			delete(l.buckets, id)
		}
	}
}

// Len returns the number of buckets currently held.
func (l *CallerLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects throttled requests with 429.
func (l *CallerLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Header.Get(PlayerHeader)) {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
