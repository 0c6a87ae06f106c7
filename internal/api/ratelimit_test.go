package api_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atmx/prediction-engine/internal/api"
)

func TestCallerLimiter_Disabled(t *testing.T) {
	l := api.NewCallerLimiter(0, 5)
	if l != nil {
		t.Fatalf("expected nil limiter for zero rate")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("alice") {
			t.Fatalf("nil limiter should allow every request")
		}
	}
}

func TestCallerLimiter_PerCallerBuckets(t *testing.T) {
	l := api.NewCallerLimiter(0.001, 2)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := l.Middleware(ok)

	do := func(caller string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(api.PlayerHeader, caller)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("alice"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := do("bob"); code != http.StatusNoContent {
		t.Fatalf("bob has a separate bucket, got %d", code)
	}
}

func TestCallerLimiter_MalformedIDsShareOneBucket(t *testing.T) {
	l := api.NewCallerLimiter(0.001, 1)
	if !l.Allow("not a valid id!") {
		t.Fatalf("first malformed request should pass")
	}
	if l.Allow("another bad id?") {
		t.Fatalf("malformed ids must share the anonymous bucket")
	}
	if l.Allow("") {
		t.Fatalf("a missing header shares the anonymous bucket too")
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("expected 1 bucket, got %d", got)
	}
}

func TestCallerLimiter_TableIsBounded(t *testing.T) {
	l := api.NewCallerLimiter(0.001, 1).WithMaxCallers(2)
	if !l.Allow("alice") || !l.Allow("bob") {
		t.Fatalf("first two callers should get their own buckets")
	}
	// Neither bucket has refilled, so newcomers fall back to the shared one.
	if !l.Allow("carol") {
		t.Fatalf("carol should take the first anonymous token")
	}
	if l.Allow("dave") {
		t.Fatalf("dave should be throttled on the exhausted anonymous bucket")
	}
	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("player%d", i))
	}
	if got := l.Len(); got > 3 {
		t.Fatalf("expected at most 3 buckets, got %d", got)
	}
}
