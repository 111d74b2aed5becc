package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gensecaihq/apigateway/internal/ratelimit"
)

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	seen     []string
}

func (f *fakeLimiter) Check(_ context.Context, clientID string) (ratelimit.Decision, error) {
	f.seen = append(f.seen, clientID)
	return f.decision, f.err
}

func TestClientIDDerivation(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-API-Key", "secret")
	if got := clientID(r, "X-API-Key"); got != "api_key:secret" {
		t.Errorf("expected api_key:secret, got %q", got)
	}

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := clientID(r2, "X-API-Key"); got != "ip:1.2.3.4" {
		t.Errorf("expected ip:1.2.3.4, got %q", got)
	}

	r3 := httptest.NewRequest("GET", "/", nil)
	if got := clientID(r3, "X-API-Key"); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestRateLimitAllows(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Allow}
	called := false
	h := RateLimit(limiter, "X-API-Key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("expected downstream handler to run on Allow")
	}
}

func TestRateLimitDenies(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Deny}
	called := false
	h := RateLimit(limiter, "X-API-Key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if called {
		t.Error("expected downstream handler to not run on Deny")
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
}
