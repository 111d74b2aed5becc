package middleware

import (
	"net/http"
	"strings"

	"github.com/gensecaihq/apigateway/internal/ratelimit"
)

// clientID derives the rate-limit scoping key for a request: API key first,
// then the first X-Forwarded-For entry, then "unknown".
func clientID(r *http.Request, apiKeyHeader string) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return "api_key:" + key
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return "ip:" + first
		}
	}
	return "unknown"
}

// RateLimit enforces the configured limiter's Check verdict, scoped by
// client id, before the Auth stage runs.
func RateLimit(limiter ratelimit.Limiter, apiKeyHeader string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientID(r, apiKeyHeader)

			if rc, ok := FromContext(r.Context()); ok {
				rc.ClientID = id
			}

			decision, err := limiter.Check(r.Context(), id)
			if err != nil {
				http.Error(w, "", http.StatusInternalServerError)
				return
			}
			if decision == ratelimit.Deny {
				http.Error(w, "", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
