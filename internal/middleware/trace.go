package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gensecaihq/apigateway/internal/tracing"
)

// Trace is the outermost middleware: it mints the request's correlation id,
// attaches a RequestContext (including the trusted-proxy-aware client IP),
// starts a trace span, and sets the X-Request-ID response header so it is
// present regardless of what happens downstream.
func Trace(provider *tracing.Provider, trustedProxies []*net.IPNet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := uuid.NewString()

			rc := &RequestContext{
				CorrelationID: correlationID,
				ReceivedAt:    time.Now(),
				ClientIP:      extractClientIP(r, trustedProxies),
			}
			ctx := WithRequestContext(r.Context(), rc)

			if provider != nil {
				spanCtx, span := provider.StartSpan(ctx, "gateway.request")
				defer span.End()
				ctx = spanCtx
			}

			w.Header().Set("X-Request-ID", correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractClientIP resolves the request's client IP. X-Forwarded-For and
// X-Real-IP are only honored when the direct connection comes from a
// configured trusted proxy; otherwise the TCP peer address is authoritative.
func extractClientIP(r *http.Request, trustedProxies []*net.IPNet) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	if len(trustedProxies) == 0 {
		return directIP
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil {
		return directIP
	}

	trusted := false
	for _, network := range trustedProxies {
		if network.Contains(parsed) {
			trusted = true
			break
		}
	}
	if !trusted {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return directIP
}
