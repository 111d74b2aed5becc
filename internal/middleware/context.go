package middleware

import (
	"context"
	"time"

	"github.com/gensecaihq/apigateway/internal/auth"
	"github.com/gensecaihq/apigateway/internal/route"
)

type contextKey int

const requestContextKey contextKey = 0

// RequestContext is created at ingress and carried through the chain via
// context.Context. It is owned exclusively by the request path; only its
// correlation id is ever copied out for asynchronous logging.
type RequestContext struct {
	CorrelationID string
	ReceivedAt    time.Time
	ClientID      string
	ClientIP      string
	Route         *route.Route
	Principal     *auth.Principal
}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext retrieves the RequestContext previously attached to ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*RequestContext)
	return rc, ok
}
