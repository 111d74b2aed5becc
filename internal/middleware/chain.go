package middleware

import "net/http"

// Middleware wraps an http.Handler, either terminating the request itself
// or delegating to next. Composition order is outermost-first: the first
// Middleware passed to Chain observes the request and response first.
type Middleware func(next http.Handler) http.Handler

// Chain composes middlewares around a terminal handler in declaration
// order: Chain(h, Trace, CORS, Compression, Logging, RateLimit, Auth)
// yields Trace(CORS(Compression(Logging(RateLimit(Auth(h)))))), matching
// this gateway's required order of Trace -> CORS -> Compression -> Logging
// -> RateLimit -> Auth -> Router -> Proxy.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
