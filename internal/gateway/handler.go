// Package gateway wires route matching, upstream selection, and dispatch
// into the terminal handler of the middleware chain.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gensecaihq/apigateway/internal/metrics"
	"github.com/gensecaihq/apigateway/internal/middleware"
	"github.com/gensecaihq/apigateway/internal/proxy"
	"github.com/gensecaihq/apigateway/internal/route"
	"github.com/gensecaihq/apigateway/internal/tracing"
)

// DefaultMaxRequestBody caps inbound request bodies at 10MB when the
// configuration does not set an explicit limit.
const DefaultMaxRequestBody = 10 * 1024 * 1024

// Handler matches each request against the route table, selects a backend
// server, and forwards it. It is the innermost stage of the middleware
// chain; everything upstream of it (auth, rate limiting, tracing) has
// already run by the time ServeHTTP is called.
type Handler struct {
	routes         *route.Table
	pools          map[string]*proxy.Pool
	dispatcher     *proxy.Dispatcher
	metrics        *metrics.Collector
	maxRequestBody int64
	defaultTimeout time.Duration
}

// Config configures a Handler.
type Config struct {
	Routes         *route.Table
	Pools          map[string]*proxy.Pool // keyed by backend id
	Dispatcher     *proxy.Dispatcher
	Tracer         *tracing.Provider // used only when Dispatcher is nil
	Metrics        *metrics.Collector
	MaxRequestBody int64
	DefaultTimeout time.Duration
}

// NewHandler creates a Handler from Config.
func NewHandler(cfg Config) *Handler {
	maxBody := cfg.MaxRequestBody
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBody
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = proxy.NewDispatcher(cfg.Tracer)
	}

	return &Handler{
		routes:         cfg.Routes,
		pools:          cfg.Pools,
		dispatcher:     dispatcher,
		metrics:        cfg.Metrics,
		maxRequestBody: maxBody,
		defaultTimeout: timeout,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rc, _ := middleware.FromContext(r.Context())

	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBody)
	}

	rt, ok := h.routes.Match(r.Method, r.URL.Path)
	if !ok {
		h.fail(w, r, "", start, "RouteMissError", http.StatusBadGateway)
		return
	}
	if rc != nil {
		rtCopy := rt
		rc.Route = &rtCopy
	}

	pool := h.pools[rt.BackendID]
	if pool == nil {
		h.fail(w, r, rt.PathPattern, start, "UpstreamUnavailable", http.StatusBadGateway)
		return
	}

	server := selectAvailable(pool, proxy.StrategyByName(rt.LBStrategy))
	if server == nil {
		h.fail(w, r, rt.PathPattern, start, "UpstreamUnavailable", http.StatusBadGateway)
		return
	}

	server.Acquire()
	defer server.Release()

	timeout := h.defaultTimeout
	if rt.TimeoutMs > 0 {
		timeout = time.Duration(rt.TimeoutMs) * time.Millisecond
	}

	correlationID := r.Header.Get("X-Request-ID")
	if rc != nil {
		correlationID = rc.CorrelationID
	}

	err := h.dispatcher.Forward(r.Context(), w, server, r, correlationID, timeout)
	duration := time.Since(start).Seconds()

	if h.metrics != nil {
		h.metrics.ObserveBackendRequest(rt.BackendID, server.ID)
		h.metrics.ObserveRequest(rt.PathPattern, r.Method, duration)
	}

	if err != nil {
		server.CircuitBreaker().RecordFailure()
		kind := "UpstreamTransportError"
		var derr *proxy.DispatchError
		if errors.As(err, &derr) && derr.Kind == proxy.UpstreamTimeout {
			kind = "UpstreamTimeout"
		}
		if h.metrics != nil {
			h.metrics.ObserveError(kind)
		}
		return
	}

	server.CircuitBreaker().RecordSuccess()
}

// fail writes an empty-body error status for the proxy path and records it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, routePattern string, start time.Time, kind string, status int) {
	w.WriteHeader(status)
	if h.metrics != nil {
		h.metrics.ObserveError(kind)
		h.metrics.ObserveRequest(routePattern, r.Method, time.Since(start).Seconds())
	}
}

// selectAvailable picks a server via strategy, skipping any whose circuit
// breaker currently denies traffic. A server that is circuit-open is
// excluded from selection the same way an Unhealthy server is.
func selectAvailable(pool *proxy.Pool, strategy proxy.Strategy) *proxy.Server {
	attempts := pool.Len()
	if attempts == 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		s := strategy(pool)
		if s == nil {
			return nil
		}
		if s.CircuitBreaker().Allow() {
			return s
		}
	}
	return nil
}
