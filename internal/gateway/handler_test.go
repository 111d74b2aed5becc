package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gensecaihq/apigateway/internal/metrics"
	"github.com/gensecaihq/apigateway/internal/middleware"
	"github.com/gensecaihq/apigateway/internal/proxy"
	"github.com/gensecaihq/apigateway/internal/route"
)

func mustHealthyPool(t *testing.T, backendID string, urls ...string) *proxy.Pool {
	t.Helper()
	pool := proxy.NewPool(backendID)
	for _, u := range urls {
		s, err := proxy.NewServer(u, proxy.DefaultCircuitBreakerConfig())
		if err != nil {
			t.Fatalf("invalid server URL: %v", err)
		}
		pool.Add(s)
	}

	prober := proxy.NewProber()
	prober.Register(pool, proxy.HealthConfig{
		Enabled:            true,
		ProbePath:          "/",
		Interval:           20 * time.Millisecond,
		ProbeTimeout:       time.Second,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})
	prober.Start()
	defer prober.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		healthy := true
		for _, s := range pool.Servers() {
			if !s.IsHealthy() {
				healthy = false
			}
		}
		if healthy {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return pool
}

func TestHandlerForwardsToHealthyBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("backend response"))
	}))
	defer backend.Close()

	pool := mustHealthyPool(t, "svc-a", backend.URL)
	routes := route.NewTable([]route.Route{{PathPattern: "/api/*", BackendID: "svc-a", LBStrategy: "round_robin"}})

	h := NewHandler(Config{
		Routes:  routes,
		Pools:   map[string]*proxy.Pool{"svc-a": pool},
		Metrics: metrics.New(),
	})

	req := httptest.NewRequest("GET", "/api/items", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if string(body) != "backend response" {
		t.Errorf("expected backend response, got %q", body)
	}
}

func TestHandlerNoMatchingRouteReturns502(t *testing.T) {
	routes := route.NewTable(nil)
	h := NewHandler(Config{Routes: routes, Pools: map[string]*proxy.Pool{}, Metrics: metrics.New()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/nope", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
}

func TestHandlerNoHealthyUpstreamReturns502(t *testing.T) {
	pool := proxy.NewPool("svc-a")
	s, _ := proxy.NewServer("http://127.0.0.1:1", proxy.DefaultCircuitBreakerConfig())
	pool.Add(s) // left Unknown: never probed, so not selectable

	routes := route.NewTable([]route.Route{{PathPattern: "/api/*", BackendID: "svc-a"}})
	h := NewHandler(Config{Routes: routes, Pools: map[string]*proxy.Pool{"svc-a": pool}, Metrics: metrics.New()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/x", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
}

func TestHandlerTimeoutReturns504(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	pool := mustHealthyPool(t, "svc-a", backend.URL)
	routes := route.NewTable([]route.Route{{PathPattern: "/slow", BackendID: "svc-a", TimeoutMs: 20}})

	h := NewHandler(Config{Routes: routes, Pools: map[string]*proxy.Pool{"svc-a": pool}, Metrics: metrics.New()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/slow", nil))

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rr.Code)
	}
}

func TestHandlerRestoresInFlightCounterAfterRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	pool := mustHealthyPool(t, "svc-a", backend.URL)
	routes := route.NewTable([]route.Route{{PathPattern: "/api/*", BackendID: "svc-a", LBStrategy: "least_connections"}})
	h := NewHandler(Config{Routes: routes, Pools: map[string]*proxy.Pool{"svc-a": pool}, Metrics: metrics.New()})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/x", nil))

	for _, s := range pool.Servers() {
		if s.InFlight() != 0 {
			t.Errorf("expected in-flight counter restored to 0, got %d", s.InFlight())
		}
	}
}

func TestHandlerAttachesRouteToRequestContext(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	pool := mustHealthyPool(t, "svc-a", backend.URL)
	routes := route.NewTable([]route.Route{{PathPattern: "/api/*", BackendID: "svc-a"}})
	h := NewHandler(Config{Routes: routes, Pools: map[string]*proxy.Pool{"svc-a": pool}, Metrics: metrics.New()})

	rc := &middleware.RequestContext{CorrelationID: "corr-1"}
	req := httptest.NewRequest("GET", "/api/x", nil)
	ctx := middleware.WithRequestContext(req.Context(), rc)

	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	if rc.Route == nil || rc.Route.BackendID != "svc-a" {
		t.Fatalf("expected route attached to request context, got %+v", rc.Route)
	}
}
