package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gensecaihq/apigateway/internal/config"
	"github.com/gensecaihq/apigateway/internal/metrics"
	"github.com/gensecaihq/apigateway/internal/proxy"
	"github.com/gensecaihq/apigateway/internal/route"
)

func TestHealthEndpointReportsRegisteredPools(t *testing.T) {
	api := New(Config{Addr: ":0", Metrics: metrics.New()})

	pool := proxy.NewPool("svc-a")
	s, _ := proxy.NewServer("http://127.0.0.1:9999", proxy.DefaultCircuitBreakerConfig())
	pool.Add(s)
	api.RegisterPool("svc-a", pool)

	rr := httptest.NewRecorder()
	api.handleHealth(rr, httptest.NewRequest("GET", "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp envelope
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success true")
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	api := New(Config{Addr: ":0", Metrics: metrics.New()})

	rr := httptest.NewRecorder()
	api.handleMetrics(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminConfigNeverExposesJWTSecret(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{Host: "0.0.0.0", Port: 8080},
		Routes:    []config.RouteConfig{{PathPattern: "/api/*", BackendID: "svc-a"}},
		Backends:  []config.BackendConfig{{ID: "svc-a"}},
		RateLimit: config.RateLimitConfig{Storage: "memory", DefaultRequestsPerMinute: 100},
		Auth:      config.AuthConfig{JWTSecret: "top-secret"},
	}
	api := New(Config{Addr: ":0", Metrics: metrics.New(), GatewayCfg: cfg})

	rr := httptest.NewRecorder()
	api.handleConfig(rr, httptest.NewRequest("GET", "/admin/config", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "top-secret") {
		t.Fatal("expected jwt_secret to never appear in /admin/config response")
	}

	var view adminConfigView
	raw, _ := json.Marshal(mustDecodeData(t, body))
	json.Unmarshal(raw, &view)
	if view.RouteCount != 1 || view.BackendCount != 1 {
		t.Errorf("expected route_count=1 backend_count=1, got %+v", view)
	}
}

func TestRoutesEndpointListsDeclaredRoutes(t *testing.T) {
	routes := route.NewTable([]route.Route{
		{PathPattern: "/api/*", BackendID: "svc-a", LBStrategy: "round_robin"},
		{PathPattern: "/admin/*", BackendID: "svc-b", LBStrategy: "least_connections"},
	})
	api := New(Config{Addr: ":0", Metrics: metrics.New(), Routes: routes})

	rr := httptest.NewRecorder()
	api.handleRoutes(rr, httptest.NewRequest("GET", "/admin/routes", nil))

	var resp envelope
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.Success {
		t.Fatal("expected success true")
	}

	raw, _ := json.Marshal(resp.Data)
	var views []routeView
	json.Unmarshal(raw, &views)
	if len(views) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(views))
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	api := New(Config{Addr: ":0", Metrics: metrics.New(), AuthToken: "secret-token"})

	rr := httptest.NewRecorder()
	api.requireAuth(api.handleHealth)(rr, httptest.NewRequest("GET", "/health", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuthAllowsValidToken(t *testing.T) {
	api := New(Config{Addr: ":0", Metrics: metrics.New(), AuthToken: "secret-token"})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()
	api.requireAuth(api.handleHealth)(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAuthEnforcesIPAllowlist(t *testing.T) {
	api := New(Config{Addr: ":0", Metrics: metrics.New(), AllowedIPs: []string{"10.0.0.0/8"}})

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "192.168.1.1:5555"
	rr := httptest.NewRecorder()
	api.requireAuth(api.handleHealth)(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func mustDecodeData(t *testing.T, body string) interface{} {
	t.Helper()
	var resp envelope
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return resp.Data
}
