// Package admin exposes the gateway's non-proxied management endpoints:
// health, metrics, and read-only configuration/route introspection.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gensecaihq/apigateway/internal/config"
	"github.com/gensecaihq/apigateway/internal/metrics"
	"github.com/gensecaihq/apigateway/internal/proxy"
	"github.com/gensecaihq/apigateway/internal/route"
)

// envelope is the JSON response wrapper of the admin endpoints. A successful
// /metrics response is Prometheus text exposition and is not wrapped; its
// error responses are.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id"`
}

// API serves the gateway's admin HTTP surface.
type API struct {
	server      *http.Server
	metrics     *metrics.Collector
	pools       map[string]*proxy.Pool
	poolsMu     sync.RWMutex
	routes      *route.Table
	cfg         *config.Config
	authToken   string
	allowedNets []*net.IPNet
}

// Config configures the Admin API.
type Config struct {
	Addr       string
	Metrics    *metrics.Collector
	Routes     *route.Table
	GatewayCfg *config.Config
	AuthToken  string   // bearer token required of every request, if set
	AllowedIPs []string // CIDRs allowed to reach the admin API, if set
}

// New creates the Admin API and its underlying HTTP server.
func New(cfg Config) *API {
	api := &API{
		metrics:   cfg.Metrics,
		pools:     make(map[string]*proxy.Pool),
		routes:    cfg.Routes,
		cfg:       cfg.GatewayCfg,
		authToken: cfg.AuthToken,
	}

	for _, cidr := range cfg.AllowedIPs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			if ip := net.ParseIP(cidr); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
			}
		}
		if network != nil {
			api.allowedNets = append(api.allowedNets, network)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.requireAuth(api.handleHealth))
	mux.HandleFunc("/metrics", api.requireAuth(api.handleMetrics))
	mux.HandleFunc("/admin/config", api.requireAuth(api.handleConfig))
	mux.HandleFunc("/admin/routes", api.requireAuth(api.handleRoutes))

	api.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return api
}

// RegisterPool registers a backend's pool for health reporting.
func (a *API) RegisterPool(backendID string, pool *proxy.Pool) {
	a.poolsMu.Lock()
	defer a.poolsMu.Unlock()
	a.pools[backendID] = pool
}

// Start begins serving the Admin API in the background.
func (a *API) Start() error {
	go a.server.ListenAndServe()
	return nil
}

// Stop gracefully shuts down the Admin API.
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(a.allowedNets) > 0 {
			ip := extractIP(r.RemoteAddr)
			allowed := false
			if ip != nil {
				for _, n := range a.allowedNets {
					if n.Contains(ip) {
						allowed = true
						break
					}
				}
			}
			if !allowed {
				a.writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}

		if a.authToken != "" {
			h := r.Header.Get("Authorization")
			token := strings.TrimPrefix(h, "Bearer ")
			if !strings.HasPrefix(h, "Bearer ") || token != a.authToken {
				w.Header().Set("WWW-Authenticate", "Bearer")
				a.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		next(w, r)
	}
}

func extractIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

func (a *API) writeEnvelope(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data, RequestID: uuid.NewString()})
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg, RequestID: uuid.NewString()})
}

// healthSnapshot is the per-server entry in the /health response.
type healthSnapshot struct {
	Backend   string `json:"backend"`
	Server    string `json:"server"`
	State     string `json:"state"`
	Circuit   string `json:"circuit_state"`
	LastCheck string `json:"last_check,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	a.poolsMu.RLock()
	defer a.poolsMu.RUnlock()

	snapshots := make([]healthSnapshot, 0)
	for backendID, pool := range a.pools {
		statuses := pool.GetHealthStatuses()
		cbStats := pool.GetCircuitBreakerStats()
		for serverID, status := range statuses {
			entry := healthSnapshot{
				Backend: backendID,
				Server:  serverID,
				State:   status.State.String(),
			}
			if cb, ok := cbStats[serverID]; ok {
				entry.Circuit = cb.State.String()
			}
			if !status.LastCheck.IsZero() {
				entry.LastCheck = status.LastCheck.UTC().Format(time.RFC3339)
			}
			snapshots = append(snapshots, entry)
		}
	}

	a.writeEnvelope(w, snapshots)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.metrics == nil {
		a.writeError(w, http.StatusServiceUnavailable, "metrics not available")
		return
	}
	a.metrics.Handler().ServeHTTP(w, r)
}

// adminConfigView is the sanitized shape returned by /admin/config. It has
// no field for auth.jwt_secret, so there is no redaction step to get wrong.
type adminConfigView struct {
	ServerHost       string `json:"server_host"`
	ServerPort       int    `json:"server_port"`
	RouteCount       int    `json:"route_count"`
	BackendCount     int    `json:"backend_count"`
	RateLimitStorage string `json:"rate_limit_storage"`
	DefaultRPM       int    `json:"default_requests_per_minute"`
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.cfg == nil {
		a.writeError(w, http.StatusServiceUnavailable, "config not available")
		return
	}

	view := adminConfigView{
		ServerHost:       a.cfg.Server.Host,
		ServerPort:       a.cfg.Server.Port,
		RouteCount:       len(a.cfg.Routes),
		BackendCount:     len(a.cfg.Backends),
		RateLimitStorage: a.cfg.RateLimit.Storage,
		DefaultRPM:       a.cfg.RateLimit.DefaultRequestsPerMinute,
	}
	a.writeEnvelope(w, view)
}

// routeView is one entry in the /admin/routes response.
type routeView struct {
	PathPattern string `json:"path_pattern"`
	Method      string `json:"method,omitempty"`
	BackendID   string `json:"backend_id"`
	LBStrategy  string `json:"lb_strategy"`
	RPMOverride int    `json:"rpm_override,omitempty"`
}

func (a *API) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.routes == nil {
		a.writeEnvelope(w, []routeView{})
		return
	}

	views := make([]routeView, 0)
	for _, rt := range a.routes.Routes() {
		views = append(views, routeView{
			PathPattern: rt.PathPattern,
			Method:      rt.Method,
			BackendID:   rt.BackendID,
			LBStrategy:  rt.LBStrategy,
			RPMOverride: rt.RPMOverride,
		})
	}
	a.writeEnvelope(w, views)
}
