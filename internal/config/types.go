package config

import "time"

// Config is the root configuration structure for the gateway.
type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Log             LogConfig       `yaml:"log"`
	Admin           AdminConfig     `yaml:"admin"`
	Backends        []BackendConfig `yaml:"backends"`
	Routes          []RouteConfig   `yaml:"routes"`
	RateLimit       RateLimitConfig `yaml:"rate_limiting"`
	Auth            AuthConfig      `yaml:"auth"`
	Tracing         TracingConfig   `yaml:"tracing"`
	TrustedProxies  []string        `yaml:"trusted_proxies"`
	MaxRequestBody  int64           `yaml:"max_request_body"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

// ServerConfig configures the gateway's own listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AdminConfig configures the admin API's own access control.
type AdminConfig struct {
	Addr       string   `yaml:"addr"`
	Token      string   `yaml:"token"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

// TracingConfig configures the optional OpenTelemetry/Jaeger exporter.
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// BackendConfig is a named pool of origin servers (spec.md §3 "Backend").
type BackendConfig struct {
	ID             string               `yaml:"id"`
	Servers        []string             `yaml:"servers"` // origin URLs: scheme+host+port, no path
	HealthCheck    HealthCheckConfig    `yaml:"health_check"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// HealthCheckConfig is spec.md §3's HealthCheckSpec.
type HealthCheckConfig struct {
	Enabled            bool          `yaml:"enabled"`
	ProbePath          string        `yaml:"probe_path"`
	Interval           time.Duration `yaml:"interval"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout"`
	HealthyThreshold   int           `yaml:"healthy_threshold"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"`
}

// CircuitBreakerConfig configures the per-server circuit breaker supplement
// (SPEC_FULL.md §10).
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// RouteConfig is spec.md §3's Route.
type RouteConfig struct {
	PathPattern  string `yaml:"path_pattern"`
	Method       string `yaml:"method,omitempty"`
	BackendID    string `yaml:"backend_id"`
	LBStrategy   string `yaml:"lb_strategy"` // round_robin, least_connections, random, weighted_round_robin
	RPMOverride  int    `yaml:"rpm_override,omitempty"`
	AuthRequired bool   `yaml:"auth_required"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
}

// RateLimitConfig configures rate limiting storage and default quota.
type RateLimitConfig struct {
	Storage                  string `yaml:"storage"` // "memory" or "redis"
	DefaultRequestsPerMinute int    `yaml:"default_requests_per_minute"`
	BurstSize                int    `yaml:"burst_size"`
	RedisAddr                string `yaml:"redis_addr"`
	RedisPassword            string `yaml:"redis_password"`
	RedisDB                  int    `yaml:"redis_db"`
}

// AuthConfig configures the auth middleware.
type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	JWTSecret    string   `yaml:"jwt_secret"`
	APIKeyHeader string   `yaml:"api_key_header"`
	BypassPaths  []string `yaml:"bypass_paths"`
}
