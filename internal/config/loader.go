package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.RateLimit.Storage == "" {
		c.RateLimit.Storage = "memory"
	}
	if c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = c.RateLimit.DefaultRequestsPerMinute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.Auth.APIKeyHeader == "" {
		c.Auth.APIKeyHeader = "X-API-Key"
	}
	for i := range c.Backends {
		hc := &c.Backends[i].HealthCheck
		if hc.ProbePath == "" {
			hc.ProbePath = "/health"
		}
		if hc.Interval == 0 {
			hc.Interval = 10 * time.Second
		}
		if hc.ProbeTimeout == 0 {
			hc.ProbeTimeout = 2 * time.Second
		}
		if hc.HealthyThreshold == 0 {
			hc.HealthyThreshold = 2
		}
		if hc.UnhealthyThreshold == 0 {
			hc.UnhealthyThreshold = 3
		}
		cb := &c.Backends[i].CircuitBreaker
		if cb.FailureThreshold == 0 {
			cb.FailureThreshold = 5
		}
		if cb.SuccessThreshold == 0 {
			cb.SuccessThreshold = 2
		}
		if cb.OpenTimeout == 0 {
			cb.OpenTimeout = 30 * time.Second
		}
	}
	for i := range c.Routes {
		if c.Routes[i].LBStrategy == "" {
			c.Routes[i].LBStrategy = "round_robin"
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	for _, cidr := range c.TrustedProxies {
		if err := validateCIDROrIP(cidr); err != nil {
			return fmt.Errorf("trusted_proxies: %w", err)
		}
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}

	backendIDs := make(map[string]bool)
	for i, b := range c.Backends {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("backends[%d]: %w", i, err)
		}
		if backendIDs[b.ID] {
			return fmt.Errorf("duplicate backend ID: %s", b.ID)
		}
		backendIDs[b.ID] = true
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	for i, r := range c.Routes {
		if err := r.Validate(backendIDs); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limiting: %w", err)
	}

	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	return nil
}

// Validate checks log configuration.
func (l *LogConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if l.Level != "" && !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[strings.ToLower(l.Format)] {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}

	return nil
}

// Validate checks backend configuration.
func (b *BackendConfig) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("backend id is required")
	}

	if len(b.Servers) == 0 {
		return fmt.Errorf("backend %q: at least one server is required", b.ID)
	}

	for _, s := range b.Servers {
		u, err := url.Parse(s)
		if err != nil {
			return fmt.Errorf("backend %q: invalid server URL %q: %w", b.ID, s, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend %q: server URL must use http or https scheme: %s", b.ID, s)
		}
		if u.Host == "" {
			return fmt.Errorf("backend %q: server URL must include host: %s", b.ID, s)
		}
	}

	hc := b.HealthCheck
	if hc.Enabled && (hc.HealthyThreshold <= 0 || hc.UnhealthyThreshold <= 0) {
		return fmt.Errorf("backend %q: health_check thresholds must be positive", b.ID)
	}

	return nil
}

// Validate checks route configuration, ensuring it references a known backend.
func (r *RouteConfig) Validate(backendIDs map[string]bool) error {
	if r.PathPattern == "" {
		return fmt.Errorf("path_pattern is required")
	}

	if r.BackendID == "" {
		return fmt.Errorf("backend_id is required")
	}
	if !backendIDs[r.BackendID] {
		return fmt.Errorf("route %q references unknown backend_id %q", r.PathPattern, r.BackendID)
	}

	validStrategies := map[string]bool{
		"round_robin": true, "least_connections": true, "random": true, "weighted_round_robin": true,
	}
	if r.LBStrategy != "" && !validStrategies[r.LBStrategy] {
		return fmt.Errorf("route %q: invalid lb_strategy %q", r.PathPattern, r.LBStrategy)
	}

	return nil
}

// Validate checks rate limiting configuration.
func (rl *RateLimitConfig) Validate() error {
	if rl.Storage != "memory" && rl.Storage != "redis" {
		return fmt.Errorf("storage must be \"memory\" or \"redis\", got %q", rl.Storage)
	}
	if rl.Storage == "redis" && rl.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when storage is \"redis\"")
	}
	if rl.DefaultRequestsPerMinute < 0 {
		return fmt.Errorf("default_requests_per_minute cannot be negative")
	}
	return nil
}

// Validate checks admin API configuration.
func (a *AdminConfig) Validate() error {
	for _, cidr := range a.AllowedIPs {
		if err := validateCIDROrIP(cidr); err != nil {
			return fmt.Errorf("allowed_ips: %w", err)
		}
	}
	return nil
}

func validateCIDROrIP(s string) error {
	if _, _, err := net.ParseCIDR(s); err == nil {
		return nil
	}
	if net.ParseIP(s) != nil {
		return nil
	}
	return fmt.Errorf("invalid CIDR or IP: %s", s)
}
