// Command gateway runs the HTTP API gateway: it loads configuration, builds
// the backend pools, health prober, rate limiter, auth service, and
// middleware chain, then serves the gateway and admin listeners until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gensecaihq/apigateway/internal/admin"
	"github.com/gensecaihq/apigateway/internal/auth"
	"github.com/gensecaihq/apigateway/internal/config"
	"github.com/gensecaihq/apigateway/internal/gateway"
	"github.com/gensecaihq/apigateway/internal/listener"
	"github.com/gensecaihq/apigateway/internal/logging"
	"github.com/gensecaihq/apigateway/internal/metrics"
	"github.com/gensecaihq/apigateway/internal/middleware"
	"github.com/gensecaihq/apigateway/internal/proxy"
	"github.com/gensecaihq/apigateway/internal/ratelimit"
	"github.com/gensecaihq/apigateway/internal/route"
	"github.com/gensecaihq/apigateway/internal/tracing"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gateway %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("gateway starting", map[string]interface{}{
		"version": version,
		"routes":  len(cfg.Routes),
	})

	tracingProvider, err := tracing.NewProvider(cfg.Tracing.ServiceName, jaegerEndpointFor(cfg))
	if err != nil {
		logger.Error("failed to initialize tracing provider", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer tracingProvider.Shutdown(context.Background())

	metricsCollector := metrics.New()

	pools := make(map[string]*proxy.Pool)
	prober := proxy.NewProber()
	for _, bc := range cfg.Backends {
		pool := proxy.NewPool(bc.ID)
		cbCfg := proxy.CircuitBreakerConfig{
			FailureThreshold: bc.CircuitBreaker.FailureThreshold,
			SuccessThreshold: bc.CircuitBreaker.SuccessThreshold,
			Timeout:          bc.CircuitBreaker.OpenTimeout,
		}
		for _, rawURL := range bc.Servers {
			srv, err := proxy.NewServer(rawURL, cbCfg)
			if err != nil {
				logger.Error("failed to create backend server", map[string]interface{}{
					"backend": bc.ID,
					"url":     rawURL,
					"error":   err.Error(),
				})
				continue
			}
			pool.Add(srv)
		}
		pools[bc.ID] = pool

		prober.Register(pool, proxy.HealthConfig{
			Enabled:            bc.HealthCheck.Enabled,
			ProbePath:          bc.HealthCheck.ProbePath,
			Interval:           bc.HealthCheck.Interval,
			ProbeTimeout:       bc.HealthCheck.ProbeTimeout,
			HealthyThreshold:   bc.HealthCheck.HealthyThreshold,
			UnhealthyThreshold: bc.HealthCheck.UnhealthyThreshold,
		})
	}
	prober.Start()
	defer prober.Stop()

	routes := make([]route.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		routes = append(routes, route.Route{
			PathPattern:  rc.PathPattern,
			Method:       rc.Method,
			BackendID:    rc.BackendID,
			LBStrategy:   rc.LBStrategy,
			RPMOverride:  rc.RPMOverride,
			AuthRequired: rc.AuthRequired,
			TimeoutMs:    rc.TimeoutMs,
		})
	}
	routeTable := route.NewTable(routes)

	limiter, stopLimiter := buildLimiter(cfg, metricsCollector, logger)
	defer stopLimiter()

	authSvc := auth.NewService(cfg.Auth.JWTSecret, nil)

	trustedProxies := parseTrustedProxies(cfg.TrustedProxies, logger)

	gatewayHandler := gateway.NewHandler(gateway.Config{
		Routes:         routeTable,
		Pools:          pools,
		Dispatcher:     proxy.NewDispatcher(tracingProvider),
		Metrics:        metricsCollector,
		MaxRequestBody: cfg.MaxRequestBody,
		DefaultTimeout: 30 * time.Second,
	})

	chain := middleware.Chain(gatewayHandler,
		middleware.Trace(tracingProvider, trustedProxies),
		middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", cfg.Auth.APIKeyHeader},
		}),
		middleware.Compression(),
		middleware.Logging(logger),
		middleware.RateLimit(limiter, cfg.Auth.APIKeyHeader),
		middleware.Auth(authSvc, middleware.AuthOptions{
			Enabled:      cfg.Auth.Enabled,
			APIKeyHeader: cfg.Auth.APIKeyHeader,
			BypassPaths:  cfg.Auth.BypassPaths,
		}),
	)

	gatewayListener := listener.NewHTTPListener(listener.HTTPListenerConfig{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: chain,
		ErrorLog: func(msg string) {
			logger.Error(msg, nil)
		},
	})

	ctx := context.Background()
	if err := gatewayListener.Start(ctx); err != nil {
		logger.Error("failed to start gateway listener", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("gateway listener started", map[string]interface{}{"addr": gatewayListener.Addr()})

	var adminAPI *admin.API
	if cfg.Admin.Addr != "" {
		adminAPI = admin.New(admin.Config{
			Addr:       cfg.Admin.Addr,
			Metrics:    metricsCollector,
			Routes:     routeTable,
			GatewayCfg: cfg,
			AuthToken:  cfg.Admin.Token,
			AllowedIPs: cfg.Admin.AllowedIPs,
		})
		for id, pool := range pools {
			adminAPI.RegisterPool(id, pool)
		}
		if err := adminAPI.Start(); err != nil {
			logger.Error("failed to start admin API", map[string]interface{}{"error": err.Error()})
		} else {
			logger.Info("admin API started", map[string]interface{}{"addr": cfg.Admin.Addr})
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, validating configuration", nil)
			if _, err := config.Load(*configPath); err != nil {
				logger.Error("configuration validation failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			logger.Info("configuration valid, restart required for changes to take effect", nil)

		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down", nil)

			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)

			if adminAPI != nil {
				adminAPI.Stop(shutdownCtx)
			}
			if err := gatewayListener.Stop(shutdownCtx); err != nil {
				logger.Error("error during listener shutdown", map[string]interface{}{"error": err.Error()})
			}
			cancel()

			logger.Info("shutdown complete", nil)
			return
		}
	}
}

func jaegerEndpointFor(cfg *config.Config) string {
	if !cfg.Tracing.Enabled {
		return ""
	}
	return cfg.Tracing.JaegerEndpoint
}

// buildLimiter constructs the configured rate limiter backend, returning a
// matching stop func: the memory backend's sweep goroutine, or the Redis
// client's Close.
func buildLimiter(cfg *config.Config, collector *metrics.Collector, logger *logging.Logger) (ratelimit.Limiter, func()) {
	quota := cfg.RateLimit.DefaultRequestsPerMinute
	if quota <= 0 {
		quota = 60
	}

	if cfg.RateLimit.Storage == "redis" {
		dist := ratelimit.NewDistributed(
			cfg.RateLimit.RedisAddr,
			cfg.RateLimit.RedisPassword,
			cfg.RateLimit.RedisDB,
			quota,
			collector.RateLimitStoreError,
		)
		logger.Info("rate limiter configured", map[string]interface{}{"storage": "redis", "addr": cfg.RateLimit.RedisAddr})
		return dist, func() { dist.Close() }
	}

	local := ratelimit.NewLocal(quota, cfg.RateLimit.BurstSize, 10*time.Minute)
	logger.Info("rate limiter configured", map[string]interface{}{"storage": "memory", "quota_per_minute": quota})
	return local, local.Stop
}

func parseTrustedProxies(cidrs []string, logger *logging.Logger) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy CIDR", map[string]interface{}{"cidr": c, "error": err.Error()})
			continue
		}
		nets = append(nets, network)
	}
	return nets
}
