// Package metrics exposes gateway counters and histograms through a
// Prometheus registry owned by a single injected Collector value.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private Prometheus registry. It is never backed by
// prometheus.DefaultRegisterer so a process can construct more than one
// (tests, multiple gateway instances) without collector-already-registered
// panics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal        *prometheus.CounterVec
	errorsTotal          *prometheus.CounterVec
	backendRequestsTotal *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	rateLimitStoreErrors prometheus.Counter

	customMu sync.Mutex
	custom   map[string]*prometheus.GaugeVec
}

// New constructs a Collector with its own registry and registers the
// built-in request/error/backend/latency metrics on it.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests received by the gateway.",
		}, []string{"route", "method"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of requests terminated with an error, labeled by kind.",
		}, []string{"kind"}),
		backendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total number of requests dispatched to a backend server.",
		}, []string{"backend", "server"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Gateway request latency in seconds, measured by the gateway handler from route matching to upstream response completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Total number of distributed rate limit store failures (fail-open).",
		}),
		custom: make(map[string]*prometheus.GaugeVec),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.errorsTotal,
		c.backendRequestsTotal,
		c.requestDuration,
		c.rateLimitStoreErrors,
	)

	return c
}

// ObserveRequest records a completed request against its route and method.
func (c *Collector) ObserveRequest(route, method string, duration float64) {
	c.requestsTotal.WithLabelValues(route, method).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration)
}

// ObserveError increments errors_total for the given error kind.
func (c *Collector) ObserveError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// ObserveBackendRequest increments backend_requests_total for a dispatched
// backend and server pair.
func (c *Collector) ObserveBackendRequest(backend, server string) {
	c.backendRequestsTotal.WithLabelValues(backend, server).Inc()
}

// RateLimitStoreError increments ratelimit_store_errors_total. Intended to
// be passed as the onError callback to ratelimit.Distributed.
func (c *Collector) RateLimitStoreError() {
	c.rateLimitStoreErrors.Inc()
}

// SetGauge records a value for a dynamically named custom gauge, creating
// and registering it on first use. This backs the custom metric map keyed
// by name with labels.
func (c *Collector) SetGauge(name, help string, labels map[string]string, value float64) {
	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}

	c.customMu.Lock()
	gv, ok := c.custom[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
		c.registry.MustRegister(gv)
		c.custom[name] = gv
	}
	c.customMu.Unlock()

	gv.With(labels).Set(value)
}

// Handler returns the Prometheus text-exposition HTTP handler for this
// collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. for gatherer-based snapshots.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
