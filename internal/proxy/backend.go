package proxy

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
)

// Server is a single origin within a backend's pool.
type Server struct {
	ID  string
	URL *url.URL

	inFlight       int64
	health         HealthStatus
	healthMu       sync.RWMutex
	circuitBreaker *CircuitBreaker
}

// NewServer parses rawURL and constructs a Server, initially in the
// Unknown health state until the prober runs its first check.
func NewServer(rawURL string, cbCfg CircuitBreakerConfig) (*Server, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", rawURL, err)
	}

	return &Server{
		ID:             rawURL,
		URL:            u,
		health:         HealthStatus{State: Unknown},
		circuitBreaker: NewCircuitBreaker(cbCfg),
	}, nil
}

// InFlight returns the number of requests currently dispatched to this server.
func (s *Server) InFlight() int64 {
	return atomic.LoadInt64(&s.inFlight)
}

// Acquire increments the in-flight counter; callers must pair with Release.
func (s *Server) Acquire() {
	atomic.AddInt64(&s.inFlight, 1)
}

// Release decrements the in-flight counter, including on cancellation.
func (s *Server) Release() {
	atomic.AddInt64(&s.inFlight, -1)
}

// CircuitBreaker exposes the server's circuit breaker for dispatch decisions.
func (s *Server) CircuitBreaker() *CircuitBreaker {
	return s.circuitBreaker
}

// Pool is the set of servers backing a single configured backend.
type Pool struct {
	id         string
	servers    []*Server
	currentIdx uint64
	mu         sync.RWMutex
}

// NewPool creates a new, empty pool for the given backend id.
func NewPool(id string) *Pool {
	return &Pool{id: id, servers: make([]*Server, 0)}
}

// ID returns the backend id this pool serves.
func (p *Pool) ID() string { return p.id }

// Add adds a server to the pool.
func (p *Pool) Add(s *Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers = append(p.servers, s)
}

// Servers returns a snapshot of the pool's servers.
func (p *Pool) Servers() []*Server {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Server, len(p.servers))
	copy(out, p.servers)
	return out
}

// Get returns a server by id, or nil.
func (p *Pool) Get(id string) *Server {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.servers {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Len returns the number of servers in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.servers)
}

// nextIndex advances and returns the pool's round-robin cursor.
func (p *Pool) nextIndex() uint64 {
	return atomic.AddUint64(&p.currentIdx, 1) - 1
}

// HealthyServers returns the servers currently considered Healthy.
func (p *Pool) HealthyServers() []*Server {
	p.mu.RLock()
	defer p.mu.RUnlock()

	healthy := make([]*Server, 0, len(p.servers))
	for _, s := range p.servers {
		if s.IsHealthy() {
			healthy = append(healthy, s)
		}
	}
	return healthy
}

// GetCircuitBreakerStats returns circuit breaker statistics for all servers.
func (p *Pool) GetCircuitBreakerStats() map[string]CircuitBreakerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make(map[string]CircuitBreakerStats)
	for _, s := range p.servers {
		stats[s.ID] = s.circuitBreaker.Stats()
	}
	return stats
}

// GetHealthStatuses returns health status for all servers.
func (p *Pool) GetHealthStatuses() map[string]HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	statuses := make(map[string]HealthStatus)
	for _, s := range p.servers {
		statuses[s.ID] = s.GetHealthStatus()
	}
	return statuses
}
