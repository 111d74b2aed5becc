package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Local is a token-bucket rate limiter backed by a per-client
// golang.org/x/time/rate.Limiter, created lazily and reaped after a period
// of inactivity. Its refill is elapsed-time-since-last-check based, which is
// exactly the formula this gateway's contract specifies.
type Local struct {
	quotaPerMinute int
	burst          int

	buckets sync.Map // clientID -> *bucket

	stop chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed int64 // unix nanos, accessed atomically
}

// NewLocal creates a Local limiter with the given per-minute quota and burst
// size, and starts a background sweep that evicts buckets idle past idleTTL.
func NewLocal(quotaPerMinute, burst int, idleTTL time.Duration) *Local {
	if burst <= 0 {
		burst = quotaPerMinute
	}
	l := &Local{
		quotaPerMinute: quotaPerMinute,
		burst:          burst,
		stop:           make(chan struct{}),
	}
	go l.sweep(idleTTL)
	return l
}

// Check consumes one token from the client's bucket if available.
func (l *Local) Check(_ context.Context, clientID string) (Decision, error) {
	b := l.bucketFor(clientID)
	atomic.StoreInt64(&b.lastUsed, time.Now().UnixNano())

	if b.limiter.Allow() {
		return Allow, nil
	}
	return Deny, nil
}

func (l *Local) bucketFor(clientID string) *bucket {
	if v, ok := l.buckets.Load(clientID); ok {
		return v.(*bucket)
	}

	ratePerSec := float64(l.quotaPerMinute) / 60.0
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), l.burst),
		lastUsed: time.Now().UnixNano(),
	}

	actual, loaded := l.buckets.LoadOrStore(clientID, b)
	if loaded {
		return actual.(*bucket)
	}
	return b
}

func (l *Local) sweep(idleTTL time.Duration) {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	ticker := time.NewTicker(idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleTTL).UnixNano()
			l.buckets.Range(func(key, value interface{}) bool {
				b := value.(*bucket)
				if atomic.LoadInt64(&b.lastUsed) < cutoff {
					l.buckets.Delete(key)
				}
				return true
			})
		}
	}
}

// Stop halts the background eviction sweep.
func (l *Local) Stop() {
	close(l.stop)
}
