// Package ratelimit implements sliding-window admission control keyed by
// client identity.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults match the deployed gateway: 30 requests per trailing minute,
// with an eviction sweep at most every 10 seconds.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 30
	DefaultSweepEvery  = 10 * time.Second
)

// Limiter admits a request iff fewer than max timestamps fall inside the
// trailing window for that client. The map is bounded only by the sweep:
// a client whose last request is older than the window still occupies
// memory until the next sweep runs, which is triggered opportunistically
// during normal request handling rather than by a dedicated timer.
type Limiter struct {
	mu         sync.Mutex
	window     time.Duration
	max        int
	sweepEvery time.Duration
	now        func() time.Time

	clients   map[string][]time.Time
	lastSweep time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source, used by tests for deterministic windows.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter admitting max requests per window.
func New(window time.Duration, max int, sweepEvery time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		window:     window,
		max:        max,
		sweepEvery: sweepEvery,
		now:        time.Now,
		clients:    make(map[string][]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	l.lastSweep = l.now()
	return l
}

// NewDefault creates a limiter with the deployed defaults.
func NewDefault(opts ...Option) *Limiter {
	return New(DefaultWindow, DefaultMaxRequests, DefaultSweepEvery, opts...)
}

// Limited records the request attempt and reports whether the client is
// over its window. A limited request is a normal outcome, not an error.
func (l *Limiter) Limited(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweepLocked(now)

	cutoff := now.Add(-l.window)
	kept := l.clients[clientKey][:0]
	for _, ts := range l.clients[clientKey] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.clients[clientKey] = kept
		return true
	}

	l.clients[clientKey] = append(kept, now)
	return false
}

// maybeSweepLocked drops clients with no in-window timestamps, at most
// once per sweep interval. Idempotent: a client with live timestamps is
// never removed.
func (l *Limiter) maybeSweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.lastSweep = now

	cutoff := now.Add(-l.window)
	for key, timestamps := range l.clients {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.clients, key)
		} else {
			l.clients[key] = kept
		}
	}
}

// ClientCount returns the number of tracked clients. Exposed for tests
// and the metrics gauge.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
