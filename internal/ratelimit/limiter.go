// Package ratelimit provides per-key sliding-window admission control.
//
// State lives only in process memory. Losing it resets rate-limit history,
// which is acceptable for abuse prevention.
package ratelimit

import (
	"sync"
	"time"

	"github.com/ashureev/yar/internal/domain"
)

// Limiter admits at most limit events per key within any window-long interval.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. A non-positive limit disables limiting.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an attempt for key. It returns ErrRateLimitExceeded, without
// recording, when key already has limit attempts inside the window.
func (l *Limiter) Allow(key string) error {
	if l.limit <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.recent(l.hits[key], now)
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return domain.Errorf(domain.KindRateLimitExceeded,
			"Rate limit exceeded: max %d messages per %s. Wait and retry.", l.limit, l.window)
	}
	l.hits[key] = append(recent, now)
	return nil
}

// Prune drops keys whose history has aged out of the window and returns how many were dropped.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for key, ts := range l.hits {
		recent := l.recent(ts, now)
		if len(recent) == 0 {
			delete(l.hits, key)
			dropped++
			continue
		}
		l.hits[key] = recent
	}
	return dropped
}

// Reset forgets all history.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = make(map[string][]time.Time)
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// recent returns the suffix of ts newer than now-window. ts is in append order.
func (l *Limiter) recent(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
