// Package ratelimit guards outbound calls to rate-limited providers with a
// fixed window per provider key. One process-wide limiter protects shared
// external quotas across all concurrent fetches.
package ratelimit

import (
	"sync"
	"time"

	"newsforge/internal/domain"
)

// Window configures one provider key.
type Window struct {
	MaxCalls int
	Period   time.Duration
}

type counter struct {
	windowStart time.Time
	calls       int
}

// Limiter tracks call counts per key. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]Window
	counters map[string]*counter
	now      func() time.Time
}

// New builds a limiter from per-key window configuration. Keys without
// configuration are unlimited.
func New(windows map[string]Window) *Limiter {
	if windows == nil {
		windows = map[string]Window{}
	}
	return &Limiter{
		windows:  windows,
		counters: map[string]*counter{},
		now:      time.Now,
	}
}

// Acquire consumes one permit for key. On exhaustion it returns a
// *domain.RateLimitedError carrying the suggested retry-after, so callers
// can skip, delay, or fail the operation instead of blocking.
func (l *Limiter) Acquire(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	window, limited := l.windows[key]
	if !limited || window.MaxCalls <= 0 {
		return nil
	}

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowStart) >= window.Period {
		c = &counter{windowStart: now}
		l.counters[key] = c
	}

	if c.calls >= window.MaxCalls {
		return &domain.RateLimitedError{
			Key:        key,
			RetryAfter: c.windowStart.Add(window.Period).Sub(now),
		}
	}

	c.calls++
	return nil
}
