// Package ratelimit provides the gate's sliding-window request limiter with a
// punitive cooldown.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 10
	DefaultCooldown    = 5 * time.Minute
)

// Snapshot is a read-only view of the limiter window.
type Snapshot struct {
	RequestsInWindow int        `json:"requests_in_window"`
	MaxRequests      int        `json:"max_requests"`
	Window           string     `json:"window"`
	Cooldown         string     `json:"cooldown"`
	BlockedUntil     *time.Time `json:"blocked_until,omitempty"`
}

// Limiter counts call attempts over a sliding window. Once the count exceeds
// MaxRequests all calls are refused until the cooldown elapses.
type Limiter struct {
	window      time.Duration
	maxRequests int
	cooldown    time.Duration
	now         func() time.Time

	mu           sync.Mutex
	timestamps   []time.Time
	blockedUntil time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithCooldown sets how long the limiter refuses calls after the limit is exceeded.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cooldown = d
		}
	}
}

// New creates a limiter allowing maxRequests per window. Non-positive values
// fall back to the defaults.
func New(maxRequests int, window time.Duration, opts ...Option) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		window:      window,
		maxRequests: maxRequests,
		cooldown:    DefaultCooldown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a call attempt and reports whether it is within the limit.
// Attempts made while blocked are refused without being recorded.
func (l *Limiter) Check() domain.CheckResult {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.blockedUntil.IsZero() && now.Before(l.blockedUntil) {
		remaining := l.blockedUntil.Sub(now).Round(time.Second)
		return domain.Fail(domain.CheckRateLimit,
			fmt.Sprintf("rate limited for another %s (until %s)", remaining, l.blockedUntil.UTC().Format(time.RFC3339)))
	}

	l.prune(now)
	l.timestamps = append(l.timestamps, now)
	count := len(l.timestamps)

	if count > l.maxRequests {
		l.blockedUntil = now.Add(l.cooldown)
		return domain.Fail(domain.CheckRateLimit,
			fmt.Sprintf("rate limit exceeded: %d/%d requests in %s", count, l.maxRequests, l.window))
	}

	return domain.Pass(domain.CheckRateLimit, fmt.Sprintf("rate limit ok: %d/%d requests", count, l.maxRequests))
}

// RetryAt returns the end of the current block, or the zero time when the
// limiter is not blocking.
func (l *Limiter) RetryAt() time.Time {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Before(l.blockedUntil) {
		return l.blockedUntil
	}
	return time.Time{}
}

// Snapshot reports the window state without recording an attempt.
func (l *Limiter) Snapshot() Snapshot {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, ts := range l.timestamps {
		if now.Sub(ts) < l.window {
			count++
		}
	}

	snap := Snapshot{
		RequestsInWindow: count,
		MaxRequests:      l.maxRequests,
		Window:           l.window.String(),
		Cooldown:         l.cooldown.String(),
	}
	if now.Before(l.blockedUntil) {
		until := l.blockedUntil
		snap.BlockedUntil = &until
	}
	return snap
}

// prune drops timestamps that fell out of the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept
}
