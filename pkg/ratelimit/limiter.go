// Package ratelimit implements a per-key fixed-window rate limiter.
//
// Each caller key owns an independent (window_start, count) pair; admitting
// or rejecting one key never affects another. The algorithm is fixed-window,
// not sliding-window or token-bucket: a burst of up to 2*calls requests can
// land in a short span straddling two adjacent windows. A request arriving
// exactly at the period boundary starts a fresh window.
//
// The key table is bounded by an LRU cap so the limiter's memory does not
// grow with the number of distinct callers ever seen; an evicted key simply
// starts a fresh window when next observed. Sweep additionally clears keys
// that have been idle past a horizon, intended to run from a cron job.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"GuardLane/pkg/clock"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxKeys bounds the key table when no explicit cap is given.
const DefaultMaxKeys = 65536

// entry is one key's window bookkeeping. Its mutex makes the
// read-modify-write of (windowStart, count) atomic per key while leaving
// unrelated keys free to proceed.
type entry struct {
	mu          sync.Mutex
	windowStart time.Time // zero value means no window observed yet
	count       int
}

// Limiter admits up to calls requests per key per period.
// Safe for concurrent use.
type Limiter struct {
	calls  int
	period time.Duration
	now    clock.NowFn

	mu      sync.Mutex // guards entry creation only
	entries *lru.Cache[string, *entry]
}

// Option configures a Limiter.
type Option func(*Limiter) error

// WithClock replaces the time source, used by tests.
func WithClock(now clock.NowFn) Option {
	return func(l *Limiter) error {
		if now != nil {
			l.now = now
		}
		return nil
	}
}

// WithMaxKeys sets the LRU cap on the key table.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) error {
		if n <= 0 {
			return fmt.Errorf("max keys must be positive, got %d", n)
		}
		cache, err := lru.New[string, *entry](n)
		if err != nil {
			return fmt.Errorf("failed to create key table: %w", err)
		}
		l.entries = cache
		return nil
	}
}

// New creates a limiter admitting calls requests per period for each key.
func New(calls int, period time.Duration, opts ...Option) (*Limiter, error) {
	if calls <= 0 {
		return nil, fmt.Errorf("calls must be positive, got %d", calls)
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %s", period)
	}

	entries, err := lru.New[string, *entry](DefaultMaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create key table: %w", err)
	}

	l := &Limiter{
		calls:   calls,
		period:  period,
		now:     clock.RealNow,
		entries: entries,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Allow decides admission for key. When the request is rejected, retryAfter
// is the time until the key's next window begins; when admitted it is zero.
//
// A rejected request does not consume quota: the stored count is unchanged.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	e := l.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()

	// The boundary now-windowStart == period belongs to the new window.
	if e.windowStart.IsZero() || now.Sub(e.windowStart) >= l.period {
		e.windowStart = now
		e.count = 0
	}

	if e.count >= l.calls {
		retry := l.period - now.Sub(e.windowStart)
		if retry < 0 {
			retry = 0
		}
		return false, retry
	}

	e.count++
	return true, 0
}

// entry returns the bookkeeping for key, creating it on first observation.
func (l *Limiter) entry(key string) *entry {
	if e, ok := l.entries.Get(key); ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries.Get(key); ok {
		return e
	}
	e := &entry{}
	l.entries.Add(key, e)
	return e
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	return l.entries.Len()
}

// Sweep removes keys whose window started longer than maxIdle ago and
// returns how many were removed. Entries mid-window are left alone as long
// as maxIdle >= period.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	now := l.now()
	removed := 0
	for _, key := range l.entries.Keys() {
		e, ok := l.entries.Peek(key)
		if !ok {
			continue
		}
		e.mu.Lock()
		stale := !e.windowStart.IsZero() && now.Sub(e.windowStart) >= maxIdle
		e.mu.Unlock()
		if stale {
			l.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Calls returns the configured admissions per window.
func (l *Limiter) Calls() int {
	return l.calls
}

// Period returns the configured window length.
func (l *Limiter) Period() time.Duration {
	return l.period
}
