// Package clock provides the time source shared by the guard packages.
// Production code uses the real clock; tests swap in a Fake so that
// window and cooldown arithmetic can be driven deterministically.
package clock

import (
	"sync"
	"time"
)

// NowFn returns the current time. Guards take a NowFn instead of calling
// time.Now directly so the clock can be replaced in tests.
type NowFn func() time.Time

// RealNow is the production NowFn.
func RealNow() time.Time {
	return time.Now()
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock pinned to the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake's current instant. Pass f.Now as a NowFn.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
