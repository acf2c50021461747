package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe manual clock for tests.
//
// Unlike time.Now, the clock only moves when a test calls Advance, so
// attempt timestamps and backoff arithmetic are reproducible.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewDeterministicClock creates a clock fixed at the given instant.
func NewDeterministicClock(start time.Time) *DeterministicClock {
	return &DeterministicClock{now: start.UTC()}
}

// Now returns the current instant. Safe for concurrent use.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new instant.
func (c *DeterministicClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
