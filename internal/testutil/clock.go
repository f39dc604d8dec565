// Package testutil provides deterministic time and id sources for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a wall clock that only moves when told to.
//
// Unlike model.SystemClock, Clock can be set and stepped, so tests can cross
// session expiry or day boundaries without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock reading start, converted to UTC.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

// Now returns the current time without advancing it.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to t.
//
// Used to cross a day boundary in order-number tests.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
