// Package quantity provides the bounded unit counter attached to issuable
// assets (shares and fund units). It tracks how many units are currently
// available for purchase.
package quantity

import "sync"

// Counter is a non-negative unit counter. Increase always succeeds;
// a Decrease that would go negative is rejected and leaves the counter
// unchanged — callers detect rejection by comparing the returned total.
//
// Both operations are linearizable: under any interleaving of concurrent
// callers, exactly the decreases that fit in some serial order succeed
// and the counter never goes negative.
type Counter struct {
	mu    sync.Mutex
	total int64
}

// NewCounter creates a counter with an initial number of units.
// Negative initial values are clamped to zero.
func NewCounter(initial int64) *Counter {
	if initial < 0 {
		initial = 0
	}
	return &Counter{total: initial}
}

// Increase adds n units and returns the new total.
func (c *Counter) Increase(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += n
	return c.total
}

// Decrease removes n units if at least n are available and returns the
// new total. If fewer than n units are available the counter is left
// unchanged and the unchanged total is returned.
func (c *Counter) Decrease(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total-n >= 0 {
		c.total -= n
	}
	return c.total
}

// Value returns the current total.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
