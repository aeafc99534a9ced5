package core

import (
	"sync"
	"time"
)

// Clock reports the current time in unix seconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() int64 { return time.Now().Unix() }

// MonotonicClock wraps another clock and never reports a reading earlier than
// one it already returned, so a wall clock stepping backwards cannot reopen a
// closed donation window.
type MonotonicClock struct {
	inner Clock
	mu    sync.Mutex
	last  int64
}

// NewMonotonicClock wraps inner. A nil inner clock falls back to SystemClock.
func NewMonotonicClock(inner Clock) *MonotonicClock {
	if inner == nil {
		inner = SystemClock{}
	}
	return &MonotonicClock{inner: inner}
}

// Now implements Clock.
func (c *MonotonicClock) Now() int64 {
	now := c.inner.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// FixedClock returns a manually controlled time. Used by tests and replay
// tooling.
type FixedClock struct {
	mu  sync.Mutex
	now int64
}

// NewFixedClock starts the clock at now.
func NewFixedClock(now int64) *FixedClock { return &FixedClock{now: now} }

// Now implements Clock.
func (c *FixedClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *FixedClock) Set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by d, truncated to whole seconds.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += int64(d / time.Second)
	c.mu.Unlock()
}
