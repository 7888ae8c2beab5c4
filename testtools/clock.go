package testtools

import (
	"sync"
	"time"
)

// Clock is a manually driven clock, in unix seconds.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

func NewClock(start uint64) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, truncated to seconds.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d / time.Second)
}

func (c *Clock) Set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
