package integration

import (
	"sync"
	"time"
)

// waiter is a pending After call.
type waiter struct {
	at time.Time
	ch chan time.Time
}

// FakeClock is a core.Clock whose time only moves when a test calls Add or
// AdvanceTo. SLA ticks, cache expiry and session lifetimes all read it.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires once fake time reaches now+d. Non positive durations fire immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Pending is the number of After channels still waiting. Tests poll it to know
// a background loop has parked before moving time.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *FakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(c.now.Add(d))
}

// AdvanceTo jumps to t. Times before now are ignored.
func (c *FakeClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.advance(t.UTC())
	}
}

func (c *FakeClock) advance(to time.Time) {
	c.now = to
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.at.After(to) {
			kept = append(kept, w)
			continue
		}
		w.ch <- to
	}
	c.waiters = kept
}
