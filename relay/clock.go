package relay

import (
	"sync"
	"time"
)

// clock tracks interview wall time and the last-activity timestamp shared by
// the batcher and the inactivity monitor. now is injectable for tests.
type clock struct {
	now func() time.Time

	mu           sync.Mutex
	startedAt    time.Time
	lastActivity time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	c := &clock{now: now}
	t := now()
	c.startedAt = t
	c.lastActivity = t
	return c
}

func (c *clock) Touch() {
	c.mu.Lock()
	c.lastActivity = c.now()
	c.mu.Unlock()
}

func (c *clock) SinceActivity() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastActivity)
}

func (c *clock) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.now().Sub(c.startedAt) / time.Second)
}
