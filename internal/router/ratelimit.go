package router

import (
	"sync"
	"time"
)

// chatLimiter enforces "at most limit messages per window" per connection
// using a bounded, lazily-trimmed slice of send timestamps — the router's
// equivalent of the teacher's bounded eviction idiom (msgOwnerKeys), applied
// to a sliding time window instead of a capacity bound.
type chatLimiter struct {
	mu     sync.Mutex
	sent   map[string][]time.Time
	limit  int
	window time.Duration
}

func newChatLimiter(limit int, window time.Duration) *chatLimiter {
	return &chatLimiter{sent: make(map[string][]time.Time), limit: limit, window: window}
}

// Allow reports whether connID may send one more chat message at now,
// recording the attempt if so.
func (c *chatLimiter) Allow(connID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.sent[connID]
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= c.limit {
		c.sent[connID] = ts
		return false
	}
	ts = append(ts, now)
	c.sent[connID] = ts
	return true
}

// Forget drops connID's rate-limit state, called on disconnect so the map
// does not grow unbounded across the connection's lifetime.
func (c *chatLimiter) Forget(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sent, connID)
}
