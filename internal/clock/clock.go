// Package clock wraps time so the time-sync RPC's monotonic-plus-epoch
// guarantee is testable without wall-clock flakiness.
package clock

import "time"

// Clock is the minimal surface the sync service needs from time.Now.
type Clock interface {
	// NowMs returns milliseconds since the Unix epoch, derived from a
	// monotonic reading anchored at construction time so that two calls
	// from the same process are never observed out of order even across
	// a wall-clock step.
	NowMs() int64
	// UptimeMs returns milliseconds since the clock was started.
	UptimeMs() int64
	// ISO returns the current instant formatted as RFC3339Nano.
	ISO() string
	// TZOffsetMin returns the local timezone offset from UTC in minutes.
	TZOffsetMin() int
}

// System is the production Clock, anchored at process start.
type System struct {
	start    time.Time
	epochMs  int64
}

// NewSystem builds a System clock anchored to the current instant.
func NewSystem() *System {
	now := time.Now()
	return &System{start: now, epochMs: now.UnixMilli()}
}

// NowMs returns the current epoch-relative timestamp using the monotonic
// delta since start, so server_processed_ms >= server_received_ms holds
// even if two calls race a wall-clock adjustment.
func (c *System) NowMs() int64 {
	return c.epochMs + time.Since(c.start).Milliseconds()
}

// UptimeMs reports elapsed process time.
func (c *System) UptimeMs() int64 {
	return time.Since(c.start).Milliseconds()
}

// ISO formats the current instant.
func (c *System) ISO() string {
	return time.Now().Format(time.RFC3339Nano)
}

// TZOffsetMin reports the local UTC offset in minutes.
func (c *System) TZOffsetMin() int {
	_, offsetSec := time.Now().Zone()
	return offsetSec / 60
}

var _ Clock = (*System)(nil)
