// Package coalesce rate-limits how often snapshots of an in-progress message
// are handed to consumers. A fast token stream can produce hundreds of
// snapshots per second; the coalescer bounds emission to a fixed interval and
// always keeps the newest snapshot buffered, so nothing final is ever lost.
package coalesce

import (
	"time"

	"github.com/samsaffron/agentwire/internal/timeline"
)

// DefaultInterval bounds how often intermediate snapshots are emitted.
const DefaultInterval = 80 * time.Millisecond

// Clock abstracts time so the coalescer is testable with a simulated clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Coalescer buffers snapshot offers between emissions. It is pure rate
// limiting: input is never rejected, and a later offer supersedes the
// buffered one because each snapshot is a full copy of the message.
type Coalescer struct {
	clock    Clock
	interval time.Duration
	lastEmit time.Time
	pending  *timeline.Message
}

// New creates a coalescer. A nil clock uses the system clock; a non-positive
// interval uses DefaultInterval.
func New(clock Clock, interval time.Duration) *Coalescer {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coalescer{clock: clock, interval: interval}
}

// Offer hands a snapshot to the coalescer. If the interval has elapsed since
// the last emission the snapshot is returned for immediate application and
// the buffer cleared; otherwise it is buffered and nil is returned.
func (c *Coalescer) Offer(snapshot *timeline.Message) *timeline.Message {
	now := c.clock.Now()
	if now.Sub(c.lastEmit) >= c.interval {
		c.lastEmit = now
		c.pending = nil
		return snapshot
	}
	c.pending = snapshot
	return nil
}

// DrainReady returns the buffered snapshot if its emission window has opened,
// nil otherwise. Called on a periodic timer to guarantee progress when no new
// offer arrives to carry the buffered snapshot out.
func (c *Coalescer) DrainReady() *timeline.Message {
	if c.pending == nil {
		return nil
	}
	now := c.clock.Now()
	if now.Sub(c.lastEmit) < c.interval {
		return nil
	}
	snap := c.pending
	c.pending = nil
	c.lastEmit = now
	return snap
}

// Flush forces out whatever is buffered regardless of the interval. Mandatory
// on every terminating event so the final content is never dropped.
func (c *Coalescer) Flush() *timeline.Message {
	snap := c.pending
	c.pending = nil
	if snap != nil {
		c.lastEmit = c.clock.Now()
	}
	return snap
}

// HasPending reports whether a snapshot is buffered.
func (c *Coalescer) HasPending() bool { return c.pending != nil }

// Reset clears all state, including the emission window. Used after a resync
// so a stale window doesn't delay the first snapshot of the rebuilt stream.
func (c *Coalescer) Reset() {
	c.pending = nil
	c.lastEmit = time.Time{}
}
