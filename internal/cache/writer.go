package cache

import (
	"context"
	"time"

	"github.com/samsaffron/agentwire/internal/coalesce"
	"github.com/samsaffron/agentwire/internal/timeline"
)

// DefaultWriteInterval throttles cache writes while a session is streaming.
const DefaultWriteInterval = 2 * time.Second

// Writer coalesces timeline writes for one session: immediate when idle,
// throttled while streaming. Each accepted write bumps the entry version so
// the store can reject anything stale. Not safe for concurrent use; the
// session client drives it from its event loop.
type Writer struct {
	store     Store
	sessionID string
	interval  time.Duration
	clock     coalesce.Clock

	version   int64
	lastWrite time.Time
	pending   []timeline.Message
}

// NewWriter creates a writer for the session. A nil clock uses the system
// clock; a non-positive interval uses DefaultWriteInterval.
func NewWriter(store Store, sessionID string, clock coalesce.Clock, interval time.Duration) *Writer {
	if clock == nil {
		clock = coalesce.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultWriteInterval
	}
	return &Writer{store: store, sessionID: sessionID, clock: clock, interval: interval}
}

// SeedVersion continues the version sequence from a restored entry.
func (w *Writer) SeedVersion(v int64) {
	if v > w.version {
		w.version = v
	}
}

// Offer hands the writer the current timeline. Immediate writes (idle
// transitions, finalized messages) go straight to the store; otherwise the
// snapshot is buffered and written once the interval has elapsed.
func (w *Writer) Offer(ctx context.Context, msgs []timeline.Message, immediate bool) error {
	now := w.clock.Now()
	if !immediate && now.Sub(w.lastWrite) < w.interval {
		w.pending = msgs
		return nil
	}
	w.pending = nil
	w.lastWrite = now
	return w.write(ctx, msgs, now)
}

// Flush writes any buffered snapshot. Called on the idle transition so the
// cache never lags a finished turn.
func (w *Writer) Flush(ctx context.Context) error {
	if w.pending == nil {
		return nil
	}
	msgs := w.pending
	w.pending = nil
	now := w.clock.Now()
	w.lastWrite = now
	return w.write(ctx, msgs, now)
}

func (w *Writer) write(ctx context.Context, msgs []timeline.Message, now time.Time) error {
	w.version++
	_, err := w.store.Write(ctx, Entry{
		SessionID: w.sessionID,
		Messages:  msgs,
		Timestamp: now,
		Version:   w.version,
	})
	return err
}
