package cache

import (
	"context"
	"testing"
	"time"

	"github.com/samsaffron/agentwire/internal/timeline"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingStore captures writes in order.
type recordingStore struct {
	NoopStore
	writes []Entry
}

func (s *recordingStore) Write(_ context.Context, e Entry) (bool, error) {
	s.writes = append(s.writes, e)
	return true, nil
}

func msgs(text string) []timeline.Message {
	return []timeline.Message{{
		ID:    "m1",
		Role:  timeline.RoleAssistant,
		Parts: []timeline.Part{timeline.TextPart("p1", text)},
	}}
}

func TestImmediateWritesBypassThrottle(t *testing.T) {
	store := &recordingStore{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	w := NewWriter(store, "s1", clock, 2*time.Second)
	ctx := context.Background()

	w.Offer(ctx, msgs("a"), true)
	clock.advance(time.Millisecond)
	w.Offer(ctx, msgs("b"), true)

	if len(store.writes) != 2 {
		t.Fatalf("writes=%d, want 2", len(store.writes))
	}
	if store.writes[0].Version != 1 || store.writes[1].Version != 2 {
		t.Fatalf("versions: %d, %d", store.writes[0].Version, store.writes[1].Version)
	}
}

func TestThrottledWritesBuffer(t *testing.T) {
	store := &recordingStore{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	w := NewWriter(store, "s1", clock, 2*time.Second)
	ctx := context.Background()

	// First throttled offer writes (no recent write), then the window closes.
	w.Offer(ctx, msgs("a"), false)
	clock.advance(100 * time.Millisecond)
	w.Offer(ctx, msgs("ab"), false)
	w.Offer(ctx, msgs("abc"), false)
	if len(store.writes) != 1 {
		t.Fatalf("writes=%d, want 1 (later offers buffered)", len(store.writes))
	}

	clock.advance(2 * time.Second)
	w.Offer(ctx, msgs("abcd"), false)
	if len(store.writes) != 2 {
		t.Fatalf("writes=%d, want 2 after window reopens", len(store.writes))
	}
	last := store.writes[1]
	if last.Messages[0].Text() != "abcd" {
		t.Fatalf("wrote %q, want newest snapshot", last.Messages[0].Text())
	}
}

func TestFlushWritesPending(t *testing.T) {
	store := &recordingStore{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	w := NewWriter(store, "s1", clock, 2*time.Second)
	ctx := context.Background()

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush with nothing pending: %v", err)
	}
	if len(store.writes) != 0 {
		t.Fatal("empty flush should not write")
	}

	w.Offer(ctx, msgs("a"), false)
	clock.advance(time.Millisecond)
	w.Offer(ctx, msgs("final"), false) // buffered
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(store.writes) != 2 || store.writes[1].Messages[0].Text() != "final" {
		t.Fatalf("flush should write the buffered snapshot: %+v", store.writes)
	}
}

func TestSeedVersionContinuesSequence(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, "s1", &fakeClock{now: time.Unix(1000, 0)}, 0)
	w.SeedVersion(41)
	w.SeedVersion(7) // never moves backwards

	w.Offer(context.Background(), msgs("x"), true)
	if store.writes[0].Version != 42 {
		t.Fatalf("version=%d, want 42", store.writes[0].Version)
	}
}
