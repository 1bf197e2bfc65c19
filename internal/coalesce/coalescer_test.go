package coalesce

import (
	"testing"
	"time"

	"github.com/samsaffron/agentwire/internal/timeline"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func snap(text string) *timeline.Message {
	return &timeline.Message{
		ID:    "m1",
		Role:  timeline.RoleAssistant,
		Parts: []timeline.Part{timeline.TextPart("p1", text)},
	}
}

func TestFirstOfferEmitsImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(clock, 80*time.Millisecond)

	if got := c.Offer(snap("a")); got == nil {
		t.Fatal("first offer should emit immediately")
	}
}

func TestOffersWithinWindowBuffer(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(clock, 80*time.Millisecond)

	c.Offer(snap("a"))
	clock.advance(10 * time.Millisecond)
	if got := c.Offer(snap("ab")); got != nil {
		t.Fatal("offer inside window should buffer, not emit")
	}
	if !c.HasPending() {
		t.Fatal("expected buffered snapshot")
	}

	// A later offer supersedes the buffered one.
	clock.advance(10 * time.Millisecond)
	c.Offer(snap("abc"))
	clock.advance(80 * time.Millisecond)
	got := c.Offer(snap("abcd"))
	if got == nil || got.Text() != "abcd" {
		t.Fatalf("expected newest snapshot to emit, got %v", got)
	}
	if c.HasPending() {
		t.Fatal("emission should clear the buffer")
	}
}

func TestDrainReadyRespectsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(clock, 80*time.Millisecond)

	c.Offer(snap("a"))
	clock.advance(10 * time.Millisecond)
	c.Offer(snap("ab"))

	if got := c.DrainReady(); got != nil {
		t.Fatal("drain before the window opens should return nil")
	}
	clock.advance(80 * time.Millisecond)
	got := c.DrainReady()
	if got == nil || got.Text() != "ab" {
		t.Fatalf("expected buffered snapshot after window, got %v", got)
	}
	if got := c.DrainReady(); got != nil {
		t.Fatal("second drain should return nil")
	}
}

func TestFlushForcesPendingOut(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(clock, 80*time.Millisecond)

	if got := c.Flush(); got != nil {
		t.Fatal("flush with empty buffer should return nil")
	}

	c.Offer(snap("a"))
	clock.advance(5 * time.Millisecond)
	c.Offer(snap("ab"))
	got := c.Flush()
	if got == nil || got.Text() != "ab" {
		t.Fatalf("flush should force the buffered snapshot out, got %v", got)
	}
	if c.HasPending() {
		t.Fatal("flush should clear the buffer")
	}
}

func TestResetClearsWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := New(clock, 80*time.Millisecond)

	c.Offer(snap("a"))
	clock.advance(5 * time.Millisecond)
	c.Offer(snap("ab"))
	c.Reset()

	if c.HasPending() {
		t.Fatal("reset should drop the buffered snapshot")
	}
	// Window is cleared too: the next offer emits without waiting.
	if got := c.Offer(snap("fresh")); got == nil {
		t.Fatal("offer after reset should emit immediately")
	}
}

func TestDefaults(t *testing.T) {
	c := New(nil, 0)
	if c.interval != DefaultInterval {
		t.Fatalf("interval=%v, want %v", c.interval, DefaultInterval)
	}
	if _, ok := c.clock.(SystemClock); !ok {
		t.Fatalf("clock=%T, want SystemClock", c.clock)
	}
}
