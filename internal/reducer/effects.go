package reducer

import "github.com/samsaffron/agentwire/internal/timeline"

// EffectType identifies an effect produced by applying an event.
type EffectType int

const (
	// EffectSnapshot carries a coalesced copy of the in-progress message for
	// display. Snapshot is set.
	EffectSnapshot EffectType = iota

	// EffectFinalized carries a message that just left streaming state and
	// was appended to the timeline. Message is set.
	EffectFinalized

	// EffectTimeline signals the finalized timeline changed wholesale
	// (server merge, deferred apply). Consumers should re-read Messages()
	// and persist.
	EffectTimeline

	// EffectResync asks the supervisor for a full state rebuild. Reason and
	// Dropped are set.
	EffectResync

	// EffectRefresh signals an idle transition with no local divergence: a
	// non-destructive server refresh is safe and worthwhile.
	EffectRefresh

	// EffectRecreateSession asks the supervisor to attempt one session
	// re-creation. Emission is rate-limited by the reducer.
	EffectRecreateSession

	// EffectBusy reports the session busy indicator. Busy is set.
	EffectBusy

	// EffectTitle propagates a title change. Title and SessionID are set
	// from the event itself, never from the active session.
	EffectTitle

	// EffectError surfaces an error to the caller. Err is set.
	EffectError
)

// Effect is an externally visible consequence of an event, returned as data
// so the transition function stays testable without a live transport.
type Effect struct {
	Type      EffectType
	Snapshot  *timeline.Message
	Message   *timeline.Message
	Reason    string
	Dropped   int
	Busy      bool
	Title     string
	SessionID string
	Err       error
}

func snapshotEffect(m *timeline.Message) Effect { return Effect{Type: EffectSnapshot, Snapshot: m} }
func finalizedEffect(m *timeline.Message) Effect {
	return Effect{Type: EffectFinalized, Message: m}
}
func timelineEffect() Effect       { return Effect{Type: EffectTimeline} }
func busyEffect(busy bool) Effect  { return Effect{Type: EffectBusy, Busy: busy} }
func errorEffect(err error) Effect { return Effect{Type: EffectError, Err: err} }
