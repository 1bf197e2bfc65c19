// Package reducer implements the streaming session state machine. It consumes
// decoded protocol events for one session and maintains the ordered message
// timeline, the single in-progress streaming message, and the deferred-apply
// buffer for authoritative server batches that arrive mid-stream.
//
// Apply is a transition function: it mutates owned state and returns the
// externally visible consequences as effects. It never returns an error and
// never panics on malformed events; unrecognized input contributes nothing.
package reducer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samsaffron/agentwire/internal/coalesce"
	"github.com/samsaffron/agentwire/internal/protocol"
	"github.com/samsaffron/agentwire/internal/timeline"
)

// recreateCooldown rate-limits session re-creation attempts after the
// backend reports the session gone.
const recreateCooldown = 5 * time.Second

// Reducer owns the in-memory timeline for a single session. It is not safe
// for concurrent use; the client drives it from one goroutine.
type Reducer struct {
	sessionID string
	clock     coalesce.Clock
	co        *coalesce.Coalescer
	ids       *timeline.IDGen

	messages  []timeline.Message
	streaming *timeline.Message

	isStreaming  bool
	sendInFlight bool
	awaitingWork bool
	forceSync    bool

	// Latest authoritative batch buffered while streaming. A newer batch
	// replaces an older one; only the newest is worth applying.
	deferred []timeline.Message

	lastRecreate time.Time
}

// New creates a reducer for the session. A nil clock uses the system clock.
func New(sessionID string, clock coalesce.Clock, interval time.Duration) *Reducer {
	if clock == nil {
		clock = coalesce.SystemClock{}
	}
	return &Reducer{
		sessionID: sessionID,
		clock:     clock,
		co:        coalesce.New(clock, interval),
		ids:       timeline.NewIDGen(0),
	}
}

// SessionID returns the session this reducer serves.
func (r *Reducer) SessionID() string { return r.sessionID }

// IsStreaming reports whether a turn is in progress.
func (r *Reducer) IsStreaming() bool { return r.isStreaming || r.streaming != nil }

// Busy reports whether the session should show a working indicator.
func (r *Reducer) Busy() bool { return r.IsStreaming() || r.awaitingWork || r.sendInFlight }

// SetSendInFlight marks that a user send is awaiting its terminating event.
func (r *Reducer) SetSendInFlight(v bool) { r.sendInFlight = v }

// SetForceSync marks the next authoritative batch as must-apply even while
// streaming. Set after reattaching to a busy remote session, where the live
// window is the only truth the client has.
func (r *Reducer) SetForceSync(v bool) { r.forceSync = v }

// SetStreamingHint pre-emptively raises the streaming flag so busy indicators
// appear while a resync is still fetching, before the first live event.
func (r *Reducer) SetStreamingHint() { r.isStreaming = true }

// Messages returns a snapshot of the timeline including a copy of the
// in-progress message, if any.
func (r *Reducer) Messages() []timeline.Message {
	out := make([]timeline.Message, 0, len(r.messages)+1)
	out = append(out, r.messages...)
	if r.streaming != nil {
		out = append(out, *r.streaming.Clone())
	}
	return out
}

// Restore seeds the timeline from a cache or history snapshot without going
// through merge. Only valid before any live event has been applied.
func (r *Reducer) Restore(msgs []timeline.Message) {
	r.messages = msgs
	r.ids = timeline.NewIDGen(timeline.MaxID(msgs))
}

// IDs exposes the local id generator for optimistic message construction.
func (r *Reducer) IDs() *timeline.IDGen { return r.ids }

// AddOptimistic appends a locally created user message tagged with clientID.
// It stays in the timeline until a server message with the same clientID
// replaces it during merge.
func (r *Reducer) AddOptimistic(text, clientID string) timeline.Message {
	msg := timeline.NewUserMessage(r.ids.Next(), clientID, text, r.clock.Now())
	r.messages = append(r.messages, msg)
	return msg
}

// Tick drains the coalescer's buffered snapshot if its emission window has
// opened. Call on a periodic timer while streaming.
func (r *Reducer) Tick() []Effect {
	if snap := r.co.DrainReady(); snap != nil {
		return []Effect{snapshotEffect(snap)}
	}
	return nil
}

// Apply dispatches one inbound event. Events for other sessions must be
// filtered out by the caller before dispatch.
func (r *Reducer) Apply(ev protocol.Event) []Effect {
	switch ev.Kind {
	case protocol.EventMessageStart:
		return r.onMessageStart(ev)
	case protocol.EventTextDelta:
		return r.onDelta(ev.Delta, timeline.PartText)
	case protocol.EventThinkingDelta:
		return r.onDelta(ev.Delta, timeline.PartThinking)
	case protocol.EventToolCallStart:
		return r.onToolCallStart(ev.ToolCallID, ev.Name, nil)
	case protocol.EventToolCallEnd:
		return r.onToolCallEnd(ev)
	case protocol.EventToolStart:
		return r.onToolCallStart(ev.ToolCallID, ev.Name, ev.Input)
	case protocol.EventToolEnd:
		return r.onToolEnd(ev)
	case protocol.EventStreamDone:
		return r.onDone()
	case protocol.EventMessageEnd:
		return r.onMessageEnd(ev)
	case protocol.EventAgentIdle:
		return r.onIdle()
	case protocol.EventAgentWorking:
		r.awaitingWork = true
		return []Effect{busyEffect(true)}
	case protocol.EventAgentError:
		return r.onAgentError(ev)
	case protocol.EventCompactStart:
		return r.onCompact("Compacting context…", false)
	case protocol.EventCompactEnd:
		return r.onCompactEnd(ev)
	case protocol.EventResyncRequired:
		return r.onResyncRequired(ev)
	case protocol.EventMessages:
		return r.ApplyServer(timeline.Normalize(ev.Messages, r.ids), false)
	case protocol.EventTitleChanged:
		// Use the event's own session id: a late event from a previous
		// session must not retitle the current one.
		return []Effect{{Type: EffectTitle, Title: ev.Title, SessionID: ev.SessionID}}
	}
	// Unrecognized events are ignored, never fatal.
	return nil
}

func (r *Reducer) onMessageStart(ev protocol.Event) []Effect {
	if !protocol.IsAssistantRole(ev.Role) {
		// Tool/user echoes are not materialized; the optimistic copy of the
		// just-sent prompt is already in the timeline.
		return nil
	}
	if r.streaming != nil {
		// Duplicate start after reattachment: idempotent no-op.
		return nil
	}
	r.startStreaming()
	return []Effect{busyEffect(true)}
}

func (r *Reducer) startStreaming() {
	id := r.ids.Next()
	r.streaming = &timeline.Message{
		ID:          id,
		Role:        timeline.RoleAssistant,
		Timestamp:   r.clock.Now(),
		IsStreaming: true,
	}
	r.isStreaming = true
}

// ensureStreaming creates the streaming message if a delta or tool event
// arrives before (or without) its message_start, e.g. after reattaching
// mid-turn.
func (r *Reducer) ensureStreaming() {
	if r.streaming == nil {
		r.startStreaming()
	}
}

func (r *Reducer) onDelta(delta string, kind timeline.PartType) []Effect {
	r.ensureStreaming()
	parts := r.streaming.Parts
	if n := len(parts); n > 0 && parts[n-1].Type == kind {
		r.streaming.Parts[n-1].Text += delta
	} else {
		var p timeline.Part
		if kind == timeline.PartThinking {
			p = timeline.ThinkingPart(r.ids.Next(), delta)
		} else {
			p = timeline.TextPart(r.ids.Next(), delta)
		}
		r.streaming.Parts = append(r.streaming.Parts, p)
	}
	return r.offerSnapshot()
}

func (r *Reducer) onToolCallStart(toolCallID, name string, input []byte) []Effect {
	if toolCallID == "" {
		return nil
	}
	r.ensureStreaming()
	if r.streaming.FindToolCall(toolCallID) != nil {
		// Duplicate start (reconnect replay) keeps the existing part.
		return nil
	}
	p := timeline.ToolCallPart(r.ids.Next(), toolCallID, name, timeline.ToolRunning)
	if len(input) > 0 {
		p.Input = input
	}
	r.streaming.Parts = append(r.streaming.Parts, p)
	return r.offerSnapshot()
}

func (r *Reducer) onToolCallEnd(ev protocol.Event) []Effect {
	if ev.ToolCall == nil || r.streaming == nil {
		return nil
	}
	part := r.streaming.FindToolCall(ev.ToolCall.ID)
	if part == nil {
		return nil
	}
	part.Input = ev.ToolCall.Arguments
	if part.Name == "" {
		part.Name = ev.ToolCall.Name
	}
	return r.offerSnapshot()
}

func (r *Reducer) onToolEnd(ev protocol.Event) []Effect {
	if ev.ToolCallID == "" {
		return nil
	}
	r.ensureStreaming()
	part := r.streaming.FindToolCall(ev.ToolCallID)
	if part == nil {
		// stream.tool_call_start was missed entirely; re-create so the
		// result has a call to hang off.
		p := timeline.ToolCallPart(r.ids.Next(), ev.ToolCallID, ev.Name, timeline.ToolRunning)
		r.streaming.Parts = append(r.streaming.Parts, p)
		part = &r.streaming.Parts[len(r.streaming.Parts)-1]
	}
	if ev.IsError {
		part.Status = timeline.ToolError
	} else {
		part.Status = timeline.ToolSuccess
	}
	result := timeline.ToolResultPart(r.ids.Next(), ev.ToolCallID, ev.Name, ev.Output, ev.IsError)
	r.streaming.Parts = append(r.streaming.Parts, result)
	return r.offerSnapshot()
}

func (r *Reducer) offerSnapshot() []Effect {
	if snap := r.co.Offer(r.streaming.Clone()); snap != nil {
		return []Effect{snapshotEffect(snap)}
	}
	return nil
}

// onDone handles the terminating event for turns that never produce a
// canonical message_end.
func (r *Reducer) onDone() []Effect {
	return r.finish(nil)
}

// onMessageEnd handles the canonical terminator carrying the full persisted
// message. Parts accumulated from deltas are kept (they render identically
// and are already in display shape); only metadata is absorbed. A streaming
// message with no accumulated parts takes the canonical parts wholesale.
func (r *Reducer) onMessageEnd(ev protocol.Event) []Effect {
	var canonical *timeline.Message
	if len(ev.Message) > 0 {
		if msgs := timeline.Normalize([]json.RawMessage{ev.Message}, r.ids); len(msgs) == 1 {
			canonical = &msgs[0]
		}
	}
	if canonical != nil && canonical.Role == timeline.RoleUser {
		// Steer echo that slipped through: drop it, and prune an empty
		// placeholder so nothing renders twice.
		if r.streaming != nil && len(r.streaming.Parts) == 0 {
			r.streaming = nil
		}
		return r.clearStreamingState(nil)
	}
	return r.finish(canonical)
}

// finish finalizes the streaming message (absorbing canonical data when
// given), clears streaming state, and applies any deferred server batch.
func (r *Reducer) finish(canonical *timeline.Message) []Effect {
	r.co.Flush()

	var finalized *timeline.Message
	switch {
	case r.streaming != nil && len(r.streaming.Parts) > 0:
		if canonical != nil {
			r.streaming.Usage = canonical.Usage
			if canonical.Model != "" {
				r.streaming.Model = canonical.Model
			}
			if canonical.Provider != "" {
				r.streaming.Provider = canonical.Provider
			}
		}
		finalized = r.streaming
	case r.streaming != nil && canonical != nil && len(canonical.Parts) > 0:
		canonical.ID = r.streaming.ID
		finalized = canonical
	case r.streaming == nil && canonical != nil && len(canonical.Parts) > 0:
		finalized = canonical
	}
	// An empty placeholder (streaming message that never received content)
	// is pruned rather than finalized.

	var effects []Effect
	if finalized != nil {
		finalized.IsStreaming = false
		r.messages = append(r.messages, *finalized)
		effects = append(effects, finalizedEffect(finalized))
	}
	r.streaming = nil
	return r.clearStreamingState(effects)
}

// clearStreamingState drops all streaming flags and applies the deferred
// batch now that the session reached an idle transition.
func (r *Reducer) clearStreamingState(effects []Effect) []Effect {
	r.isStreaming = false
	r.sendInFlight = false
	r.awaitingWork = false
	effects = append(effects, busyEffect(false))
	if r.deferred != nil {
		batch := r.deferred
		r.deferred = nil
		effects = append(effects, r.mergeServer(batch)...)
	}
	return effects
}

func (r *Reducer) onIdle() []Effect {
	r.co.Flush()
	var effects []Effect
	if r.streaming != nil && len(r.streaming.Parts) > 0 {
		// stream.done was lost; finalize rather than leave it dangling.
		return r.finish(nil)
	}
	r.streaming = nil
	effects = r.clearStreamingState(effects)
	if !r.diverged() {
		effects = append(effects, Effect{Type: EffectRefresh})
	}
	return effects
}

// diverged reports whether unconfirmed optimistic messages exist: locally
// minted ids still carrying a client correlation token.
func (r *Reducer) diverged() bool {
	for i := range r.messages {
		m := &r.messages[i]
		if m.ClientID != "" && timeline.IsLocalID(m.ID) {
			return true
		}
	}
	return false
}

func (r *Reducer) onAgentError(ev protocol.Event) []Effect {
	err := errors.New(ev.Error)
	var effects []Effect
	if r.sendInFlight {
		r.ensureStreaming()
		r.streaming.Parts = append(r.streaming.Parts, timeline.ErrorPart(r.ids.Next(), ev.Error))
		effects = append(effects, r.finish(nil)...)
		effects = append(effects, errorEffect(err))
	} else {
		// Background probe failure: clear state but keep it off the screen.
		r.streaming = nil
		effects = r.clearStreamingState(effects)
	}
	if sessionGone(ev.Error) {
		now := r.clock.Now()
		if r.lastRecreate.IsZero() || now.Sub(r.lastRecreate) >= recreateCooldown {
			r.lastRecreate = now
			effects = append(effects, Effect{Type: EffectRecreateSession})
		}
	}
	return effects
}

func sessionGone(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "session not found") ||
		strings.Contains(lower, "unknown session") ||
		strings.Contains(lower, "no such session")
}

// onCompact appends a display-only compaction part. Compaction does not
// touch isStreaming: it can run between turns or inside one.
func (r *Reducer) onCompact(text string, isErr bool) []Effect {
	part := timeline.CompactionPart(r.ids.Next(), text)
	if isErr {
		part = timeline.ErrorPart(r.ids.Next(), text)
	}
	if r.streaming != nil {
		r.streaming.Parts = append(r.streaming.Parts, part)
		return r.offerSnapshot()
	}
	r.messages = append(r.messages, timeline.Message{
		ID:        r.ids.Next(),
		Role:      timeline.RoleSystem,
		Parts:     []timeline.Part{part},
		Timestamp: r.clock.Now(),
	})
	return []Effect{timelineEffect()}
}

func (r *Reducer) onCompactEnd(ev protocol.Event) []Effect {
	if ev.Success {
		return r.onCompact("Context compacted", false)
	}
	text := ev.Error
	if text == "" {
		text = "context compaction failed"
	}
	return r.onCompact(text, true)
}

func (r *Reducer) onResyncRequired(ev protocol.Event) []Effect {
	r.co.Flush()
	r.co.Reset()
	var effects []Effect
	if r.streaming != nil && len(r.streaming.Parts) > 0 {
		effects = append(effects, r.finish(nil)...)
	} else {
		r.streaming = nil
		effects = r.clearStreamingState(effects)
	}
	reason := ev.Reason
	if reason == "" {
		reason = fmt.Sprintf("%d events dropped", ev.DroppedCount)
	}
	effects = append(effects, Effect{Type: EffectResync, Reason: reason, Dropped: ev.DroppedCount})
	return effects
}

// ApplyServer merges an authoritative batch of messages. While a stream is in
// progress the batch is deferred (the visible timeline must not regress
// mid-stream) unless forced is set or the forced-sync flag was armed for this
// session, as happens after reattachment to a busy remote.
func (r *Reducer) ApplyServer(server []timeline.Message, forced bool) []Effect {
	if !forced && r.forceSync {
		forced = true
	}
	if !forced && (r.streaming != nil || r.isStreaming || r.sendInFlight) {
		r.deferred = server
		return nil
	}
	r.forceSync = false
	return r.mergeServer(server)
}

func (r *Reducer) mergeServer(server []timeline.Message) []Effect {
	merged := timeline.Merge(r.messages, server)
	if sameSlice(merged, r.messages) {
		// Referentially stable merge: nothing changed downstream.
		return nil
	}
	r.messages = merged
	if seed := timeline.MaxID(merged); seed > 0 {
		// Keep the generator ahead of restored ids.
		r.ids.Advance(seed)
	}
	return []Effect{timelineEffect()}
}

func sameSlice(a, b []timeline.Message) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
