// Package client ties the pieces together for one attached session: it pumps
// transport events through the reducer on a single goroutine, persists the
// timeline through the write-coalescing cache writer, and supervises resyncs
// after reconnects or detected event loss.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/agentwire/internal/cache"
	"github.com/samsaffron/agentwire/internal/coalesce"
	"github.com/samsaffron/agentwire/internal/debuglog"
	"github.com/samsaffron/agentwire/internal/protocol"
	"github.com/samsaffron/agentwire/internal/reducer"
	"github.com/samsaffron/agentwire/internal/timeline"
	"github.com/samsaffron/agentwire/internal/transport"
)

// sendReadyTimeout bounds how long Send waits for the session to confirm
// ready before surfacing a failure to the caller.
const sendReadyTimeout = 4 * time.Second

// History fetches persisted messages; the window may be context-limited.
type History interface {
	Fetch(ctx context.Context, sessionID string, ids *timeline.IDGen) ([]timeline.Message, error)
}

// Callbacks deliver session changes to the embedding application. All are
// optional and invoked from the session's event loop goroutine.
type Callbacks struct {
	// OnUpdate receives the full timeline snapshot after every visible
	// change (coalesced streaming updates included).
	OnUpdate func(msgs []timeline.Message)

	// OnFinalized receives each message as it leaves streaming state.
	OnFinalized func(msg timeline.Message)

	// OnBusy reports the working indicator.
	OnBusy func(busy bool)

	// OnTitle reports title changes with the originating session id.
	OnTitle func(sessionID, title string)

	// OnError reports surfaced errors. The session stays usable.
	OnError func(err error)
}

// Options configure an attached session.
type Options struct {
	Transport transport.Transport
	History   History     // optional
	Cache     cache.Store // optional; nil means no caching
	Log       *debuglog.Logger
	Clock     coalesce.Clock // nil means system clock

	// Create asks the backend to create the session on subscribe.
	Create bool

	// CoalesceInterval overrides the snapshot emission interval.
	CoalesceInterval time.Duration

	Callbacks Callbacks
}

// Session is one attached session. All reducer state is confined to the run
// goroutine; exported methods marshal work onto it.
type Session struct {
	id   string
	opts Options
	red  *reducer.Reducer
	wr   *cache.Writer
	log  *debuglog.Logger

	events  chan protocol.Event
	actions chan func()
	resyncs chan string
	done    chan struct{}

	unsubEvents func()
	unsubResync func()
	closeOnce   sync.Once

	mu      sync.Mutex
	lastErr error
}

// Open attaches to a session: restores the cached timeline if present,
// subscribes to the event stream, starts the event loop, and kicks an
// initial resync so the timeline converges on server state.
func Open(ctx context.Context, sessionID string, opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	store := opts.Cache
	if store == nil {
		store = &cache.NoopStore{}
	}
	s := &Session{
		id:      sessionID,
		opts:    opts,
		red:     reducer.New(sessionID, opts.Clock, opts.CoalesceInterval),
		wr:      cache.NewWriter(store, sessionID, opts.Clock, 0),
		log:     opts.Log,
		events:  make(chan protocol.Event, 256),
		actions: make(chan func(), 16),
		resyncs: make(chan string, 1),
		done:    make(chan struct{}),
	}

	if entry, err := store.Read(ctx, sessionID); err == nil && entry != nil {
		s.red.Restore(entry.Messages)
		s.wr.SeedVersion(entry.Version)
		s.notifyUpdate()
	} else if err != nil {
		s.log.Logf("cache", "restore %s failed: %v", sessionID, err)
	}

	unsub, err := opts.Transport.Subscribe(sessionID, s.enqueueEvent,
		transport.SubscribeOptions{Create: opts.Create})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	s.unsubEvents = unsub
	s.unsubResync = opts.Transport.OnResync(sessionID, func() {
		s.requestResync("reconnect")
	})

	go s.run()
	s.requestResync("attach")
	return s, nil
}

// enqueueEvent is the transport handler. Cross-session events are dropped
// here, before dispatch, never queued.
func (s *Session) enqueueEvent(ev protocol.Event) {
	if ev.SessionID != "" && ev.SessionID != s.id {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) requestResync(reason string) {
	select {
	case s.resyncs <- reason:
	default:
		// One pending resync is enough; it rebuilds everything.
	}
}

// run is the single control loop: protocol events, coalescer drain ticks,
// marshalled actions, and resync requests all execute here.
func (s *Session) run() {
	interval := s.opts.CoalesceInterval
	if interval <= 0 {
		interval = coalesce.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-s.events:
			s.handleEffects(s.red.Apply(ev))
		case <-ticker.C:
			s.handleEffects(s.red.Tick())
		case fn := <-s.actions:
			fn()
		case reason := <-s.resyncs:
			s.resync(reason)
		case <-s.done:
			return
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) {
	doneCh := make(chan struct{})
	select {
	case s.actions <- func() { fn(); close(doneCh) }:
	case <-s.done:
		return
	}
	select {
	case <-doneCh:
	case <-s.done:
	}
}

func (s *Session) handleEffects(effects []reducer.Effect) {
	ctx := context.Background()
	for _, eff := range effects {
		switch eff.Type {
		case reducer.EffectSnapshot:
			s.notifyUpdate()
			if err := s.wr.Offer(ctx, s.red.Messages(), false); err != nil {
				s.log.Logf("cache", "throttled write failed: %v", err)
			}
		case reducer.EffectFinalized:
			if cb := s.opts.Callbacks.OnFinalized; cb != nil && eff.Message != nil {
				cb(*eff.Message)
			}
			s.notifyUpdate()
			if err := s.wr.Offer(ctx, s.red.Messages(), true); err != nil {
				s.log.Logf("cache", "write failed: %v", err)
			}
		case reducer.EffectTimeline:
			s.notifyUpdate()
			if err := s.wr.Offer(ctx, s.red.Messages(), true); err != nil {
				s.log.Logf("cache", "write failed: %v", err)
			}
		case reducer.EffectBusy:
			if !eff.Busy {
				if err := s.wr.Flush(ctx); err != nil {
					s.log.Logf("cache", "flush failed: %v", err)
				}
			}
			if cb := s.opts.Callbacks.OnBusy; cb != nil {
				cb(eff.Busy)
			}
		case reducer.EffectRefresh:
			s.refresh()
		case reducer.EffectResync:
			s.log.Logf("resync", "required: %s", eff.Reason)
			s.requestResync(eff.Reason)
		case reducer.EffectRecreateSession:
			s.recreate()
		case reducer.EffectTitle:
			if cb := s.opts.Callbacks.OnTitle; cb != nil {
				cb(eff.SessionID, eff.Title)
			}
		case reducer.EffectError:
			s.surfaceError(eff.Err)
		}
	}
}

func (s *Session) notifyUpdate() {
	if cb := s.opts.Callbacks.OnUpdate; cb != nil {
		cb(s.red.Messages())
	}
}

func (s *Session) surfaceError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if cb := s.opts.Callbacks.OnError; cb != nil {
		cb(err)
	}
}

// Err returns the last surfaced error, nil if none.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages returns a snapshot of the current timeline.
func (s *Session) Messages() []timeline.Message {
	var out []timeline.Message
	s.do(func() { out = s.red.Messages() })
	return out
}

// Busy reports whether the session shows a working indicator.
func (s *Session) Busy() bool {
	var busy bool
	s.do(func() { busy = s.red.Busy() })
	return busy
}

// Send delivers a user prompt. The message appears in the timeline
// immediately as an optimistic entry tagged with a client correlation id;
// the server-confirmed copy replaces it on the next merge. Send fails if the
// session cannot be confirmed ready in time.
func (s *Session) Send(ctx context.Context, text string) error {
	if err := s.opts.Transport.WaitForSessionReady(ctx, s.id, sendReadyTimeout); err != nil {
		return err
	}
	clientID := uuid.NewString()
	s.do(func() {
		s.red.AddOptimistic(text, clientID)
		s.red.SetSendInFlight(true)
		s.notifyUpdate()
		if err := s.wr.Offer(context.Background(), s.red.Messages(), true); err != nil {
			s.log.Logf("cache", "write failed: %v", err)
		}
	})
	resp, err := s.opts.Transport.Send(ctx, protocol.CmdPrompt, s.id,
		protocol.PromptPayload{Message: text, ClientID: clientID})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.do(func() { s.red.SetSendInFlight(false) })
		s.surfaceError(err)
		return err
	}
	return nil
}

// Steer queues a steering message that interrupts the agent mid-run.
func (s *Session) Steer(ctx context.Context, text string) error {
	return s.command(ctx, protocol.CmdSteer, protocol.PromptPayload{Message: text})
}

// FollowUp queues a message delivered after the agent finishes.
func (s *Session) FollowUp(ctx context.Context, text string) error {
	return s.command(ctx, protocol.CmdFollowUp, protocol.PromptPayload{Message: text})
}

// Abort asks the backend to stop the current turn. Local state is not
// cleared here; the terminating event performs the actual finalize.
func (s *Session) Abort(ctx context.Context) error {
	return s.command(ctx, protocol.CmdAbort, nil)
}

// Compact asks the backend to compact conversation context.
func (s *Session) Compact(ctx context.Context, instructions string) error {
	var payload any
	if instructions != "" {
		payload = protocol.CompactPayload{Instructions: instructions}
	}
	return s.command(ctx, protocol.CmdCompact, payload)
}

func (s *Session) command(ctx context.Context, kind protocol.CommandKind, payload any) error {
	resp, err := s.opts.Transport.Send(ctx, kind, s.id, payload)
	if err != nil {
		return err
	}
	return resp.Err()
}

// recreate attempts one session re-creation after the backend reported the
// session gone. Rate limiting lives in the reducer.
func (s *Session) recreate() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := s.opts.Transport.Send(ctx, protocol.CmdNewSession, s.id, nil)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		s.log.Logf("session", "re-create %s failed: %v", s.id, err)
		return
	}
	s.requestResync("session recreated")
}

// Close detaches from the session. Commands already in flight are not
// cancelled; their late events are filtered by the session-id check.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.unsubResync != nil {
			s.unsubResync()
		}
		if s.unsubEvents != nil {
			s.unsubEvents()
		}
	})
}
