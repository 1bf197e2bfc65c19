package client

import (
	"context"
	"time"

	"github.com/samsaffron/agentwire/internal/protocol"
	"github.com/samsaffron/agentwire/internal/timeline"
)

const resyncTimeout = 15 * time.Second

// resync drives a full state rebuild after attach, reconnect, or detected
// event loss. Every step degrades to "fetch what we can, show what we have":
// no path blocks the timeline indefinitely.
func (s *Session) resync(reason string) {
	if s.red.IsStreaming() {
		// A live stream is already feeding the timeline; the terminating
		// event will trigger the refresh.
		s.log.Logf("resync", "skipped (%s): stream in progress", reason)
		return
	}
	s.log.Logf("resync", "start: %s", reason)

	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	state, live := s.lookupState(ctx)

	if live && state.Busy() {
		// The remote is mid-turn. Fetch history first so the timeline is
		// never empty even if the live fetch fails, then force-apply the
		// live window and raise the busy indicators without waiting for
		// the next event.
		s.backfillHistory(ctx)
		s.red.SetForceSync(true)
		s.red.SetStreamingHint()
		if cb := s.opts.Callbacks.OnBusy; cb != nil {
			cb(true)
		}
		s.fetchServerMessages(ctx)
		return
	}

	// Cold session: history plus whatever message window the backend holds.
	s.backfillHistory(ctx)
	s.fetchServerMessages(ctx)
}

// lookupState finds the session in the backend's live list, probing it
// directly before concluding it is cold.
func (s *Session) lookupState(ctx context.Context) (protocol.SessionState, bool) {
	resp, err := s.opts.Transport.Send(ctx, protocol.CmdListSessions, "", nil)
	if err == nil && resp.Success {
		var list protocol.SessionList
		if err := resp.DecodeData(&list); err == nil {
			for _, st := range list.Sessions {
				if st.SessionID == s.id {
					return st, true
				}
			}
		}
	} else if err != nil {
		s.log.Logf("resync", "list_sessions failed: %v", err)
	}

	// Absent from the live list; probe directly before giving up.
	resp, err = s.opts.Transport.Send(ctx, protocol.CmdGetState, s.id, nil)
	if err != nil || !resp.Success {
		return protocol.SessionState{}, false
	}
	var st protocol.SessionState
	if err := resp.DecodeData(&st); err != nil {
		return protocol.SessionState{}, false
	}
	if st.SessionID == "" {
		st.SessionID = s.id
	}
	return st, true
}

// backfillHistory merges the persisted history window into the timeline.
// History may be context-limited, so it is merged, never applied as a
// replacement.
func (s *Session) backfillHistory(ctx context.Context) {
	if s.opts.History == nil {
		return
	}
	msgs, err := s.opts.History.Fetch(ctx, s.id, s.red.IDs())
	if err != nil {
		s.log.Logf("resync", "history fetch failed: %v", err)
		return
	}
	s.handleEffects(s.red.ApplyServer(msgs, false))
}

// fetchServerMessages pulls the live in-session message window and runs it
// through the usual defer-or-merge path.
func (s *Session) fetchServerMessages(ctx context.Context) {
	resp, err := s.opts.Transport.Send(ctx, protocol.CmdGetMessages, s.id, nil)
	if err != nil || !resp.Success {
		if err == nil {
			err = resp.Err()
		}
		s.log.Logf("resync", "get_messages failed: %v", err)
		return
	}
	var batch protocol.MessageBatch
	if err := resp.DecodeData(&batch); err != nil {
		s.log.Logf("resync", "get_messages decode failed: %v", err)
		return
	}
	msgs := timeline.Normalize(batch.Messages, s.red.IDs())
	s.handleEffects(s.red.ApplyServer(msgs, false))
}

// refresh runs after an idle transition with no local divergence: a
// non-destructive pull of the server's message window.
func (s *Session) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	s.fetchServerMessages(ctx)
}
