package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samsaffron/agentwire/internal/protocol"
	"github.com/samsaffron/agentwire/internal/timeline"
	"github.com/samsaffron/agentwire/internal/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type sentCommand struct {
	Kind      protocol.CommandKind
	SessionID string
	Payload   any
}

// fakeTransport scripts command responses and lets tests inject events
// through the registered handler.
type fakeTransport struct {
	mu        sync.Mutex
	handler   transport.Handler
	sent      []sentCommand
	responses map[protocol.CommandKind]*protocol.Response
	unsubbed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[protocol.CommandKind]*protocol.Response{
			protocol.CmdListSessions: {Success: true, Data: json.RawMessage(`{"sessions": []}`)},
			protocol.CmdGetState:     {Success: false, Error: "not live"},
			protocol.CmdGetMessages:  {Success: true, Data: json.RawMessage(`{"messages": []}`)},
		},
	}
}

func (t *fakeTransport) Subscribe(sessionID string, h transport.Handler, opts transport.SubscribeOptions) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.unsubbed = true
	}, nil
}

func (t *fakeTransport) Send(ctx context.Context, kind protocol.CommandKind, sessionID string, payload any) (*protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentCommand{Kind: kind, SessionID: sessionID, Payload: payload})
	if resp, ok := t.responses[kind]; ok {
		return resp, nil
	}
	return &protocol.Response{Cmd: kind, Success: true}, nil
}

func (t *fakeTransport) OnConnectionState(fn func(transport.ConnState)) func() { return func() {} }
func (t *fakeTransport) OnResync(sessionID string, fn func()) func()           { return func() {} }
func (t *fakeTransport) WaitForSessionReady(ctx context.Context, sessionID string, timeout time.Duration) error {
	return nil
}
func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) inject(ev protocol.Event) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	h(ev)
}

func (t *fakeTransport) sentKinds() []protocol.CommandKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := make([]protocol.CommandKind, len(t.sent))
	for i, s := range t.sent {
		kinds[i] = s.Kind
	}
	return kinds
}

func ev(kind protocol.EventKind) protocol.Event {
	return protocol.Event{SessionID: "s1", Kind: kind}
}

func openTest(t *testing.T, tr *fakeTransport, cbs Callbacks) *Session {
	t.Helper()
	s, err := Open(context.Background(), "s1", Options{
		Transport: tr,
		Clock:     &fakeClock{now: time.Unix(1000, 0)},
		Callbacks: cbs,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStreamingTurnDeliversFinalizedMessage(t *testing.T) {
	tr := newFakeTransport()
	finalized := make(chan timeline.Message, 1)
	idle := make(chan struct{}, 4)
	s := openTest(t, tr, Callbacks{
		OnFinalized: func(m timeline.Message) { finalized <- m },
		OnBusy: func(busy bool) {
			if !busy {
				idle <- struct{}{}
			}
		},
	})

	tr.inject(ev(protocol.EventMessageStart))
	d := ev(protocol.EventTextDelta)
	d.Delta = "Hel"
	tr.inject(d)
	d.Delta = "lo"
	tr.inject(d)
	tr.inject(ev(protocol.EventStreamDone))

	select {
	case m := <-finalized:
		if m.Text() != "Hello" {
			t.Fatalf("finalized text=%q, want Hello", m.Text())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no finalized message")
	}
	waitFor(t, "idle transition", idle)

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].IsStreaming {
		t.Fatalf("timeline: %+v", msgs)
	}
	if s.Busy() {
		t.Fatal("session still busy after stream.done")
	}
}

func TestCrossSessionEventsFiltered(t *testing.T) {
	tr := newFakeTransport()
	s := openTest(t, tr, Callbacks{})

	other := protocol.Event{SessionID: "someone-else", Kind: protocol.EventMessageStart}
	tr.inject(other)
	tr.inject(protocol.Event{SessionID: "someone-else", Kind: protocol.EventTextDelta, Delta: "leak"})

	if msgs := s.Messages(); len(msgs) != 0 {
		t.Fatalf("cross-session events reached the timeline: %+v", msgs)
	}
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	tr := newFakeTransport()
	update := make(chan struct{}, 64)
	s := openTest(t, tr, Callbacks{
		OnUpdate: func([]timeline.Message) {
			select {
			case update <- struct{}{}:
			default:
			}
		},
	})

	if err := s.Send(context.Background(), "run the tests"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != timeline.RoleUser {
		t.Fatalf("optimistic message missing: %+v", msgs)
	}
	clientID := msgs[0].ClientID
	if clientID == "" {
		t.Fatal("optimistic message has no correlation id")
	}
	if !s.Busy() {
		t.Fatal("send should leave the session busy until the turn ends")
	}

	// The prompt command carried the same correlation id.
	tr.mu.Lock()
	var prompt *sentCommand
	for i := range tr.sent {
		if tr.sent[i].Kind == protocol.CmdPrompt {
			prompt = &tr.sent[i]
		}
	}
	tr.mu.Unlock()
	if prompt == nil {
		t.Fatal("prompt command never sent")
	}
	if p, ok := prompt.Payload.(protocol.PromptPayload); !ok || p.ClientID != clientID {
		t.Fatalf("prompt payload: %+v", prompt.Payload)
	}

	// Reply streams and ends; the confirmed user copy arrives in a batch.
	tr.inject(ev(protocol.EventMessageStart))
	d := ev(protocol.EventTextDelta)
	d.Delta = "ok"
	tr.inject(d)
	tr.inject(ev(protocol.EventStreamDone))

	batch := ev(protocol.EventMessages)
	batch.Messages = []json.RawMessage{
		json.RawMessage(`{"id": "srv-1", "role": "user", "content": "run the tests", "client_id": "` + clientID + `", "timestamp": 999}`),
	}
	tr.inject(batch)

	deadline := time.After(5 * time.Second)
	for {
		msgs = s.Messages()
		var userIDs []string
		for _, m := range msgs {
			if m.Role == timeline.RoleUser {
				userIDs = append(userIDs, m.ID)
			}
		}
		if len(userIDs) == 1 && userIDs[0] == "srv-1" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("optimistic message never replaced: users=%v", userIDs)
		case <-update:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestSendFailureSurfacesError(t *testing.T) {
	tr := newFakeTransport()
	tr.responses[protocol.CmdPrompt] = &protocol.Response{
		Cmd: protocol.CmdPrompt, Success: false, Error: "session closed",
	}
	errs := make(chan error, 1)
	s := openTest(t, tr, Callbacks{
		OnError: func(err error) { errs <- err },
	})

	err := s.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "session closed") {
		t.Fatalf("send error=%v", err)
	}
	select {
	case cbErr := <-errs:
		if cbErr == nil {
			t.Fatal("nil error surfaced")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error never surfaced through the callback")
	}
	if s.Err() == nil {
		t.Fatal("Err() should report the last surfaced error")
	}
	if s.Busy() {
		t.Fatal("failed send should clear the in-flight flag")
	}
}

func TestAttachResyncFetchesServerState(t *testing.T) {
	tr := newFakeTransport()
	openTest(t, tr, Callbacks{})

	deadline := time.Now().Add(5 * time.Second)
	for {
		var sawList, sawMessages bool
		kinds := tr.sentKinds()
		for _, k := range kinds {
			if k == protocol.CmdListSessions {
				sawList = true
			}
			if k == protocol.CmdGetMessages {
				sawMessages = true
			}
		}
		if sawList && sawMessages {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("attach resync incomplete: %v", kinds)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	tr := newFakeTransport()
	s := openTest(t, tr, Callbacks{})
	s.Close()
	s.Close() // idempotent

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.unsubbed {
		t.Fatal("close should unsubscribe from the event stream")
	}
}
