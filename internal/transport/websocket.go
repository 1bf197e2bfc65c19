package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/samsaffron/agentwire/internal/debuglog"
	"github.com/samsaffron/agentwire/internal/protocol"
)

// Config configures the WebSocket transport.
type Config struct {
	URL   string // ws:// or wss:// endpoint
	Token string // bearer token, optional

	DialTimeout    time.Duration
	PingInterval   time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	CommandTimeout time.Duration
}

// DefaultConfig fills in timeouts for fields left zero.
func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 4 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 15 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	return c
}

type subscription struct {
	handler Handler
	opts    SubscribeOptions
}

// WS is the gorilla/websocket transport. One connection carries every
// session; the read loop routes responses to waiting commands and events to
// session handlers.
type WS struct {
	cfg Config
	log *debuglog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	closed   bool
	subs     map[string]subscription
	resyncs  map[string][]*resyncEntry
	stateFns map[int64]func(ConnState)
	pending  map[string]chan *protocol.Response
	nextFn   int64
}

type resyncEntry struct{ fn func() }

// Dial connects to the backend and starts the read loop.
func Dial(ctx context.Context, cfg Config, log *debuglog.Logger) (*WS, error) {
	cfg = cfg.withDefaults()
	t := &WS{
		cfg:      cfg,
		log:      log,
		subs:     make(map[string]subscription),
		resyncs:  make(map[string][]*resyncEntry),
		stateFns: make(map[int64]func(ConnState)),
		pending:  make(map[string]chan *protocol.Response),
		state:    StateConnecting,
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conn = conn
	t.setStateLocked(StateConnected)
	t.mu.Unlock()
	go t.readLoop(conn)
	return t, nil
}

func (t *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}
	return conn, nil
}

// Subscribe registers a handler and tells the backend to start streaming the
// session's events. Duplicate subscribes replace the previous handler.
func (t *WS) Subscribe(sessionID string, h Handler, opts SubscribeOptions) (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.subs[sessionID] = subscription{handler: h, opts: opts}
	t.mu.Unlock()

	if err := t.sendSubscribe(sessionID, opts); err != nil {
		t.mu.Lock()
		delete(t.subs, sessionID)
		t.mu.Unlock()
		return nil, err
	}

	return func() {
		t.mu.Lock()
		delete(t.subs, sessionID)
		closed := t.closed
		t.mu.Unlock()
		if !closed {
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.CommandTimeout)
			defer cancel()
			_, _ = t.Send(ctx, protocol.CmdUnsubscribe, sessionID, nil)
		}
	}, nil
}

func (t *WS) sendSubscribe(sessionID string, opts SubscribeOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.CommandTimeout)
	defer cancel()
	payload := map[string]bool{"create": opts.Create}
	resp, err := t.Send(ctx, protocol.CmdSubscribe, sessionID, payload)
	if err != nil {
		return err
	}
	return resp.Err()
}

// Send issues a command and blocks for the correlated response.
func (t *WS) Send(ctx context.Context, kind protocol.CommandKind, sessionID string, payload any) (*protocol.Response, error) {
	cmd, err := protocol.NewCommand(uuid.NewString(), kind, sessionID, payload)
	if err != nil {
		return nil, err
	}
	ch := make(chan *protocol.Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	conn := t.conn
	t.pending[cmd.ID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, cmd.ID)
		t.mu.Unlock()
	}()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := t.writeJSON(conn, cmd); err != nil {
		return nil, fmt.Errorf("send %s: %w", kind, err)
	}
	t.log.Logf("cmd", "id=%s kind=%s session=%s", cmd.ID, kind, sessionID)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("command %s: %w", kind, ctx.Err())
	}
}

func (t *WS) writeJSON(conn *websocket.Conn, v any) error {
	// gorilla connections allow one concurrent writer.
	t.mu.Lock()
	defer t.mu.Unlock()
	return conn.WriteJSON(v)
}

// OnConnectionState registers a state observer.
func (t *WS) OnConnectionState(fn func(ConnState)) func() {
	t.mu.Lock()
	t.nextFn++
	id := t.nextFn
	t.stateFns[id] = fn
	state := t.state
	t.mu.Unlock()
	fn(state)
	return func() {
		t.mu.Lock()
		delete(t.stateFns, id)
		t.mu.Unlock()
	}
}

// OnResync registers a post-reconnect handler for a session.
func (t *WS) OnResync(sessionID string, fn func()) func() {
	entry := &resyncEntry{fn: fn}
	t.mu.Lock()
	t.resyncs[sessionID] = append(t.resyncs[sessionID], entry)
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		entries := t.resyncs[sessionID]
		for i, e := range entries {
			if e == entry {
				t.resyncs[sessionID] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// WaitForSessionReady probes the session with get_state until it answers or
// the timeout elapses. The backend answers get_state as soon as the session
// process is attached, which is the readiness signal the caller needs.
func (t *WS) WaitForSessionReady(ctx context.Context, sessionID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	var lastErr error
	for {
		resp, err := t.Send(ctx, protocol.CmdGetState, sessionID, nil)
		if err == nil && resp.Success {
			return nil
		}
		if err == nil {
			lastErr = resp.Err()
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("session %s not ready: %w", sessionID, lastErr)
			}
			return fmt.Errorf("session %s not ready: %w", sessionID, ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Close tears down the connection. Pending commands fail with their context.
func (t *WS) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.setStateLocked(StateDisconnected)
	t.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readLoop decodes frames until the connection drops, then hands off to the
// reconnect loop.
func (t *WS) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return
			}
			t.log.Logf("conn", "read error: %v", err)
			t.reconnect()
			return
		}
		t.dispatch(data)
	}
}

func (t *WS) dispatch(data []byte) {
	ev, err := protocol.ParseEvent(data)
	if err != nil {
		// Malformed frames are logged and ignored, never fatal.
		t.log.Logf("conn", "dropping malformed frame: %v", err)
		return
	}
	if ev.Kind == protocol.EventResponse {
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.log.Logf("conn", "dropping malformed response: %v", err)
			return
		}
		t.mu.Lock()
		ch := t.pending[resp.ID]
		t.mu.Unlock()
		if ch != nil {
			ch <- &resp
		}
		return
	}
	t.mu.Lock()
	sub, ok := t.subs[ev.SessionID]
	t.mu.Unlock()
	if ok {
		sub.handler(ev)
	}
}

// reconnect dials with exponential backoff, re-subscribes every session, and
// fires resync handlers so owners rebuild from authoritative state.
func (t *WS) reconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.setStateLocked(StateReconnecting)
	t.mu.Unlock()

	delay := t.cfg.ReconnectMin
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.DialTimeout)
		conn, err := t.dial(ctx)
		cancel()
		if err != nil {
			t.log.Logf("conn", "reconnect failed: %v (retry in %s)", err, delay)
			time.Sleep(delay)
			delay *= 2
			if delay > t.cfg.ReconnectMax {
				delay = t.cfg.ReconnectMax
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.setStateLocked(StateConnected)
		subs := make(map[string]subscription, len(t.subs))
		for id, sub := range t.subs {
			subs[id] = sub
		}
		var resyncFns []func()
		for id := range subs {
			for _, e := range t.resyncs[id] {
				resyncFns = append(resyncFns, e.fn)
			}
		}
		t.mu.Unlock()

		go t.readLoop(conn)
		for id, sub := range subs {
			if err := t.sendSubscribe(id, sub.opts); err != nil {
				t.log.Logf("conn", "resubscribe %s failed: %v", id, err)
			}
		}
		for _, fn := range resyncFns {
			fn()
		}
		return
	}
}

func (t *WS) setStateLocked(s ConnState) {
	if t.state == s {
		return
	}
	t.state = s
	for _, fn := range t.stateFns {
		go fn(s)
	}
}
