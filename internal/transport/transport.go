// Package transport delivers decoded protocol events from the agent backend
// and carries commands to it. The WebSocket implementation multiplexes all
// sessions over one connection, correlates command responses by request id,
// and reconnects with backoff, notifying per-session resync handlers after
// every re-establishment so higher layers can rebuild state.
package transport

import (
	"context"
	"time"

	"github.com/samsaffron/agentwire/internal/protocol"
)

// ConnState describes the connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

// Handler receives events for a subscribed session.
type Handler func(protocol.Event)

// SubscribeOptions configure a session subscription.
type SubscribeOptions struct {
	// Create asks the backend to create the session if it does not exist.
	Create bool
}

// Transport is the boundary the session client depends on. Implementations
// must deliver events for a given session in emission order.
type Transport interface {
	// Subscribe registers a handler for the session's events and returns an
	// unsubscribe function. The handler is invoked from the transport's read
	// goroutine; it must not block.
	Subscribe(sessionID string, h Handler, opts SubscribeOptions) (func(), error)

	// Send issues a command and waits for its correlated response.
	Send(ctx context.Context, kind protocol.CommandKind, sessionID string, payload any) (*protocol.Response, error)

	// OnConnectionState registers a connection state observer; returns a
	// function that removes it.
	OnConnectionState(fn func(ConnState)) func()

	// OnResync registers a handler fired after the connection is
	// re-established (or an event gap is detected) for a subscribed session.
	OnResync(sessionID string, fn func()) func()

	// WaitForSessionReady blocks until the backend confirms the session is
	// ready to accept commands, or the timeout elapses.
	WaitForSessionReady(ctx context.Context, sessionID string, timeout time.Duration) error

	Close() error
}
