package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/samsaffron/agentwire/internal/cache"
	"github.com/samsaffron/agentwire/internal/debuglog"
	"github.com/samsaffron/agentwire/internal/protocol"
	"github.com/samsaffron/agentwire/internal/transport"
)

// Manager owns session lifecycle. It is the one registry in the process:
// sessions are opened and closed through it and injected where needed, never
// looked up through globals.
type Manager struct {
	transport transport.Transport
	history   History
	store     cache.Store
	log       *debuglog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires the shared collaborators for all sessions.
func NewManager(t transport.Transport, h History, store cache.Store, log *debuglog.Logger) *Manager {
	return &Manager{
		transport: t,
		history:   h,
		store:     store,
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// Open attaches to a session. Opening an already open session returns the
// existing attachment.
func (m *Manager) Open(ctx context.Context, sessionID string, create bool, cbs Callbacks) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := Open(ctx, sessionID, Options{
		Transport: m.transport,
		History:   m.history,
		Cache:     m.store,
		Log:       m.log,
		Create:    create,
		Callbacks: cbs,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok {
		s.Close()
		return existing, nil
	}
	m.sessions[sessionID] = s
	return s, nil
}

// Close detaches a session. Unknown ids are a no-op.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll detaches every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// ListSessions returns the backend's live session list.
func (m *Manager) ListSessions(ctx context.Context) ([]protocol.SessionState, error) {
	resp, err := m.transport.Send(ctx, protocol.CmdListSessions, "", nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var list protocol.SessionList
	if err := resp.DecodeData(&list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// NewSession asks the backend to create a fresh session and returns its id.
func (m *Manager) NewSession(ctx context.Context) (string, error) {
	resp, err := m.transport.Send(ctx, protocol.CmdNewSession, "", nil)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	var st protocol.SessionState
	if err := resp.DecodeData(&st); err != nil {
		return "", err
	}
	if st.SessionID == "" {
		return "", fmt.Errorf("new_session response missing session id")
	}
	return st.SessionID, nil
}
