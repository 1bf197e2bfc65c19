package client

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/samsaffron/agentwire/internal/protocol"
)

func TestManagerOpenIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	m := NewManager(tr, nil, nil, nil)
	defer m.CloseAll()

	a, err := m.Open(context.Background(), "s1", false, Callbacks{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := m.Open(context.Background(), "s1", false, Callbacks{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a != b {
		t.Fatal("opening the same session twice should return the same attachment")
	}

	m.Close("s1")
	c, err := m.Open(context.Background(), "s1", false, Callbacks{})
	if err != nil {
		t.Fatalf("open after close: %v", err)
	}
	if c == a {
		t.Fatal("closed session should not be returned again")
	}
}

func TestManagerListSessions(t *testing.T) {
	tr := newFakeTransport()
	tr.responses[protocol.CmdListSessions] = &protocol.Response{
		Success: true,
		Data: json.RawMessage(`{"sessions": [
			{"session_id": "s1", "status": "idle"},
			{"session_id": "s2", "status": "streaming"}
		]}`),
	}
	m := NewManager(tr, nil, nil, nil)

	sessions, err := m.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[1].SessionID != "s2" || !sessions[1].Busy() {
		t.Fatalf("sessions: %+v", sessions)
	}
}

func TestManagerNewSession(t *testing.T) {
	tr := newFakeTransport()
	tr.responses[protocol.CmdNewSession] = &protocol.Response{
		Success: true,
		Data:    json.RawMessage(`{"session_id": "fresh-1", "status": "starting"}`),
	}
	m := NewManager(tr, nil, nil, nil)

	id, err := m.NewSession(context.Background())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if id != "fresh-1" {
		t.Fatalf("id=%q", id)
	}
}
