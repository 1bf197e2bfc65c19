// Package protocol defines the wire types exchanged with the agent backend:
// session-scoped events streamed over the WebSocket, commands sent to it, and
// the correlated responses that come back.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies an inbound event.
type EventKind string

const (
	// Streaming lifecycle for the in-progress assistant message.
	EventMessageStart   EventKind = "stream.message_start"
	EventTextDelta      EventKind = "stream.text_delta"
	EventThinkingDelta  EventKind = "stream.thinking_delta"
	EventToolCallStart  EventKind = "stream.tool_call_start"
	EventToolCallEnd    EventKind = "stream.tool_call_end"
	EventStreamDone     EventKind = "stream.done"
	EventMessageEnd     EventKind = "stream.message_end"
	EventResyncRequired EventKind = "stream.resync_required"

	// Tool execution, reported independently of the token stream so a client
	// that reattached mid-call still learns about running tools.
	EventToolStart EventKind = "tool.start"
	EventToolEnd   EventKind = "tool.end"

	// Agent status.
	EventAgentIdle    EventKind = "agent.idle"
	EventAgentWorking EventKind = "agent.working"
	EventAgentError   EventKind = "agent.error"

	// Context compaction.
	EventCompactStart EventKind = "compact.start"
	EventCompactEnd   EventKind = "compact.end"

	// Authoritative batch of persisted messages for the session.
	EventMessages EventKind = "messages"

	// Session metadata.
	EventTitleChanged EventKind = "session.title_changed"

	// Command response envelope (correlated by request id, not a session event).
	EventResponse EventKind = "response"
)

// Event is the decoded inbound envelope. Every event carries the channel it
// was multiplexed on and the session it belongs to; the remaining fields are
// populated depending on Kind and zero otherwise.
type Event struct {
	Channel   string    `json:"channel,omitempty"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"event"`

	// stream.message_start
	Role string `json:"role,omitempty"`

	// stream.text_delta / stream.thinking_delta
	Delta string `json:"delta,omitempty"`

	// stream.tool_call_start, tool.start, tool.end
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`

	// stream.tool_call_end
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// tool.end
	Output  string `json:"output,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// stream.message_end: the canonical persisted message.
	Message json.RawMessage `json:"message,omitempty"`

	// messages: authoritative batch of raw message records.
	Messages []json.RawMessage `json:"messages,omitempty"`

	// stream.resync_required
	DroppedCount int    `json:"dropped_count,omitempty"`
	Reason       string `json:"reason,omitempty"`

	// agent.error, compact.end
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
	Success     bool   `json:"success,omitempty"`

	// session.title_changed
	Title string `json:"title,omitempty"`
}

// ToolCall is a resolved tool invocation as reported by the backend.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ParseEvent decodes a raw frame into an Event. Frames with an empty event
// field are rejected; unknown kinds decode fine and are dropped downstream.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, fmt.Errorf("event frame missing event field")
	}
	return ev, nil
}

// IsAssistantRole reports whether a message_start role should materialize a
// streaming assistant message. The backend omits the role for plain assistant
// turns; tool and user echoes carry explicit roles and must not create one.
func IsAssistantRole(role string) bool {
	switch role {
	case "", "assistant", "agent":
		return true
	}
	return false
}

// SessionState is the backend's view of a session, returned by get_state and
// list_sessions.
type SessionState struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"` // idle|streaming|compacting|starting
	Title        string `json:"title,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
}

// SessionList is the data payload of a list_sessions response.
type SessionList struct {
	Sessions []SessionState `json:"sessions"`
}

// MessageBatch is the data payload of a get_messages response.
type MessageBatch struct {
	Messages []json.RawMessage `json:"messages"`
}

// Busy reports whether the remote session is mid-turn and the client should
// expect live events rather than a cold timeline.
func (s SessionState) Busy() bool {
	switch s.Status {
	case "streaming", "compacting", "starting":
		return true
	}
	return false
}
