package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandKind identifies an outbound command.
type CommandKind string

const (
	CmdPrompt       CommandKind = "prompt"
	CmdSteer        CommandKind = "steer"
	CmdFollowUp     CommandKind = "follow_up"
	CmdAbort        CommandKind = "abort"
	CmdCompact      CommandKind = "compact"
	CmdGetState     CommandKind = "get_state"
	CmdGetMessages  CommandKind = "get_messages"
	CmdListSessions CommandKind = "list_sessions"
	CmdNewSession   CommandKind = "new_session"
	CmdCloseSession CommandKind = "close_session"

	// Channel management on the multiplexed connection.
	CmdSubscribe   CommandKind = "subscribe"
	CmdUnsubscribe CommandKind = "unsubscribe"
)

// Command is the outbound envelope. ID correlates the eventual response;
// Payload holds kind-specific fields and may be nil.
type Command struct {
	ID        string          `json:"id"`
	Kind      CommandKind     `json:"cmd"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PromptPayload carries a user message. ClientID is the client-generated
// correlation token echoed back on the persisted copy so optimistic local
// messages can be reconciled.
type PromptPayload struct {
	Message  string `json:"message"`
	ClientID string `json:"client_id,omitempty"`
}

// CompactPayload optionally customizes manual compaction.
type CompactPayload struct {
	Instructions string `json:"instructions,omitempty"`
}

// Response is the correlated reply to a Command.
type Response struct {
	Kind      EventKind       `json:"event"` // always "response"
	ID        string          `json:"id"`
	Cmd       CommandKind     `json:"cmd"`
	SessionID string          `json:"session_id,omitempty"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Err converts a failed response into an error, nil on success.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return fmt.Errorf("command %s failed", r.Cmd)
	}
	return fmt.Errorf("command %s failed: %s", r.Cmd, r.Error)
}

// DecodeData unmarshals the response data into out.
func (r *Response) DecodeData(out any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response for %s has no data", r.Cmd)
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.Cmd, err)
	}
	return nil
}

// NewCommand builds a command with a JSON-encoded payload. A nil payload is
// omitted from the frame.
func NewCommand(id string, kind CommandKind, sessionID string, payload any) (Command, error) {
	cmd := Command{ID: id, Kind: kind, SessionID: sessionID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Command{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		cmd.Payload = data
	}
	return cmd, nil
}
