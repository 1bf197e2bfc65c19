package timeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Usage captures token accounting reported with a finished assistant turn.
type Usage struct {
	InputTokens       int `json:"input_tokens,omitempty"`
	OutputTokens      int `json:"output_tokens,omitempty"`
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
}

// Message is one entry in the session timeline. ID is locally assigned and
// stable once created. ClientID is the correlation token attached to outgoing
// user messages so the server-confirmed copy can replace the optimistic one.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Parts       []Part    `json:"parts"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
	Usage       *Usage    `json:"usage,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Model       string    `json:"model,omitempty"`
	Provider    string    `json:"provider,omitempty"`
}

// Clone returns a deep copy. Streaming snapshots handed to consumers must not
// alias the parts slice the reducer keeps mutating.
func (m *Message) Clone() *Message {
	c := *m
	if m.Parts != nil {
		c.Parts = make([]Part, len(m.Parts))
		copy(c.Parts, m.Parts)
	}
	if m.Usage != nil {
		u := *m.Usage
		c.Usage = &u
	}
	return &c
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FindToolCall returns the tool_call part with the given id, or nil.
func (m *Message) FindToolCall(toolCallID string) *Part {
	for i := range m.Parts {
		if m.Parts[i].Type == PartToolCall && m.Parts[i].ToolCallID == toolCallID {
			return &m.Parts[i]
		}
	}
	return nil
}

// localIDPrefix is the prefix of ids minted by IDGen. Server-assigned ids
// pass through Normalize untouched and may be any shape.
const localIDPrefix = "m"

// IDGen mints locally unique message/part ids. Seed it with MaxID over a
// restored timeline so fresh ids never collide with restored ones.
type IDGen struct {
	next int64
}

// NewIDGen returns a generator whose first id is seed+1.
func NewIDGen(seed int64) *IDGen {
	return &IDGen{next: seed}
}

// Next returns the next id.
func (g *IDGen) Next() string {
	g.next++
	return localIDPrefix + strconv.FormatInt(g.next, 10)
}

// Advance moves the counter forward to at least n, so ids restored from a
// merge never collide with freshly minted ones. It never moves backwards.
func (g *IDGen) Advance(n int64) {
	if n > g.next {
		g.next = n
	}
}

// IsLocalID reports whether id was minted by an IDGen rather than assigned by
// the server.
func IsLocalID(id string) bool {
	_, ok := parseLocalID(id)
	return ok
}

// MaxID returns the highest locally minted id counter found across the given
// messages and their parts. Server-assigned ids that don't match the local
// shape contribute nothing.
func MaxID(messages []Message) int64 {
	var max int64
	consider := func(id string) {
		n, ok := parseLocalID(id)
		if ok && n > max {
			max = n
		}
	}
	for i := range messages {
		consider(messages[i].ID)
		for _, p := range messages[i].Parts {
			consider(p.ID)
		}
	}
	return max
}

func parseLocalID(id string) (int64, bool) {
	if !strings.HasPrefix(id, localIDPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[len(localIDPrefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NewUserMessage builds an optimistic user message carrying a client
// correlation id.
func NewUserMessage(id, clientID, text string, now time.Time) Message {
	return Message{
		ID:        id,
		Role:      RoleUser,
		Parts:     []Part{TextPart(id + "-t", text)},
		Timestamp: now,
		ClientID:  clientID,
	}
}

func (m *Message) String() string {
	return fmt.Sprintf("%s[%s] %d parts", m.Role, m.ID, len(m.Parts))
}
