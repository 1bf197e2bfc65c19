package timeline

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Normalize maps raw server message records to canonical Messages. Backends
// disagree on field naming (snake_case part lists vs camelCase content
// blocks), so this accepts both. Records or parts it cannot recognize
// contribute nothing; the function never fails.
//
// ids mints ids for records that arrive without one. Tool-result records are
// folded into the preceding assistant message as tool_result parts, matching
// how the reducer builds live timelines.
func Normalize(raw []json.RawMessage, ids *IDGen) []Message {
	var out []Message
	for _, r := range raw {
		var rm rawMessage
		if err := json.Unmarshal(r, &rm); err != nil {
			continue
		}
		role := strings.ToLower(rm.Role)
		if role == "toolresult" || role == "tool_result" || role == "tool" {
			part := rm.toolResultPart(ids)
			if part == nil {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Role == RoleAssistant {
				last := &out[n-1]
				if tc := last.FindToolCall(part.ToolCallID); tc != nil && tc.Status != ToolError {
					tc.Status = ToolSuccess
					if part.IsError {
						tc.Status = ToolError
					}
				}
				last.Parts = append(last.Parts, *part)
				continue
			}
			out = append(out, Message{
				ID:        ids.Next(),
				Role:      RoleAssistant,
				Parts:     []Part{*part},
				Timestamp: rm.time(),
			})
			continue
		}

		msg := Message{
			ID:        rm.ID,
			Role:      normalizeRole(role),
			Timestamp: rm.time(),
			ClientID:  rm.clientID(),
			Model:     rm.Model,
			Provider:  rm.Provider,
			Usage:     rm.usage(),
		}
		if msg.ID == "" {
			msg.ID = ids.Next()
		}
		if msg.Role == "" {
			continue
		}
		msg.Parts = rm.parts(ids)
		out = append(out, msg)
	}
	return out
}

func normalizeRole(role string) Role {
	switch role {
	case "user":
		return RoleUser
	case "assistant", "agent":
		return RoleAssistant
	case "system":
		return RoleSystem
	}
	return ""
}

type rawMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Parts     []rawPart       `json:"parts"`
	Content   json.RawMessage `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
	Model     string          `json:"model"`
	Provider  string          `json:"provider"`
	Usage     *rawUsage       `json:"usage"`

	ClientSnake string `json:"client_id"`
	ClientCamel string `json:"clientId"`

	// toolResult records
	ToolCallSnake string `json:"tool_call_id"`
	ToolCallCamel string `json:"toolCallId"`
	ToolNameSnake string `json:"tool_name"`
	ToolNameCamel string `json:"toolName"`
	ErrSnake      bool   `json:"is_error"`
	ErrCamel      bool   `json:"isError"`
}

type rawPart struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`

	Thinking string `json:"thinking"`

	ToolCallSnake string          `json:"tool_call_id"`
	ToolCallCamel string          `json:"toolCallId"`
	Name          string          `json:"name"`
	Input         json.RawMessage `json:"input"`
	Arguments     json.RawMessage `json:"arguments"`
	Status        string          `json:"status"`
	Output        string          `json:"output"`
	ErrSnake      bool            `json:"is_error"`
	ErrCamel      bool            `json:"isError"`
}

type rawUsage struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	CacheRead   int `json:"cacheRead"`
	InputSnake  int `json:"input_tokens"`
	OutputSnake int `json:"output_tokens"`
	CachedSnake int `json:"cached_input_tokens"`
}

func (rm *rawMessage) clientID() string {
	if rm.ClientSnake != "" {
		return rm.ClientSnake
	}
	return rm.ClientCamel
}

func (rm *rawMessage) usage() *Usage {
	if rm.Usage == nil {
		return nil
	}
	u := Usage{
		InputTokens:       rm.Usage.Input + rm.Usage.InputSnake,
		OutputTokens:      rm.Usage.Output + rm.Usage.OutputSnake,
		CachedInputTokens: rm.Usage.CacheRead + rm.Usage.CachedSnake,
	}
	if u == (Usage{}) {
		return nil
	}
	return &u
}

// time decodes a timestamp that may be an epoch in seconds or milliseconds,
// or an RFC 3339 string. Zero time when absent or unrecognized.
func (rm *rawMessage) time() time.Time {
	if len(rm.Timestamp) == 0 {
		return time.Time{}
	}
	var num float64
	if err := json.Unmarshal(rm.Timestamp, &num); err == nil {
		n := int64(num)
		if n > 1e12 { // milliseconds
			return time.UnixMilli(n)
		}
		if n > 0 {
			return time.Unix(n, 0)
		}
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(rm.Timestamp, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			if n > 1e12 {
				return time.UnixMilli(n)
			}
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}

// parts builds the canonical part list from either a flat parts array or a
// pi-style content value (plain string or block list).
func (rm *rawMessage) parts(ids *IDGen) []Part {
	if len(rm.Parts) > 0 {
		var out []Part
		for _, rp := range rm.Parts {
			if p := rp.canonical(ids); p != nil {
				out = append(out, *p)
			}
		}
		return out
	}
	if len(rm.Content) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(rm.Content, &text); err == nil {
		if text == "" {
			return nil
		}
		return []Part{TextPart(ids.Next(), text)}
	}
	var blocks []rawPart
	if err := json.Unmarshal(rm.Content, &blocks); err != nil {
		return nil
	}
	var out []Part
	for _, b := range blocks {
		if p := b.canonical(ids); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (rp *rawPart) canonical(ids *IDGen) *Part {
	id := rp.ID
	if id == "" {
		id = ids.Next()
	}
	callID := rp.ToolCallSnake
	if callID == "" {
		callID = rp.ToolCallCamel
	}
	switch rp.Type {
	case "text":
		if rp.Text == "" {
			return nil
		}
		p := TextPart(id, rp.Text)
		return &p
	case "thinking":
		text := rp.Thinking
		if text == "" {
			text = rp.Text
		}
		if text == "" {
			return nil
		}
		p := ThinkingPart(id, text)
		return &p
	case "tool_call", "toolCall":
		if callID == "" {
			// pi blocks carry the call id as "id" with no separate part id.
			callID = rp.ID
			id = ids.Next()
		}
		if callID == "" {
			return nil
		}
		status := ToolStatus(rp.Status)
		if status == "" {
			status = ToolSuccess
		}
		p := ToolCallPart(id, callID, rp.Name, status)
		if len(rp.Input) > 0 {
			p.Input = rp.Input
		} else if len(rp.Arguments) > 0 {
			p.Input = rp.Arguments
		}
		return &p
	case "tool_result", "toolResult":
		if callID == "" {
			return nil
		}
		p := ToolResultPart(id, callID, rp.Name, rp.Output, rp.ErrSnake || rp.ErrCamel)
		if p.Output == "" {
			p.Output = rp.Text
		}
		return &p
	}
	return nil
}

// toolResultPart extracts a tool_result part from a pi toolResult record.
func (rm *rawMessage) toolResultPart(ids *IDGen) *Part {
	callID := rm.ToolCallSnake
	if callID == "" {
		callID = rm.ToolCallCamel
	}
	if callID == "" {
		return nil
	}
	name := rm.ToolNameSnake
	if name == "" {
		name = rm.ToolNameCamel
	}
	output := contentText(rm.Content)
	p := ToolResultPart(ids.Next(), callID, name, output, rm.ErrSnake || rm.ErrCamel)
	return &p
}

// contentText flattens a pi content value to plain text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []rawPart
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type == "text" && blk.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}
