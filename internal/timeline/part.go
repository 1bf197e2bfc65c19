// Package timeline holds the canonical message model the reducer maintains:
// messages composed of ordered parts, normalization of raw server records,
// and reconciliation of local and server timelines.
package timeline

import "encoding/json"

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartThinking   PartType = "thinking"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"

	// Display-only parts. Never persisted, never sent back to the server.
	PartCompaction PartType = "compaction"
	PartError      PartType = "error"
)

// ToolStatus tracks a tool call's lifecycle on its part.
type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolRunning ToolStatus = "running"
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// Part is a single content part. Fields beyond ID/Type are populated
// depending on Type and zero otherwise.
type Part struct {
	ID   string   `json:"id"`
	Type PartType `json:"type"`

	// text, thinking, compaction, error
	Text string `json:"text,omitempty"`

	// tool_call, tool_result
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Status     ToolStatus      `json:"status,omitempty"`
	Output     string          `json:"output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// Display reports whether the part is display-only and should be skipped
// when persisting or replaying the timeline to the server.
func (p Part) Display() bool {
	return p.Type == PartCompaction || p.Type == PartError
}

func TextPart(id, text string) Part {
	return Part{ID: id, Type: PartText, Text: text}
}

func ThinkingPart(id, text string) Part {
	return Part{ID: id, Type: PartThinking, Text: text}
}

func ToolCallPart(id, toolCallID, name string, status ToolStatus) Part {
	return Part{ID: id, Type: PartToolCall, ToolCallID: toolCallID, Name: name, Status: status}
}

func ToolResultPart(id, toolCallID, name, output string, isError bool) Part {
	return Part{ID: id, Type: PartToolResult, ToolCallID: toolCallID, Name: name, Output: output, IsError: isError}
}

func CompactionPart(id, text string) Part {
	return Part{ID: id, Type: PartCompaction, Text: text}
}

func ErrorPart(id, text string) Part {
	return Part{ID: id, Type: PartError, Text: text}
}
