package ui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/samsaffron/agentwire/internal/timeline"
)

// RenderTimeline renders a full message list for the terminal.
func RenderTimeline(msgs []timeline.Message, width int) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(RenderMessage(m, width))
	}
	return b.String()
}

// RenderMessage renders one message: a role header followed by its parts.
func RenderMessage(m timeline.Message, width int) string {
	var b strings.Builder
	header := roleHeader(m)
	b.WriteString(roleStyle(string(m.Role)).Render(header))
	b.WriteString("\n")
	for _, p := range m.Parts {
		out := renderPart(p, m.Role, width)
		if out == "" {
			continue
		}
		b.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func roleHeader(m timeline.Message) string {
	switch m.Role {
	case timeline.RoleUser:
		return "You"
	case timeline.RoleSystem:
		return "System"
	default:
		if m.IsStreaming {
			return "Assistant …"
		}
		return "Assistant"
	}
}

func renderPart(p timeline.Part, role timeline.Role, width int) string {
	switch p.Type {
	case timeline.PartText:
		if role == timeline.RoleAssistant {
			return RenderMarkdown(p.Text, width)
		}
		return wordwrap.String(p.Text, width)
	case timeline.PartThinking:
		return mutedStyle().Render(wordwrap.String(p.Text, width))
	case timeline.PartToolCall:
		return toolStyle().Render(toolCallLine(p))
	case timeline.PartToolResult:
		return toolResultBlock(p, width)
	case timeline.PartCompaction:
		return mutedStyle().Render(p.Text)
	case timeline.PartError:
		return errorStyle().Render(wordwrap.String(p.Text, width))
	}
	return ""
}

func toolCallLine(p timeline.Part) string {
	glyph := map[timeline.ToolStatus]string{
		timeline.ToolPending: "○",
		timeline.ToolRunning: "◐",
		timeline.ToolSuccess: "●",
		timeline.ToolError:   "✗",
	}[p.Status]
	if glyph == "" {
		glyph = "○"
	}
	return fmt.Sprintf("%s %s", glyph, p.Name)
}

// toolResultBlock shows a trimmed preview of tool output. Full output stays in
// the model; the terminal view caps it to keep the stream readable.
func toolResultBlock(p timeline.Part, width int) string {
	const maxLines = 6
	text := strings.TrimRight(p.Output, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(wordwrap.String(text, width-2), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("… (%d more lines)", len(lines)-maxLines))
	}
	style := mutedStyle()
	if p.IsError {
		style = errorStyle()
	}
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return style.Render(strings.Join(lines, "\n"))
}

// RenderError renders a surfaced error line.
func RenderError(err error) string {
	return errorStyle().Render("✗ " + err.Error())
}

// StatusLine renders the working indicator shown below the timeline.
func StatusLine(busy bool) string {
	if !busy {
		return ""
	}
	return mutedStyle().Render("⏳ working…")
}
