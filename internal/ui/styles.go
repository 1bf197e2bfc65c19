// Package ui renders session timelines for the terminal: lipgloss styling for
// roles and tool state, glamour for assistant markdown.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for timeline rendering.
type Theme struct {
	Primary   lipgloss.Color // assistant accents
	Secondary lipgloss.Color // tool headers, borders
	Error     lipgloss.Color // errors, failed tools
	Muted     lipgloss.Color // thinking text, metadata
}

// DefaultTheme returns the default palette (gruvbox).
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#b8bb26"),
		Secondary: lipgloss.Color("#83a598"),
		Error:     lipgloss.Color("#fb4934"),
		Muted:     lipgloss.Color("#928374"),
	}
}

// ThemeOverrides carries config color overrides; empty fields keep defaults.
type ThemeOverrides struct {
	Primary   string
	Secondary string
	Error     string
	Muted     string
}

// ThemeFromOverrides builds a theme with overrides applied.
func ThemeFromOverrides(o ThemeOverrides) *Theme {
	theme := DefaultTheme()
	if o.Primary != "" {
		theme.Primary = lipgloss.Color(o.Primary)
	}
	if o.Secondary != "" {
		theme.Secondary = lipgloss.Color(o.Secondary)
	}
	if o.Error != "" {
		theme.Error = lipgloss.Color(o.Error)
	}
	if o.Muted != "" {
		theme.Muted = lipgloss.Color(o.Muted)
	}
	return theme
}

var currentTheme = DefaultTheme()

// SetTheme replaces the active theme. Call before rendering starts.
func SetTheme(t *Theme) {
	currentTheme = t
}

func roleStyle(role string) lipgloss.Style {
	switch role {
	case "user":
		return lipgloss.NewStyle().Bold(true)
	case "system":
		return lipgloss.NewStyle().Foreground(currentTheme.Muted).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(currentTheme.Primary).Bold(true)
	}
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(currentTheme.Muted)
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(currentTheme.Error)
}

func toolStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(currentTheme.Secondary)
}
