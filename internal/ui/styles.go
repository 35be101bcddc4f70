package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	ColorPrimary   = lipgloss.Color("205") // Pink
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("160") // Red
	ColorWarning   = lipgloss.Color("214") // Orange/Yellow
	ColorText      = lipgloss.Color("252") // White/Gray
	ColorCyan      = lipgloss.Color("87")  // Cyan for in-flight work
	ColorBlue      = lipgloss.Color("75")  // Blue for verifying

	// Base Styles
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleSectionTitle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				Underline(true)

	StyleLabel = lipgloss.NewStyle().Foreground(ColorSecondary).Width(12)
)

// stateStyles colors task and goal states; both enums share names.
var stateStyles = map[string]lipgloss.Style{
	"pending":     StyleText,
	"blocked":     StyleWarning,
	"in_progress": lipgloss.NewStyle().Foreground(ColorCyan),
	"verifying":   lipgloss.NewStyle().Foreground(ColorBlue),
	"completed":   StyleSuccess,
	"failed":      StyleError.Bold(true),
}

var stateIcons = map[string]string{
	"pending":     "○",
	"blocked":     "⊘",
	"in_progress": "◐",
	"verifying":   "◑",
	"completed":   "●",
	"failed":      "✗",
}

// StateStyle returns the style for a task or goal state.
func StateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return StyleText
}

// StateIcon returns the icon for a task or goal state, styled with its color.
func StateIcon(state string) string {
	icon, ok := stateIcons[state]
	if !ok {
		icon = "?"
	}
	return Icon(icon, StateStyle(state))
}

// RenderState renders a state name in its color.
func RenderState(state string) string {
	return StateStyle(state).Render(state)
}

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}
