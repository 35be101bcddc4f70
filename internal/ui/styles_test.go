package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestStyles(t *testing.T) {
	// Force color profile for testing
	lipgloss.SetColorProfile(termenv.ANSI256)

	out := StyleSuccess.Render("Test")
	assert.Contains(t, out, "Test")
	assert.NotEqual(t, "Test", out, "Style should add ANSI codes when forced")
}

func TestStateStyle(t *testing.T) {
	lipgloss.SetColorProfile(termenv.ANSI256)

	for _, state := range []string{"pending", "blocked", "in_progress", "verifying", "completed", "failed"} {
		assert.Contains(t, RenderState(state), state)
		assert.NotContains(t, StateIcon(state), "?", "state %s should have an icon", state)
	}
	assert.Contains(t, StateIcon("bogus"), "?")
	assert.NotEqual(t, RenderState("completed"), RenderState("failed"))
}
