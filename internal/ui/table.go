package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows in a compact aligned format for terminal display.
// Cells may carry ANSI styling; widths are measured on the visible text.
type Table struct {
	Headers  []string
	Rows     [][]string
	MaxWidth int // Max width per column (0 = auto)
}

// ColumnWidths calculates column widths from headers and visible cell content.
func (t *Table) ColumnWidths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	if t.MaxWidth > 0 {
		for i := range widths {
			widths[i] = min(widths[i], t.MaxWidth)
		}
	}
	return widths
}

// Render outputs the table to a string.
func (t *Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}

	widths := t.ColumnWidths()
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	var headerCells []string
	for i, h := range t.Headers {
		headerCells = append(headerCells, headerStyle.Render(padRight(h, widths[i])))
	}
	sb.WriteString(" " + strings.TrimRight(strings.Join(headerCells, "  "), " ") + "\n")

	var sepParts []string
	for _, w := range widths {
		sepParts = append(sepParts, StyleSubtle.Render(strings.Repeat("─", w)))
	}
	sb.WriteString(" " + strings.Join(sepParts, "──") + "\n")

	for _, row := range t.Rows {
		cells := make([]string, len(t.Headers))
		for i := range t.Headers {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			if lipgloss.Width(val) > widths[i] {
				// Styled cells are never truncated; plain text gets an ellipsis.
				val = truncateRunes(val, widths[i])
			}
			cells[i] = padRight(val, widths[i])
		}
		sb.WriteString(" " + strings.TrimRight(strings.Join(cells, "  "), " ") + "\n")
	}

	return sb.String()
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func truncateRunes(s string, width int) string {
	if strings.Contains(s, "\x1b[") {
		return s
	}
	r := []rune(s)
	switch {
	case width <= 0:
		return ""
	case width == 1:
		return "…"
	case len(r) > width:
		return string(r[:width-1]) + "…"
	}
	return s
}
