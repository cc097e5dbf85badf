package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

// PrinterTab is one printer in the tab bar.
type PrinterTab struct {
	Name     string
	Printing bool
}

// tabLabel is the unstyled text of a tab: "1 K2 Plus", plus a dot while printing.
func tabLabel(i int, tab PrinterTab) string {
	label := strconv.Itoa(i+1) + " " + tab.Name
	if tab.Printing {
		label += " ●"
	}
	return label
}

// TabVisualWidth is the rendered width of tab i, padding included.
func TabVisualWidth(i int, tab PrinterTab) int {
	return lipgloss.Width(tabLabel(i, tab)) + 2
}

// RenderTabBar renders one tab per printer with the given active index.
func RenderTabBar(tabs []PrinterTab, activeIdx, width int) string {
	t := theme.Active

	activeStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.SurfaceHover).
		Bold(true).
		Padding(0, 1)
	inactiveStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Padding(0, 1)
	sepStyle := lipgloss.NewStyle().Foreground(t.Border).Background(t.Surface)
	rowStyle := lipgloss.NewStyle().Background(t.Surface).Width(width)

	parts := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		style := inactiveStyle
		if i == activeIdx {
			style = activeStyle
		}
		parts = append(parts, style.Render(tabLabel(i, tab)))
	}
	return rowStyle.Render(strings.Join(parts, sepStyle.Render("│")))
}

// TabAtX returns the tab under column x, or -1. Hitboxes follow the same
// widths RenderTabBar uses, with a one column separator between tabs.
func TabAtX(tabs []PrinterTab, x int) int {
	pos := 0
	for i, tab := range tabs {
		w := TabVisualWidth(i, tab)
		if x >= pos && x < pos+w {
			return i
		}
		pos += w + 1
	}
	return -1
}
