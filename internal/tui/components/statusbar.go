package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

// RenderStatusBar renders the bottom status bar. dataAge is empty until the
// first update arrives.
func RenderStatusBar(width int, connected bool, dataAge, note string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Width(width)
	liveStyle := lipgloss.NewStyle().Foreground(t.Printing).Background(t.Surface)
	downStyle := lipgloss.NewStyle().Foreground(t.Warning).Background(t.Surface)

	left := " [?]help  [r]efresh  [x]reset  [q]uit"
	if note != "" {
		left += "  " + note
	}

	var right string
	if connected {
		right = liveStyle.Render("● live")
	} else {
		right = downStyle.Render("○ reconnecting")
	}
	if dataAge != "" {
		right = fmt.Sprintf("Updated %s ago  ", dataAge) + right
	}
	right += " "

	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return style.Render(left + strings.Repeat(" ", padding) + right)
}
