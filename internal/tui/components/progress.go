package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

// ColorForPct returns green/yellow/orange/red based on how full a spool is.
func ColorForPct(pct float64) string {
	t := theme.Active
	switch {
	case pct >= 0.9:
		return string(t.Critical)
	case pct >= 0.7:
		return string(t.Warning)
	case pct >= 0.5:
		return string(t.Caution)
	default:
		return string(t.Printing)
	}
}

// SpoolBar renders how much of a spool the current print has used.
// usedMM is filament in millimeters, spoolM the spool length in meters.
func SpoolBar(label string, usedMM, spoolM float64, labelW, barWidth int) string {
	t := theme.Active
	if spoolM <= 0 {
		return ""
	}

	pct := usedMM / (spoolM * 1000)
	pct = min(max(pct, 0), 1)

	bar := progress.New(
		progress.WithSolidFill(ColorForPct(pct)),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	pctStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorForPct(pct))).Background(t.Surface).Bold(true)
	noteStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, label)) +
		spaceStyle.Render(" ") +
		bar.ViewAs(pct) +
		spaceStyle.Render(" ") +
		pctStyle.Render(fmt.Sprintf("%3.0f%%", pct*100)) +
		spaceStyle.Render("  ") +
		noteStyle.Render(fmt.Sprintf("of %.0f m", spoolM))
}
