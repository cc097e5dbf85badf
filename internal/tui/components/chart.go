package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

// LineChart plots samples with asciigraph, or a placeholder until there are
// at least two points.
func LineChart(samples []float64, width, height int, caption string) string {
	t := theme.Active
	if len(samples) < 2 {
		return lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).
			Render("Waiting for readings...")
	}

	width = max(width, 20)
	height = max(height, 3)

	// asciigraph draws the y-axis labels inside width
	return asciigraph.Plot(samples,
		asciigraph.Height(height),
		asciigraph.Width(width-10),
		asciigraph.Precision(3),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Cyan),
	)
}

// AppendSample adds v to samples, keeping at most limit values.
func AppendSample(samples []float64, v float64, limit int) []float64 {
	samples = append(samples, v)
	if len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples
}
