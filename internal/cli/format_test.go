package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatEnergy(t *testing.T) {
	assert.Equal(t, "3.50 kWh", FormatEnergy(3.5))
	assert.Equal(t, "420 Wh", FormatEnergy(0.42))
	assert.Equal(t, "0 kWh", FormatEnergy(0))
	assert.Equal(t, "1,235 kWh", FormatEnergy(1234.5))
}

func TestFormatMaterial(t *testing.T) {
	assert.Equal(t, "850 mm", FormatMaterial(850))
	assert.Equal(t, "12.50 m", FormatMaterial(12500))
	assert.Equal(t, "1,520 m", FormatMaterial(1_520_000))
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "0.42 RSD", FormatCost(0.42, "RSD"))
	assert.Equal(t, "150 EUR", FormatCost(149.6, "EUR"))
	assert.Equal(t, "12,346 USD", FormatCost(12345.6, "USD"))
	assert.Equal(t, "0.06", FormatCost(0.0606, ""))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1,000", FormatNumber(1000))
	assert.Equal(t, "-1,234,567", FormatNumber(-1234567))
}

func TestFormatTimeAndSpan(t *testing.T) {
	assert.Equal(t, "-", FormatTime(nil))
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Minute)
	assert.Equal(t, "1h 35m", FormatSpan(&start, &end))
	assert.Equal(t, "-", FormatSpan(&end, &start))
	assert.Equal(t, "-", FormatSpan(nil, &end))
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total energy", "3.50 kWh"},
			{"---"},
			{"Prints", "1"},
		},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 7)
	assert.Contains(t, out, "Total energy")
	assert.Contains(t, out, "3.50 kWh")
}

func TestRenderMeter(t *testing.T) {
	assert.Empty(t, RenderMeter(1, 0, 10))
	assert.Contains(t, RenderMeter(5, 10, 10), "50%")
	assert.Contains(t, RenderMeter(20, 10, 10), "100%")
}
