// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatEnergy formats kWh, switching to Wh below one kWh.
// e.g., 3.5 -> "3.50 kWh", 0.42 -> "420 Wh", 1234.5 -> "1,235 kWh"
func FormatEnergy(kwh float64) string {
	abs := math.Abs(kwh)
	switch {
	case abs >= 1000:
		return FormatNumber(int64(math.Round(kwh))) + " kWh"
	case abs >= 1:
		return fmt.Sprintf("%.2f kWh", kwh)
	case abs == 0:
		return "0 kWh"
	default:
		return fmt.Sprintf("%.0f Wh", kwh*1000)
	}
}

// FormatMaterial formats a filament length given in millimeters.
// e.g., 850 -> "850 mm", 12500 -> "12.50 m", 1520000 -> "1,520 m"
func FormatMaterial(mm float64) string {
	m := mm / 1000
	switch {
	case math.Abs(m) >= 1000:
		return FormatNumber(int64(math.Round(m))) + " m"
	case math.Abs(m) >= 1:
		return fmt.Sprintf("%.2f m", m)
	default:
		return fmt.Sprintf("%.0f mm", mm)
	}
}

// FormatCost formats a cost in the given currency code.
func FormatCost(cost float64, currency string) string {
	var s string
	switch {
	case math.Abs(cost) >= 1000:
		s = FormatNumber(int64(math.Round(cost)))
	case math.Abs(cost) >= 100:
		s = fmt.Sprintf("%.0f", cost)
	default:
		s = fmt.Sprintf("%.2f", cost)
	}
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// FormatDuration formats seconds into a human-readable duration.
// e.g., 3725 -> "1h 2m", 125 -> "2m", 45 -> "45s"
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatTime formats an optional timestamp in local time, "-" when unset.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatSpan formats the time between two optional timestamps.
func FormatSpan(start, end *time.Time) string {
	if start == nil || end == nil || end.Before(*start) {
		return "-"
	}
	return FormatDuration(int64(end.Sub(*start).Seconds()))
}
