package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/tracker"
	"github.com/theirongolddev/printmeter/internal/tui/components"
	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

func (a App) renderPrinter(ps daemon.PrinterStatus, cw, h int) string {
	snap := ps.Snapshot
	tot := snap.Totals
	cur := snap.Currency

	var b strings.Builder
	b.WriteString(a.renderState(snap, cw))
	b.WriteString("\n")

	b.WriteString(components.MetricCardRow([]components.Stat{
		{Label: "Prints", Value: cli.FormatNumber(int64(tot.PrintCount))},
		{Label: "Energy", Value: cli.FormatEnergy(tot.TotalEnergy), Note: cli.FormatCost(tot.TotalEnergyCost, cur)},
		{Label: "Material", Value: cli.FormatMaterial(tot.TotalMaterial), Note: cli.FormatCost(tot.TotalMaterialCost, cur)},
		{Label: "Total cost", Value: cli.FormatCost(tot.TotalCost, cur)},
	}, cw))
	b.WriteString("\n")

	if snap.Session.IsPrinting {
		b.WriteString(components.MetricCardRow([]components.Stat{
			{Label: "This print", Value: cli.FormatEnergy(snap.Current.Energy), Live: true},
			{Label: "Material", Value: cli.FormatMaterial(snap.Current.Material), Live: true},
			{Label: "Cost so far", Value: cli.FormatCost(snap.Current.TotalCost, cur), Live: true,
				Note: fmt.Sprintf("%s energy", cli.FormatCost(snap.Current.EnergyCost, cur))},
		}, cw))
	} else {
		b.WriteString(components.MetricCardRow([]components.Stat{
			{Label: "Last print", Value: cli.FormatEnergy(tot.LastPrintEnergy),
				Note: cli.FormatSpan(tot.LastPrintStart, tot.LastPrintEnd)},
			{Label: "Material", Value: cli.FormatMaterial(tot.LastPrintMaterial)},
			{Label: "Cost", Value: cli.FormatCost(tot.LastPrintTotalCost, cur),
				Note: "finished " + cli.FormatTime(tot.LastPrintEnd)},
		}, cw))
	}
	b.WriteString("\n")

	if p, ok := a.configs[ps.ID]; ok && snap.Session.IsPrinting && p.MaterialSensor != "" {
		bar := components.SpoolBar("Spool", snap.Current.Material, p.SpoolLength(), 6, min(40, cw/3))
		b.WriteString(components.ContentCard("", bar, cw))
		b.WriteString("\n")
	}

	used := lipgloss.Height(b.String())
	chartH := max(h-used-4, 3)
	chart := components.LineChart(a.history[ps.ID], components.CardInnerWidth(cw), chartH,
		"cumulative energy (kWh)")
	b.WriteString(components.ContentCard("Energy", chart, cw))
	return b.String()
}

func (a App) renderState(snap tracker.Snapshot, cw int) string {
	t := theme.Active
	base := lipgloss.NewStyle().Background(t.Background)
	muted := base.Foreground(t.TextMuted)
	live := base.Foreground(t.Printing).Bold(true)
	warn := base.Foreground(t.Warning)

	var state string
	if snap.Session.IsPrinting {
		state = live.Render("● printing")
		if snap.Session.StartedAt != nil {
			state += muted.Render(" for " + cli.FormatDuration(int64(time.Since(*snap.Session.StartedAt).Seconds())))
		}
	} else {
		state = muted.Render("○ idle")
	}

	prices := muted.Render(fmt.Sprintf("   %s/kWh  %s/m",
		cli.FormatCost(snap.CostPerKWh, snap.Currency),
		cli.FormatCost(snap.CostPerMeter, snap.Currency)))

	line := " " + state + prices
	if snap.LastError != "" {
		line += warn.Render("   " + snap.LastError)
	}
	return lipgloss.PlaceHorizontal(cw, lipgloss.Left, line, lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) renderEvents(cw, h int) string {
	t := theme.Active
	timeStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	typeStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	textStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)

	if len(a.events) == 0 {
		return components.ContentCard("Events", timeStyle.Render("No events yet."), cw)
	}

	limit := max(h-3, 1)
	start := max(len(a.events)-limit, 0)
	lines := make([]string, 0, limit)
	for i := len(a.events) - 1; i >= start; i-- {
		ev := a.events[i]
		lines = append(lines, timeStyle.Render(ev.Timestamp.Local().Format("15:04:05"))+" "+
			typeStyle.Render(fmt.Sprintf("%-16s", ev.Type))+" "+
			textStyle.Render(describeEvent(a.printerName(ev.PrinterID), ev)))
	}
	return components.ContentCard("Events", strings.Join(lines, "\n"), cw)
}

func describeEvent(name string, ev daemon.Event) string {
	snap := ev.Snapshot
	switch ev.Type {
	case string(tracker.EventPrintStarted):
		return name + " started printing"
	case string(tracker.EventPrintFinished):
		return fmt.Sprintf("%s finished: %s, %s", name,
			cli.FormatEnergy(snap.Totals.LastPrintEnergy),
			cli.FormatCost(snap.Totals.LastPrintTotalCost, snap.Currency))
	case string(tracker.EventPrintDiscarded):
		return name + " print discarded (no energy recorded)"
	case string(tracker.EventReset):
		return name + " statistics reset"
	default:
		d := ev.Delta
		if d.SessionKWh != 0 {
			return fmt.Sprintf("%s +%s this print", name, cli.FormatEnergy(d.SessionKWh))
		}
		return fmt.Sprintf("%s updated", name)
	}
}
