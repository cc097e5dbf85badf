package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/projection"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

var flagStatusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [printer]",
	Short: "Show energy, material and cost totals per printer",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "Print raw JSON instead of tables")
	rootCmd.AddCommand(statusCmd)
}

var metricLabels = map[string]string{
	projection.KeyTotalEnergy:           "Energy",
	projection.KeyTotalMaterial:         "Material",
	projection.KeyPrintCount:            "Prints",
	projection.KeyTotalEnergyCost:       "Energy cost",
	projection.KeyTotalMaterialCost:     "Material cost",
	projection.KeyTotalCost:             "Total cost",
	projection.KeyLastPrintStart:        "Started",
	projection.KeyLastPrintEnd:          "Finished",
	projection.KeyLastPrintEnergy:       "Energy",
	projection.KeyLastPrintMaterial:     "Material",
	projection.KeyLastPrintEnergyCost:   "Energy cost",
	projection.KeyLastPrintMaterialCost: "Material cost",
	projection.KeyLastPrintTotalCost:    "Total cost",
	projection.KeyCurrentEnergy:         "Energy",
	projection.KeyCurrentMaterial:       "Material",
	projection.KeyCurrentEnergyCost:     "Energy cost",
	projection.KeyCurrentMaterialCost:   "Material cost",
	projection.KeyCurrentTotalCost:      "Total cost",
}

var metricSections = []struct {
	title string
	keys  []string
}{
	{"Totals", []string{
		projection.KeyPrintCount, projection.KeyTotalEnergy, projection.KeyTotalMaterial,
		projection.KeyTotalEnergyCost, projection.KeyTotalMaterialCost, projection.KeyTotalCost,
	}},
	{"Last print", []string{
		projection.KeyLastPrintStart, projection.KeyLastPrintEnd,
		projection.KeyLastPrintEnergy, projection.KeyLastPrintMaterial,
		projection.KeyLastPrintEnergyCost, projection.KeyLastPrintMaterialCost, projection.KeyLastPrintTotalCost,
	}},
	{"Current session", []string{
		projection.KeyCurrentEnergy, projection.KeyCurrentMaterial,
		projection.KeyCurrentEnergyCost, projection.KeyCurrentMaterialCost, projection.KeyCurrentTotalCost,
	}},
}

func runStatus(_ *cobra.Command, args []string) error {
	printers := appCfg.Printers
	if len(args) == 1 {
		p, ok := appCfg.Printer(args[0])
		if !ok && flagOffline {
			return fmt.Errorf("unknown printer %q", args[0])
		}
		printers = []config.PrinterConfig{p}
	}

	ctx, cancel := requestContext()
	defer cancel()

	var statuses []daemon.PrinterStatus
	var err error
	switch {
	case flagOffline:
		statuses, err = offlineStatuses(ctx, printers)
	case len(args) == 1:
		var ps daemon.PrinterStatus
		ps, err = newClient().Printer(ctx, args[0])
		statuses = []daemon.PrinterStatus{ps}
	default:
		var st daemon.Status
		progress("Asking daemon at %s...", daemonAddr())
		st, err = newClient().Status(ctx)
		statuses = st.Printers
	}
	if err != nil {
		if !flagOffline {
			return fmt.Errorf("%w (is the daemon running? try --offline)", err)
		}
		return err
	}

	if flagStatusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	if len(statuses) == 0 {
		fmt.Println()
		fmt.Println("  No printers configured. Run `printmeter setup` to add one.")
		fmt.Println()
		return nil
	}

	for _, ps := range statuses {
		fmt.Println()
		fmt.Print(renderPrinterStatus(ps))
	}
	if flagOffline {
		fmt.Println(cli.RenderMuted("  Offline view: costs use the default currency and no live readings."))
	}
	fmt.Println()
	return nil
}

func renderPrinterStatus(ps daemon.PrinterStatus) string {
	var b strings.Builder
	b.WriteString(cli.RenderTitle(strings.ToUpper(ps.Name)))
	b.WriteString("\n")

	snap := ps.Snapshot
	state := "idle"
	if snap.Session.IsPrinting {
		state = cli.ActiveStyle.Render("printing")
		if snap.Session.StartedAt != nil {
			state += fmt.Sprintf(" for %s", cli.FormatDuration(int64(time.Since(*snap.Session.StartedAt).Seconds())))
		}
	}
	fmt.Fprintf(&b, "  State: %s\n", state)
	if snap.LastError != "" {
		fmt.Fprintf(&b, "  %s\n", cli.WarnStyle.Render("Last error: "+snap.LastError))
	}
	b.WriteString("\n")

	for _, sec := range metricSections {
		if sec.title == "Current session" && !snap.Session.IsPrinting && snap.Current == (tracker.CurrentSession{}) {
			continue
		}
		rows := make([][]string, 0, len(sec.keys))
		for _, key := range sec.keys {
			m, ok := projection.Lookup(ps.Metrics, key)
			if !ok {
				continue
			}
			rows = append(rows, []string{metricLabels[key], formatMetric(m)})
		}
		b.WriteString(cli.RenderTable(cli.Table{Title: sec.title, Rows: rows}))
		b.WriteString("\n")
	}

	if p, ok := appCfg.Printer(ps.ID); ok && snap.Session.IsPrinting && p.MaterialSensor != "" {
		fmt.Fprintf(&b, "  Spool: %s\n\n", cli.RenderMeter(snap.Current.Material, p.SpoolLength()*1000, 30))
	}
	return b.String()
}

func formatMetric(m projection.Metric) string {
	switch m.Unit {
	case projection.UnitKWh:
		return cli.FormatEnergy(m.Value)
	case projection.UnitMM:
		return cli.FormatMaterial(m.Value)
	case projection.UnitTimestamp:
		if m.Text == "" {
			return "-"
		}
		t, err := time.Parse(time.RFC3339, m.Text)
		if err != nil {
			return m.Text
		}
		return cli.FormatTime(&t)
	case "":
		if m.Key == projection.KeyCurrency {
			return m.Text
		}
		return cli.FormatNumber(int64(m.Value))
	default:
		return cli.FormatCost(m.Value, m.Unit)
	}
}
