package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

var flagWatchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream print events from the daemon",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchJSON, "json", false, "Print one JSON event per line")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	progress("Streaming events from %s (Ctrl+C to stop)", daemonAddr())
	enc := json.NewEncoder(os.Stdout)
	return newClient().Subscribe(ctx, func(ev daemon.Event) {
		if flagWatchJSON {
			_ = enc.Encode(ev)
			return
		}
		fmt.Println(formatEventLine(ev))
	})
}

func formatEventLine(ev daemon.Event) string {
	snap := ev.Snapshot
	ts := ev.Timestamp.Local().Format("15:04:05")
	switch ev.Type {
	case daemon.EventSnapshot:
		return fmt.Sprintf("  %s %-10s %d prints, %s, %s", ts, ev.PrinterID, snap.Totals.PrintCount,
			cli.FormatEnergy(snap.Totals.TotalEnergy), cli.FormatCost(snap.Totals.TotalCost, snap.Currency))
	case string(tracker.EventPrintFinished):
		return fmt.Sprintf("  %s %-10s finished: %s, %s, %s", ts, ev.PrinterID,
			cli.FormatEnergy(snap.Totals.LastPrintEnergy),
			cli.FormatMaterial(snap.Totals.LastPrintMaterial),
			cli.FormatCost(snap.Totals.LastPrintTotalCost, snap.Currency))
	case daemon.EventUpdate:
		if snap.Session.IsPrinting {
			return fmt.Sprintf("  %s %-10s printing: %s, %s so far", ts, ev.PrinterID,
				cli.FormatEnergy(snap.Current.Energy), cli.FormatCost(snap.Current.TotalCost, snap.Currency))
		}
		return fmt.Sprintf("  %s %-10s updated", ts, ev.PrinterID)
	default:
		return fmt.Sprintf("  %s %-10s %s", ts, ev.PrinterID, ev.Type)
	}
}
