// Package cmd implements the printmeter CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/store"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	fmt.Printf("  Config file: %s\n", configPath())
	if _, err := os.Stat(configPath()); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Log level:     %s\n", cfg.General.LogLevel)
	fmt.Printf("    Notifications: %v\n", cfg.General.Notify)
	if cfg.General.StatesFile != "" {
		fmt.Printf("    States file:   %s\n", cfg.General.StatesFile)
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:       %s\n", daemonAddr())
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuffer)
	fmt.Printf("    Store:         %s\n", cfg.StorePath())

	if entries, err := storeEntries(context.Background(), cfg.StorePath()); err != nil {
		fmt.Printf("    Store problem: %v\n", err)
	} else {
		for _, e := range entries {
			fmt.Printf("      %-32s %-24s %s\n", e.Key, describeStoreKey(e.Key, cfg.Printers),
				cli.FormatTime(&e.UpdatedAt))
		}
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Printf("  [Printers] (%d)\n", len(cfg.Printers))
	for _, p := range cfg.Printers {
		fmt.Printf("    %s (%s)\n", p.DisplayName(), p.ID)
		fmt.Printf("      energy:   %s [%s]\n", p.EnergySensor, p.Attribute())
		fmt.Printf("      printing: %s %v\n", p.PrintingSensor, p.PrintingStates())
		if p.MaterialSensor != "" {
			fmt.Printf("      material: %s\n", p.MaterialSensor)
		}
		if p.EnergyCostSensor != "" {
			fmt.Printf("      price:    %s\n", p.EnergyCostSensor)
		}
		fmt.Printf("      spool:    %.2f for %.0f m (%.4f per m)\n",
			p.MaterialCostPerSpool, p.SpoolLength(), p.CostPerMeter())
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Printf("  Config problems:\n    %v\n", err)
	}
	fmt.Println()

	fmt.Printf("  Environment overrides: %s, %s, %s, %s\n",
		config.EnvAddr, config.EnvStorePath, config.EnvLogLevel, config.EnvStatesFile)
	fmt.Println("  Run `printmeter setup` to reconfigure.")
	return nil
}

// storeEntries lists the records in the store at path without creating it.
func storeEntries(ctx context.Context, path string) ([]store.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	kv, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = kv.Close() }()
	return kv.Keys(ctx)
}

func describeStoreKey(key string, printers []config.PrinterConfig) string {
	switch key {
	case tracker.LegacyKey:
		return "legacy record"
	case daemon.StatesKey:
		return "last sensor states"
	}
	for _, p := range printers {
		if key == tracker.StorageKey(p.ID) {
			return "printer " + p.DisplayName()
		}
	}
	return "not configured"
}
