package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	fmt.Println()
	fmt.Println("  Welcome to printmeter!")
	if len(cfg.Printers) > 0 {
		fmt.Printf("  %d printer(s) already configured; this edits the first one.\n", len(cfg.Printers))
	}
	fmt.Println()

	var first config.PrinterConfig
	if len(cfg.Printers) > 0 {
		first = cfg.Printers[0]
	}
	fields := newPrinterFields(first)

	themeOpts := huh.NewOptions(theme.Names()...)

	addr := daemonAddr()
	notify := cfg.General.Notify
	themeName := cfg.Appearance.Theme

	groups := fields.groups()
	groups = append(groups, huh.NewGroup(
		huh.NewInput().Title("Daemon address").Value(&addr).Validate(required("address")),
		huh.NewConfirm().Title("Desktop notification when a print finishes?").Value(&notify),
		huh.NewSelect[string]().Title("Color theme").Options(themeOpts...).Value(&themeName),
	))

	if err := huh.NewForm(groups...).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	p, err := fields.printer()
	if err != nil {
		return err
	}
	if len(cfg.Printers) > 0 {
		cfg.Printers[0] = p
	} else {
		cfg.Printers = []config.PrinterConfig{p}
	}
	cfg.Daemon.Addr = addr
	cfg.General.Notify = notify
	cfg.Appearance.Theme = themeName

	if err := config.SaveTo(configPath(), cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", configPath())
	fmt.Println("  Start tracking with `printmeter daemon --detach`.")
	fmt.Println("  Run `printmeter setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}
