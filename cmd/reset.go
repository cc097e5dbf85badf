package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/store"
)

var flagResetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset <printer>",
	Short: "Zero a printer's accumulated statistics",
	Long: "Zero a printer's totals and last-print values. A print in progress keeps\n" +
		"running and is still accounted when it finishes.",
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&flagResetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(_ *cobra.Command, args []string) error {
	id := args[0]

	if !flagResetYes {
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Reset all statistics for %q?", id)).
			Description("Totals, print count and last-print values are lost.").
			Affirmative("Reset").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if !confirmed {
			fmt.Println("  Cancelled.")
			return nil
		}
	}

	ctx, cancel := requestContext()
	defer cancel()

	if flagOffline {
		if _, ok := appCfg.Printer(id); !ok {
			return fmt.Errorf("unknown printer %q", id)
		}
		if err := requireDaemonStopped(pidFile()); err != nil {
			return err
		}
		kv, err := store.Open(appCfg.StorePath())
		if err != nil {
			return err
		}
		defer func() { _ = kv.Close() }()
		if err := offlineReset(ctx, kv, id); err != nil {
			return err
		}
		fmt.Printf("  Reset %s in %s\n", id, appCfg.StorePath())
		return nil
	}

	ps, err := newClient().Reset(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("  Reset %s (%s)\n", ps.Name, ps.ID)
	if ps.Snapshot.Session.IsPrinting {
		fmt.Println(cli.RenderMuted("  A print is in progress and will be counted when it finishes."))
	}
	return nil
}
