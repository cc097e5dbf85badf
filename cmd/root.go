package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
	"github.com/theirongolddev/printmeter/internal/logging"
)

var (
	flagConfig   string
	flagAddr     string
	flagLogLevel string
	flagQuiet    bool
	flagOffline  bool
)

// appCfg is populated by the root PersistentPreRunE before any command runs.
var appCfg config.Config

var rootCmd = &cobra.Command{
	Use:   "printmeter",
	Short: "3D printer energy, material and cost accounting",
	Long: "Track the energy, filament and money each 3D print consumes.\n" +
		"Run `printmeter daemon` next to your sensors and query it with `printmeter status`.",
	SilenceUsage:      true,
	PersistentPreRunE: setupCommon,
	RunE:              runStatus,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "Daemon address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Read the store directly instead of asking the daemon")
}

func setupCommon(_ *cobra.Command, _ []string) error {
	config.LoadDotEnv()

	path := flagConfig
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Daemon.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.General.LogLevel = flagLogLevel
	}
	appCfg = cfg

	logging.Setup(cfg.General.LogLevel, os.Stderr)
	return nil
}

// configPath is where setup and printers commands write back to.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.Path()
}

func daemonAddr() string {
	if appCfg.Daemon.Addr != "" {
		return appCfg.Daemon.Addr
	}
	return config.DefaultAddr
}

func newClient() *daemon.Client {
	return daemon.NewClient(daemonAddr())
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func progress(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, "  "+format+"\n", args...)
}
