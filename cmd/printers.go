package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/daemon"
)

var (
	flagCostSensor  string
	flagSpoolCost   float64
	flagSpoolLength float64
)

var printersCmd = &cobra.Command{
	Use:   "printers",
	Short: "List configured printers",
	RunE:  runPrintersList,
}

var printersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a printer interactively",
	RunE:  runPrintersAdd,
}

var printersRemoveCmd = &cobra.Command{
	Use:   "remove <printer>",
	Short: "Remove a printer from the config (stored statistics are kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrintersRemove,
}

var printersCostsCmd = &cobra.Command{
	Use:   "costs <printer>",
	Short: "Change a printer's cost parameters, live if the daemon is running",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrintersCosts,
}

func init() {
	printersCostsCmd.Flags().StringVar(&flagCostSensor, "cost-sensor", "", "Energy price entity (\"none\" to clear)")
	printersCostsCmd.Flags().Float64Var(&flagSpoolCost, "spool-cost", -1, "Price of one spool")
	printersCostsCmd.Flags().Float64Var(&flagSpoolLength, "spool-length", -1, "Spool length in meters")

	printersCmd.AddCommand(printersAddCmd)
	printersCmd.AddCommand(printersRemoveCmd)
	printersCmd.AddCommand(printersCostsCmd)
	rootCmd.AddCommand(printersCmd)
}

func runPrintersList(_ *cobra.Command, _ []string) error {
	if len(appCfg.Printers) == 0 {
		fmt.Println("  No printers configured. Run `printmeter printers add`.")
		return nil
	}
	rows := make([][]string, 0, len(appCfg.Printers))
	for _, p := range appCfg.Printers {
		material := p.MaterialSensor
		if material == "" {
			material = "-"
		}
		price := p.EnergyCostSensor
		if price == "" {
			price = "-"
		}
		rows = append(rows, []string{
			p.ID, p.DisplayName(), p.EnergySensor, p.PrintingSensor, material, price,
			fmt.Sprintf("%.2f / %.0f m", p.MaterialCostPerSpool, p.SpoolLength()),
		})
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"ID", "Name", "Energy", "Printing", "Material", "Price", "Spool"},
		Rows:    rows,
	}))
	fmt.Println()
	return nil
}

func runPrintersAdd(_ *cobra.Command, _ []string) error {
	fields := newPrinterFields(config.PrinterConfig{})
	if err := huh.NewForm(fields.groups()...).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}
	p, err := fields.printer()
	if err != nil {
		return err
	}
	if _, exists := appCfg.Printer(p.ID); exists {
		return fmt.Errorf("printer %q already exists", p.ID)
	}

	appCfg.Printers = append(appCfg.Printers, p)
	if err := config.SaveTo(configPath(), appCfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("  Added %s (%s) to %s\n", p.DisplayName(), p.ID, configPath())
	fmt.Println("  Restart the daemon to start tracking it.")
	return nil
}

func runPrintersRemove(_ *cobra.Command, args []string) error {
	kept := appCfg.Printers[:0]
	found := false
	for _, p := range appCfg.Printers {
		if p.ID == args[0] {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("unknown printer %q", args[0])
	}
	appCfg.Printers = kept
	if err := config.SaveTo(configPath(), appCfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("  Removed %s from %s\n", args[0], configPath())
	return nil
}

func runPrintersCosts(cmd *cobra.Command, args []string) error {
	idx := -1
	for i, p := range appCfg.Printers {
		if p.ID == args[0] {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("unknown printer %q", args[0])
	}

	p := appCfg.Printers[idx]
	costs := p.Costs()
	if cmd.Flags().Changed("cost-sensor") {
		costs.EnergyCostSensor = flagCostSensor
		if strings.EqualFold(flagCostSensor, "none") {
			costs.EnergyCostSensor = ""
		}
	}
	if cmd.Flags().Changed("spool-cost") {
		costs.MaterialCostPerSpool = flagSpoolCost
	}
	if cmd.Flags().Changed("spool-length") {
		costs.MaterialSpoolLength = config.Float(flagSpoolLength)
	}

	updated := p.WithCosts(costs)
	if err := updated.Validate(); err != nil {
		return err
	}
	appCfg.Printers[idx] = updated
	if err := config.SaveTo(configPath(), appCfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("  Saved cost settings for %s\n", updated.DisplayName())

	ctx, cancel := requestContext()
	defer cancel()
	ps, err := newClient().SetCosts(ctx, updated.ID, daemon.CostUpdate{
		EnergyCostSensor:     costs.EnergyCostSensor,
		MaterialCostPerSpool: costs.MaterialCostPerSpool,
		MaterialSpoolLength:  costs.MaterialSpoolLength,
	})
	if err != nil {
		fmt.Println(cli.RenderMuted("  Daemon not updated: " + err.Error()))
		return nil
	}
	fmt.Printf("  Daemon now prices energy at %s/kWh and material at %s/m\n",
		cli.FormatCost(ps.Snapshot.CostPerKWh, ps.Snapshot.Currency),
		cli.FormatCost(ps.Snapshot.CostPerMeter, ps.Snapshot.Currency))
	return nil
}

// printerFields backs the huh form used by setup and printers add.
type printerFields struct {
	id, name            string
	energy, attribute   string
	printing, states    string
	material, price     string
	spoolCost, spoolLen string
}

func newPrinterFields(p config.PrinterConfig) *printerFields {
	f := &printerFields{
		id:        p.ID,
		name:      p.Name,
		energy:    p.EnergySensor,
		attribute: p.EnergyAttribute,
		printing:  p.PrintingSensor,
		states:    p.PrintingState,
		material:  p.MaterialSensor,
		price:     p.EnergyCostSensor,
		spoolLen:  strconv.FormatFloat(p.SpoolLength(), 'f', -1, 64),
	}
	if p.MaterialCostPerSpool > 0 {
		f.spoolCost = strconv.FormatFloat(p.MaterialCostPerSpool, 'f', -1, 64)
	}
	return f
}

func (f *printerFields) groups() []*huh.Group {
	return []*huh.Group{
		huh.NewGroup(
			huh.NewInput().Title("Printer name").Placeholder("K2 Plus").Value(&f.name),
			huh.NewInput().Title("Printer id").Description("Leave blank to generate one").Value(&f.id),
		),
		huh.NewGroup(
			huh.NewInput().Title("Energy sensor").Placeholder("sensor.k2_energy").
				Value(&f.energy).Validate(required("energy sensor")),
			huh.NewInput().Title("Energy attribute").
				Description("Attribute preferred over the raw state (default "+config.DefaultEnergyAttribute+")").
				Value(&f.attribute),
			huh.NewInput().Title("Printing indicator").Placeholder("binary_sensor.k2_printing").
				Value(&f.printing).Validate(required("printing indicator")),
			huh.NewInput().Title("Printing states").Description("Comma separated, default "+config.DefaultPrintingState).
				Value(&f.states),
		),
		huh.NewGroup(
			huh.NewInput().Title("Material sensor").Description("Filament used in mm, optional").Value(&f.material),
			huh.NewInput().Title("Energy price sensor").Description("Optional, unit like EUR/kWh").Value(&f.price),
			huh.NewInput().Title("Spool price").Value(&f.spoolCost).Validate(optionalNumber),
			huh.NewInput().Title("Spool length (m)").Value(&f.spoolLen).Validate(optionalNumber),
		),
	}
}

func (f *printerFields) printer() (config.PrinterConfig, error) {
	id := strings.TrimSpace(f.id)
	if id == "" {
		id = "printer-" + uuid.New().String()[:8]
	}
	p := config.PrinterConfig{
		ID:               id,
		Name:             strings.TrimSpace(f.name),
		EnergySensor:     strings.TrimSpace(f.energy),
		EnergyAttribute:  strings.TrimSpace(f.attribute),
		PrintingSensor:   strings.TrimSpace(f.printing),
		PrintingState:    strings.TrimSpace(f.states),
		MaterialSensor:   strings.TrimSpace(f.material),
		EnergyCostSensor: strings.TrimSpace(f.price),
	}
	if v := strings.TrimSpace(f.spoolCost); v != "" {
		p.MaterialCostPerSpool, _ = strconv.ParseFloat(v, 64)
	}
	if v := strings.TrimSpace(f.spoolLen); v != "" {
		length, _ := strconv.ParseFloat(v, 64)
		if length != config.DefaultSpoolLength {
			p.MaterialSpoolLength = config.Float(length)
		}
	}
	return p, p.Validate()
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func optionalNumber(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.New("must be a number")
	}
	if v < 0 {
		return errors.New("must be >= 0")
	}
	return nil
}
