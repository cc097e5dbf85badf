package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/printmeter/internal/cli"
	"github.com/theirongolddev/printmeter/internal/daemon"
)

var (
	flagSensorAttrs       []string
	flagSensorUnavailable bool
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Inspect or push entity states on the daemon",
}

var sensorSetCmd = &cobra.Command{
	Use:   "set <entity> <value>",
	Short: "Report a new state for an entity",
	Example: "  printmeter sensor set sensor.k2_energy 12.4 --attr total_increased=12.4\n" +
		"  printmeter sensor set sensor.energy_price 0.12 --attr unit_of_measurement=EUR/kWh",
	Args: cobra.ExactArgs(2),
	RunE: runSensorSet,
}

var sensorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every entity state the daemon knows",
	RunE:  runSensorList,
}

func init() {
	sensorSetCmd.Flags().StringArrayVar(&flagSensorAttrs, "attr", nil, "Attribute as key=value (repeatable)")
	sensorSetCmd.Flags().BoolVar(&flagSensorUnavailable, "unavailable", false, "Mark the entity unavailable")

	sensorCmd.AddCommand(sensorSetCmd)
	sensorCmd.AddCommand(sensorListCmd)
	rootCmd.AddCommand(sensorCmd)
}

func runSensorSet(_ *cobra.Command, args []string) error {
	attrs, err := parseAttrs(flagSensorAttrs)
	if err != nil {
		return err
	}
	u := daemon.StateUpdate{EntityID: args[0], State: args[1], Attributes: attrs}
	if flagSensorUnavailable {
		avail := false
		u.Available = &avail
	}

	ctx, cancel := requestContext()
	defer cancel()
	if err := newClient().SetState(ctx, u); err != nil {
		return err
	}
	fmt.Printf("  %s = %s\n", u.EntityID, u.State)
	return nil
}

func runSensorList(_ *cobra.Command, _ []string) error {
	ctx, cancel := requestContext()
	defer cancel()
	states, err := newClient().States(ctx)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("  No states reported yet.")
		return nil
	}

	sort.Slice(states, func(i, j int) bool { return states[i].EntityID < states[j].EntityID })
	rows := make([][]string, 0, len(states))
	for _, st := range states {
		avail := "yes"
		if !st.Available {
			avail = "no"
		}
		changed := "-"
		if !st.LastChanged.IsZero() {
			changed = cli.FormatTime(&st.LastChanged)
		}
		rows = append(rows, []string{st.EntityID, st.Value, formatAttrs(st.Attributes), avail, changed})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Entity", "State", "Attributes", "Available", "Changed"},
		Rows:    rows,
	}))
	fmt.Println()
	return nil
}

// parseAttrs turns key=value pairs into attributes, keeping numbers numeric.
func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, want key=value", pair)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			attrs[k] = f
		} else {
			attrs[k] = v
		}
	}
	return attrs, nil
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}
