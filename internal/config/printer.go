package config

import (
	"errors"
	"fmt"
	"strings"
)

// Printer defaults.
const (
	DefaultPrintingState   = "on"
	DefaultEnergyAttribute = "total_increased"
	DefaultSpoolLength     = 330.0
)

// ErrInvalidPrinter is returned by PrinterConfig.Validate.
var ErrInvalidPrinter = errors.New("invalid printer config")

// PrinterConfig describes one tracked printer and the entities it reads.
type PrinterConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name,omitempty"`

	EnergySensor    string `toml:"energy_sensor"`
	PrintingSensor  string `toml:"printing_sensor"`
	PrintingState   string `toml:"printing_state,omitempty"`   // comma separated, case-insensitive
	EnergyAttribute string `toml:"energy_attribute,omitempty"` // "" uses DefaultEnergyAttribute

	MaterialSensor   string `toml:"material_sensor,omitempty"`
	EnergyCostSensor string `toml:"energy_cost_sensor,omitempty"`

	MaterialCostPerSpool float64  `toml:"material_cost_per_spool,omitempty"`
	MaterialSpoolLength  *float64 `toml:"material_spool_length,omitempty"` // meters
}

// Validate checks required entity references and cost parameters.
func (p PrinterConfig) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPrinter)
	}
	if strings.TrimSpace(p.EnergySensor) == "" {
		return fmt.Errorf("%w: printer %q: energy_sensor is required", ErrInvalidPrinter, p.ID)
	}
	if strings.TrimSpace(p.PrintingSensor) == "" {
		return fmt.Errorf("%w: printer %q: printing_sensor is required", ErrInvalidPrinter, p.ID)
	}
	if p.MaterialCostPerSpool < 0 {
		return fmt.Errorf("%w: printer %q: material_cost_per_spool must be >= 0, got %f",
			ErrInvalidPrinter, p.ID, p.MaterialCostPerSpool)
	}
	if p.SpoolLength() < 0 {
		return fmt.Errorf("%w: printer %q: material_spool_length must be >= 0, got %f",
			ErrInvalidPrinter, p.ID, p.SpoolLength())
	}
	return nil
}

// DisplayName returns Name, or ID when no name is set.
func (p PrinterConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// PrintingStates returns the lower-cased set of indicator values that mean
// "printing". An empty or blank setting yields the default.
func (p PrinterConfig) PrintingStates() []string {
	var states []string
	for _, s := range strings.Split(p.PrintingState, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			states = append(states, s)
		}
	}
	if len(states) == 0 {
		return []string{DefaultPrintingState}
	}
	return states
}

// Attribute returns the energy attribute name to prefer over the raw state.
func (p PrinterConfig) Attribute() string {
	if p.EnergyAttribute == "" {
		return DefaultEnergyAttribute
	}
	return p.EnergyAttribute
}

// SpoolLength returns the configured spool length in meters.
func (p PrinterConfig) SpoolLength() float64 {
	if p.MaterialSpoolLength == nil {
		return DefaultSpoolLength
	}
	return *p.MaterialSpoolLength
}

// CostPerMeter derives the material price per meter from the spool price.
func (p PrinterConfig) CostPerMeter() float64 {
	length := p.SpoolLength()
	if length <= 0 {
		return 0
	}
	return p.MaterialCostPerSpool / length
}

// TrackedEntities lists every entity whose changes should trigger a refresh.
func (p PrinterConfig) TrackedEntities() []string {
	ids := []string{p.EnergySensor, p.PrintingSensor}
	if p.MaterialSensor != "" {
		ids = append(ids, p.MaterialSensor)
	}
	if p.EnergyCostSensor != "" {
		ids = append(ids, p.EnergyCostSensor)
	}
	return ids
}

// CostParams is the subset of PrinterConfig that may change while a print
// is in progress.
type CostParams struct {
	EnergyCostSensor     string
	MaterialCostPerSpool float64
	MaterialSpoolLength  *float64
}

// Costs extracts the cost parameters.
func (p PrinterConfig) Costs() CostParams {
	return CostParams{
		EnergyCostSensor:     p.EnergyCostSensor,
		MaterialCostPerSpool: p.MaterialCostPerSpool,
		MaterialSpoolLength:  p.MaterialSpoolLength,
	}
}

// WithCosts returns a copy of p with its cost parameters replaced.
func (p PrinterConfig) WithCosts(c CostParams) PrinterConfig {
	p.EnergyCostSensor = strings.TrimSpace(c.EnergyCostSensor)
	p.MaterialCostPerSpool = c.MaterialCostPerSpool
	p.MaterialSpoolLength = c.MaterialSpoolLength
	return p
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 {
	return &v
}
