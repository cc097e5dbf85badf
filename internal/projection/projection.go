// Package projection renders accountant snapshots as presentation metrics.
// Nothing here mutates accounting state.
package projection

import (
	"time"

	"github.com/theirongolddev/printmeter/internal/tracker"
)

// Units.
const (
	UnitKWh       = "kWh"
	UnitMM        = "mm"
	UnitTimestamp = "timestamp"
)

// Metric keys.
const (
	KeyTotalEnergy           = "total_energy"
	KeyPrintCount            = "print_count"
	KeyLastPrintEnergy       = "last_print_energy"
	KeyLastPrintStart        = "last_print_start"
	KeyLastPrintEnd          = "last_print_end"
	KeyTotalMaterial         = "total_material"
	KeyLastPrintMaterial     = "last_print_material"
	KeyTotalCost             = "total_cost"
	KeyTotalEnergyCost       = "total_energy_cost"
	KeyTotalMaterialCost     = "total_material_cost"
	KeyLastPrintTotalCost    = "last_print_total_cost"
	KeyLastPrintEnergyCost   = "last_print_energy_cost"
	KeyLastPrintMaterialCost = "last_print_material_cost"
	KeyCurrentEnergy         = "current_session_energy"
	KeyCurrentMaterial       = "current_session_material"
	KeyCurrentEnergyCost     = "current_session_energy_cost"
	KeyCurrentMaterialCost   = "current_session_material_cost"
	KeyCurrentTotalCost      = "current_session_total_cost"
	KeyCurrency              = "currency"
)

// Metric is one presentation value. Timestamps carry Unix seconds in Value
// (0 when absent) and RFC 3339 in Text; the currency metric carries its code
// in Text.
type Metric struct {
	Key        string         `json:"key"`
	Value      float64        `json:"value"`
	Text       string         `json:"text,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Numeric reports whether the metric's Value is meaningful as a gauge.
func (m Metric) Numeric() bool { return m.Key != KeyCurrency }

// Project renders every metric for snap. A snapshot that has not been
// loaded yet yields zero values and empty timestamps.
func Project(snap tracker.Snapshot) []Metric {
	t := snap.Totals
	cur := snap.Currency
	if cur == "" {
		cur = tracker.DefaultCurrency
	}

	session := sessionAttrs(snap)
	lastPrint := merge(session, map[string]any{
		"start_time": formatTime(t.LastPrintStart),
		"end_time":   formatTime(t.LastPrintEnd),
		"energy_kwh": t.LastPrintEnergy,
	})

	metrics := []Metric{
		{Key: KeyTotalEnergy, Value: t.TotalEnergy, Unit: UnitKWh, Attributes: map[string]any{
			"print_count":       t.PrintCount,
			"total_energy_cost": t.TotalEnergyCost,
		}},
		{Key: KeyPrintCount, Value: float64(t.PrintCount), Attributes: merge(session, map[string]any{
			"print_count": t.PrintCount,
		})},
		{Key: KeyLastPrintEnergy, Value: t.LastPrintEnergy, Unit: UnitKWh, Attributes: lastPrint},
		timeMetric(KeyLastPrintStart, t.LastPrintStart),
		timeMetric(KeyLastPrintEnd, t.LastPrintEnd),
		{Key: KeyTotalMaterial, Value: t.TotalMaterial, Unit: UnitMM, Attributes: map[string]any{
			"print_count":         t.PrintCount,
			"total_material_cost": t.TotalMaterialCost,
		}},
		{Key: KeyLastPrintMaterial, Value: t.LastPrintMaterial, Unit: UnitMM, Attributes: map[string]any{
			"last_print_material_cost": t.LastPrintMaterialCost,
		}},
		{Key: KeyTotalCost, Value: t.TotalCost, Unit: cur, Attributes: map[string]any{
			"total_energy_cost":   t.TotalEnergyCost,
			"total_material_cost": t.TotalMaterialCost,
			"print_count":         t.PrintCount,
		}},
		{Key: KeyTotalEnergyCost, Value: t.TotalEnergyCost, Unit: cur, Attributes: map[string]any{
			"total_energy": t.TotalEnergy,
			"cost_per_kwh": snap.CostPerKWh,
		}},
		{Key: KeyTotalMaterialCost, Value: t.TotalMaterialCost, Unit: cur, Attributes: map[string]any{
			"total_material": t.TotalMaterial,
			"cost_per_meter": snap.CostPerMeter,
		}},
		{Key: KeyLastPrintTotalCost, Value: t.LastPrintTotalCost, Unit: cur, Attributes: map[string]any{
			"last_print_energy_cost":   t.LastPrintEnergyCost,
			"last_print_material_cost": t.LastPrintMaterialCost,
		}},
		{Key: KeyLastPrintEnergyCost, Value: t.LastPrintEnergyCost, Unit: cur, Attributes: map[string]any{
			"last_print_energy": t.LastPrintEnergy,
		}},
		{Key: KeyLastPrintMaterialCost, Value: t.LastPrintMaterialCost, Unit: cur, Attributes: map[string]any{
			"last_print_material": t.LastPrintMaterial,
		}},
		{Key: KeyCurrentEnergy, Value: snap.Current.Energy, Unit: UnitKWh, Attributes: session},
		{Key: KeyCurrentMaterial, Value: snap.Current.Material, Unit: UnitMM, Attributes: session},
		{Key: KeyCurrentEnergyCost, Value: snap.Current.EnergyCost, Unit: cur, Attributes: map[string]any{
			"cost_per_kwh": snap.CostPerKWh,
		}},
		{Key: KeyCurrentMaterialCost, Value: snap.Current.MaterialCost, Unit: cur, Attributes: map[string]any{
			"cost_per_meter": snap.CostPerMeter,
		}},
		{Key: KeyCurrentTotalCost, Value: snap.Current.TotalCost, Unit: cur, Attributes: session},
		{Key: KeyCurrency, Text: cur},
	}
	return metrics
}

// Lookup finds a metric by key.
func Lookup(metrics []Metric, key string) (Metric, bool) {
	for _, m := range metrics {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

func sessionAttrs(snap tracker.Snapshot) map[string]any {
	attrs := map[string]any{"active_print": snap.Session.IsPrinting}
	if snap.Session.IsPrinting {
		if snap.Session.StartEnergy != nil {
			attrs["start_energy"] = *snap.Session.StartEnergy
		}
		if snap.Session.StartMaterial != nil {
			attrs["start_material"] = *snap.Session.StartMaterial
		}
		if snap.Session.StartedAt != nil {
			attrs["start_time"] = snap.Session.StartedAt.Format(time.RFC3339)
		}
	}
	return attrs
}

func timeMetric(key string, t *time.Time) Metric {
	m := Metric{Key: key, Unit: UnitTimestamp}
	if t != nil {
		m.Value = float64(t.Unix())
		m.Text = t.Format(time.RFC3339)
	}
	return m
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
