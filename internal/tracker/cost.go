package tracker

import (
	"strings"

	"github.com/theirongolddev/printmeter/internal/sensor"
)

const unitAttribute = "unit_of_measurement"

// CostPerKWh reads the energy price from the cost sensor. An unset,
// missing, unavailable or non-numeric sensor yields 0.
func CostPerKWh(r sensor.Reader, entityID string) float64 {
	if entityID == "" {
		return 0
	}
	st, ok := r.Get(entityID)
	if !ok || !st.Available {
		return 0
	}
	v, ok := parseFloat(st.Value)
	if !ok {
		return 0
	}
	return v
}

// Currency derives the currency code from the cost sensor's unit.
// "RSD/kWh" yields "RSD"; a bare unit of at most ten characters is used as
// is; anything else falls back to DefaultCurrency.
func Currency(r sensor.Reader, entityID string) string {
	if entityID == "" {
		return DefaultCurrency
	}
	st, ok := r.Get(entityID)
	if !ok {
		return DefaultCurrency
	}
	raw, ok := st.Attribute(unitAttribute)
	if !ok {
		return DefaultCurrency
	}
	unit, ok := raw.(string)
	if !ok {
		return DefaultCurrency
	}
	return CurrencyFromUnit(unit)
}

// CurrencyFromUnit applies the unit-to-currency rule to a unit string.
func CurrencyFromUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return DefaultCurrency
	}
	if left, _, found := strings.Cut(unit, "/"); found {
		left = strings.ToUpper(strings.TrimSpace(left))
		if left == "" {
			return DefaultCurrency
		}
		return left
	}
	if len(unit) <= 10 {
		return unit
	}
	return DefaultCurrency
}

func isPrinting(value string, states []string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, s := range states {
		if v == s {
			return true
		}
	}
	return false
}
