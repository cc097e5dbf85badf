package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theirongolddev/printmeter/internal/sensor"
)

func TestReadEnergy(t *testing.T) {
	tests := []struct {
		name  string
		state sensor.State
		attr  string
		want  float64
	}{
		{"plain value", sensor.NewState(energyID, "12.4", nil), "total_increased", 12.4},
		{"attribute preferred", sensor.NewState(energyID, "12.4", map[string]any{"total_increased": 12.9}), "total_increased", 12.9},
		{"string attribute", sensor.NewState(energyID, "1", map[string]any{"total_increased": "7.5"}), "total_increased", 7.5},
		{"json number attribute", sensor.NewState(energyID, "1", map[string]any{"total_increased": json.Number("2.25")}), "total_increased", 2.25},
		{"int attribute", sensor.NewState(energyID, "1", map[string]any{"total_increased": 3}), "total_increased", 3},
		{"bad attribute falls back", sensor.NewState(energyID, "4", map[string]any{"total_increased": "n/a"}), "total_increased", 4},
		{"no attribute configured", sensor.NewState(energyID, "4", map[string]any{"total_increased": 9.0}), "", 4},
		{"garbage is zero", sensor.NewState(energyID, "twelve", nil), "total_increased", 0},
		{"nan is zero", sensor.NewState(energyID, "NaN", nil), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadEnergy(tt.state, tt.attr))
		})
	}
}

func TestReadMaterial(t *testing.T) {
	assert.Equal(t, 1520.5, ReadMaterial(sensor.NewState(materialID, " 1520.5 ", nil)))
	assert.Zero(t, ReadMaterial(sensor.NewState(materialID, "lots", nil)))
}

func TestCurrencyFromUnit(t *testing.T) {
	tests := []struct {
		unit string
		want string
	}{
		{"RSD/kWh", "RSD"},
		{"eur/kWh", "EUR"},
		{" € / kWh", "€"},
		{"EUR", "EUR"},
		{"", DefaultCurrency},
		{"/kWh", DefaultCurrency},
		{"currency units", DefaultCurrency},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CurrencyFromUnit(tt.unit), tt.unit)
	}
}

func TestCurrencyAndPriceFromSensor(t *testing.T) {
	hub := sensor.NewHub()
	hub.Set(sensor.NewState(priceID, "0.15", map[string]any{"unit_of_measurement": "RSD/kWh"}))
	hub.Set(sensor.NewState("sensor.no_unit", "0.2", nil))
	hub.Set(sensor.NewState("sensor.down", "unavailable", map[string]any{"unit_of_measurement": "EUR/kWh"}))

	assert.Equal(t, "RSD", Currency(hub, priceID))
	assert.Equal(t, 0.15, CostPerKWh(hub, priceID))

	assert.Equal(t, DefaultCurrency, Currency(hub, ""))
	assert.Zero(t, CostPerKWh(hub, ""))

	assert.Equal(t, DefaultCurrency, Currency(hub, "sensor.no_unit"))
	assert.Equal(t, DefaultCurrency, Currency(hub, "sensor.missing"))
	assert.Zero(t, CostPerKWh(hub, "sensor.missing"))

	assert.Zero(t, CostPerKWh(hub, "sensor.down"))
	assert.Equal(t, "EUR", Currency(hub, "sensor.down"))
}
