package projection

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/printmeter/internal/tracker"
)

func sampleSnapshot() tracker.Snapshot {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	startEnergy := 13.5
	return tracker.Snapshot{
		PrinterID: "k2",
		Loaded:    true,
		Currency:  "RSD",
		Totals: tracker.Totals{
			TotalEnergy:         3.5,
			PrintCount:          1,
			TotalEnergyCost:     0.42,
			TotalCost:           0.42,
			LastPrintEnergy:     3.5,
			LastPrintEnergyCost: 0.42,
			LastPrintTotalCost:  0.42,
			LastPrintStart:      &start,
			LastPrintEnd:        &end,
		},
		Session:    tracker.Session{IsPrinting: true, StartEnergy: &startEnergy, StartedAt: &end},
		Current:    tracker.CurrentSession{Energy: 0.5, EnergyCost: 0.06, TotalCost: 0.06},
		CostPerKWh: 0.12,
	}
}

func TestProjectBeforeFirstRefresh(t *testing.T) {
	metrics := Project(tracker.Snapshot{})
	require.NotEmpty(t, metrics)
	for _, m := range metrics {
		assert.Zero(t, m.Value, m.Key)
	}
	start, ok := Lookup(metrics, KeyLastPrintStart)
	require.True(t, ok)
	assert.Empty(t, start.Text)

	cur, ok := Lookup(metrics, KeyCurrency)
	require.True(t, ok)
	assert.Equal(t, tracker.DefaultCurrency, cur.Text)
}

func TestProjectExposesEveryMetric(t *testing.T) {
	metrics := Project(sampleSnapshot())
	for _, key := range []string{
		KeyTotalEnergy, KeyPrintCount, KeyLastPrintEnergy, KeyLastPrintStart, KeyLastPrintEnd,
		KeyTotalMaterial, KeyLastPrintMaterial, KeyTotalCost, KeyTotalEnergyCost, KeyTotalMaterialCost,
		KeyLastPrintTotalCost, KeyLastPrintEnergyCost, KeyLastPrintMaterialCost,
		KeyCurrentEnergy, KeyCurrentMaterial, KeyCurrentEnergyCost, KeyCurrentMaterialCost,
		KeyCurrentTotalCost, KeyCurrency,
	} {
		_, ok := Lookup(metrics, key)
		assert.True(t, ok, key)
	}
	_, ok := Lookup(metrics, "nope")
	assert.False(t, ok)
}

func TestProjectValuesAndAttributes(t *testing.T) {
	metrics := Project(sampleSnapshot())

	energy, _ := Lookup(metrics, KeyTotalEnergy)
	assert.Equal(t, 3.5, energy.Value)
	assert.Equal(t, UnitKWh, energy.Unit)
	assert.Equal(t, 1, energy.Attributes["print_count"])

	cost, _ := Lookup(metrics, KeyTotalCost)
	assert.Equal(t, "RSD", cost.Unit)

	count, _ := Lookup(metrics, KeyPrintCount)
	assert.Equal(t, 1.0, count.Value)
	assert.Equal(t, true, count.Attributes["active_print"])
	assert.Equal(t, 13.5, count.Attributes["start_energy"])

	end, _ := Lookup(metrics, KeyLastPrintEnd)
	assert.Equal(t, "2026-03-14T11:00:00Z", end.Text)
	assert.Equal(t, float64(time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC).Unix()), end.Value)

	last, _ := Lookup(metrics, KeyLastPrintEnergy)
	assert.Equal(t, "2026-03-14T09:00:00Z", last.Attributes["start_time"])

	current, _ := Lookup(metrics, KeyCurrentEnergy)
	assert.Equal(t, 0.5, current.Value)
}

type staticSource []tracker.Snapshot

func (s staticSource) Snapshots() []tracker.Snapshot { return s }

func TestCollectorExportsGauges(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(staticSource{sampleSnapshot()})))

	expected := `
# HELP printmeter_total_energy Energy in kWh: total_energy
# TYPE printmeter_total_energy gauge
printmeter_total_energy{currency="RSD",printer="k2"} 3.5
# HELP printmeter_printing 1 while a print session is active
# TYPE printmeter_printing gauge
printmeter_printing{printer="k2"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"printmeter_total_energy", "printmeter_printing")
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 19, n, "18 numeric metrics plus the printing flag")
}
