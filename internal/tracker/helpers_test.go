package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/sensor"
)

const (
	energyID   = "sensor.k2_energy"
	printingID = "binary_sensor.k2_printing"
	materialID = "sensor.k2_filament_used"
	priceID    = "sensor.energy_price"
)

var errDiskFull = errors.New("disk full")

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
	loadErr error
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memKV) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

func (m *memKV) failSaves(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPrinter() config.PrinterConfig {
	return config.PrinterConfig{
		ID:               "k2",
		Name:             "K2 Plus",
		EnergySensor:     energyID,
		PrintingSensor:   printingID,
		EnergyCostSensor: priceID,
	}
}

type fixture struct {
	hub   *sensor.Hub
	kv    *memKV
	clock *clock
	acc   *Accountant
}

// newFixture builds an accountant over a hub seeded with an idle printer at
// 10 kWh and a 0.12 RSD/kWh price. The accountant is not started.
func newFixture(t *testing.T, mutate ...func(*config.PrinterConfig)) *fixture {
	t.Helper()
	cfg := testPrinter()
	for _, fn := range mutate {
		fn(&cfg)
	}
	f := &fixture{hub: sensor.NewHub(), kv: newMemKV(), clock: newClock()}
	f.setEnergy(10)
	f.setPrinting("off")
	f.hub.Set(sensor.NewState(priceID, "0.12", map[string]any{"unit_of_measurement": "RSD/kWh"}))
	f.acc = NewAccountant(cfg, f.hub, NewGateway(f.kv, cfg.ID), WithClock(f.clock.Now))
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.acc.Start(context.Background()))
}

func (f *fixture) setEnergy(v float64) {
	f.hub.Set(sensor.NewState(energyID, fmt.Sprintf("%g", v), nil))
}

func (f *fixture) setEnergyRaw(v string) {
	f.hub.Set(sensor.NewState(energyID, v, nil))
}

func (f *fixture) setMaterial(v string) {
	f.hub.Set(sensor.NewState(materialID, v, nil))
}

func (f *fixture) setPrinting(v string) {
	f.hub.Set(sensor.NewState(printingID, v, nil))
}

func (f *fixture) refresh() Snapshot {
	return f.acc.Refresh(context.Background())
}

// print runs one complete session from the current energy reading to end.
func (f *fixture) print(end float64) Snapshot {
	f.setPrinting("on")
	f.refresh()
	f.clock.Advance(time.Hour)
	f.setEnergy(end)
	f.setPrinting("off")
	return f.refresh()
}
