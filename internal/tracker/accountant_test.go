package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/sensor"
)

func TestCompletedPrintIsCredited(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.setPrinting("on")
	snap := f.refresh()
	require.True(t, snap.Session.IsPrinting)
	require.NotNil(t, snap.Session.StartEnergy)
	assert.Equal(t, 10.0, *snap.Session.StartEnergy)
	require.NotNil(t, snap.Totals.LastPrintStart)

	f.setEnergy(11.5)
	snap = f.refresh()
	assert.InDelta(t, 1.5, snap.Current.Energy, 1e-9)
	assert.InDelta(t, 0.18, snap.Current.EnergyCost, 1e-9)

	f.clock.Advance(2 * time.Hour)
	f.setEnergy(13.5)
	f.setPrinting("off")
	snap = f.refresh()

	assert.False(t, snap.Session.IsPrinting)
	assert.Nil(t, snap.Session.StartEnergy)
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.InDelta(t, 3.5, snap.Totals.LastPrintEnergy, 1e-9)
	assert.InDelta(t, 3.5, snap.Totals.TotalEnergy, 1e-9)
	assert.InDelta(t, 0.42, snap.Totals.LastPrintEnergyCost, 1e-9)
	assert.InDelta(t, 0.42, snap.Totals.TotalCost, 1e-9)
	assert.InDelta(t, 0.42, snap.Totals.LastPrintTotalCost, 1e-9)
	assert.Equal(t, "RSD", snap.Currency)
	require.NotNil(t, snap.Totals.LastPrintEnd)
	assert.Equal(t, 2*time.Hour, snap.Totals.LastPrintEnd.Sub(*snap.Totals.LastPrintStart))

	rec, err := NewGateway(f.kv, "k2").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Totals.PrintCount, rec.Totals.PrintCount)
	assert.InDelta(t, 3.5, rec.Totals.TotalEnergy, 1e-9)
	assert.False(t, rec.Session.IsPrinting)
}

func TestNonPositiveDeltaDiscardsSession(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	before := f.acc.Snapshot().Totals

	var events []EventType
	f.acc.OnEvent(func(e Event) { events = append(events, e.Type) })

	snap := f.print(9.0)
	assert.False(t, snap.Session.IsPrinting)
	assert.Equal(t, before.PrintCount, snap.Totals.PrintCount)
	assert.Equal(t, before.TotalEnergy, snap.Totals.TotalEnergy)
	assert.Equal(t, before.TotalCost, snap.Totals.TotalCost)
	assert.Contains(t, events, EventPrintDiscarded)
	assert.NotContains(t, events, EventPrintFinished)

	f.setEnergy(9.0)
	snap = f.print(9.0)
	assert.Equal(t, 0, snap.Totals.PrintCount, "zero delta is discarded too")
}

func TestDiscardKeepsStartStampOfDiscardedSession(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	done := f.print(11)
	end := *done.Totals.LastPrintEnd

	f.clock.Advance(5 * time.Hour)
	started := f.clock.Now()
	snap := f.print(11)

	require.NotNil(t, snap.Totals.LastPrintStart)
	assert.Equal(t, started, *snap.Totals.LastPrintStart, "start is stamped when the session opens")
	assert.Equal(t, end, *snap.Totals.LastPrintEnd, "a discarded session never stamps an end")
	assert.Equal(t, 1, snap.Totals.PrintCount)
}

func TestMaterialCost(t *testing.T) {
	f := newFixture(t, func(p *config.PrinterConfig) {
		p.MaterialSensor = materialID
		p.MaterialCostPerSpool = 20
	})
	f.setMaterial("500")
	f.start(t)

	f.setPrinting("on")
	f.refresh()
	f.setMaterial("1000")
	snap := f.refresh()
	assert.InDelta(t, 500, snap.Current.Material, 1e-9)

	f.setMaterial("1500")
	f.setEnergy(11)
	f.setPrinting("off")
	snap = f.refresh()

	assert.InDelta(t, 1000, snap.Totals.LastPrintMaterial, 1e-9)
	assert.InDelta(t, 0.0606, snap.Totals.LastPrintMaterialCost, 1e-4)
	assert.InDelta(t, 0.12+20.0/330, snap.Totals.LastPrintTotalCost, 1e-9)
	assert.InDelta(t, snap.Totals.TotalEnergyCost+snap.Totals.TotalMaterialCost, snap.Totals.TotalCost, 1e-9)
}

func TestMaterialUnavailableAtStartIsNotCounted(t *testing.T) {
	f := newFixture(t, func(p *config.PrinterConfig) {
		p.MaterialSensor = materialID
		p.MaterialCostPerSpool = 20
	})
	f.setMaterial("unavailable")
	f.start(t)

	f.setPrinting("on")
	snap := f.refresh()
	require.True(t, snap.Session.IsPrinting)
	assert.Nil(t, snap.Session.StartMaterial)

	f.setMaterial("1500")
	f.setEnergy(12)
	f.setPrinting("off")
	snap = f.refresh()
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.Zero(t, snap.Totals.LastPrintMaterial)
	assert.Zero(t, snap.Totals.LastPrintMaterialCost)
}

func TestNegativeMaterialDeltaZeroesMaterialFields(t *testing.T) {
	f := newFixture(t, func(p *config.PrinterConfig) {
		p.MaterialSensor = materialID
		p.MaterialCostPerSpool = 20
	})
	f.setMaterial("800")
	f.start(t)

	f.setPrinting("on")
	f.refresh()
	f.setMaterial("100")
	f.setEnergy(11)
	f.setPrinting("off")
	snap := f.refresh()
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.Zero(t, snap.Totals.LastPrintMaterial)
	assert.Zero(t, snap.Totals.TotalMaterial)
	assert.InDelta(t, 0.12, snap.Totals.LastPrintTotalCost, 1e-9)
}

func TestEnergyUnavailableMidPrintHoldsSession(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.setPrinting("on")
	f.refresh()

	f.setEnergyRaw("unavailable")
	f.setPrinting("off")
	snap := f.refresh()
	require.True(t, snap.Session.IsPrinting, "stop is suppressed without an energy reading")
	assert.Equal(t, 10.0, *snap.Session.StartEnergy)
	assert.Nil(t, snap.CurrentEnergy)

	f.setEnergy(12)
	snap = f.refresh()
	assert.False(t, snap.Session.IsPrinting)
	assert.InDelta(t, 2.0, snap.Totals.LastPrintEnergy, 1e-9)
}

func TestStartSuppressedWithoutEnergy(t *testing.T) {
	f := newFixture(t)
	f.setEnergyRaw("unknown")
	f.start(t)

	f.setPrinting("on")
	snap := f.refresh()
	assert.False(t, snap.Session.IsPrinting)

	f.setEnergy(10)
	snap = f.refresh()
	assert.True(t, snap.Session.IsPrinting)
}

func TestPrintingStatesAreCaseInsensitive(t *testing.T) {
	f := newFixture(t, func(p *config.PrinterConfig) { p.PrintingState = "Printing, Heating" })
	f.start(t)

	f.setPrinting("PRINTING")
	assert.True(t, f.refresh().Session.IsPrinting)
	f.setPrinting("heating")
	assert.True(t, f.refresh().Session.IsPrinting)
	f.setEnergy(10.5)
	f.setPrinting("idle")
	assert.False(t, f.refresh().Session.IsPrinting)
}

func TestEnergyAttributeWins(t *testing.T) {
	f := newFixture(t)
	f.hub.Set(sensor.NewState(energyID, "10", map[string]any{"total_increased": 100.0}))
	f.start(t)

	f.setPrinting("on")
	snap := f.refresh()
	assert.Equal(t, 100.0, *snap.Session.StartEnergy)
}

func TestTotalsNeverDecrease(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	readings := []float64{12, 11, 15, 15, 20.5}
	prev := f.acc.Snapshot().Totals
	for _, end := range readings {
		snap := f.print(end)
		cur := snap.Totals
		assert.GreaterOrEqual(t, cur.PrintCount, prev.PrintCount)
		assert.GreaterOrEqual(t, cur.TotalEnergy, prev.TotalEnergy)
		assert.GreaterOrEqual(t, cur.TotalCost, prev.TotalCost)
		prev = cur
	}
	assert.Equal(t, 3, prev.PrintCount)
	assert.InDelta(t, 2+4+5.5, prev.TotalEnergy, 1e-9)
}

func TestNoCostSensorMeansZeroCostAndDefaultCurrency(t *testing.T) {
	f := newFixture(t, func(p *config.PrinterConfig) { p.EnergyCostSensor = "" })
	f.start(t)

	snap := f.print(15)
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.Zero(t, snap.Totals.TotalCost)
	assert.Equal(t, DefaultCurrency, snap.Currency)
}

func TestSaveFailureKeepsInMemoryState(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.kv.failSaves(errDiskFull)

	snap := f.print(12)
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.Contains(t, snap.LastError, "disk full")

	f.kv.failSaves(nil)
	f.setEnergy(12)
	snap = f.print(13)
	assert.Equal(t, 2, snap.Totals.PrintCount)
	assert.Empty(t, snap.LastError)
}

func TestResetIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.print(14)

	ctx := context.Background()
	require.NoError(t, f.acc.Reset(ctx))
	first := f.acc.Snapshot()
	require.NoError(t, f.acc.Reset(ctx))
	second := f.acc.Snapshot()

	assert.Equal(t, Totals{}, first.Totals)
	assert.Equal(t, first.Totals, second.Totals)
	assert.Equal(t, CurrentSession{}, second.Current)

	rec, err := NewGateway(f.kv, "k2").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, rec.Totals)
}

func TestResetSurvivesRestartWithLegacyRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.kv.data[LegacyKey] = []byte(`{"total_energy": 7, "print_count": 3}`)
	f.start(t)
	require.Equal(t, 3, f.acc.Snapshot().Totals.PrintCount)

	require.NoError(t, f.acc.Reset(ctx))

	restarted := NewAccountant(testPrinter(), f.hub, NewGateway(f.kv, "k2"), WithClock(f.clock.Now))
	require.NoError(t, restarted.Start(ctx))
	assert.Equal(t, Totals{}, restarted.Snapshot().Totals)
}

func TestResetKeepsSessionInProgress(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.setPrinting("on")
	f.refresh()

	require.NoError(t, f.acc.Reset(context.Background()))
	snap := f.acc.Snapshot()
	require.True(t, snap.Session.IsPrinting)

	f.setEnergy(11)
	f.setPrinting("off")
	snap = f.refresh()
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.InDelta(t, 1, snap.Totals.TotalEnergy, 1e-9)
}

func TestUpdateCostsMidSession(t *testing.T) {
	f := newFixture(t)
	f.hub.Set(sensor.NewState("sensor.night_rate", "0.5", map[string]any{"unit_of_measurement": "EUR"}))
	f.start(t)

	f.setPrinting("on")
	f.refresh()
	f.acc.UpdateCosts(config.CostParams{EnergyCostSensor: "sensor.night_rate"})

	snap := f.print(12)
	assert.Equal(t, 1, snap.Totals.PrintCount, "session survives a cost change")
	assert.InDelta(t, 1.0, snap.Totals.LastPrintEnergyCost, 1e-9)
	assert.Equal(t, "EUR", snap.Currency)
}

func TestRestartResumesActiveSession(t *testing.T) {
	f := newFixture(t)
	f.kv.data[StorageKey("k2")] = []byte(`{"total_energy": 5, "print_count": 2, "total_cost": 0.6,
		"is_printing": true, "session_start_energy": 8, "session_start_time": "2026-03-14T08:00:00Z"}`)
	f.setPrinting("on")
	f.setEnergy(9)
	f.start(t)

	snap := f.acc.Snapshot()
	require.True(t, snap.Session.IsPrinting)
	assert.Equal(t, 8.0, *snap.Session.StartEnergy)
	assert.InDelta(t, 1.0, snap.Current.Energy, 1e-9)

	f.setEnergy(11)
	f.setPrinting("off")
	snap = f.refresh()
	assert.Equal(t, 3, snap.Totals.PrintCount)
	assert.InDelta(t, 8, snap.Totals.TotalEnergy, 1e-9)
}

func TestRestartFinalizesStaleSession(t *testing.T) {
	f := newFixture(t)
	f.kv.data[StorageKey("k2")] = []byte(`{"print_count": 1, "total_energy": 1,
		"is_printing": true, "session_start_energy": 8}`)
	f.setEnergy(9.5)

	var events []EventType
	f.acc.OnEvent(func(e Event) { events = append(events, e.Type) })
	f.start(t)

	snap := f.acc.Snapshot()
	assert.False(t, snap.Session.IsPrinting)
	assert.Equal(t, 2, snap.Totals.PrintCount)
	assert.InDelta(t, 1.5, snap.Totals.LastPrintEnergy, 1e-9)
	assert.Contains(t, events, EventPrintFinished)
}

func TestRestartDiscardsOrphanWithoutEnergy(t *testing.T) {
	f := newFixture(t)
	f.kv.data[StorageKey("k2")] = []byte(`{"print_count": 1, "total_energy": 1,
		"is_printing": true, "session_start_energy": 8}`)
	f.setEnergyRaw("unavailable")
	f.start(t)

	snap := f.acc.Snapshot()
	assert.False(t, snap.Session.IsPrinting)
	assert.Equal(t, 1, snap.Totals.PrintCount)
	assert.Contains(t, f.kv.raw(StorageKey("k2")), `"is_printing":false`)
}

func TestRefreshBeforeStartDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.setPrinting("on")
	snap := f.refresh()
	assert.False(t, snap.Loaded)
	assert.False(t, snap.Session.IsPrinting)
	assert.Zero(t, f.kv.saves)
}

func TestStartPropagatesStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.kv.loadErr = errDiskFull
	err := f.acc.Start(context.Background())
	assert.ErrorIs(t, err, errDiskFull)
}

type panickyReader struct {
	sensor.Reader
	mu    sync.Mutex
	panic bool
}

func (p *panickyReader) Get(id string) (sensor.State, bool) {
	p.mu.Lock()
	boom := p.panic
	p.mu.Unlock()
	if boom {
		panic("sensor backend exploded")
	}
	return p.Reader.Get(id)
}

func TestRefreshRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	r := &panickyReader{Reader: f.hub}
	acc := NewAccountant(testPrinter(), r, NewGateway(f.kv, "k2"), WithClock(f.clock.Now))
	require.NoError(t, acc.Start(context.Background()))
	before := acc.Snapshot()

	r.mu.Lock()
	r.panic = true
	r.mu.Unlock()
	after := acc.Refresh(context.Background())
	assert.Equal(t, before, after)

	r.mu.Lock()
	r.panic = false
	r.mu.Unlock()
	f.setPrinting("on")
	assert.True(t, acc.Refresh(context.Background()).Session.IsPrinting)
}

type gatedReader struct {
	sensor.Reader
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedReader) arm() {
	g.mu.Lock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{})
	g.mu.Unlock()
}

func (g *gatedReader) Get(id string) (sensor.State, bool) {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.gate = nil
	g.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return g.Reader.Get(id)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	f := newFixture(t)
	r := &gatedReader{Reader: f.hub}
	acc := NewAccountant(testPrinter(), r, NewGateway(f.kv, "k2"), WithClock(f.clock.Now))
	ctx := context.Background()
	require.NoError(t, acc.Start(ctx))
	base := acc.Snapshot().Refreshes

	r.arm()
	r.mu.Lock()
	gate, entered := r.gate, r.entered
	r.mu.Unlock()

	done := make(chan Snapshot)
	go func() { done <- acc.Refresh(ctx) }()
	<-entered

	acc.Refresh(ctx)
	acc.Refresh(ctx)
	acc.Refresh(ctx)
	close(gate)

	snap := <-done
	assert.Equal(t, base+2, snap.Refreshes, "queued requests collapse into one extra pass")
}

func TestEventsCarrySnapshots(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	var mu sync.Mutex
	var got []Event
	f.acc.OnEvent(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	f.print(12)

	mu.Lock()
	defer mu.Unlock()
	var kinds []EventType
	for _, e := range got {
		kinds = append(kinds, e.Type)
		assert.Equal(t, "k2", e.PrinterID)
	}
	assert.Equal(t, []EventType{EventPrintStarted, EventUpdated, EventPrintFinished, EventUpdated}, kinds)
	assert.Equal(t, 1, got[len(got)-1].Snapshot.Totals.PrintCount)
}
