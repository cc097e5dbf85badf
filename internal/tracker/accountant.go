package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/sensor"
)

// Accountant runs the print-session state machine for one printer.
//
// Refresh is single-flight: a call made while another is running marks the
// accountant dirty and returns the last snapshot; the running call then
// performs exactly one more pass. State mutation, persistence and Reset are
// serialized on one mutex so a save always observes a consistent record.
type Accountant struct {
	id      string
	sensors sensor.Reader
	gw      *Gateway
	now     func() time.Time

	cfgMu sync.RWMutex
	cfg   config.PrinterConfig

	mu           sync.Mutex
	loaded       bool
	totals       Totals
	session      Session
	current      CurrentSession
	lastEnergy   *float64
	lastMaterial *float64
	costPerKWh   float64
	costPerMeter float64
	currency     string
	refreshes    int64
	lastErr      string

	snapMu sync.RWMutex
	snap   Snapshot

	flightMu sync.Mutex
	running  bool
	pending  bool

	lisMu     sync.RWMutex
	listeners []func(Event)
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// WithListener registers fn before Start so restart reconciliation events
// are observed too.
func WithListener(fn func(Event)) Option {
	return func(a *Accountant) { a.listeners = append(a.listeners, fn) }
}

// NewAccountant creates an accountant for cfg. Call Start before Refresh.
func NewAccountant(cfg config.PrinterConfig, sensors sensor.Reader, gw *Gateway, opts ...Option) *Accountant {
	a := &Accountant{
		id:       cfg.ID,
		sensors:  sensors,
		gw:       gw,
		now:      time.Now,
		cfg:      cfg,
		currency: DefaultCurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.snap = Snapshot{PrinterID: a.id, Currency: a.currency}
	return a
}

// ID returns the printer id.
func (a *Accountant) ID() string { return a.id }

// Config returns the current printer configuration.
func (a *Accountant) Config() config.PrinterConfig {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// OnEvent registers a listener. Listeners run synchronously after the state
// lock is released and must not block.
func (a *Accountant) OnEvent(fn func(Event)) {
	a.lisMu.Lock()
	a.listeners = append(a.listeners, fn)
	a.lisMu.Unlock()
}

// Snapshot returns the state as of the last completed refresh.
func (a *Accountant) Snapshot() Snapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snap
}

// Start loads persisted state, reconciles a session left open by a previous
// run, and performs the first refresh.
func (a *Accountant) Start(ctx context.Context) error {
	rec, err := a.gw.Load(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.totals = rec.Totals
	a.session = rec.Session
	a.loaded = true
	var kinds []EventType
	if a.session.IsPrinting {
		kinds = a.reconcileLocked(ctx)
	}
	snap := a.publishLocked()
	a.mu.Unlock()

	log.Info().Str("printer", a.id).Int("print_count", rec.Totals.PrintCount).
		Float64("total_energy", rec.Totals.TotalEnergy).Msg("accountant loaded")
	a.emit(kinds, snap)
	a.Refresh(ctx)
	return nil
}

// Refresh re-reads the sensors and advances the state machine. It never
// fails: on a panic the last good snapshot is returned.
func (a *Accountant) Refresh(ctx context.Context) Snapshot {
	a.flightMu.Lock()
	if a.running {
		a.pending = true
		a.flightMu.Unlock()
		return a.Snapshot()
	}
	a.running = true
	a.flightMu.Unlock()

	for {
		snap := a.refreshOnce(ctx)

		a.flightMu.Lock()
		if !a.pending {
			a.running = false
			a.flightMu.Unlock()
			return snap
		}
		a.pending = false
		a.flightMu.Unlock()
	}
}

func (a *Accountant) refreshOnce(ctx context.Context) (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("printer", a.id).Interface("panic", r).Msg("refresh failed, keeping last snapshot")
			snap = a.Snapshot()
		}
	}()

	kinds, snap := a.step(ctx)
	a.emit(kinds, snap)
	return snap
}

func (a *Accountant) step(ctx context.Context) ([]EventType, Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return nil, a.publishLocked()
	}
	kinds := a.stepLocked(ctx)
	return kinds, a.publishLocked()
}

func (a *Accountant) stepLocked(ctx context.Context) []EventType {
	cfg := a.Config()
	a.refreshes++
	a.readCostsLocked(cfg)

	energy, energyOK := a.readEnergy(cfg)
	material := a.readMaterial(cfg)
	a.lastMaterial = material
	a.lastEnergy = nil
	if energyOK {
		a.lastEnergy = floatPtr(energy)
	}

	printSt, ok := a.sensors.Get(cfg.PrintingSensor)
	if !ok || !printSt.Available {
		log.Debug().Str("printer", a.id).Str("entity", cfg.PrintingSensor).Msg("printing indicator unavailable")
		return nil
	}
	if !energyOK {
		log.Debug().Str("printer", a.id).Str("entity", cfg.EnergySensor).Msg("energy sensor unavailable")
		return nil
	}
	printing := isPrinting(printSt.Value, cfg.PrintingStates())

	switch {
	case printing && !a.session.IsPrinting:
		a.startLocked(ctx, energy, material)
		return []EventType{EventPrintStarted}
	case !printing && a.session.IsPrinting:
		return []EventType{a.finishLocked(ctx, energy, material)}
	case printing:
		a.updateCurrentLocked(energy, material)
	}
	return nil
}

// reconcileLocked applies the restart policy to a persisted active session:
// resume if the printer still prints, otherwise settle it with whatever
// energy reading is available, or drop it when there is none.
func (a *Accountant) reconcileLocked(ctx context.Context) []EventType {
	cfg := a.Config()
	if st, ok := a.sensors.Get(cfg.PrintingSensor); ok && st.Available && isPrinting(st.Value, cfg.PrintingStates()) {
		log.Info().Str("printer", a.id).Float64("start_energy", *a.session.StartEnergy).Msg("resuming print session")
		return nil
	}

	energy, ok := a.readEnergy(cfg)
	if !ok {
		log.Warn().Str("printer", a.id).Msg("energy unavailable after restart, discarding orphaned session")
		a.session = Session{}
		a.current = CurrentSession{}
		_ = a.saveLocked(ctx)
		return []EventType{EventPrintDiscarded}
	}
	a.readCostsLocked(cfg)
	log.Info().Str("printer", a.id).Msg("finalizing print session left open by previous run")
	return []EventType{a.finishLocked(ctx, energy, a.readMaterial(cfg))}
}

func (a *Accountant) startLocked(ctx context.Context, energy float64, material *float64) {
	now := a.now().UTC()
	a.session = Session{
		IsPrinting:    true,
		StartEnergy:   floatPtr(energy),
		StartMaterial: material,
		StartedAt:     timePtr(now),
	}
	a.current = CurrentSession{}
	a.totals.LastPrintStart = timePtr(now)

	ev := log.Info().Str("printer", a.id).Float64("start_energy", energy)
	if material != nil {
		ev = ev.Float64("start_material", *material)
	}
	ev.Msg("print started")
	_ = a.saveLocked(ctx)
}

func (a *Accountant) updateCurrentLocked(energy float64, material *float64) {
	e := max(energy-*a.session.StartEnergy, 0)
	var m float64
	if a.session.StartMaterial != nil && material != nil {
		m = max(*material-*a.session.StartMaterial, 0)
	}
	ec := e * a.costPerKWh
	mc := m / 1000 * a.costPerMeter
	a.current = CurrentSession{
		Energy:       e,
		Material:     m,
		EnergyCost:   ec,
		MaterialCost: mc,
		TotalCost:    ec + mc,
	}
}

func (a *Accountant) finishLocked(ctx context.Context, energy float64, material *float64) EventType {
	sessionEnergy := energy - *a.session.StartEnergy
	if sessionEnergy <= 0 {
		log.Warn().Str("printer", a.id).Float64("start_energy", *a.session.StartEnergy).
			Float64("end_energy", energy).Msg("print produced no energy delta, discarding session")
		a.session = Session{}
		a.current = CurrentSession{}
		_ = a.saveLocked(ctx)
		return EventPrintDiscarded
	}

	var mat, matCost float64
	if a.session.StartMaterial != nil && material != nil {
		if d := *material - *a.session.StartMaterial; d > 0 {
			mat = d
			matCost = d / 1000 * a.costPerMeter
		}
	}
	energyCost := sessionEnergy * a.costPerKWh

	t := &a.totals
	t.PrintCount++
	t.TotalEnergy += sessionEnergy
	t.TotalEnergyCost += energyCost
	t.TotalMaterial += mat
	t.TotalMaterialCost += matCost
	t.LastPrintEnergy = sessionEnergy
	t.LastPrintMaterial = mat
	t.LastPrintEnergyCost = energyCost
	t.LastPrintMaterialCost = matCost
	t.LastPrintTotalCost = energyCost + matCost
	t.TotalCost += t.LastPrintTotalCost
	t.LastPrintEnd = timePtr(a.now().UTC())
	if t.LastPrintStart == nil {
		t.LastPrintStart = a.session.StartedAt
	}

	a.current = CurrentSession{
		Energy:       sessionEnergy,
		Material:     mat,
		EnergyCost:   energyCost,
		MaterialCost: matCost,
		TotalCost:    t.LastPrintTotalCost,
	}
	a.session = Session{}

	log.Info().Str("printer", a.id).
		Float64("energy_kwh", sessionEnergy).
		Float64("material_mm", mat).
		Float64("cost", t.LastPrintTotalCost).
		Str("currency", a.currency).
		Int("print_count", t.PrintCount).
		Msg("print finished")
	_ = a.saveLocked(ctx)
	return EventPrintFinished
}

// Reset zeroes every accumulated and current-session figure and persists
// the result. An in-progress session keeps its start readings.
func (a *Accountant) Reset(ctx context.Context) error {
	a.mu.Lock()
	a.totals = Totals{}
	a.current = CurrentSession{}
	err := a.saveLocked(ctx)
	snap := a.publishLocked()
	a.mu.Unlock()

	log.Info().Str("printer", a.id).Msg("statistics reset")
	a.emit([]EventType{EventReset}, snap)
	a.Refresh(ctx)
	return err
}

// UpdateCosts swaps the cost parameters. An in-progress session is kept and
// the new prices apply from the next refresh.
func (a *Accountant) UpdateCosts(c config.CostParams) {
	a.cfgMu.Lock()
	a.cfg = a.cfg.WithCosts(c)
	a.cfgMu.Unlock()
	log.Info().Str("printer", a.id).Str("cost_sensor", c.EnergyCostSensor).
		Float64("cost_per_spool", c.MaterialCostPerSpool).Msg("cost parameters updated")
}

// Close flushes the current record.
func (a *Accountant) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return nil
	}
	return a.saveLocked(ctx)
}

func (a *Accountant) readEnergy(cfg config.PrinterConfig) (float64, bool) {
	st, ok := a.sensors.Get(cfg.EnergySensor)
	if !ok || !st.Available {
		return 0, false
	}
	return ReadEnergy(st, cfg.Attribute()), true
}

func (a *Accountant) readMaterial(cfg config.PrinterConfig) *float64 {
	if cfg.MaterialSensor == "" {
		return nil
	}
	st, ok := a.sensors.Get(cfg.MaterialSensor)
	if !ok || !st.Available {
		return nil
	}
	return floatPtr(ReadMaterial(st))
}

func (a *Accountant) readCostsLocked(cfg config.PrinterConfig) {
	a.costPerKWh = CostPerKWh(a.sensors, cfg.EnergyCostSensor)
	a.currency = Currency(a.sensors, cfg.EnergyCostSensor)
	a.costPerMeter = cfg.CostPerMeter()
}

// saveLocked persists the record. Failures are logged and the in-memory
// state is kept.
func (a *Accountant) saveLocked(ctx context.Context) error {
	err := a.gw.Save(context.WithoutCancel(ctx), Record{Totals: a.totals, Session: a.session})
	if err != nil {
		log.Warn().Err(err).Str("printer", a.id).Msg("saving record failed, keeping in-memory state")
		a.lastErr = err.Error()
		return err
	}
	a.lastErr = ""
	return nil
}

func (a *Accountant) publishLocked() Snapshot {
	snap := Snapshot{
		PrinterID:       a.id,
		Totals:          a.totals,
		Session:         a.session,
		Current:         a.current,
		CurrentEnergy:   a.lastEnergy,
		CurrentMaterial: a.lastMaterial,
		CostPerKWh:      a.costPerKWh,
		CostPerMeter:    a.costPerMeter,
		Currency:        a.currency,
		Loaded:          a.loaded,
		UpdatedAt:       a.now().UTC(),
		Refreshes:       a.refreshes,
		LastError:       a.lastErr,
	}
	a.snapMu.Lock()
	a.snap = snap
	a.snapMu.Unlock()
	return snap
}

// emit delivers each transition event followed by an EventUpdated.
func (a *Accountant) emit(kinds []EventType, snap Snapshot) {
	a.lisMu.RLock()
	listeners := make([]func(Event), len(a.listeners))
	copy(listeners, a.listeners)
	a.lisMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	kinds = append(kinds, EventUpdated)
	for _, k := range kinds {
		ev := Event{Type: k, PrinterID: a.id, At: snap.UpdatedAt, Snapshot: snap}
		for _, fn := range listeners {
			fn(ev)
		}
	}
}
