// Package daemon provides the long-running print accounting service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/projection"
	"github.com/theirongolddev/printmeter/internal/sensor"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr         string
	Interval     time.Duration
	EventsBuffer int
	Notify       bool
	StatesFile   string
	Printers     []config.PrinterConfig
}

// Delta captures what changed for one printer between two snapshots.
type Delta struct {
	Prints      int     `json:"prints"`
	EnergyKWh   float64 `json:"energy_kwh"`
	MaterialMM  float64 `json:"material_mm"`
	Cost        float64 `json:"cost"`
	SessionKWh  float64 `json:"session_kwh"`
	SessionCost float64 `json:"session_cost"`
	Printing    bool    `json:"printing_changed"`
}

const deltaEpsilon = 1e-9

func (d Delta) isZero() bool {
	return d.Prints == 0 &&
		math.Abs(d.EnergyKWh) < deltaEpsilon &&
		math.Abs(d.MaterialMM) < deltaEpsilon &&
		math.Abs(d.Cost) < deltaEpsilon &&
		math.Abs(d.SessionKWh) < deltaEpsilon &&
		math.Abs(d.SessionCost) < deltaEpsilon &&
		!d.Printing
}

// Event types published on the stream besides the accountant's own.
const (
	EventSnapshot = "snapshot"
	EventUpdate   = "update"
)

// Event is published whenever a printer's state moves.
type Event struct {
	ID        int64            `json:"id"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	PrinterID string           `json:"printer_id"`
	Snapshot  tracker.Snapshot `json:"snapshot"`
	Delta     Delta            `json:"delta"`
}

// PrinterStatus is one printer's entry in Status.
type PrinterStatus struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Snapshot tracker.Snapshot    `json:"snapshot"`
	Metrics  []projection.Metric `json:"metrics"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time       `json:"started_at"`
	LastPollAt      time.Time       `json:"last_poll_at"`
	PollIntervalSec int             `json:"poll_interval_sec"`
	PollCount       int64           `json:"poll_count"`
	StatesFile      string          `json:"states_file,omitempty"`
	Printers        []PrinterStatus `json:"printers"`
	LastError       string          `json:"last_error,omitempty"`
	EventCount      int             `json:"event_count"`
	SubscriberCount int             `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	kv      tracker.KV
	hub     *sensor.Hub
	reg     *tracker.Registry
	metrics *prometheus.Registry
	notify  func(title, message string) error

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	last        map[string]tracker.Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a daemon service that persists through kv.
func New(cfg Config, kv tracker.KV) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 30 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}

	s := &Service{
		cfg:       cfg,
		kv:        kv,
		hub:       sensor.NewHub(),
		metrics:   prometheus.NewRegistry(),
		notify:    func(title, msg string) error { return beeep.Notify(title, msg, "") },
		startedAt: time.Now(),
		last:      make(map[string]tracker.Snapshot),
		subs:      make(map[int]chan Event),
	}
	s.reg = tracker.NewRegistry(s.hub, kv, tracker.WithListener(s.onAccountantEvent))
	s.metrics.MustRegister(
		projection.NewCollector(s.reg),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Hub exposes the sensor hub, mainly for tests and embedding.
func (s *Service) Hub() *sensor.Hub { return s.hub }

// Registry exposes the printer registry.
func (s *Service) Registry() *tracker.Registry { return s.reg }

// Start restores the last known sensor states, loads the states file and
// every configured printer. It is split from Run so tests can drive the
// service without a listener.
func (s *Service) Start(ctx context.Context) (stop func(), err error) {
	restoreStates(ctx, s.kv, s.hub)
	keeper := newStatesKeeper(s.kv, s.hub)

	var src *sensor.FileSource
	if s.cfg.StatesFile != "" {
		src = sensor.NewFileSource(s.cfg.StatesFile, s.hub, s.cfg.Interval)
		if err := src.Start(); err != nil {
			keeper.Stop()
			return nil, err
		}
	}

	for _, p := range s.cfg.Printers {
		if _, err := s.reg.Add(ctx, p); err != nil {
			if src != nil {
				src.Stop()
			}
			_ = s.reg.Close(ctx)
			keeper.Stop()
			return nil, err
		}
		log.Info().Str("printer", p.ID).Str("energy_sensor", p.EnergySensor).
			Str("printing_sensor", p.PrintingSensor).Msg("tracking printer")
	}

	return func() {
		if src != nil {
			src.Stop()
		}
		if err := s.reg.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("final flush failed")
		}
		keeper.Stop()
	}, nil
}

// Run starts HTTP endpoints and the safety refresh loop until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	stop, err := s.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// pollOnce refreshes every printer in case a change notification was lost.
func (s *Service) pollOnce(ctx context.Context) {
	s.reg.RefreshAll(ctx)

	var lastErr string
	for _, snap := range s.reg.Snapshots() {
		if snap.LastError != "" {
			lastErr = snap.PrinterID + ": " + snap.LastError
		}
	}

	s.mu.Lock()
	s.lastPollAt = time.Now()
	s.pollCount++
	s.lastError = lastErr
	s.mu.Unlock()
}

func (s *Service) onAccountantEvent(ev tracker.Event) {
	switch ev.Type {
	case tracker.EventUpdated:
		s.mu.Lock()
		prev, seen := s.last[ev.PrinterID]
		s.last[ev.PrinterID] = ev.Snapshot
		s.mu.Unlock()

		if !seen {
			s.publishEvent(Event{Type: EventSnapshot, Timestamp: ev.At, PrinterID: ev.PrinterID, Snapshot: ev.Snapshot})
			return
		}
		if delta := diffSnapshots(prev, ev.Snapshot); !delta.isZero() {
			s.publishEvent(Event{Type: EventUpdate, Timestamp: ev.At, PrinterID: ev.PrinterID, Snapshot: ev.Snapshot, Delta: delta})
		}
	default:
		s.publishEvent(Event{Type: string(ev.Type), Timestamp: ev.At, PrinterID: ev.PrinterID, Snapshot: ev.Snapshot})
		if ev.Type == tracker.EventPrintFinished && s.cfg.Notify {
			go s.notifyFinished(ev.Snapshot)
		}
	}
}

func (s *Service) notifyFinished(snap tracker.Snapshot) {
	t := snap.Totals
	title := fmt.Sprintf("Print finished: %s", s.printerName(snap.PrinterID))
	body := fmt.Sprintf("%.3f kWh, %.2f %s", t.LastPrintEnergy, t.LastPrintTotalCost, snap.Currency)
	if t.LastPrintMaterial > 0 {
		body += fmt.Sprintf(", %.2f m of material", t.LastPrintMaterial/1000)
	}
	if err := s.notify(title, body); err != nil {
		log.Debug().Err(err).Msg("desktop notification failed")
	}
}

func (s *Service) printerName(id string) string {
	for _, p := range s.cfg.Printers {
		if p.ID == id {
			return p.DisplayName()
		}
	}
	return id
}

func diffSnapshots(prev, curr tracker.Snapshot) Delta {
	return Delta{
		Prints:      curr.Totals.PrintCount - prev.Totals.PrintCount,
		EnergyKWh:   curr.Totals.TotalEnergy - prev.Totals.TotalEnergy,
		MaterialMM:  curr.Totals.TotalMaterial - prev.Totals.TotalMaterial,
		Cost:        curr.Totals.TotalCost - prev.Totals.TotalCost,
		SessionKWh:  curr.Current.Energy - prev.Current.Energy,
		SessionCost: curr.Current.TotalCost - prev.Current.TotalCost,
		Printing:    curr.Session.IsPrinting != prev.Session.IsPrinting,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) printerStatus(inst *tracker.Instance) PrinterStatus {
	snap := inst.Accountant.Snapshot()
	return PrinterStatus{
		ID:       inst.ID(),
		Name:     inst.Accountant.Config().DisplayName(),
		Snapshot: snap,
		Metrics:  projection.Project(snap),
	}
}

func (s *Service) snapshotStatus() Status {
	printers := make([]PrinterStatus, 0)
	for _, inst := range s.reg.List() {
		printers = append(printers, s.printerStatus(inst))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		StatesFile:      s.cfg.StatesFile,
		Printers:        printers,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
