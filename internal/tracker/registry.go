package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/sensor"
)

// Instance is one configured printer: its accountant and the notifier that
// drives it.
type Instance struct {
	Accountant *Accountant
	Notifier   *Notifier
}

// ID returns the printer id.
func (i *Instance) ID() string { return i.Accountant.ID() }

// UpdateCosts applies new cost parameters, retargets the notifier and
// refreshes.
func (i *Instance) UpdateCosts(ctx context.Context, c config.CostParams) Snapshot {
	i.Accountant.UpdateCosts(c)
	i.Notifier.SetEntities(i.Accountant.Config().TrackedEntities())
	return i.Accountant.Refresh(ctx)
}

// States is the sensor surface a Registry wires instances to.
type States interface {
	sensor.Reader
	sensor.Subscriber
}

// Registry owns every running Instance, keyed by printer id.
type Registry struct {
	states States
	kv     KV
	opts   []Option

	mu        sync.RWMutex
	instances map[string]*Instance
	starting  map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(states States, kv KV, opts ...Option) *Registry {
	return &Registry{
		states:    states,
		kv:        kv,
		opts:      opts,
		instances: make(map[string]*Instance),
		starting:  make(map[string]struct{}),
	}
}

// Add loads and starts an instance for cfg. The id is reserved for the
// duration of the start, and the notifier subscribes before the first
// refresh so no change between load and subscription is missed.
func (r *Registry) Add(ctx context.Context, cfg config.PrinterConfig) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	_, running := r.instances[cfg.ID]
	_, pending := r.starting[cfg.ID]
	if running || pending {
		r.mu.Unlock()
		return nil, fmt.Errorf("printer %q already registered", cfg.ID)
	}
	r.starting[cfg.ID] = struct{}{}
	r.mu.Unlock()

	acc := NewAccountant(cfg, r.states, NewGateway(r.kv, cfg.ID), r.opts...)
	n := NewNotifier(acc, r.states, cfg.TrackedEntities())
	n.Start(ctx)
	if err := acc.Start(ctx); err != nil {
		n.Stop()
		r.mu.Lock()
		delete(r.starting, cfg.ID)
		r.mu.Unlock()
		return nil, fmt.Errorf("starting printer %q: %w", cfg.ID, err)
	}

	inst := &Instance{Accountant: acc, Notifier: n}
	r.mu.Lock()
	delete(r.starting, cfg.ID)
	r.instances[cfg.ID] = inst
	r.mu.Unlock()
	return inst, nil
}

// Get returns the instance for id.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrinter, id)
	}
	return inst, nil
}

// List returns every instance sorted by id.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Snapshots returns the latest snapshot of every instance, sorted by id.
func (r *Registry) Snapshots() []Snapshot {
	insts := r.List()
	out := make([]Snapshot, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Accountant.Snapshot())
	}
	return out
}

// RefreshAll refreshes every instance.
func (r *Registry) RefreshAll(ctx context.Context) {
	for _, inst := range r.List() {
		inst.Accountant.Refresh(ctx)
	}
}

// Close stops every notifier and flushes every accountant.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, inst := range r.List() {
		inst.Notifier.Stop()
		if err := inst.Accountant.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.mu.Lock()
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()
	return errors.Join(errs...)
}
