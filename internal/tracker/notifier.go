package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/printmeter/internal/sensor"
)

// Refresher is the part of an Accountant the Notifier drives.
type Refresher interface {
	Refresh(ctx context.Context) Snapshot
}

// Notifier subscribes to state changes of a printer's tracked entities and
// schedules a refresh for each. Bursts coalesce: at most one refresh is
// queued behind the one running.
type Notifier struct {
	target Refresher
	source sensor.Subscriber

	mu      sync.RWMutex
	tracked map[string]bool

	kick  chan struct{}
	stop  chan struct{}
	done  chan struct{}
	unsub func()

	startOnce sync.Once
	stopOnce  sync.Once
	triggered atomic.Int64
}

// NewNotifier creates a notifier for entities.
func NewNotifier(target Refresher, source sensor.Subscriber, entities []string) *Notifier {
	n := &Notifier{
		target: target,
		source: source,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	n.SetEntities(entities)
	return n
}

// SetEntities replaces the set of entities whose changes trigger a refresh.
func (n *Notifier) SetEntities(entities []string) {
	tracked := make(map[string]bool, len(entities))
	for _, id := range entities {
		if id != "" {
			tracked[id] = true
		}
	}
	n.mu.Lock()
	n.tracked = tracked
	n.mu.Unlock()
}

// Tracks reports whether changes to entityID trigger a refresh.
func (n *Notifier) Tracks(entityID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.tracked[entityID]
}

// Triggered returns how many relevant changes have been observed.
func (n *Notifier) Triggered() int64 { return n.triggered.Load() }

// Start subscribes and runs the refresh worker until ctx ends or Stop.
func (n *Notifier) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		n.unsub = n.source.Subscribe(n.handle)
		go n.loop(ctx)
	})
}

// Stop unsubscribes and waits for the worker to exit.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		if n.unsub != nil {
			n.unsub()
		}
		close(n.stop)
	})
	// Never started: consume the once so done is closed exactly one way.
	n.startOnce.Do(func() { close(n.done) })
	<-n.done
}

func (n *Notifier) handle(c sensor.Change) {
	if !n.Tracks(c.EntityID) {
		return
	}
	n.triggered.Add(1)
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

func (n *Notifier) loop(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case <-n.kick:
			n.target.Refresh(ctx)
		}
	}
}
