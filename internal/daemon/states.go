package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theirongolddev/printmeter/internal/sensor"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

// StatesKey holds the hub's last known sensor states between runs.
const StatesKey = "printmeter_states"

// restoreStates seeds the hub with the states saved by the previous run so
// restart reconciliation sees the last readings instead of nothing.
func restoreStates(ctx context.Context, kv tracker.KV, hub *sensor.Hub) {
	raw, ok, err := kv.Load(ctx, StatesKey)
	if err != nil {
		log.Warn().Err(err).Msg("loading saved sensor states failed")
		return
	}
	if !ok {
		return
	}
	states, err := sensor.ParseStates(raw)
	if err != nil {
		log.Warn().Err(err).Msg("saved sensor states unreadable, starting empty")
		return
	}
	for _, st := range states {
		hub.Set(st)
	}
	log.Debug().Int("entities", len(states)).Msg("restored sensor states")
}

// statesKeeper writes the hub's states through to the store after every
// change. Bursts coalesce into one write.
type statesKeeper struct {
	kv  tracker.KV
	hub *sensor.Hub

	kick  chan struct{}
	stop  chan struct{}
	done  chan struct{}
	unsub func()
	once  sync.Once
}

func newStatesKeeper(kv tracker.KV, hub *sensor.Hub) *statesKeeper {
	k := &statesKeeper{
		kv:   kv,
		hub:  hub,
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	k.unsub = hub.Subscribe(func(sensor.Change) {
		select {
		case k.kick <- struct{}{}:
		default:
		}
	})
	go k.loop()
	return k
}

func (k *statesKeeper) loop() {
	defer close(k.done)
	for {
		select {
		case <-k.stop:
			return
		case <-k.kick:
			k.save()
		}
	}
}

func (k *statesKeeper) save() {
	data, err := sensor.EncodeStates(k.hub.All())
	if err != nil {
		log.Warn().Err(err).Msg("encoding sensor states failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.kv.Save(ctx, StatesKey, data); err != nil {
		log.Warn().Err(err).Msg("saving sensor states failed")
	}
}

// Stop unsubscribes, waits for the writer and saves once more.
func (k *statesKeeper) Stop() {
	k.once.Do(func() {
		k.unsub()
		close(k.stop)
		<-k.done
		k.save()
	})
}
