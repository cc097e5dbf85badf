package sensor

import (
	"sort"
	"sync"
	"time"
)

// Hub is an in-memory state registry. It implements Reader and Subscriber.
type Hub struct {
	mu     sync.RWMutex
	states map[string]State
	nextID int
	subs   map[int]func(Change)
	now    func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		states: make(map[string]State),
		subs:   make(map[int]func(Change)),
		now:    time.Now,
	}
}

// Get implements Reader.
func (h *Hub) Get(entityID string) (State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.states[entityID]
	return st, ok
}

// Set stores st and notifies subscribers if anything observable changed.
// It reports whether a change was published.
func (h *Hub) Set(st State) bool {
	h.mu.Lock()
	prev, existed := h.states[st.EntityID]
	if existed && prev.sameAs(st) {
		h.mu.Unlock()
		return false
	}
	if st.LastChanged.IsZero() {
		st.LastChanged = h.now()
	}
	h.states[st.EntityID] = st

	ch := Change{EntityID: st.EntityID, New: st}
	if existed {
		old := prev
		ch.Old = &old
	}
	subs := make([]func(Change), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(ch)
	}
	return true
}

// Remove forgets an entity. Readers will see it as not found.
func (h *Hub) Remove(entityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.states, entityID)
}

// Subscribe implements Subscriber.
func (h *Hub) Subscribe(fn func(Change)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// All returns every known state sorted by entity id.
func (h *Hub) All() []State {
	h.mu.RLock()
	out := make([]State, 0, len(h.states))
	for _, st := range h.states {
		out = append(out, st)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
