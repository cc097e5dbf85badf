// Package sensor models externally reported entity states and the
// interfaces used to read them and to watch them change.
package sensor

import (
	"reflect"
	"strings"
	"time"
)

// Raw values hosts use for a sensor without a usable reading.
const (
	ValueUnavailable = "unavailable"
	ValueUnknown     = "unknown"
)

// State is one entity's current reported state.
type State struct {
	EntityID    string         `json:"entity_id"`
	Value       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Available   bool           `json:"available"`
	LastChanged time.Time      `json:"last_changed"`
}

// NewState builds a state, deriving availability from the raw value.
func NewState(entityID, value string, attrs map[string]any) State {
	return State{
		EntityID:   entityID,
		Value:      value,
		Attributes: attrs,
		Available:  IsAvailableValue(value),
	}
}

// IsAvailableValue reports whether value is a real reading.
func IsAvailableValue(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v != "" && v != ValueUnavailable && v != ValueUnknown
}

// Attribute returns a named attribute.
func (s State) Attribute(name string) (any, bool) {
	if s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[name]
	return v, ok
}

func (s State) sameAs(o State) bool {
	return s.Value == o.Value &&
		s.Available == o.Available &&
		reflect.DeepEqual(s.Attributes, o.Attributes)
}

// Change is delivered to subscribers when an entity's state changes.
type Change struct {
	EntityID string `json:"entity_id"`
	Old      *State `json:"old_state,omitempty"`
	New      State  `json:"new_state"`
}

// Reader returns the current state of an entity, or false if the entity is
// not known.
type Reader interface {
	Get(entityID string) (State, bool)
}

// Subscriber registers a callback for state changes. The returned function
// removes the subscription.
type Subscriber interface {
	Subscribe(fn func(Change)) (unsubscribe func())
}
