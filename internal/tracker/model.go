// Package tracker implements print-session accounting: detecting print start
// and stop from external sensor states, integrating energy and material
// deltas into session and lifetime totals, and persisting those totals.
package tracker

import (
	"errors"
	"time"
)

// ErrUnknownPrinter is returned when a printer id is not registered.
var ErrUnknownPrinter = errors.New("unknown printer")

// DefaultCurrency is reported when no cost sensor provides a unit.
const DefaultCurrency = "USD"

// Totals are the durable lifetime and last-print figures.
// Energy is in kWh, material in mm, costs in the cost sensor's currency.
type Totals struct {
	TotalEnergy       float64 `json:"total_energy"`
	TotalMaterial     float64 `json:"total_material"`
	PrintCount        int     `json:"print_count"`
	TotalEnergyCost   float64 `json:"total_energy_cost"`
	TotalMaterialCost float64 `json:"total_material_cost"`
	TotalCost         float64 `json:"total_cost"`

	LastPrintEnergy       float64    `json:"last_print_energy"`
	LastPrintMaterial     float64    `json:"last_print_material"`
	LastPrintStart        *time.Time `json:"last_print_start"`
	LastPrintEnd          *time.Time `json:"last_print_end"`
	LastPrintEnergyCost   float64    `json:"last_print_energy_cost"`
	LastPrintMaterialCost float64    `json:"last_print_material_cost"`
	LastPrintTotalCost    float64    `json:"last_print_total_cost"`
}

// HasActivity reports whether anything has ever been accumulated.
func (t Totals) HasActivity() bool {
	return t.TotalEnergy != 0 || t.PrintCount != 0 || t.TotalCost != 0
}

// Session is the state machine's mutable state. StartEnergy is set if and
// only if IsPrinting. StartMaterial may be nil while printing when the
// material sensor was unavailable at session start.
type Session struct {
	IsPrinting    bool       `json:"is_printing"`
	StartEnergy   *float64   `json:"session_start_energy"`
	StartMaterial *float64   `json:"session_start_material"`
	StartedAt     *time.Time `json:"session_start_time"`
}

// CurrentSession is the in-progress print's running figures. It is not
// persisted and resets to zero at every session start.
type CurrentSession struct {
	Energy       float64 `json:"current_session_energy"`
	Material     float64 `json:"current_session_material"`
	EnergyCost   float64 `json:"current_session_energy_cost"`
	MaterialCost float64 `json:"current_session_material_cost"`
	TotalCost    float64 `json:"current_session_total_cost"`
}

// Snapshot is a read-only copy of an accountant's state after a refresh.
type Snapshot struct {
	PrinterID string         `json:"printer_id"`
	Totals    Totals         `json:"totals"`
	Session   Session        `json:"session"`
	Current   CurrentSession `json:"current"`

	CurrentEnergy   *float64 `json:"current_energy,omitempty"`
	CurrentMaterial *float64 `json:"current_material,omitempty"`
	CostPerKWh      float64  `json:"cost_per_kwh"`
	CostPerMeter    float64  `json:"cost_per_meter"`
	Currency        string   `json:"currency"`

	Loaded    bool      `json:"loaded"`
	UpdatedAt time.Time `json:"updated_at"`
	Refreshes int64     `json:"refreshes"`
	LastError string    `json:"last_error,omitempty"`
}

// EventType names an accountant event.
type EventType string

// Accountant events.
const (
	EventPrintStarted   EventType = "print_started"
	EventPrintFinished  EventType = "print_finished"
	EventPrintDiscarded EventType = "print_discarded"
	EventReset          EventType = "reset"
	EventUpdated        EventType = "updated"
)

// Event is emitted to listeners after a refresh or command.
type Event struct {
	Type      EventType `json:"type"`
	PrinterID string    `json:"printer_id"`
	At        time.Time `json:"at"`
	Snapshot  Snapshot  `json:"snapshot"`
}

func floatPtr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }
