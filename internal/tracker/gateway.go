package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// LegacyKey is the single-printer record written by older releases.
const LegacyKey = "printmeter_data"

// StorageKey returns the per-printer record key.
func StorageKey(printerID string) string {
	return LegacyKey + "_" + printerID
}

// KV is the durable key-value store a Gateway writes through.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Record is everything a Gateway persists for one printer.
type Record struct {
	Totals  Totals
	Session Session
}

// Gateway loads and saves one printer's Record.
type Gateway struct {
	kv        KV
	key       string
	legacyKey string
}

// NewGateway returns a gateway for printerID.
func NewGateway(kv KV, printerID string) *Gateway {
	return &Gateway{kv: kv, key: StorageKey(printerID), legacyKey: LegacyKey}
}

// Load reads the printer's record, filling absent fields with defaults.
// An inactive record is seeded once from the legacy key when that record has
// activity; the copy is written through immediately. Every record this
// package writes is marked migrated, so the legacy record is consulted at
// most until the first save and a later reset is never undone by it. The
// legacy record is never deleted.
func (g *Gateway) Load(ctx context.Context) (Record, error) {
	raw, ok, err := g.kv.Load(ctx, g.key)
	if err != nil {
		return Record{}, fmt.Errorf("loading %s: %w", g.key, err)
	}
	var rec Record
	if ok {
		rec = decodeRecord(raw)
		if gjson.GetBytes(raw, "migrated").Bool() {
			return rec, nil
		}
	}
	if rec.Totals.HasActivity() {
		return rec, nil
	}

	legacyRaw, ok, err := g.kv.Load(ctx, g.legacyKey)
	if err != nil {
		log.Warn().Err(err).Str("key", g.legacyKey).Msg("legacy record unreadable, skipping migration")
		return rec, nil
	}
	if !ok {
		return rec, nil
	}
	legacy := decodeRecord(legacyRaw)
	if !legacy.Totals.HasActivity() {
		return rec, nil
	}

	rec.Totals = legacy.Totals
	if !rec.Session.IsPrinting {
		rec.Session = legacy.Session
	}
	if err := g.Save(ctx, rec); err != nil {
		return rec, fmt.Errorf("migrating %s: %w", g.legacyKey, err)
	}
	log.Info().Str("from", g.legacyKey).Str("to", g.key).
		Int("print_count", rec.Totals.PrintCount).Msg("migrated legacy totals")
	return rec, nil
}

// Save writes rec through to the store.
func (g *Gateway) Save(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := g.kv.Save(ctx, g.key, data); err != nil {
		return fmt.Errorf("saving %s: %w", g.key, err)
	}
	return nil
}

type wireRecord struct {
	TotalEnergy           float64  `json:"total_energy"`
	TotalMaterial         float64  `json:"total_material"`
	PrintCount            int      `json:"print_count"`
	TotalEnergyCost       float64  `json:"total_energy_cost"`
	TotalMaterialCost     float64  `json:"total_material_cost"`
	TotalCost             float64  `json:"total_cost"`
	LastPrintEnergy       float64  `json:"last_print_energy"`
	LastPrintMaterial     float64  `json:"last_print_material"`
	LastPrintStart        *string  `json:"last_print_start"`
	LastPrintEnd          *string  `json:"last_print_end"`
	LastPrintEnergyCost   float64  `json:"last_print_energy_cost"`
	LastPrintMaterialCost float64  `json:"last_print_material_cost"`
	LastPrintTotalCost    float64  `json:"last_print_total_cost"`
	IsPrinting            bool     `json:"is_printing"`
	SessionStartEnergy    *float64 `json:"session_start_energy"`
	SessionStartMaterial  *float64 `json:"session_start_material"`
	SessionStartTime      *string  `json:"session_start_time"`
	Migrated              bool     `json:"migrated"`
}

func encodeRecord(rec Record) ([]byte, error) {
	t, s := rec.Totals, rec.Session
	w := wireRecord{
		TotalEnergy:           t.TotalEnergy,
		TotalMaterial:         t.TotalMaterial,
		PrintCount:            t.PrintCount,
		TotalEnergyCost:       t.TotalEnergyCost,
		TotalMaterialCost:     t.TotalMaterialCost,
		TotalCost:             t.TotalCost,
		LastPrintEnergy:       t.LastPrintEnergy,
		LastPrintMaterial:     t.LastPrintMaterial,
		LastPrintStart:        formatTime(t.LastPrintStart),
		LastPrintEnd:          formatTime(t.LastPrintEnd),
		LastPrintEnergyCost:   t.LastPrintEnergyCost,
		LastPrintMaterialCost: t.LastPrintMaterialCost,
		LastPrintTotalCost:    t.LastPrintTotalCost,
		IsPrinting:            s.IsPrinting,
		SessionStartEnergy:    s.StartEnergy,
		SessionStartMaterial:  s.StartMaterial,
		SessionStartTime:      formatTime(s.StartedAt),
		Migrated:              true,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// decodeRecord probes each field so absent, null or mistyped values fall back
// to their defaults individually instead of failing the whole record.
func decodeRecord(raw []byte) Record {
	var rec Record
	if !gjson.ValidBytes(raw) {
		log.Warn().Msg("stored record is not valid JSON, using defaults")
		return rec
	}
	doc := gjson.ParseBytes(raw)
	optNum := func(key string) *float64 {
		r := doc.Get(key)
		switch r.Type {
		case gjson.Number:
			return floatPtr(r.Float())
		case gjson.String:
			if v, ok := parseFloat(r.String()); ok {
				return &v
			}
		}
		return nil
	}
	num := func(key string) float64 {
		if v := optNum(key); v != nil {
			return *v
		}
		return 0
	}
	ts := func(key string) *time.Time {
		r := doc.Get(key)
		if r.Type != gjson.String {
			return nil
		}
		return ParseTimestamp(r.String())
	}

	rec.Totals = Totals{
		TotalEnergy:           num("total_energy"),
		TotalMaterial:         num("total_material"),
		PrintCount:            int(num("print_count")),
		TotalEnergyCost:       num("total_energy_cost"),
		TotalMaterialCost:     num("total_material_cost"),
		TotalCost:             num("total_cost"),
		LastPrintEnergy:       num("last_print_energy"),
		LastPrintMaterial:     num("last_print_material"),
		LastPrintStart:        ts("last_print_start"),
		LastPrintEnd:          ts("last_print_end"),
		LastPrintEnergyCost:   num("last_print_energy_cost"),
		LastPrintMaterialCost: num("last_print_material_cost"),
		LastPrintTotalCost:    num("last_print_total_cost"),
	}

	rec.Session = Session{
		IsPrinting:    doc.Get("is_printing").Bool(),
		StartEnergy:   optNum("session_start_energy"),
		StartMaterial: optNum("session_start_material"),
		StartedAt:     ts("session_start_time"),
	}
	if rec.Session.IsPrinting && rec.Session.StartEnergy == nil {
		log.Warn().Msg("stored session has no start energy, treating as idle")
		rec.Session = Session{}
	}
	if !rec.Session.IsPrinting {
		rec.Session = Session{}
	}
	return rec
}

// Timestamps are stored as ISO-8601 strings. Legacy records may lack a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Malformed input yields nil.
func ParseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	log.Debug().Str("value", s).Msg("unparsable timestamp, treating as absent")
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
