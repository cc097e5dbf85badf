package tracker

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/theirongolddev/printmeter/internal/sensor"
)

// ReadEnergy extracts an energy reading. A numeric attribute named attribute
// wins over the primary value; anything unparsable yields 0.
func ReadEnergy(st sensor.State, attribute string) float64 {
	if attribute != "" {
		if raw, ok := st.Attribute(attribute); ok {
			if v, ok := toFloat(raw); ok {
				return v
			}
			log.Debug().Str("entity", st.EntityID).Str("attribute", attribute).
				Msg("energy attribute not numeric, using state value")
		}
	}
	if v, ok := parseFloat(st.Value); ok {
		return v
	}
	log.Warn().Str("entity", st.EntityID).Str("value", st.Value).Msg("energy value not numeric, using 0")
	return 0
}

// ReadMaterial parses the primary value as a material reading, 0 on failure.
func ReadMaterial(st sensor.State) float64 {
	if v, ok := parseFloat(st.Value); ok {
		return v
	}
	log.Warn().Str("entity", st.EntityID).Str("value", st.Value).Msg("material value not numeric, using 0")
	return 0
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		return parseFloat(n.String())
	case string:
		return parseFloat(n)
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
