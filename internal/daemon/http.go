package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/theirongolddev/printmeter/internal/config"
	"github.com/theirongolddev/printmeter/internal/sensor"
	"github.com/theirongolddev/printmeter/internal/tracker"
)

// StateUpdate is the body of POST /v1/states.
type StateUpdate struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Available  *bool          `json:"available,omitempty"`
}

// CostUpdate is the body of PUT /v1/printers/{id}/costs.
type CostUpdate struct {
	EnergyCostSensor     string   `json:"energy_cost_sensor"`
	MaterialCostPerSpool float64  `json:"material_cost_per_spool"`
	MaterialSpoolLength  *float64 `json:"material_spool_length,omitempty"`
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/printers", s.handlePrinters)
	mux.HandleFunc("GET /v1/printers/{id}", s.handlePrinter)
	mux.HandleFunc("POST /v1/printers/{id}/reset", s.handleReset)
	mux.HandleFunc("PUT /v1/printers/{id}/costs", s.handleCosts)
	mux.HandleFunc("GET /v1/states", s.handleStates)
	mux.HandleFunc("POST /v1/states", s.handleSetState)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/ws", s.handleWebsocket)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Service) instance(w http.ResponseWriter, r *http.Request) (*tracker.Instance, bool) {
	inst, err := s.reg.Get(r.PathValue("id"))
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, tracker.ErrUnknownPrinter) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return nil, false
	}
	return inst, true
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handlePrinters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus().Printers)
}

func (s *Service) handlePrinter(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.printerStatus(inst))
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := inst.Accountant.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.printerStatus(inst))
}

func (s *Service) handleCosts(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	var body CostUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	costs := config.CostParams{
		EnergyCostSensor:     body.EnergyCostSensor,
		MaterialCostPerSpool: body.MaterialCostPerSpool,
		MaterialSpoolLength:  body.MaterialSpoolLength,
	}
	if err := inst.Accountant.Config().WithCosts(costs).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst.UpdateCosts(r.Context(), costs)
	writeJSON(w, http.StatusOK, s.printerStatus(inst))
}

func (s *Service) handleStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.All())
}

func (s *Service) handleSetState(w http.ResponseWriter, r *http.Request) {
	var body StateUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if strings.TrimSpace(body.EntityID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("entity_id is required"))
		return
	}
	st := sensor.NewState(body.EntityID, body.State, body.Attributes)
	if body.Available != nil && !*body.Available {
		st.Available = false
	}
	changed := s.hub.Set(st)
	log.Debug().Str("entity", st.EntityID).Str("state", st.Value).Bool("changed", changed).Msg("state pushed")

	current, _ := s.hub.Get(st.EntityID)
	writeJSON(w, http.StatusOK, current)
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

// currentEvents returns a snapshot event per printer for new subscribers.
func (s *Service) currentEvents() []Event {
	now := time.Now()
	var out []Event
	for _, snap := range s.reg.Snapshots() {
		out = append(out, Event{Type: EventSnapshot, Timestamp: now, PrinterID: snap.PrinterID, Snapshot: snap})
	}
	return out
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	for _, ev := range s.currentEvents() {
		writeSSE(w, ev)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// The client never sends; CloseRead surfaces its disconnect as ctx.Done.
	ctx := conn.CloseRead(r.Context())

	for _, ev := range s.currentEvents() {
		if err := writeWS(ctx, conn, ev); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "done")
			return
		case ev := <-ch:
			if err := writeWS(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}
