package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/circuitd/circuitd/internal/api/models"
	"github.com/circuitd/circuitd/internal/api/response"
	"github.com/circuitd/circuitd/internal/circuit"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// CircuitHandler handles circuit read and outcome-reporting endpoints.
type CircuitHandler struct {
	breaker *circuit.Breaker
}

// NewCircuitHandler creates a new CircuitHandler.
func NewCircuitHandler(breaker *circuit.Breaker) *CircuitHandler {
	return &CircuitHandler{breaker: breaker}
}

// ListCircuits handles GET /v1/circuits - metrics for all known circuits.
func (h *CircuitHandler) ListCircuits(w http.ResponseWriter, r *http.Request) {
	all := h.breaker.AllMetrics(r.Context())

	list := models.CircuitList{
		Circuits: make([]circuit.Metrics, 0, len(all)),
		Count:    len(all),
	}
	for _, m := range all {
		list.Circuits = append(list.Circuits, m)
	}

	response.JSON(w, r, http.StatusOK, list)
}

// GetCircuit handles GET /v1/circuits/{name} - metrics for one circuit.
// Unknown circuits are created on first reference, so this never 404s.
func (h *CircuitHandler) GetCircuit(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}

	response.JSON(w, r, http.StatusOK, h.breaker.Metrics(r.Context(), name))
}

// GetState handles GET /v1/circuits/{name}/state - current state only.
// Reading the state evaluates pending recovery timeouts, so an OPEN
// circuit whose timeout has elapsed reports HALF_OPEN here.
func (h *CircuitHandler) GetState(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}

	state := h.breaker.State(r.Context(), name)
	response.JSON(w, r, http.StatusOK, models.StateResponse{Circuit: name, State: state})
}

// ListEvents handles GET /v1/circuits/{name}/events - event history,
// newest first. Supports ?limit= up to 1000 (default 100).
func (h *CircuitHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		if parsed > maxEventLimit {
			parsed = maxEventLimit
		}
		limit = parsed
	}

	events, err := h.breaker.Store().Events(r.Context(), name, limit)
	if err != nil {
		response.ServiceUnavailable(w, r, "event history is temporarily unavailable")
		return
	}
	if events == nil {
		events = []*circuit.Event{}
	}

	list := models.EventList{Circuit: name, Events: events, Count: len(events)}
	response.JSON(w, r, http.StatusOK, list)
}

// ReportSuccess handles POST /v1/circuits/{name}/success - record an
// externally observed success without wrapping the operation.
func (h *CircuitHandler) ReportSuccess(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}
	if _, ok := decodeReport(w, r); !ok {
		return
	}

	h.breaker.RecordSuccess(r.Context(), name)

	state := h.breaker.State(r.Context(), name)
	response.JSON(w, r, http.StatusOK, models.StateResponse{Circuit: name, State: state})
}

// ReportFailure handles POST /v1/circuits/{name}/failure - record an
// externally observed failure without wrapping the operation.
func (h *CircuitHandler) ReportFailure(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}
	input, ok := decodeReport(w, r)
	if !ok {
		return
	}

	reason := input.Reason
	if reason == "" {
		reason = "reported failure"
	}
	h.breaker.RecordFailure(r.Context(), name, errors.New(reason))

	state := h.breaker.State(r.Context(), name)
	response.JSON(w, r, http.StatusOK, models.StateResponse{Circuit: name, State: state})
}

// circuitName extracts and validates the {name} URL parameter, writing a
// 400 response when it is missing.
func circuitName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" {
		response.BadRequest(w, r, "circuit name is required", nil)
		return "", false
	}
	return name, true
}

// decodeReport decodes an optional ReportRequest body. An empty body is
// valid; malformed JSON is a 400.
func decodeReport(w http.ResponseWriter, r *http.Request) (models.ReportRequest, bool) {
	var input models.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return input, false
	}
	return input, true
}
