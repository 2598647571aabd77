package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/circuitd/circuitd/internal/api/models"
	"github.com/circuitd/circuitd/internal/api/response"
	"github.com/circuitd/circuitd/internal/circuit"
)

// AdminHandler handles administrative circuit operations. All routes are
// behind operator authentication.
type AdminHandler struct {
	breaker *circuit.Breaker
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(breaker *circuit.Breaker, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{breaker: breaker, logger: logger}
}

// ResetCircuit handles POST /v1/admin/circuits/{name}/reset - return a
// circuit to CLOSED and zero its counters.
func (h *AdminHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}

	h.breaker.Reset(r.Context(), name)
	h.logger.Info().
		Str("circuit", name).
		Str("operator", GetOperator(r.Context())).
		Msg("circuit reset by operator")

	response.JSON(w, r, http.StatusOK, h.breaker.Metrics(r.Context(), name))
}

// ForceState handles POST /v1/admin/circuits/{name}/state - pin a circuit
// to an explicit state regardless of its counters.
func (h *AdminHandler) ForceState(w http.ResponseWriter, r *http.Request) {
	name, ok := circuitName(w, r)
	if !ok {
		return
	}

	var input models.ForceStateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	state, err := circuit.ParseState(input.State)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "state", Message: "must be one of CLOSED, OPEN, HALF_OPEN", Code: "INVALID_VALUE"},
		})
		return
	}

	h.breaker.ForceState(r.Context(), name, state)
	h.logger.Info().
		Str("circuit", name).
		Str("state", string(state)).
		Str("operator", GetOperator(r.Context())).
		Msg("circuit state forced by operator")

	response.JSON(w, r, http.StatusOK, models.StateResponse{Circuit: name, State: state})
}

// GetDefaults handles GET /v1/admin/config - current default thresholds.
func (h *AdminHandler) GetDefaults(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.breaker.Defaults())
}

// UpdateDefaults handles PUT /v1/admin/config - replace the default
// thresholds applied to circuits without a per-call override. Fields
// omitted from the body keep their current values. Existing circuits pick
// up the new defaults on their next recorded outcome.
func (h *AdminHandler) UpdateDefaults(w http.ResponseWriter, r *http.Request) {
	cfg := h.breaker.Defaults()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if err := h.breaker.ConfigureDefaults(cfg); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	h.logger.Info().
		Interface("config", cfg).
		Str("operator", GetOperator(r.Context())).
		Msg("default circuit config updated")

	response.JSON(w, r, http.StatusOK, cfg)
}
