// Package handler provides HTTP handlers for the circuitd API.
package handler

import (
	"net/http"
	"time"

	"github.com/circuitd/circuitd/internal/api/models"
	"github.com/circuitd/circuitd/internal/api/response"
	"github.com/circuitd/circuitd/internal/circuit"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	store     circuit.Store
	storeName string
}

// NewOpsHandler creates a new OpsHandler. The store is probed by the
// readiness check; storeName identifies the configured backend.
func NewOpsHandler(version, buildTime string, store circuit.Store, storeName string) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		store:     store,
		storeName: storeName,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Probes the state store; a failing store degrades readiness but does not
// fail it, since the breaker keeps serving decisions from memory.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	storeStatus := models.SubsystemStatus{Name: h.storeName, Status: models.HealthStatusOK}
	if err := h.store.Ping(r.Context()); err != nil {
		detail := err.Error()
		storeStatus.Status = models.HealthStatusFail
		storeStatus.Detail = &detail
		ready.Status = models.HealthStatusDegraded
	}
	ready.Subsystems = append(ready.Subsystems, storeStatus)

	response.JSON(w, r, http.StatusOK, ready)
}
