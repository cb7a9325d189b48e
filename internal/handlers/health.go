package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/candles-cuddles/api/internal/repositories"
)

const readinessTimeout = 2 * time.Second

// HealthHandlers exposes liveness and readiness probes.
type HealthHandlers struct {
	health repositories.HealthRepository
}

// NewHealthHandlers constructs the health handlers. A nil repository makes
// readiness report ready unconditionally.
func NewHealthHandlers(health repositories.HealthRepository) *HealthHandlers {
	return &HealthHandlers{health: health}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the datastore is reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.health.Check(ctx); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": err.Error(),
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
