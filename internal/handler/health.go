package handler

import (
	"net/http"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/transport"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	transport *transport.Manager
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(mgr *transport.Manager) *HealthHandler {
	return &HealthHandler{
		transport: mgr,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if state := h.transport.State(); state != transport.StateConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "transport " + string(state),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
