package handler

import (
	"encoding/json"
	"net/http"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/middleware"
)

// errorEnvelope is the facade's error body. The correlation id mirrors the
// X-Correlation-ID response header so console logs can be joined to ours.
type errorEnvelope struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope for the request.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorEnvelope{
		Error:         message,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	})
}
