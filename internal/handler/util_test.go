package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/middleware"
)

func TestWriteErrorCarriesCorrelationID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	ctx := context.WithValue(req.Context(), middleware.CorrelationIDKey, "corr-123")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	writeError(rec, req, 404, "no conversation selected")

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var body errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "no conversation selected" {
		t.Errorf("error = %q", body.Error)
	}
	if body.CorrelationID != "corr-123" {
		t.Errorf("correlation_id = %q, want corr-123", body.CorrelationID)
	}
}

func TestWriteErrorWithoutCorrelationID(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/", nil), 400, "bad request")

	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, present := raw["correlation_id"]; present {
		t.Error("empty correlation_id not omitted from the envelope")
	}
}
