// Package handler provides the HTTP facade the agent console consumes.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/engine"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/middleware"
	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
	"github.com/TI-Wegen/crmApi-front-sub000/pkg/logger"
)

// ConversationHandler exposes the sync engine's conversation operations.
type ConversationHandler struct {
	engine    *engine.Engine
	agentName string
	logger    *logger.Logger
}

// NewConversationHandler creates a new conversation handler. agentName is the
// configured identity of the agent this daemon runs for.
func NewConversationHandler(eng *engine.Engine, agentName string, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		engine:    eng,
		agentName: agentName,
		logger:    log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if term := r.URL.Query().Get("search"); term != "" {
		if err := middleware.ValidateSearchTerm(term); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.engine.SearchConversations(ctx, term); err != nil {
			writeError(w, r, http.StatusBadGateway, "search failed")
			return
		}
	} else if status := model.ConversationStatus(r.URL.Query().Get("status")); status != "" {
		if !status.IsValid() {
			writeError(w, r, http.StatusBadRequest, "invalid status filter")
			return
		}
		if err := h.engine.FilterByStatus(ctx, status); err != nil {
			writeError(w, r, http.StatusBadGateway, "filter failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": h.engine.Conversations(),
		"active_id":     h.engine.ActiveConversation(),
	})
}

// LoadMore handles POST /api/v1/conversations/load-more
func (h *ConversationHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.LoadMoreConversations(r.Context()); err != nil {
		h.logger.Error("load more conversations failed")
		writeError(w, r, http.StatusBadGateway, "load more failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": h.engine.Conversations(),
	})
}

// Select handles POST /api/v1/conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SelectConversation(r.Context(), conversationID); err != nil {
		writeError(w, r, http.StatusBadGateway, "failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_id": h.engine.ActiveConversation(),
		"messages":  h.engine.Messages(),
	})
}

// ClearSelection handles DELETE /api/v1/conversations/selection
func (h *ConversationHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SelectConversation(r.Context(), ""); err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to clear selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/v1/conversations/active/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if h.engine.ActiveConversation() == "" {
		writeError(w, r, http.StatusNotFound, "no conversation selected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": h.engine.ActiveConversation(),
		"messages":        h.engine.Messages(),
	})
}

// LoadOlderMessages handles POST /api/v1/conversations/active/messages/load-more
func (h *ConversationHandler) LoadOlderMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.LoadMoreMessages(r.Context()); err != nil {
		if errors.Is(err, model.ErrNoSelection) {
			writeError(w, r, http.StatusNotFound, "no conversation selected")
			return
		}
		writeError(w, r, http.StatusBadGateway, "failed to load older messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": h.engine.Messages(),
	})
}

// Send handles POST /api/v1/conversations/active/messages
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.SendMessage(r.Context(), req.Content, req.AttachmentURL)
	if err != nil {
		if errors.Is(err, model.ErrNoSelection) {
			writeError(w, r, http.StatusNotFound, "no conversation selected")
			return
		}
		// The optimistic entry stays in the list, flagged failed.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "send failed",
			"message": msg,
		})
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Resolve handles POST /api/v1/conversations/active/resolve
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resolve(r.Context()); err != nil {
		if errors.Is(err, model.ErrNoSelection) {
			writeError(w, r, http.StatusNotFound, "no conversation selected")
			return
		}
		writeError(w, r, http.StatusBadGateway, "resolve failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transfer handles POST /api/v1/conversations/active/transfer
func (h *ConversationHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, r, http.StatusBadRequest, "invalid transfer target")
		return
	}

	if err := h.engine.Transfer(r.Context(), req.Target); err != nil {
		if errors.Is(err, model.ErrNoSelection) {
			writeError(w, r, http.StatusNotFound, "no conversation selected")
			return
		}
		writeError(w, r, http.StatusBadGateway, "transfer failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/v1/status
func (h *ConversationHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connection": h.engine.ConnectionState(),
		"active_id":  h.engine.ActiveConversation(),
		"agent":      h.agentName,
	})
}
