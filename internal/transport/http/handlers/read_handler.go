package handlers

import (
	"net/http"

	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/service"
	"github.com/vedran77/pulsecore/internal/transport/http/middleware"
)

// ReadHandler serves the conversation list and read state.
type ReadHandler struct {
	delivery *service.Delivery
	log      *logger.Logger
}

func NewReadHandler(delivery *service.Delivery, log *logger.Logger) *ReadHandler {
	return &ReadHandler{delivery: delivery, log: log}
}

func (h *ReadHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	list, err := h.delivery.Conversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (h *ReadHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ref, ok := conversation(w, r)
	if !ok {
		return
	}

	state, err := h.delivery.Unread(r.Context(), userID, ref)
	if err != nil {
		writeServiceError(w, r, h.log, "unread count", err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *ReadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	advanced, err := h.delivery.MarkRead(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, h.log, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"advanced": advanced})
}

func (h *ReadHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ref, ok := conversation(w, r)
	if !ok {
		return
	}

	upTo, err := h.delivery.MarkAllRead(r.Context(), userID, ref)
	if err != nil {
		writeServiceError(w, r, h.log, "mark all read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"last_read_message_id": upTo})
}
