package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/service"
	"github.com/vedran77/pulsecore/internal/transport/http/middleware"
	"github.com/vedran77/pulsecore/pkg/validator"
)

type ThreadHandler struct {
	delivery *service.Delivery
	log      *logger.Logger
}

func NewThreadHandler(delivery *service.Delivery, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{delivery: delivery, log: log}
}

func (h *ThreadHandler) Replies(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rootID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	replies, err := h.delivery.Replies(r.Context(), userID, rootID)
	if err != nil {
		writeServiceError(w, r, h.log, "list replies", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": replies})
}

func (h *ThreadHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rootID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}
	key, ok := idempotencyKey(w, r)
	if !ok {
		return
	}

	var input SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateMessage(input.Content, input.ContentType, input.Attachments); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.delivery.Reply(r.Context(), service.ReplyInput{
		RootID:         rootID,
		AuthorID:       userID,
		Content:        input.Content,
		ContentType:    domain.ContentType(input.ContentType),
		Attachments:    input.Attachments,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, r, h.log, "reply", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *ThreadHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rootID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	sum, err := h.delivery.Thread(r.Context(), userID, rootID)
	if err != nil {
		writeServiceError(w, r, h.log, "thread summary", err)
		return
	}

	writeJSON(w, http.StatusOK, sum)
}
