package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/service"
	"github.com/vedran77/pulsecore/internal/transport/http/middleware"
	"github.com/vedran77/pulsecore/pkg/validator"
)

type MessageHandler struct {
	delivery *service.Delivery
	log      *logger.Logger
}

func NewMessageHandler(delivery *service.Delivery, log *logger.Logger) *MessageHandler {
	return &MessageHandler{delivery: delivery, log: log}
}

type SendMessageRequest struct {
	Content     string   `json:"content"`
	ContentType string   `json:"content_type"`
	Attachments []string `json:"attachments"`
	ParentID    *int64   `json:"parent_id,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

// conversation resolves the path into a conversation ref: /channels/{id}
// or /direct/{userId}, where the direct pair is the caller plus userId.
func conversation(w http.ResponseWriter, r *http.Request) (domain.ConversationRef, bool) {
	if r.PathValue("userId") != "" {
		peer, ok := pathID(w, r, "userId", "user")
		if !ok {
			return domain.ConversationRef{}, false
		}
		me := middleware.GetUserID(r.Context())
		if peer == me {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Cannot open a direct conversation with yourself")
			return domain.ConversationRef{}, false
		}
		return domain.DirectRef(me, peer), true
	}
	id, ok := pathID(w, r, "id", "channel")
	if !ok {
		return domain.ConversationRef{}, false
	}
	return domain.ChannelRef(id), true
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ref, ok := conversation(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "Limit must be a number")
			return
		}
		limit = l
	}

	page, err := h.delivery.Timeline(r.Context(), userID, ref, q.Get("cursor"), limit, domain.Direction(q.Get("direction")))
	if err != nil {
		writeServiceError(w, r, h.log, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ref, ok := conversation(w, r)
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

	msg, err := h.delivery.Send(r.Context(), service.AppendInput{
		Conversation:   ref,
		AuthorID:       userID,
		Content:        input.Content,
		ContentType:    domain.ContentType(input.ContentType),
		ParentID:       input.ParentID,
		Attachments:    input.Attachments,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(w, r, h.log, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	msg, err := h.delivery.Message(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, h.log, "get message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	var input EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateEdit(input.Content); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.delivery.Edit(r.Context(), userID, messageID, input.Content)
	if err != nil {
		writeServiceError(w, r, h.log, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	if err := h.delivery.Delete(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, r, h.log, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	edits, err := h.delivery.History(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, h.log, "message history", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"edits": edits})
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, true)
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	h.reaction(w, r, false)
}

func (h *MessageHandler) reaction(w http.ResponseWriter, r *http.Request, add bool) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}
	emoji := r.PathValue("emoji")
	if errs := validator.ValidateEmoji(emoji); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	var err error
	if add {
		err = h.delivery.React(r.Context(), userID, messageID, emoji)
	} else {
		err = h.delivery.Unreact(r.Context(), userID, messageID, emoji)
	}
	if err != nil {
		writeServiceError(w, r, h.log, "reaction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

func (h *MessageHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *MessageHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathID(w, r, "id", "message")
	if !ok {
		return
	}

	msg, err := h.delivery.SetPinned(r.Context(), userID, messageID, pinned)
	if err != nil {
		writeServiceError(w, r, h.log, "pin message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Pinned(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ref, ok := conversation(w, r)
	if !ok {
		return
	}

	messages, err := h.delivery.Pinned(r.Context(), userID, ref)
	if err != nil {
		writeServiceError(w, r, h.log, "list pins", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
