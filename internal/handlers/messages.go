package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// SendMessageRequest represents the send-message body.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MessageListResponse represents the message list response.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// MarkReadResponse reports which messages were flagged read.
type MarkReadResponse struct {
	MessageIDs []string `json:"messageIds"`
}

// ListMessages handles GET /conversations/{id}/messages, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.requireParticipant(w, r, self.ID)
	if !ok {
		return
	}

	msgs, err := h.msgs.FetchMessages(r.Context(), conv.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	h.JSON(w, http.StatusOK, MessageListResponse{Messages: msgs})
}

// SendMessage handles POST /conversations/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.requireParticipant(w, r, self.ID)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Text) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "text too long (max 4096 bytes)")
		return
	}

	msg, err := h.msgs.SendMessage(r.Context(), chat.SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       self.ID,
		Text:           req.Text,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			h.Error(w, http.StatusBadRequest, "text is required")
		case errors.Is(err, chat.ErrConversationNotFound):
			h.Error(w, http.StatusNotFound, "conversation not found")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /conversations/{id}/read: flags everything the
// counterpart sent as read and clears the unread count.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.requireParticipant(w, r, self.ID)
	if !ok {
		return
	}

	ids, err := h.msgs.MarkAsRead(r.Context(), conv.ID, self.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	h.JSON(w, http.StatusOK, MarkReadResponse{MessageIDs: ids})
}
