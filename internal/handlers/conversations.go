package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// CreateConversationRequest represents the create-conversation body.
type CreateConversationRequest struct {
	ParticipantID string `json:"participantId"`
}

// ConversationListResponse represents the conversation list response.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// ListConversations handles GET /conversations: the caller's
// conversations, most recently active first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, err := h.convs.FetchConversations(r.Context(), self.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: convs})
}

// CreateConversation handles POST /conversations: reuses the existing
// conversation with the given participant or creates one. 201 on create,
// 200 on reuse.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ParticipantID == "" {
		h.Error(w, http.StatusBadRequest, "participantId is required")
		return
	}
	if req.ParticipantID == self.ID {
		h.Error(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}

	other, err := h.db.GetUserByID(r.Context(), req.ParticipantID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "participant not found")
		return
	}

	conv, created, err := h.convs.FindOrCreateConversation(r.Context(), self.ID, req.ParticipantID)
	if err != nil {
		if errors.Is(err, chat.ErrBadParticipants) {
			h.Error(w, http.StatusBadRequest, "invalid participants")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		metrics.ConversationsCreated.Inc()
	}
	h.JSON(w, status, conv)
}

// GetConversation handles GET /conversations/{id}. Participants only.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.requireParticipant(w, r, self.ID)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, conv)
}

// requireParticipant loads the conversation from the URL and checks the
// caller is one of its two participants. Writes the error response itself.
func (h *Handler) requireParticipant(w http.ResponseWriter, r *http.Request, userID string) (*models.Conversation, bool) {
	id := chi.URLParam(r, "id")

	conv, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if !conv.HasParticipant(userID) {
		h.Error(w, http.StatusForbidden, "not a participant")
		return nil, false
	}
	return conv, true
}
