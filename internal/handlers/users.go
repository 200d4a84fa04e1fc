package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// UserListResponse represents the user list response.
type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

// ListUsers handles GET /users: every registered user except the caller,
// with presence resolved when available.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	self := middleware.GetUserFromContext(r.Context())
	if self == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	users, err := h.db.ListUsers(r.Context(), self.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := UserListResponse{Users: make([]UserResponse, 0, len(users))}
	statuses := h.resolveStatuses(r, users)
	for _, user := range users {
		item := UserResponse{
			ID:       user.ID,
			Name:     user.Name,
			Email:    user.Email,
			PhotoURL: user.PhotoURL,
		}
		if status, ok := statuses[user.ID]; ok {
			item.Online = status.Online
			item.LastSeen = status.LastSeen
		}
		resp.Users = append(resp.Users, item)
	}

	h.JSON(w, http.StatusOK, resp)
}

func (h *Handler) resolveStatuses(r *http.Request, users []models.User) map[string]models.UserStatus {
	if h.presence == nil {
		return nil
	}
	ids := make([]string, len(users))
	for i, user := range users {
		ids[i] = user.ID
	}
	statuses, err := h.presence.Statuses(r.Context(), ids)
	if err != nil {
		return nil
	}
	out := make(map[string]models.UserStatus, len(statuses))
	for _, status := range statuses {
		out[status.UserID] = status
	}
	return out
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.db.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	item := UserResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
	}
	if h.presence != nil {
		if online, err := h.presence.IsOnline(r.Context(), user.ID); err == nil {
			item.Online = online
		}
	}

	h.JSON(w, http.StatusOK, item)
}
