package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/crypto"
	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// SignInRequest represents the Google sign-in exchange body. The client
// completes the provider flow and posts the resulting identity here.
type SignInRequest struct {
	IDToken   string `json:"idToken"`
	Cancelled bool   `json:"cancelled,omitempty"`
	User      struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Photo string `json:"photo"`
	} `json:"user"`
}

// SignInResponse represents a successful sign-in.
type SignInResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// SignIn handles POST /auth/google: upserts the signed-in user and mints
// a session token. Only the bcrypt hash of the token is stored; the one
// active session per user means a fresh sign-in revokes older tokens.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// The provider flow reports user-cancelled sign-in as a distinct
	// outcome rather than a generic failure.
	if req.Cancelled {
		h.Error(w, http.StatusBadRequest, "sign-in cancelled")
		return
	}
	if req.IDToken == "" {
		h.Error(w, http.StatusBadRequest, "idToken is required")
		return
	}
	if req.User.ID == "" {
		h.Error(w, http.StatusBadRequest, "user.id is required")
		return
	}
	if !isValidEmail(req.User.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	user, err := h.db.UpsertUser(r.Context(), models.User{
		ID:       req.User.ID,
		Name:     sanitizeName(req.User.Name),
		Email:    req.User.Email,
		PhotoURL: req.User.Photo,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save user")
		return
	}

	token := crypto.SignToken(h.signKey, user.ID, h.sessionTTL)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if err := h.sessions.SaveSession(r.Context(), user.ID, string(hash), h.sessionTTL); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	metrics.SignIns.Inc()

	h.JSON(w, http.StatusOK, SignInResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.sessionTTL).UnixMilli(),
		User:      user,
	})
}

// SignOut handles POST /auth/logout: revokes the caller's session.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessions.DeleteSession(r.Context(), user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}
