package middleware

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarelabs/wayfare/internal/crypto"
	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// AuthMiddleware verifies bearer session tokens on authenticated
// endpoints. A token is valid when its Ed25519 signature checks out, it
// has not expired, and it matches the bcrypt hash of the user's active
// session.
type AuthMiddleware struct {
	db       store.DataStore
	sessions store.SessionStore
	pub      ed25519.PublicKey
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(db store.DataStore, sessions store.SessionStore, pub ed25519.PublicKey) *AuthMiddleware {
	return &AuthMiddleware{
		db:       db,
		sessions: sessions,
		pub:      pub,
	}
}

// RequireAuth middleware verifies the Authorization bearer token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := crypto.VerifyToken(m.pub, token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		// The token must match the active session: signing out or signing
		// in elsewhere revokes older tokens even before they expire.
		hash, err := m.sessions.GetSessionHash(r.Context(), userID)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "session lookup failed")
			return
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			jsonError(w, http.StatusUnauthorized, "session revoked")
			return
		}

		user, err := m.db.GetUserByID(r.Context(), userID)
		if err != nil || user == nil {
			jsonError(w, http.StatusUnauthorized, "user not found")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for websocket upgrades where clients
// cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return token, true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
