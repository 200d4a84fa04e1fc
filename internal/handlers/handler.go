package handlers

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/presence"
	"github.com/wayfarelabs/wayfare/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db         store.DataStore
	redis      *store.RedisStore
	sessions   store.SessionStore
	convs      *chat.ConversationRepo
	msgs       *chat.MessageRepo
	presence   *presence.Channel
	signKey    ed25519.PrivateKey
	sessionTTL time.Duration
}

// Deps bundles the handler's dependencies. redis may be nil when running
// without Redis.
type Deps struct {
	DB         store.DataStore
	Redis      *store.RedisStore
	Sessions   store.SessionStore
	Convs      *chat.ConversationRepo
	Msgs       *chat.MessageRepo
	Presence   *presence.Channel
	SignKey    ed25519.PrivateKey
	SessionTTL time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:         d.DB,
		redis:      d.Redis,
		sessions:   d.Sessions,
		convs:      d.Convs,
		msgs:       d.Msgs,
		presence:   d.Presence,
		signKey:    d.SignKey,
		sessionTTL: d.SessionTTL,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
