package api

import (
	"crypto/ed25519"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/handlers"
	"github.com/wayfarelabs/wayfare/internal/realtime"
	"github.com/wayfarelabs/wayfare/internal/store"
)

// RouterDeps bundles what the router needs. Redis and Hub may be nil in
// development; rate limiting is skipped without Redis.
type RouterDeps struct {
	Logger   zerolog.Logger
	DB       store.DataStore
	Redis    *store.RedisStore
	Sessions store.SessionStore
	Handler  *handlers.Handler
	Hub      *realtime.Hub
	PubKey   ed25519.PublicKey
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if d.Redis != nil {
		limiter := middleware.NewRateLimiter(d.Redis.Client(), d.Logger, middleware.RateLimiterConfig{})
		r.Use(limiter.Middleware)
	}

	// CORS - the app calls from device webviews and dev servers
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := d.Handler
	auth := middleware.NewAuthMiddleware(d.DB, d.Sessions, d.PubKey)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/auth/google", h.SignIn)

	// Authenticated routes (require a valid session token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/auth/logout", h.SignOut)

		r.Get("/users", h.ListUsers)
		r.Get("/users/{id}", h.GetUser)

		r.Get("/conversations", h.ListConversations)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Post("/conversations/{id}/read", h.MarkRead)

		r.Get("/logs", h.ListTravelLogs)
		r.Post("/logs", h.CreateTravelLog)
		r.Get("/logs/search", h.SearchTravelLogs)

		if d.Hub != nil {
			r.Get("/ws", d.Hub.ServeWS)
		}
	})

	return r
}
