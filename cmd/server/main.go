package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfarelabs/wayfare/internal/api"
	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/config"
	"github.com/wayfarelabs/wayfare/internal/crypto"
	"github.com/wayfarelabs/wayfare/internal/handlers"
	"github.com/wayfarelabs/wayfare/internal/presence"
	"github.com/wayfarelabs/wayfare/internal/queue"
	"github.com/wayfarelabs/wayfare/internal/realtime"
	"github.com/wayfarelabs/wayfare/internal/store"
)

const presenceSweepInterval = 15 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	signKey, err := crypto.ParseSigningKey(cfg.TokenSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid TOKEN_SIGNING_KEY, generate one with cmd/genkey")
	}

	// Primary store: PostgreSQL in production, SQLite fallback for
	// development.
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Redis backs change feeds, presence, sessions and the task queue.
	// Without it, everything runs in-process.
	var (
		redisStore  *store.RedisStore
		notifier    chat.Notifier
		statusStore presence.StatusStore
		sessions    store.SessionStore
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		notifier = redisStore
		statusStore = redisStore
		sessions = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		notifier = chat.NewMemoryNotifier()
		statusStore = presence.NewMemoryStore()
		sessions = store.NewMemorySessionStore()
		logger.Warn().Msg("no REDIS_URL, running with in-process feeds and sessions")
	}

	presenceChannel := presence.NewChannel(statusStore, cfg.PresenceTTL)
	go presenceChannel.RunSweeper(ctx, presenceSweepInterval)

	// Offline notices go through asynq when Redis is available.
	var pusher chat.Pusher
	if cfg.RedisURL != "" {
		client, err := queue.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("queue client failed")
		}
		defer client.Close()
		pusher = queue.NewNoticePusher(client)

		worker, err := queue.NewAsynqServer(cfg.RedisURL, 0, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("queue server failed")
		}
		queue.RegisterMessageNoticeTask(worker, db, logger)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("queue worker stopped")
			}
		}()
	}

	convRepo := chat.NewConversationRepo(db, notifier)
	msgRepo := chat.NewMessageRepo(db, notifier, presenceChannel, pusher)

	handler := handlers.NewHandler(handlers.Deps{
		DB:         db,
		Redis:      redisStore,
		Sessions:   sessions,
		Convs:      convRepo,
		Msgs:       msgRepo,
		Presence:   presenceChannel,
		SignKey:    signKey,
		SessionTTL: cfg.SessionTTL,
	})
	hub := realtime.NewHub(convRepo, msgRepo, presenceChannel, logger)

	router := api.NewRouter(api.RouterDeps{
		Logger:   logger,
		DB:       db,
		Redis:    redisStore,
		Sessions: sessions,
		Handler:  handler,
		Hub:      hub,
		PubKey:   signKey.Public().(ed25519.PublicKey),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting Wayfare server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
