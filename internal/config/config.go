package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string

	// Token signing key (base64 Ed25519 seed) and session lifetime.
	TokenSigningKey string
	SessionTTL      time.Duration

	// Presence: status records expire after this long without a heartbeat.
	PresenceTTL time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/wayfare.db"),
		TokenSigningKey: os.Getenv("TOKEN_SIGNING_KEY"),
		SessionTTL:      getDuration("SESSION_TTL", 30*24*time.Hour),
		PresenceTTL:     getDuration("PRESENCE_TTL", 90*time.Second),
	}

	// In production, require Postgres, Redis and a signing key. SQLite is a
	// development fallback only.
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.TokenSigningKey == "" {
			panic("TOKEN_SIGNING_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
