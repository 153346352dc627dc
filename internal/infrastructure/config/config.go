package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the relay.
type Config struct {
	Port string
	Env  string

	DatabaseURL string
	RedisURL    string

	// Auth
	JWTSecret string

	// Upstream completion provider
	UpstreamURL    string
	UpstreamAPIKey string
	UpstreamModel  string

	// Heartbeat
	PingInterval time.Duration
}

// Load reads configuration from environment variables, loading a .env
// file first when present. Production requires the database, redis, and
// JWT secret to be set.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		UpstreamURL:    getEnv("UPSTREAM_URL", "http://localhost:4000"),
		UpstreamAPIKey: os.Getenv("UPSTREAM_API_KEY"),
		UpstreamModel:  getEnv("UPSTREAM_MODEL", "gpt-4o-mini"),
		PingInterval:   30 * time.Second,
	}

	if d, err := time.ParseDuration(os.Getenv("PING_INTERVAL")); err == nil && d > 0 {
		cfg.PingInterval = d
	}

	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
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
