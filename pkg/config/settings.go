// Package config loads environment-driven settings for the simulation server.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Settings holds all environment configuration for the server process.
type Settings struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	PodID    string `env:"POD_ID"`

	// Redis backs both the simulation state store and the event fan-out.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// DATABASE_URL is optional; without it the rating store is disabled
	// and rating results are only delivered over the event stream.
	DatabaseURL string `env:"DATABASE_URL"`

	OracleAPIKey string `env:"ORACLE_API_KEY"`
	OracleModel  string `env:"ORACLE_MODEL" envDefault:"claude-sonnet-4-5"`

	JWTSecretKey     string `env:"JWT_SECRET_KEY" envDefault:"insecure-dev-secret"`
	JWTExpiryMinutes int    `env:"JWT_EXPIRY_MINUTES" envDefault:"1440"`

	WorkerCount             int           `env:"WORKER_COUNT" envDefault:"4"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	StateTTL time.Duration `env:"STATE_TTL" envDefault:"1h"`
}

// Load reads .env (if present) and parses Settings from the environment.
func Load(envPath string) (*Settings, error) {
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if s.WorkerCount < 1 {
		s.WorkerCount = 1
	}
	return s, nil
}
