// Package config loads ChoreMinder configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Database. A postgres:// URL selects PostgreSQL, a file path or
	// sqlite:// URL selects the embedded SQLite driver.
	DatabaseURL string

	// Redis backs the per-recipient rate-limit and cooldown counters.
	// Empty means the in-memory store is used.
	RedisURL string

	// RabbitMQ carries lifecycle events between processes. Empty means
	// the in-process bus is used.
	RabbitMQURL string

	// Worker
	WorkerHealthAddr string
	SweepSchedule    string        // cron expression for the dispatcher sweep
	GenerateSchedule string        // cron expression for daily instance generation
	GenerateHorizon  int           // days of instances to materialize ahead
	DueSoonLead      time.Duration // how far ahead a chore counts as due soon

	// Dispatcher
	SweepBatchSize      int
	DefaultMaxAttempts  int
	BreakerMaxFailures  uint32
	BreakerOpenDuration time.Duration

	// HTTP
	APIAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@hourly"),
		GenerateSchedule: getEnv("GENERATE_SCHEDULE", "30 2 * * *"),
		GenerateHorizon:  getIntEnv("GENERATE_HORIZON_DAYS", 14),
		DueSoonLead:      getDurationEnv("DUE_SOON_LEAD", time.Hour),

		SweepBatchSize:      getIntEnv("SWEEP_BATCH_SIZE", 200),
		DefaultMaxAttempts:  getIntEnv("DEFAULT_MAX_ATTEMPTS", 3),
		BreakerMaxFailures:  uint32(getIntEnv("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenDuration: getDurationEnv("BREAKER_OPEN_DURATION", 60*time.Second),

		APIAddr: getEnv("API_ADDR", "0.0.0.0:8080"),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
