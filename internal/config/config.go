package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// Engine tuning. Defaults match the client contract: a 15-row initial
	// page and a 50-entry in-memory bound.
	FetchLimit  int
	BufferLimit int

	WriteTimeout time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   getEnv("JWT_SECRET", "12345"),
	}

	var err error
	cfg.FetchLimit, err = parseInt(getEnv("NOTIFICATION_FETCH_LIMIT", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_FETCH_LIMIT: %w", err)
	}
	cfg.BufferLimit, err = parseInt(getEnv("NOTIFICATION_BUFFER_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFICATION_BUFFER_LIMIT: %w", err)
	}
	cfg.WriteTimeout, err = time.ParseDuration(getEnv("WS_WRITE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
