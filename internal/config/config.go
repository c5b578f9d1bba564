// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	DatabaseURL   string
	RedisURL      string
	RedisPrefix   string
	WorkerURL     string
	Port          string
	LogLevel      string
	JWTSecret     string
	TopN          int
	DedupTTL      time.Duration
	GlobalPoolTTL time.Duration
	CollectCron   string
	YouTubeAPIKey string
	// DedupGlobal also checks a cross-channel fingerprint scope, so a topic
	// saved by one channel is skipped by the others.
	DedupGlobal bool
}

// Load reads configuration from environment variables. DATABASE_URL is
// the only required value.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	topN, err := intEnv("COLLECTOR_TOP_N", 5)
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, fmt.Errorf("COLLECTOR_TOP_N must be positive, got %d", topN)
	}
	dedupTTL, err := durationEnv("COLLECTOR_DEDUP_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	poolTTL, err := durationEnv("COLLECTOR_GLOBAL_POOL_TTL", 4*time.Hour)
	if err != nil {
		return nil, err
	}
	dedupGlobal, err := boolEnv("COLLECTOR_DEDUP_GLOBAL", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:   dsn,
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisPrefix:   stringEnv("REDIS_KEY_PREFIX", "bsforge"),
		WorkerURL:     stringEnv("PYTHON_WORKER_URL", "http://localhost:8000"),
		Port:          stringEnv("PORT", "8080"),
		LogLevel:      stringEnv("LOG_LEVEL", "info"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TopN:          topN,
		DedupTTL:      dedupTTL,
		GlobalPoolTTL: poolTTL,
		CollectCron:   stringEnv("COLLECTOR_CRON", "0 */3 * * *"),
		YouTubeAPIKey: strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		DedupGlobal:   dedupGlobal,
	}, nil
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
