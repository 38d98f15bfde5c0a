// Package config loads server settings from the environment and an optional .env file
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the server configuration
type Config struct {
	Port   string
	DBPath string

	LogLevel       string
	LogFormat      string
	LogDevelopment bool

	SessionKey             string
	SessionEncryptionKey   string
	SessionCleanupSchedule string

	MaxUploadMB       int
	QuoteHistoryLimit int
	SeedDemoData      bool
}

// Load reads .env files if present, then the environment. Files listed in
// paths are optional; variables already set in the environment win.
func Load(paths ...string) (*Config, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	config := &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 getEnv("DB_PATH", "tariff-helpers.db"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		LogDevelopment:         getEnvAsBool("LOG_DEVELOPMENT", false),
		SessionKey:             getEnv("SESSION_KEY", ""),
		SessionEncryptionKey:   getEnv("SESSION_ENCRYPTION_KEY", ""),
		SessionCleanupSchedule: getEnv("SESSION_CLEANUP_SCHEDULE", "@hourly"),
		MaxUploadMB:            getEnvAsInt("MAX_UPLOAD_MB", 10),
		QuoteHistoryLimit:      getEnvAsInt("QUOTE_HISTORY_LIMIT", 10),
		SeedDemoData:           getEnvAsBool("SEED_DEMO_DATA", false),
	}

	if config.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", config.MaxUploadMB)
	}
	if config.QuoteHistoryLimit <= 0 {
		return nil, fmt.Errorf("QUOTE_HISTORY_LIMIT must be positive, got %d", config.QuoteHistoryLimit)
	}

	return config, nil
}

// MaxUploadBytes is the upload size limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
