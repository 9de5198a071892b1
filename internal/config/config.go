// Package config loads process configuration from environment variables
// and the optional YAML file of reminder defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"fitremind/internal/models"

	"gopkg.in/yaml.v3"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

const defaultOrigins = "http://localhost:80,http://localhost:5173"

type Config struct {
	Port     string
	LogLevel slog.Level

	// Settings storage
	StoreDriver  string
	DatabaseURL  string
	SettingsFile string
	RedisURL     string
	SettingsKey  string

	// Web push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	ActionTokenSecret string
	SnoozeMinutes     int
	EntryRoute        string

	// Background wakeups
	WakeBudget          time.Duration
	PeriodicSync        bool
	PeriodicInterval    time.Duration
	MinPeriodicInterval time.Duration
	WakeRate            float64
	WakeBurst           int

	AllowedOrigins string

	// Defaults seeds the store when nothing was saved yet.
	RemindersFile string
	Defaults      models.ReminderConfig
}

// Load reads the environment. Call godotenv first if a .env file is used.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     envOr("PORT", "3000"),
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),

		StoreDriver:  strings.ToLower(envOr("STORE_DRIVER", DriverSQLite)),
		DatabaseURL:  envOr("DATABASE_URL", "./data/fitremind.db"),
		SettingsFile: envOr("SETTINGS_FILE", "./data/settings.json"),
		RedisURL:     envOr("REDIS_URL", ""),
		SettingsKey:  envOr("SETTINGS_KEY", "default"),

		VAPIDPublicKey:  envOr("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: envOr("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    envOr("VAPID_SUBJECT", ""),

		ActionTokenSecret: envOr("ACTION_TOKEN_SECRET", ""),
		SnoozeMinutes:     envInt("SNOOZE_MINUTES", 15),
		EntryRoute:        envOr("ENTRY_ROUTE", "/"),

		WakeBudget:          envDuration("WAKE_BUDGET", 10*time.Second),
		PeriodicSync:        envBool("PERIODIC_SYNC", true),
		PeriodicInterval:    envDuration("PERIODIC_INTERVAL", time.Minute),
		MinPeriodicInterval: envDuration("MIN_PERIODIC_INTERVAL", 0),
		WakeRate:            envFloat("WAKE_RATE", 1),
		WakeBurst:           envInt("WAKE_BURST", 5),

		AllowedOrigins: normalizeOrigins(os.Getenv("ALLOWED_ORIGINS")),
		RemindersFile:  envOr("REMINDERS_FILE", ""),
	}

	switch cfg.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverFile, DriverMemory:
	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL must be set when STORE_DRIVER=redis")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.SnoozeMinutes <= 0 {
		return nil, fmt.Errorf("SNOOZE_MINUTES must be positive, got %d", cfg.SnoozeMinutes)
	}

	defaults, err := LoadDefaults(cfg.RemindersFile)
	if err != nil {
		return nil, err
	}
	cfg.Defaults = defaults
	return cfg, nil
}

// VAPIDConfigured reports whether web push can be used.
func (c *Config) VAPIDConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != "" && c.VAPIDSubject != ""
}

// UsesDefaultOrigins is true when ALLOWED_ORIGINS was not set.
func (c *Config) UsesDefaultOrigins() bool {
	return c.AllowedOrigins == defaultOrigins
}

// LoadDefaults reads reminder defaults from a YAML file, field by field over
// models.DefaultConfig. An empty path returns the built-in defaults.
func LoadDefaults(path string) (models.ReminderConfig, error) {
	cfg := models.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read reminders file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return models.DefaultConfig(), fmt.Errorf("parse reminders file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return models.DefaultConfig(), fmt.Errorf("reminders file %s: %w", path, err)
	}
	return cfg, nil
}

func normalizeOrigins(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultOrigins
	}
	if raw == "*" {
		return raw
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s") and bare seconds ("90").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return l
}
