// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"duck-link/internal/dialect"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultBackend  = "duckdb"
	DefaultMaxPairs = 1e6
)

// Config holds the run configuration shared by every command.
type Config struct {
	Backend           string // dialect name of the execution engine (default "duckdb")
	DSN               string // data source name; empty selects an in-memory database
	MaxPairs          float64
	Seed              *int64 // nil leaves random sampling unseeded
	SaltingPartitions int
	LogLevel          string // log level: debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Dialect resolves the configured backend.
func (c *Config) Dialect() (dialect.Dialect, error) {
	return dialect.Resolve(c.Backend)
}

// LoadFromEnv loads configuration from environment variables. Unparseable
// numbers fall back to their default and are reported in Warnings.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Backend:           strings.ToLower(strings.TrimSpace(os.Getenv("LINK_BACKEND"))),
		DSN:               os.Getenv("LINK_DSN"),
		MaxPairs:          DefaultMaxPairs,
		SaltingPartitions: runtime.NumCPU(),
		LogLevel:          os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("LINK_MAX_PAIRS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring LINK_MAX_PAIRS=%q, using %g", v, DefaultMaxPairs))
		} else {
			cfg.MaxPairs = f
		}
	}
	if v := os.Getenv("LINK_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("LINK_SEED must be an integer, got %q", v)
		}
		cfg.Seed = &n
	}
	if v := os.Getenv("LINK_SALTING_PARTITIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring LINK_SALTING_PARTITIONS=%q, using %d", v, cfg.SaltingPartitions))
		} else {
			cfg.SaltingPartitions = n
		}
	}

	// Defaults
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := cfg.Dialect(); err != nil {
		return nil, fmt.Errorf("LINK_BACKEND: %w", err)
	}
	if cfg.Backend == "postgres" && cfg.DSN == "" {
		return nil, fmt.Errorf("LINK_DSN is required for the postgres backend")
	}
	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
