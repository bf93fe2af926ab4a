// Package config parses the fixed, spec-enumerated set of recognized
// environment variables (spec.md §6) into a typed Config. Unlike a
// generic multi-source configuration loader, this system has a closed
// env var surface, so each variable is read and coerced explicitly
// rather than through a reflective key-mapping layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Backend names an Execution Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Config is the process's resolved startup configuration.
type Config struct {
	MemoryStoreFilePath   string
	ExecutionBackend      Backend
	ExecutionSQLitePath   string
	LogMinLevel           string
	TownCrierEnabled      bool
	TownCrierIntervalMS   int
	TownCrierMaxPerTick   int
	TownCrierRecentWindow int
	TownCrierDedupeWindow int
}

const (
	defaultMemoryStoreFilePath   = "world.json"
	defaultExecutionSQLitePath   = "execution.db"
	defaultTownCrierIntervalMS   = 5000
	defaultTownCrierMaxPerTick   = 3
	defaultTownCrierRecentWindow = 10
	defaultTownCrierDedupeWindow = 5
)

// Load reads the recognized environment variables, applying the
// documented defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		MemoryStoreFilePath:   getEnvOr("MEMORY_STORE_FILE_PATH", defaultMemoryStoreFilePath),
		ExecutionSQLitePath:   getEnvOr("EXECUTION_PERSISTENCE_SQLITE_PATH", defaultExecutionSQLitePath),
		LogMinLevel:           getEnvOr("LOG_MIN_LEVEL", "info"),
		TownCrierIntervalMS:   defaultTownCrierIntervalMS,
		TownCrierMaxPerTick:   defaultTownCrierMaxPerTick,
		TownCrierRecentWindow: defaultTownCrierRecentWindow,
		TownCrierDedupeWindow: defaultTownCrierDedupeWindow,
	}

	backend, err := parseBackend(getEnvOr("EXECUTION_PERSISTENCE_BACKEND", string(BackendMemory)))
	if err != nil {
		return nil, err
	}
	cfg.ExecutionBackend = backend

	if v, ok := os.LookupEnv("TOWN_CRIER_ENABLED"); ok {
		enabled, err := parseBool(v)
		if err != nil {
			return nil, fmt.Errorf("TOWN_CRIER_ENABLED: %w", err)
		}
		cfg.TownCrierEnabled = enabled
	}
	if err := parseIntEnv("TOWN_CRIER_INTERVAL_MS", &cfg.TownCrierIntervalMS); err != nil {
		return nil, err
	}
	if err := parseIntEnv("TOWN_CRIER_MAX_PER_TICK", &cfg.TownCrierMaxPerTick); err != nil {
		return nil, err
	}
	if err := parseIntEnv("TOWN_CRIER_RECENT_WINDOW", &cfg.TownCrierRecentWindow); err != nil {
		return nil, err
	}
	if err := parseIntEnv("TOWN_CRIER_DEDUPE_WINDOW", &cfg.TownCrierDedupeWindow); err != nil {
		return nil, err
	}

	if cfg.ExecutionBackend == BackendSQLite && strings.TrimSpace(cfg.ExecutionSQLitePath) == "" {
		return nil, fmt.Errorf("EXECUTION_PERSISTENCE_SQLITE_PATH is required when EXECUTION_PERSISTENCE_BACKEND=sqlite")
	}

	return cfg, nil
}

func parseBackend(v string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(v))) {
	case BackendMemory:
		return BackendMemory, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("EXECUTION_PERSISTENCE_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQLite, v)
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean value %q", v)
	}
}

func parseIntEnv(key string, dest *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dest = n
	return nil
}

func getEnvOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
