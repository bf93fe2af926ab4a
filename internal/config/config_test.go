package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"MEMORY_STORE_FILE_PATH", "EXECUTION_PERSISTENCE_BACKEND",
		"EXECUTION_PERSISTENCE_SQLITE_PATH", "LOG_MIN_LEVEL",
		"TOWN_CRIER_ENABLED", "TOWN_CRIER_INTERVAL_MS",
		"TOWN_CRIER_MAX_PER_TICK", "TOWN_CRIER_RECENT_WINDOW",
		"TOWN_CRIER_DEDUPE_WINDOW",
	}
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.ExecutionBackend)
	require.Equal(t, "world.json", cfg.MemoryStoreFilePath)
	require.Equal(t, "info", cfg.LogMinLevel)
	require.False(t, cfg.TownCrierEnabled)
	require.Equal(t, defaultTownCrierIntervalMS, cfg.TownCrierIntervalMS)
}

func TestLoadSQLiteBackend(t *testing.T) {
	clearEnv(t)
	os.Setenv("EXECUTION_PERSISTENCE_BACKEND", "sqlite")
	os.Setenv("EXECUTION_PERSISTENCE_SQLITE_PATH", "/tmp/exec.db")
	os.Setenv("TOWN_CRIER_ENABLED", "true")
	os.Setenv("TOWN_CRIER_MAX_PER_TICK", "7")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendSQLite, cfg.ExecutionBackend)
	require.Equal(t, "/tmp/exec.db", cfg.ExecutionSQLitePath)
	require.True(t, cfg.TownCrierEnabled)
	require.Equal(t, 7, cfg.TownCrierMaxPerTick)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	os.Setenv("EXECUTION_PERSISTENCE_BACKEND", "postgres")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadInt(t *testing.T) {
	clearEnv(t)
	os.Setenv("TOWN_CRIER_INTERVAL_MS", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}
