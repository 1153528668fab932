package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "jsonl", cfg.StoreBackend)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 10000.0, cfg.InitialCapital)
	assert.Equal(t, 5, cfg.MaxPauseMinutes)
	assert.Len(t, cfg.Thresholds, 3)
	assert.Equal(t, 5.0, cfg.Thresholds[0].Level)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("INITIAL_CAPITAL", "25000")
	t.Setenv("HEARTBEAT_INTERVAL_MS", "500")
	t.Setenv("STORE_BACKEND", "sqlite")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, 25000.0, cfg.InitialCapital)
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
}

func TestFileMergeAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
dry_run: false
initial_capital: 50000
pause_ms: 1000
phase_timeouts_ms:
  data: 2000
  api: 3000
retry:
  max_retries: 5
  base_delay_ms: 250
thresholds:
  - level: 8
    actions: [log, pause_trading]
    description: file-defined
`), 0o644)
	assert.NoError(t, err)

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INITIAL_CAPITAL", "60000") // env wins over file

	cfg, err := Load()
	assert.NoError(t, err)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, 60000.0, cfg.InitialCapital)
	assert.Equal(t, time.Second, cfg.PauseSeconds)
	assert.Equal(t, 2*time.Second, cfg.PhaseTimeouts.Data)
	assert.Equal(t, 3*time.Second, cfg.PhaseTimeouts.API)
	// Unset keys keep the default.
	assert.Equal(t, 15*time.Minute, cfg.PhaseTimeouts.Strategy)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)

	// File thresholds replace the stock set wholesale.
	assert.Len(t, cfg.Thresholds, 1)
	assert.Equal(t, 8.0, cfg.Thresholds[0].Level)
	assert.Equal(t, []string{"log", "pause_trading"}, cfg.Thresholds[0].Actions)
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
