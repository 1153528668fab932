// Package config provides configuration for the workflow runner. Scalar
// settings come from the environment; structured settings (circuit-breaker
// thresholds, per-phase budgets) come from an optional YAML file. The
// environment wins where both define a value. Durations are configured in
// milliseconds, matching the env variable names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ThresholdConfig declares one circuit-breaker drawdown threshold.
type ThresholdConfig struct {
	Level       float64  `yaml:"level"`
	Actions     []string `yaml:"actions"`
	Description string   `yaml:"description"`
}

// RetryConfig controls retry-with-backoff for flaky sub-operations.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// PhaseTimeouts holds the wall-clock budget for each phase.
type PhaseTimeouts struct {
	Data     time.Duration
	Strategy time.Duration
	API      time.Duration
}

// Config holds the runner configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Store
	StoreBackend string // "jsonl" or "sqlite"
	StoreDir     string
	DatabaseURL  string

	// Workflow
	DryRun            bool
	InitialCapital    float64
	HeartbeatInterval time.Duration
	PauseSeconds      time.Duration
	MaxPauseMinutes   int
	PhaseTimeouts     PhaseTimeouts
	Retry             RetryConfig

	// Circuit breaker
	BreakerEnabled bool
	OnlyProduction bool
	Thresholds     []ThresholdConfig

	// Readiness policy (empty = built-in default)
	PolicyPath string

	// Default probe targets
	DataPath     string
	StrategyPath string
	APIBaseURL   string

	// Logging
	LogLevel string
}

// fileConfig is the YAML shape operators write. Only the fields that are
// awkward to express in the environment are required here; everything can be
// overridden by env afterwards.
type fileConfig struct {
	HTTPPort            *int              `yaml:"http_port"`
	StoreBackend        string            `yaml:"store_backend"`
	StoreDir            string            `yaml:"store_dir"`
	DatabaseURL         string            `yaml:"database_url"`
	DryRun              *bool             `yaml:"dry_run"`
	InitialCapital      *float64          `yaml:"initial_capital"`
	HeartbeatIntervalMs *int              `yaml:"heartbeat_interval_ms"`
	PauseMs             *int              `yaml:"pause_ms"`
	MaxPauseMinutes     *int              `yaml:"max_pause_minutes"`
	PhaseTimeoutsMs     map[string]int    `yaml:"phase_timeouts_ms"`
	Retry               *fileRetry        `yaml:"retry"`
	BreakerEnabled      *bool             `yaml:"breaker_enabled"`
	OnlyProduction      *bool             `yaml:"only_production"`
	Thresholds          []ThresholdConfig `yaml:"thresholds"`
	PolicyPath          string            `yaml:"policy_file"`
	DataPath            string            `yaml:"data_path"`
	StrategyPath        string            `yaml:"strategy_path"`
	APIBaseURL          string            `yaml:"api_base_url"`
	LogLevel            string            `yaml:"log_level"`
}

type fileRetry struct {
	MaxRetries  *int `yaml:"max_retries"`
	BaseDelayMs *int `yaml:"base_delay_ms"`
	MaxDelayMs  *int `yaml:"max_delay_ms"`
}

// Load loads configuration from the environment, layered over the YAML file
// named by CONFIG_FILE when set.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.StoreDir = getEnv("STORE_DIR", cfg.StoreDir)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DryRun = getEnvBool("DRY_RUN", cfg.DryRun)
	cfg.InitialCapital = getEnvFloat("INITIAL_CAPITAL", cfg.InitialCapital)
	cfg.HeartbeatInterval = getEnvDurationMs("HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	cfg.PauseSeconds = getEnvDurationMs("PAUSE_MS", cfg.PauseSeconds)
	cfg.MaxPauseMinutes = getEnvInt("MAX_PAUSE_MINUTES", cfg.MaxPauseMinutes)
	cfg.PhaseTimeouts.Data = getEnvDurationMs("DATA_PHASE_TIMEOUT_MS", cfg.PhaseTimeouts.Data)
	cfg.PhaseTimeouts.Strategy = getEnvDurationMs("STRATEGY_PHASE_TIMEOUT_MS", cfg.PhaseTimeouts.Strategy)
	cfg.PhaseTimeouts.API = getEnvDurationMs("API_PHASE_TIMEOUT_MS", cfg.PhaseTimeouts.API)
	cfg.Retry.MaxRetries = getEnvInt("RETRY_MAX", cfg.Retry.MaxRetries)
	cfg.Retry.BaseDelay = getEnvDurationMs("RETRY_BASE_DELAY_MS", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = getEnvDurationMs("RETRY_MAX_DELAY_MS", cfg.Retry.MaxDelay)
	cfg.BreakerEnabled = getEnvBool("BREAKER_ENABLED", cfg.BreakerEnabled)
	cfg.OnlyProduction = getEnvBool("BREAKER_ONLY_PRODUCTION", cfg.OnlyProduction)
	cfg.PolicyPath = getEnv("POLICY_FILE", cfg.PolicyPath)
	cfg.DataPath = getEnv("DATA_PATH", cfg.DataPath)
	cfg.StrategyPath = getEnv("STRATEGY_PATH", cfg.StrategyPath)
	cfg.APIBaseURL = getEnv("API_BASE_URL", cfg.APIBaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTPPort:          8080,
		StoreBackend:      "jsonl",
		StoreDir:          "sessions",
		DatabaseURL:       "file:tradepilot.db?cache=shared&mode=rwc",
		DryRun:            true,
		InitialCapital:    10000,
		HeartbeatInterval: 60 * time.Second,
		PauseSeconds:      30 * time.Second,
		MaxPauseMinutes:   5,
		PhaseTimeouts: PhaseTimeouts{
			Data:     10 * time.Minute,
			Strategy: 15 * time.Minute,
			API:      5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		BreakerEnabled: true,
		OnlyProduction: true,
		Thresholds: []ThresholdConfig{
			{Level: 5, Actions: []string{"log", "notify"}, Description: "soft warning"},
			{Level: 10, Actions: []string{"log", "notify", "pause_trading"}, Description: "pause new entries"},
			{Level: 20, Actions: []string{"log", "notify", "shutdown"}, Description: "hard stop"},
		},
		LogLevel: "info",
	}
}

// LoadFile merges the YAML file at path into the config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.HTTPPort != nil {
		c.HTTPPort = *fc.HTTPPort
	}
	if fc.StoreBackend != "" {
		c.StoreBackend = fc.StoreBackend
	}
	if fc.StoreDir != "" {
		c.StoreDir = fc.StoreDir
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.DryRun != nil {
		c.DryRun = *fc.DryRun
	}
	if fc.InitialCapital != nil {
		c.InitialCapital = *fc.InitialCapital
	}
	if fc.HeartbeatIntervalMs != nil {
		c.HeartbeatInterval = time.Duration(*fc.HeartbeatIntervalMs) * time.Millisecond
	}
	if fc.PauseMs != nil {
		c.PauseSeconds = time.Duration(*fc.PauseMs) * time.Millisecond
	}
	if fc.MaxPauseMinutes != nil {
		c.MaxPauseMinutes = *fc.MaxPauseMinutes
	}
	if ms, ok := fc.PhaseTimeoutsMs["data"]; ok {
		c.PhaseTimeouts.Data = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := fc.PhaseTimeoutsMs["strategy"]; ok {
		c.PhaseTimeouts.Strategy = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := fc.PhaseTimeoutsMs["api"]; ok {
		c.PhaseTimeouts.API = time.Duration(ms) * time.Millisecond
	}
	if fc.Retry != nil {
		if fc.Retry.MaxRetries != nil {
			c.Retry.MaxRetries = *fc.Retry.MaxRetries
		}
		if fc.Retry.BaseDelayMs != nil {
			c.Retry.BaseDelay = time.Duration(*fc.Retry.BaseDelayMs) * time.Millisecond
		}
		if fc.Retry.MaxDelayMs != nil {
			c.Retry.MaxDelay = time.Duration(*fc.Retry.MaxDelayMs) * time.Millisecond
		}
	}
	if fc.BreakerEnabled != nil {
		c.BreakerEnabled = *fc.BreakerEnabled
	}
	if fc.OnlyProduction != nil {
		c.OnlyProduction = *fc.OnlyProduction
	}
	if len(fc.Thresholds) > 0 {
		c.Thresholds = fc.Thresholds
	}
	if fc.PolicyPath != "" {
		c.PolicyPath = fc.PolicyPath
	}
	if fc.DataPath != "" {
		c.DataPath = fc.DataPath
	}
	if fc.StrategyPath != "" {
		c.StrategyPath = fc.StrategyPath
	}
	if fc.APIBaseURL != "" {
		c.APIBaseURL = fc.APIBaseURL
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultVal
}
