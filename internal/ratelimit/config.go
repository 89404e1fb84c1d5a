package ratelimit

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
)

// Environment variable names for budget configuration.
const (
	EnvEnabled        = "QUERY_BUDGET_ENABLED"
	EnvTotalBudget    = "QUERY_BUDGET_TOTAL"
	EnvReservedBudget = "QUERY_BUDGET_RESERVED"
	EnvWindowSizeMs   = "QUERY_BUDGET_WINDOW_MS"
	EnvMaxWaitMs      = "QUERY_BUDGET_MAX_WAIT_MS"
)

// Config holds the shared query budget configuration.
type Config struct {
	// Enabled turns the shared budget on. Environment: QUERY_BUDGET_ENABLED, Default: false
	Enabled bool

	// TotalBudget is the query units per window. Environment: QUERY_BUDGET_TOTAL, Default: 100
	TotalBudget int

	// ReservedBudget is kept for achievement data. Environment: QUERY_BUDGET_RESERVED, Default: 60
	ReservedBudget int

	// WindowSizeMs is the window size. Environment: QUERY_BUDGET_WINDOW_MS, Default: 1000
	WindowSizeMs int

	// MaxWaitMs bounds the wait for budget. Environment: QUERY_BUDGET_MAX_WAIT_MS, Default: 30000
	MaxWaitMs int
}

// NewConfig returns the default configuration
func NewConfig() *Config {
	return &Config{
		TotalBudget:    DefaultTotalBudget,
		ReservedBudget: DefaultReservedBudget,
		WindowSizeMs:   int(DefaultWindowSize.Milliseconds()),
		MaxWaitMs:      int(DefaultMaxWait.Milliseconds()),
	}
}

// LoadFromEnv reads the configuration from the environment. Invalid values
// are logged and replaced by defaults.
func LoadFromEnv() *Config {
	cfg := NewConfig()
	cfg.Enabled = os.Getenv(EnvEnabled) == "true" || os.Getenv(EnvEnabled) == "1"

	cfg.TotalBudget = envInt(EnvTotalBudget, cfg.TotalBudget, 1)
	cfg.ReservedBudget = envInt(EnvReservedBudget, cfg.ReservedBudget, 0)
	cfg.WindowSizeMs = envInt(EnvWindowSizeMs, cfg.WindowSizeMs, 1)
	cfg.MaxWaitMs = envInt(EnvMaxWaitMs, cfg.MaxWaitMs, 1)

	if err := cfg.Validate(); err != nil {
		logging.WithError(err).Warn("Invalid query budget configuration, using defaults")
		defaults := NewConfig()
		defaults.Enabled = cfg.Enabled
		return defaults
	}
	return cfg
}

// Validate ensures configuration is valid.
func (c *Config) Validate() error {
	if c.TotalBudget <= 0 {
		return errors.New("TotalBudget must be positive")
	}
	if c.ReservedBudget < 0 {
		return errors.New("ReservedBudget cannot be negative")
	}
	if c.ReservedBudget > c.TotalBudget {
		return fmt.Errorf("ReservedBudget (%d) exceeds TotalBudget (%d)", c.ReservedBudget, c.TotalBudget)
	}
	if c.WindowSizeMs <= 0 {
		return errors.New("WindowSizeMs must be positive")
	}
	if c.MaxWaitMs <= 0 {
		return errors.New("MaxWaitMs must be positive")
	}
	return nil
}

// WindowSize returns the window as a duration
func (c *Config) WindowSize() time.Duration {
	return time.Duration(c.WindowSizeMs) * time.Millisecond
}

// MaxWait returns the wait bound as a duration
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

func envInt(key string, defaultVal, minVal int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < minVal {
		logging.Warnf("Invalid %s value %q, using default %d", key, raw, defaultVal)
		return defaultVal
	}
	return val
}

// String returns a string representation of the configuration for logging.
func (c *Config) String() string {
	return fmt.Sprintf("QueryBudget{Enabled: %t, Total: %d, Reserved: %d, WindowMs: %d, MaxWaitMs: %d}",
		c.Enabled, c.TotalBudget, c.ReservedBudget, c.WindowSizeMs, c.MaxWaitMs)
}
