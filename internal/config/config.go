// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":5566"
	DefaultRequestTimeout = 30
	DefaultUploadTimeout  = 120
	DefaultTokenPerMinute = 30
	DefaultMaxAttempts    = 900
	DefaultIntervalMs     = 2000
	DefaultStableRounds   = 5
	DefaultPollTimeout    = 1200
	DefaultInitialDelay   = 5
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Upload  UploadConfig  `toml:"upload"`
	Polling PollingConfig `toml:"polling"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// BackendConfig holds timeouts for the vendor API client.
type BackendConfig struct {
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// UploadConfig holds upload transfer timeout and the token-endpoint rate limit.
type UploadConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	// TokenPerMinute caps upload-session acquisitions; the vendor's limits on
	// the signing endpoint are undocumented.
	TokenPerMinute int `toml:"token_per_minute"`
}

// PollingConfig holds the status-polling cadence and termination thresholds.
type PollingConfig struct {
	MaxAttempts         int `toml:"max_attempts"`
	IntervalMs          int `toml:"interval_ms"`
	StableRounds        int `toml:"stable_rounds"`
	TimeoutSeconds      int `toml:"timeout_seconds"`
	InitialDelaySeconds int `toml:"initial_delay_seconds"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Backend: BackendConfig{
			RequestTimeoutSeconds: DefaultRequestTimeout,
		},
		Upload: UploadConfig{
			TimeoutSeconds: DefaultUploadTimeout,
			TokenPerMinute: DefaultTokenPerMinute,
		},
		Polling: PollingConfig{
			MaxAttempts:         DefaultMaxAttempts,
			IntervalMs:          DefaultIntervalMs,
			StableRounds:        DefaultStableRounds,
			TimeoutSeconds:      DefaultPollTimeout,
			InitialDelaySeconds: DefaultInitialDelay,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
