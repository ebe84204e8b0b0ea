package config

import (
	"strings"
	"time"
)

// Default values applied to unspecified configuration fields.
const (
	// DefaultAuthenticationType is used when no mode is configured.
	// Authentication is off unless explicitly enabled.
	DefaultAuthenticationType = "DISABLED"

	DefaultShutdownTimeout = 30 * time.Second
)

// GetDefaultConfig returns a fully populated configuration with defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySecurityDefaults(&cfg.Security)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applySecurityDefaults sets authentication defaults.
func applySecurityDefaults(cfg *SecurityConfig) {
	if cfg.Authentication.Type == "" {
		cfg.Authentication.Type = DefaultAuthenticationType
	}
}
