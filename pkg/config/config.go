// Package config loads and validates the KeelFS server configuration.
//
// Configuration is a snapshot: it is read once at process startup and never
// mutated afterwards. Components that need different settings require a
// process restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Configuration keys referenced in error messages and documentation.
const (
	// KeyAuthenticationType selects the RPC authentication mode.
	KeyAuthenticationType = "security.authentication.type"

	// KeyAuthenticationUsername optionally overrides the login user
	// presented by clients in SIMPLE and CUSTOM modes.
	KeyAuthenticationUsername = "security.authentication.username"

	// KeyAuthenticationProvider names the registered verification provider
	// consulted by servers in CUSTOM mode.
	KeyAuthenticationProvider = "security.authentication.custom_provider"
)

// Config represents the KeelFS server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (KEELFS_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Security holds the RPC authentication settings
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SecurityConfig holds the RPC security settings.
type SecurityConfig struct {
	Authentication AuthenticationConfig `mapstructure:"authentication" yaml:"authentication"`
}

// AuthenticationConfig selects how RPC connections are authenticated.
//
// Type is matched case-insensitively against the recognized mode
// identifiers (DISABLED, SIMPLE, CUSTOM, KERBEROS) by auth.ParseAuthMode;
// validation of the value is deferred to that parse so the error can name
// the full recognized set.
type AuthenticationConfig struct {
	// Type is the authentication mode identifier. Default: DISABLED.
	Type string `mapstructure:"type" validate:"required" yaml:"type"`

	// Username overrides the login user presented by clients.
	// Consulted only in SIMPLE and CUSTOM modes; when empty (after
	// trimming), the OS process username is used instead.
	Username string `mapstructure:"username" yaml:"username,omitempty"`

	// CustomProvider names the registered verification provider used by
	// servers in CUSTOM mode.
	CustomProvider string `mapstructure:"custom_provider" yaml:"custom_provider,omitempty"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics listener port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry identity overrides and provider names.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the KEELFS_ prefix and underscores.
	// Example: KEELFS_SECURITY_AUTHENTICATION_TYPE=SIMPLE
	v.SetEnvPrefix("KEELFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
	}
}

// readConfigFile attempts to read the configured file. A missing file is
// not an error: defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the decode hooks applied while unmarshaling.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// DefaultConfigDir returns the directory searched for a config file when no
// explicit path is given.
func DefaultConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".keelfs")
	}
	return "."
}
