// Package config loads the supervisor daemon's own process-level
// configuration (listen address, data directory, log level) from the
// environment, with CLI flags layered on top in main.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds daemon bootstrap configuration.
type Config struct {
	Host     string `envconfig:"QL_HOST" default:"127.0.0.1"`
	Port     int    `envconfig:"QL_PORT" default:"8000"`
	DataDir  string `envconfig:"QL_DATA_DIR" default:"."`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Verbose  bool   `envconfig:"QL_VERBOSE" default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the hard-coded defaults, used if environment loading fails.
func Default() *Config {
	return &Config{
		Host:     "127.0.0.1",
		Port:     8000,
		DataDir:  ".",
		LogLevel: "info",
	}
}

// LoadOrDefault loads from the environment, falling back to Default on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}
