// Package config loads spawnctl configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all spawnctl configuration.
type Config struct {
	Spawn   SpawnConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// SpawnConfig holds spawn server configuration.
type SpawnConfig struct {
	Server              string        `envconfig:"SPAWN_SERVER"`
	LogFile             string        `envconfig:"SPAWN_LOG_FILE"`
	Environment         string        `envconfig:"SPAWN_ENVIRONMENT" default:"production"`
	EnvironmentVariable string        `envconfig:"SPAWN_ENV_VAR" default:"RAILS_ENV"`
	Interpreter         string        `envconfig:"SPAWN_INTERPRETER" default:"ruby"`
	PIDFile             string        `envconfig:"SPAWN_PID_FILE"`
	ShutdownTimeout     time.Duration `envconfig:"SPAWN_SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Address string `envconfig:"METRICS_ADDR"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Spawn: SpawnConfig{
			Environment:         "production",
			EnvironmentVariable: "RAILS_ENV",
			Interpreter:         "ruby",
			ShutdownTimeout:     10 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports configuration that cannot start a spawn server.
func (c *Config) Validate() error {
	if c.Spawn.Server == "" {
		return errors.New("spawn server command is required (SPAWN_SERVER or --server)")
	}
	if c.Spawn.Interpreter == "" {
		return errors.New("interpreter is required (SPAWN_INTERPRETER or --interpreter)")
	}
	if c.Spawn.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative: %s", c.Spawn.ShutdownTimeout)
	}
	return nil
}
