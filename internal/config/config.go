// Package config loads the fanout daemon configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the daemon configuration. Every field can be set through a
// FANOUT_-prefixed environment variable.
type Config struct {
	Addr          string        `envconfig:"ADDR" default:":8080"`
	DBPath        string        `envconfig:"DB_PATH"`
	PluginDir     string        `envconfig:"PLUGIN_DIR" default:"plugins"`
	BatchSize     int           `envconfig:"BATCH_SIZE" default:"25"`
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"500ms"`
	PluginTimeout time.Duration `envconfig:"PLUGIN_TIMEOUT" default:"5s"`
	MaxAttempts   int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"2s"`
	ExecRetries   uint64        `envconfig:"EXEC_RETRIES" default:"2"`
}

// Load reads the configuration from FANOUT_* environment variables.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("fanout", &cfg)
	return cfg, err
}
