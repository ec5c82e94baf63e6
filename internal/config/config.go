// Package config loads worker process configuration from the environment.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// Config holds the worker's process-level settings. Everything is sourced
// from environment variables; there is no config file.
type Config struct {
	// RedisURL is the broker/result-backend address, e.g. redis://localhost:6379.
	RedisURL string `koanf:"redis_url" validate:"required"`

	// Queue is the broker queue this worker consumes.
	Queue string `koanf:"queue"`

	// SplunkHost and SplunkPort describe the remote Splunk sink. They are
	// optional at process startup and validated per task invocation: only
	// the rdump-to-splunk task requires them.
	SplunkHost string `koanf:"splunk_host"`
	SplunkPort string `koanf:"splunk_port"`

	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`
}

// envPaths maps environment variable names to koanf config paths. Only the
// listed variables are read; the rest of the environment is ignored.
var envPaths = map[string]string{
	"REDIS_URL":            "redis_url",
	"OPENRELIK_QUEUE_NAME": "queue",
	"SPLUNK_HOST":          "splunk_host",
	"SPLUNK_PORT":          "splunk_port",
	"LOG_LEVEL":            "log_level",
	"LOG_JSON":             "log_json",
}

// DefaultQueue is the broker queue tasks are routed to when
// OPENRELIK_QUEUE_NAME is not set. It matches the worker's task name prefix.
const DefaultQueue = "openrelik-worker-dissect"

// Load reads and validates the worker configuration from the environment.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envPaths[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{
		Queue:    DefaultQueue,
		LogLevel: "info",
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
