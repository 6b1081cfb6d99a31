// Package config loads node configuration from an optional YAML file with
// WEFT_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full node configuration.
//
// ExecutionTimeoutMS, MaxRetries, and BatchSize are contract values:
// their defaults are part of the node's observable behavior, not tuning
// knobs picked per deployment.
type Config struct {
	DataDir string `koanf:"data_dir"`

	Engine  Engine  `koanf:"engine"`
	Log     Log     `koanf:"log"`
	Metrics Metrics `koanf:"metrics"`
}

// Engine configures the transform orchestrator.
type Engine struct {
	ExecutionTimeoutMS int `koanf:"execution_timeout_ms"`
	MaxRetries         int `koanf:"max_retries"`
	BatchSize          int `koanf:"batch_size"`
	Workers            int `koanf:"workers"`
}

// Log configures structured logging.
type Log struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// Metrics configures the scrape endpoint.
type Metrics struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DataDir: "./data",
		Engine: Engine{
			ExecutionTimeoutMS: 30000,
			MaxRetries:         3,
			BatchSize:          100,
			Workers:            4,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Metrics: Metrics{
			Enabled: true,
			Listen:  ":9100",
		},
	}
}

// Load reads configuration in precedence order: defaults, then the YAML
// file at path (skipped when path is empty), then WEFT_ environment
// variables. A double underscore separates levels so single underscores
// survive in key names: WEFT_ENGINE__MAX_RETRIES=5 overrides
// engine.max_retries.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("WEFT_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "WEFT_")), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Engine.ExecutionTimeoutMS <= 0 {
		return fmt.Errorf("engine.execution_timeout_ms must be positive, got %d", c.Engine.ExecutionTimeoutMS)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be positive, got %d", c.Engine.BatchSize)
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ExecutionTimeout returns the per-attempt execution bound.
func (c Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Engine.ExecutionTimeoutMS) * time.Millisecond
}
