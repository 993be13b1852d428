// Package config provides configuration loading for pland.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/pland/internal/telemetry"
)

// Config is the full daemon configuration.
type Config struct {
	Documents DocumentsConfig  `koanf:"documents"`
	State     StateConfig      `koanf:"state"`
	Ralph     RalphConfig      `koanf:"ralph"`
	Validator ValidatorConfig  `koanf:"validator"`
	Server    ServerConfig     `koanf:"server"`
	Events    EventsConfig     `koanf:"events"`
	Watch     WatchConfig      `koanf:"watch"`
	Logging   LoggingConfig    `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// DocumentsConfig locates the planning documents.
type DocumentsConfig struct {
	// SpecDir holds requirements.md, design.md, and tasks.md.
	SpecDir string `koanf:"spec_dir"`
}

// StateConfig locates the execution snapshot.
type StateConfig struct {
	Path string `koanf:"path"`
}

// RalphConfig tunes the self-correction loop.
type RalphConfig struct {
	MaxAttempts int `koanf:"max_attempts"`
}

// ValidatorConfig tunes proof-of-completion checks.
type ValidatorConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EventsConfig configures event mirroring. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
}

// WatchConfig configures out-of-band edit detection.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Documents.SpecDir == "" {
		cfg.Documents.SpecDir = "."
	}
	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(cfg.Documents.SpecDir, ".pland", "execution-state.json")
	}
	if cfg.Ralph.MaxAttempts == 0 {
		cfg.Ralph.MaxAttempts = 3
	}
	if cfg.Validator.CacheTTL == 0 {
		cfg.Validator.CacheTTL = 5 * time.Second
	}
	if cfg.Validator.Timeout == 0 {
		cfg.Validator.Timeout = 5 * time.Second
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8390
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	def := telemetry.NewDefaultConfig()
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = def.Endpoint
		cfg.Telemetry.Insecure = def.Insecure
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = def.ServiceVersion
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = def.SampleRate
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = def.MetricInterval
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = def.ShutdownTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Ralph.MaxAttempts < 1 {
		return fmt.Errorf("ralph.max_attempts must be at least 1, got %d", c.Ralph.MaxAttempts)
	}
	if c.Validator.CacheTTL < 0 {
		return fmt.Errorf("validator.cache_ttl cannot be negative")
	}
	if c.Validator.Timeout <= 0 {
		return fmt.Errorf("validator.timeout must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
