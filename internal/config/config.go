// Package config loads the application configuration from a file,
// environment variables, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mhamzafaisal1/chitrac/internal/perf"
)

// Config holds the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Rollup   RollupConfig   `mapstructure:"rollup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	BindAddress    string `mapstructure:"bind_address"`
	Port           int    `mapstructure:"port"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig tunes the reporting engine.
type EngineConfig struct {
	// LongWindowThreshold is the window length above which the
	// daily cache is used instead of live session reads.
	LongWindowThreshold string `mapstructure:"long_window_threshold"`

	// Timezone resolves shift, today, and week boundaries and
	// cache-day splits. Empty means the host's local zone.
	Timezone string `mapstructure:"timezone"`

	// Timeframes computed when a request names none.
	Timeframes []string `mapstructure:"timeframes"`
}

// IngestConfig defines the spool import behavior.
type IngestConfig struct {
	SpoolDir      string `mapstructure:"spool_dir"`
	Watch         bool   `mapstructure:"watch"`
	WatchDebounce string `mapstructure:"watch_debounce"`
	BatchSize     int    `mapstructure:"batch_size"`
}

// RollupConfig defines the daily cache job.
type RollupConfig struct {
	Interval string `mapstructure:"interval"`

	// Backfill is how many past days each pass recomputes.
	Backfill int `mapstructure:"backfill_days"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from configPath, CHITRAC_* environment
// variables, and defaults. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("CHITRAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("database.path", "chitrac.db")

	v.SetDefault("engine.long_window_threshold", "36h")
	v.SetDefault("engine.timezone", "")
	v.SetDefault("engine.timeframes", perf.DefaultTimeframes)

	v.SetDefault("ingest.spool_dir", "spool")
	v.SetDefault("ingest.watch", true)
	v.SetDefault("ingest.watch_debounce", "2s")
	v.SetDefault("ingest.batch_size", 500)

	v.SetDefault("rollup.interval", "1h")
	v.SetDefault("rollup.backfill_days", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	for _, field := range []struct{ name, value string }{
		{"server.request_timeout", cfg.Server.RequestTimeout},
		{"engine.long_window_threshold", cfg.Engine.LongWindowThreshold},
		{"ingest.watch_debounce", cfg.Ingest.WatchDebounce},
		{"rollup.interval", cfg.Rollup.Interval},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	if cfg.Engine.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
			return fmt.Errorf("engine.timezone: %w", err)
		}
	}
	for _, name := range cfg.Engine.Timeframes {
		if _, err := perf.ResolveTimeframe(name, time.Now(), nil); err != nil {
			return fmt.Errorf("engine.timeframes: %w", err)
		}
	}
	if cfg.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if cfg.Rollup.Backfill < 1 {
		return fmt.Errorf("rollup.backfill_days must be positive")
	}
	return nil
}

// RequestTimeout returns the parsed server request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// LongWindowThreshold returns the parsed engine threshold.
func (c *Config) LongWindowThreshold() time.Duration {
	d, _ := time.ParseDuration(c.Engine.LongWindowThreshold)
	return d
}

// WatchDebounce returns the parsed ingest debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Ingest.WatchDebounce)
	return d
}

// RollupInterval returns the parsed rollup interval.
func (c *Config) RollupInterval() time.Duration {
	d, _ := time.ParseDuration(c.Rollup.Interval)
	return d
}

// Location returns the engine's resolved time zone.
func (c *Config) Location() *time.Location {
	if c.Engine.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ListenAddr returns the server's host:port listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}
