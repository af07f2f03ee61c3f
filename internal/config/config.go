// Package config provides file and environment configuration for ganttsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/fields"
)

// EnvPrefix prefixes every environment override, e.g. GANTTSYNC_LOG_LEVEL.
const EnvPrefix = "GANTTSYNC"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Fields    FieldsConfig    `mapstructure:"fields"`
	Log       LogConfig       `mapstructure:"log"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
	TLSCert       string        `mapstructure:"tls_cert"`
	TLSKey        string        `mapstructure:"tls_key"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

// StorageConfig controls the database.
type StorageConfig struct {
	Driver             string        `mapstructure:"driver"`
	Path               string        `mapstructure:"path"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout        time.Duration `mapstructure:"busy_timeout"`
	Collections        []string      `mapstructure:"collections"`
	CheckpointSchedule string        `mapstructure:"checkpoint_schedule"`
}

// SyncConfig selects batch semantics. All flags default to off, which keeps
// the grid's established behavior.
type SyncConfig struct {
	// Atomic wraps each batch in one transaction.
	Atomic bool `mapstructure:"atomic"`
	// MultiRow persists every added row and deletes every removed stub.
	MultiRow bool `mapstructure:"multi_row"`
	// SanitizeUpdates applies field rules to updates too.
	SanitizeUpdates bool `mapstructure:"sanitize_updates"`
}

// FieldsConfig holds the sanitizer rules.
type FieldsConfig struct {
	Excluded  []string `mapstructure:"excluded"`
	Dates     []string `mapstructure:"dates"`
	RulesFile string   `mapstructure:"rules_file"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// File, when set, also writes logs to a rotated file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// BroadcastConfig controls the websocket change feed.
type BroadcastConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	RatePerSec int  `mapstructure:"rate_per_sec"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	rules := fields.DefaultRules()
	store := db.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:          ":8010",
			AllowedOrigin: "https://localhost:53000",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			MaxBodyBytes:  1 << 20,
		},
		Storage: StorageConfig{
			Driver:             store.Driver,
			Path:               store.Path,
			MaxOpenConns:       store.MaxOpenConns,
			MaxIdleConns:       store.MaxIdleConns,
			ConnMaxLifetime:    store.ConnMaxLifetime,
			BusyTimeout:        store.BusyTimeout,
			Collections:        store.Collections,
			CheckpointSchedule: "@every 10m",
		},
		Fields: FieldsConfig{
			Excluded: rules.Excluded,
			Dates:    rules.Dates,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Broadcast: BroadcastConfig{
			Enabled:    true,
			RatePerSec: 20,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise from
// $GANTTSYNC_CONFIG or ganttsync.{yaml,toml,json} in . or ./configs.
// A missing file is not an error. Environment variables override file
// values with `.` replaced by `_`, e.g. GANTTSYNC_STORAGE_PATH.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ganttsync")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults seeds every key so environment-only configs work.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origin", cfg.Server.AllowedOrigin)
	v.SetDefault("server.tls_cert", cfg.Server.TLSCert)
	v.SetDefault("server.tls_key", cfg.Server.TLSKey)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.max_body_bytes", cfg.Server.MaxBodyBytes)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.max_open_conns", cfg.Storage.MaxOpenConns)
	v.SetDefault("storage.max_idle_conns", cfg.Storage.MaxIdleConns)
	v.SetDefault("storage.conn_max_lifetime", cfg.Storage.ConnMaxLifetime)
	v.SetDefault("storage.busy_timeout", cfg.Storage.BusyTimeout)
	v.SetDefault("storage.collections", cfg.Storage.Collections)
	v.SetDefault("storage.checkpoint_schedule", cfg.Storage.CheckpointSchedule)

	v.SetDefault("sync.atomic", cfg.Sync.Atomic)
	v.SetDefault("sync.multi_row", cfg.Sync.MultiRow)
	v.SetDefault("sync.sanitize_updates", cfg.Sync.SanitizeUpdates)

	v.SetDefault("fields.excluded", cfg.Fields.Excluded)
	v.SetDefault("fields.dates", cfg.Fields.Dates)
	v.SetDefault("fields.rules_file", cfg.Fields.RulesFile)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)

	v.SetDefault("broadcast.enabled", cfg.Broadcast.Enabled)
	v.SetDefault("broadcast.rate_per_sec", cfg.Broadcast.RatePerSec)
}

// Validate checks the configuration and normalizes enum-like values.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}

	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("invalid storage.driver: %q (want sqlite3 or sqlite)", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if len(c.Storage.Collections) == 0 {
		return fmt.Errorf("storage.collections must not be empty")
	}
	if c.Storage.CheckpointSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Storage.CheckpointSchedule); err != nil {
			return fmt.Errorf("invalid storage.checkpoint_schedule: %w", err)
		}
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 20
	}
	return nil
}

// Rules returns the sanitizer rules from the fields section.
func (c *Config) Rules() fields.Rules {
	return fields.Rules{Excluded: c.Fields.Excluded, Dates: c.Fields.Dates}
}

// DB returns the store configuration. Sanitizer and Logger are left for the
// caller to set.
func (c *Config) DB() *db.Config {
	return &db.Config{
		Driver:          c.Storage.Driver,
		Path:            c.Storage.Path,
		MaxOpenConns:    c.Storage.MaxOpenConns,
		MaxIdleConns:    c.Storage.MaxIdleConns,
		ConnMaxLifetime: c.Storage.ConnMaxLifetime,
		BusyTimeout:     c.Storage.BusyTimeout,
		Collections:     c.Storage.Collections,
		SanitizeUpdates: c.Sync.SanitizeUpdates,
	}
}
