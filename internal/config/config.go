// Package config loads runtime settings from defaults, an optional config
// file, a .env file and TABLEORDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TABLEORDER_SESSION_EXPIRY for session.expiry.
const EnvPrefix = "TABLEORDER"

// Config is the complete runtime configuration.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Lock    LockConfig    `mapstructure:"lock"`
	Session SessionConfig `mapstructure:"session"`
	Events  EventsConfig  `mapstructure:"events"`
	Journal JournalConfig `mapstructure:"journal"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Log     LogConfig     `mapstructure:"log"`
}

// LockConfig controls the lock registry.
type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig controls table sessions.
type SessionConfig struct {
	Expiry time.Duration `mapstructure:"expiry"`
}

// EventsConfig controls the event bus.
type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// JournalConfig controls the SQLite event journal. An empty Path disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// SweepConfig controls the expired-session sweeper.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Lock:    LockConfig{Timeout: 5 * time.Second},
		Session: SessionConfig{Expiry: 16 * time.Hour},
		Events:  EventsConfig{Buffer: 100},
		Sweep:   SweepConfig{Interval: time.Minute},
		Log:     LogConfig{Level: "info"},
	}
}

// SetDefaults registers every default on v so that keys resolve even
// without a config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("lock.timeout", d.Lock.Timeout)
	v.SetDefault("session.expiry", d.Session.Expiry)
	v.SetDefault("events.buffer", d.Events.Buffer)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("sweep.interval", d.Sweep.Interval)
	v.SetDefault("log.level", d.Log.Level)
}

// Options select the sources Load reads besides the environment.
type Options struct {
	// ConfigFile is an explicit config path. When empty, tableorder.yaml is
	// searched for in the working directory.
	ConfigFile string

	// EnvFile is the dotenv file to load. A missing file is not an error.
	EnvFile string
}

// New builds a viper instance with defaults, environment binding and the
// config file (if any) applied.
func New(opts Options) (*viper.Viper, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	SetDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("tableorder")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// SlogLevel maps Log.Level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JournalEnabled reports whether events should be recorded to SQLite.
func (c *Config) JournalEnabled() bool {
	return c.Journal.Path != ""
}
