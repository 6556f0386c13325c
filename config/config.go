// Package config loads labguard settings from file, .env and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LABGUARD_DATABASE_DSN or LABGUARD_PRESENCE_OFFLINE_AFTER.
const EnvPrefix = "LABGUARD"

type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Logging   Logging   `mapstructure:"logging"`
	Presence  Presence  `mapstructure:"presence"`
	Retention Retention `mapstructure:"retention"`
	UsageLog  UsageLog  `mapstructure:"usage_log"`
	Tracker   Tracker   `mapstructure:"tracker"`
	HTTP      HTTP      `mapstructure:"http"`
}

type Server struct {
	Address  string `mapstructure:"address"`
	HTTPPort string `mapstructure:"http_port"`
}

// Database selects the store. An empty driver runs on the in-memory store.
type Database struct {
	Driver string `mapstructure:"driver"` // "postgres" | "mysql" | "sqlite" | ""
	DSN    string `mapstructure:"dsn"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Presence holds the two staleness thresholds. They are intentionally
// independent: OfflineAfter drives the presence sweep and the read path,
// SessionCloseAfter drives session closing.
type Presence struct {
	OfflineAfter         time.Duration `mapstructure:"offline_after"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	SessionCloseAfter    time.Duration `mapstructure:"session_close_after"`
	SessionSweepInterval time.Duration `mapstructure:"session_sweep_interval"`
}

type Retention struct {
	Sessions  time.Duration `mapstructure:"sessions"`
	UsageLogs time.Duration `mapstructure:"usage_logs"`
}

type UsageLog struct {
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type Tracker struct {
	NoiseProcesses []string `mapstructure:"noise_processes"`
	LockShards     int      `mapstructure:"lock_shards"`
}

type HTTP struct {
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "")
	v.SetDefault("server.http_port", "5050")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("presence.offline_after", 60*time.Second)
	v.SetDefault("presence.sweep_interval", 60*time.Second)
	v.SetDefault("presence.session_close_after", 15*time.Second)
	v.SetDefault("presence.session_sweep_interval", 30*time.Second)

	v.SetDefault("retention.sessions", 24*time.Hour)
	v.SetDefault("retention.usage_logs", 24*time.Hour)

	v.SetDefault("usage_log.queue_size", 2048)
	v.SetDefault("usage_log.batch_size", 500)
	v.SetDefault("usage_log.flush_interval", 5*time.Second)

	v.SetDefault("tracker.noise_processes", []string{"python", "antigravity", "lab_systems_agent"})
	v.SetDefault("tracker.lock_shards", 64)

	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit_requests", 60)
	v.SetDefault("http.rate_limit_window", time.Minute)
}

// Load reads the config file at path (optional), a .env file in the working
// directory (optional) and LABGUARD_* environment variables, in increasing
// order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("labguard")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/labguard")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the background loops cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Presence.OfflineAfter <= 0 {
		errs = append(errs, errors.New("presence.offline_after must be positive"))
	}
	if c.Presence.SessionCloseAfter <= 0 {
		errs = append(errs, errors.New("presence.session_close_after must be positive"))
	}
	if c.Presence.SweepInterval <= 0 || c.Presence.SessionSweepInterval <= 0 {
		errs = append(errs, errors.New("presence sweep intervals must be positive"))
	}
	if c.UsageLog.QueueSize <= 0 || c.UsageLog.BatchSize <= 0 {
		errs = append(errs, errors.New("usage_log.queue_size and usage_log.batch_size must be positive"))
	}
	if c.UsageLog.FlushInterval <= 0 {
		errs = append(errs, errors.New("usage_log.flush_interval must be positive"))
	}
	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %s", c.Database.Driver))
	}
	return errors.Join(errs...)
}
