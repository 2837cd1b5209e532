// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd configuration from defaults, an optional
// YAML file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/cache"
	"github.com/holomush/accountd/internal/jobs"
	"github.com/holomush/accountd/internal/notify"
	"github.com/holomush/accountd/internal/xdg"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification drivers.
const (
	NotifySMTP   = "smtp"
	NotifyLog    = "log"
	NotifyOutbox = "outbox"
)

// DatabaseURLEnv is consulted when no database URL is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete accountd configuration.
type Config struct {
	Server  ServerConfig      `koanf:"server"`
	Log     LogConfig         `koanf:"log"`
	Storage StorageConfig     `koanf:"storage"`
	Session SessionConfig     `koanf:"session"`
	Argon2  auth.Argon2Params `koanf:"argon2"`
	Notify  NotifyConfig      `koanf:"notify"`
	Redis   RedisConfig       `koanf:"redis"`
	Sweep   SweepConfig       `koanf:"sweep"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	MetricsAddr     string        `koanf:"metrics_addr"` // empty disables the metrics server
	CookieSecure    bool          `koanf:"cookie_secure"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RequestTimeout bounds each API request, including time spent waiting
	// on another request's user lock.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts none.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"dive,cidr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	Driver      string `koanf:"driver" validate:"oneof=postgres memory"`
	DatabaseURL string `koanf:"database_url" validate:"required_if=Driver postgres"`
	MaxConns    int32  `koanf:"max_conns" validate:"gte=0"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// SessionConfig configures session lifetime.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl" validate:"gte=0"` // zero means sessions never expire
}

// NotifyConfig selects the delivery channel.
type NotifyConfig struct {
	Driver   string                `koanf:"driver" validate:"oneof=smtp log outbox"`
	SMTP     notify.SMTPConfig     `koanf:"smtp"`
	Throttle notify.ThrottleConfig `koanf:"throttle"`
}

// RedisConfig enables the identity snapshot cache when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// SweepConfig configures the periodic expiry sweep.
type SweepConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule" validate:"required_if=Enabled true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9100",
			CookieSecure:    true,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Driver:      StoragePostgres,
			MaxConns:    10,
			AutoMigrate: false,
		},
		Session: SessionConfig{TTL: auth.SessionTokenExpiry},
		Argon2:  auth.DefaultArgon2Params,
		Notify: NotifyConfig{
			Driver:   NotifyLog,
			SMTP:     notify.SMTPConfig{Port: 587},
			Throttle: notify.DefaultThrottleConfig(),
		},
		Redis: RedisConfig{Prefix: cache.DefaultKeyPrefix},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: jobs.DefaultSchedule,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return oops.Code("CONFIG_INVALID").
				With("field", fe.Namespace()).
				With("rule", fe.Tag()).
				Errorf("invalid configuration value for %s", fe.Namespace())
		}
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if c.Notify.Driver == NotifySMTP {
		if c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == "" {
			return oops.Code("CONFIG_INVALID").
				With("field", "notify.smtp").
				Errorf("smtp notifier requires host and from")
		}
	}
	return nil
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"metrics-addr":    "server.metrics_addr",
	"cookie-secure":   "server.cookie_secure",
	"request-timeout": "server.request_timeout",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"storage":         "storage.driver",
	"database-url":    "storage.database_url",
	"auto-migrate":    "storage.auto_migrate",
	"session-ttl":     "session.ttl",
	"notify":          "notify.driver",
	"redis-addr":      "redis.addr",
	"sweep":           "sweep.enabled",
}

// BindFlags registers the overridable settings on fs, using the built-in
// defaults for help output.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("metrics-addr", d.Server.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.Bool("cookie-secure", d.Server.CookieSecure, "set the Secure attribute on session cookies")
	fs.Duration("request-timeout", d.Server.RequestTimeout, "maximum duration of an API request")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("storage", d.Storage.Driver, "storage driver (postgres, memory)")
	fs.String("database-url", "", "PostgreSQL connection URL (default $"+DatabaseURLEnv+")")
	fs.Bool("auto-migrate", d.Storage.AutoMigrate, "apply pending migrations at startup")
	fs.Duration("session-ttl", d.Session.TTL, "session lifetime (0 never expires)")
	fs.String("notify", d.Notify.Driver, "notification driver (smtp, log, outbox)")
	fs.String("redis-addr", "", "Redis address for the identity cache (empty disables)")
	fs.Bool("sweep", d.Sweep.Enabled, "run the periodic expiry sweep")
}

// Load builds the configuration. path names a YAML file; when empty the
// XDG config file is used if it exists. Only flags set on the command line
// override file values. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	return load(path, flags, os.Getenv)
}

func load(path string, flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
			}
		} else if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = getenv(DatabaseURLEnv)
	}
	return cfg, nil
}
