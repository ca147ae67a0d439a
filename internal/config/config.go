// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth settings from defaults, an optional YAML
// file and command-line flags, in increasing precedence.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/oauth"
)

// DatabaseURLEnv is read when no database URL is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete holoauth configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Secrets  SecretsConfig  `koanf:"secrets"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Sweep    SweepConfig    `koanf:"sweep"`
	OAuth    []oauth.Config `koanf:"oauth_providers"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// RedisConfig configures the optional Redis verification code store.
// An empty Addr keeps codes in Postgres.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// SecretsConfig holds the server-side keys.
type SecretsConfig struct {
	// SessionKey keys the HMAC over session secrets.
	SessionKey string `koanf:"session_key"`
	// OAuthStateKey signs OAuth state cookies.
	OAuthStateKey string `koanf:"oauth_state_key"`
}

// AuthConfig holds credential lifetimes.
type AuthConfig struct {
	LoginSessionTTL     time.Duration `koanf:"login_session_ttl"`
	LoginRenewWindow    time.Duration `koanf:"login_renew_window"`
	SignupSessionTTL    time.Duration `koanf:"signup_session_ttl"`
	PasswordResetTTL    time.Duration `koanf:"password_reset_ttl"`
	AssociationTTL      time.Duration `koanf:"association_ttl"`
	VerificationCodeTTL time.Duration `koanf:"verification_code_ttl"`
	OAuthStateTTL       time.Duration `koanf:"oauth_state_ttl"`
}

// Lifetimes converts a to the service configuration.
func (a AuthConfig) Lifetimes() auth.Config {
	return auth.Config{
		LoginSessionTTL:     a.LoginSessionTTL,
		LoginRenewWindow:    a.LoginRenewWindow,
		SignupSessionTTL:    a.SignupSessionTTL,
		PasswordResetTTL:    a.PasswordResetTTL,
		AssociationTTL:      a.AssociationTTL,
		VerificationCodeTTL: a.VerificationCodeTTL,
		OAuthStateTTL:       a.OAuthStateTTL,
	}
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the metrics and health server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// SweepConfig configures the expired record sweeper.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// defaults returns the base layer as flat koanf keys.
func defaults() map[string]any {
	lt := auth.DefaultConfig()
	return map[string]any{
		"database.max_conns":         int32(10),
		"database.connect_attempts":  5,
		"database.connect_backoff":   250 * time.Millisecond,
		"redis.key_prefix":           "holoauth:vcode",
		"auth.login_session_ttl":     lt.LoginSessionTTL,
		"auth.login_renew_window":    lt.LoginRenewWindow,
		"auth.signup_session_ttl":    lt.SignupSessionTTL,
		"auth.password_reset_ttl":    lt.PasswordResetTTL,
		"auth.association_ttl":       lt.AssociationTTL,
		"auth.verification_code_ttl": lt.VerificationCodeTTL,
		"auth.oauth_state_ttl":       lt.OAuthStateTTL,
		"log.format":                 "json",
		"log.level":                  "info",
		"metrics.addr":               "",
		"sweep.interval":             auth.DefaultSweepInterval,
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"database-url":   "database.url",
	"redis-addr":     "redis.addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "metrics.addr",
	"interval":       "sweep.interval",
}

// RegisterFlags adds the global flags Load understands to fs. Flag defaults
// are empty; unset flags never override the file or built-in defaults.
// Commands may also define an "interval" duration flag for sweep.interval.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL (default $"+DatabaseURLEnv+")")
	fs.String("redis-addr", "", "Redis address for verification codes (empty = Postgres)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
}

// Load builds a Config. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(DatabaseURLEnv)
	}
	return &cfg, nil
}

// Validate checks settings every command needs. Secrets and the database
// URL are checked by the commands that use them.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("field", "log.level").
			Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("field", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if err := c.Auth.Lifetimes().Validate(); err != nil {
		return oops.With("section", "auth").Wrap(err)
	}
	if c.Sweep.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "sweep.interval").
			Errorf("sweep.interval must be positive")
	}
	if c.Database.MaxConns <= 0 || c.Database.ConnectAttempts <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("field", "database").
			Errorf("database.max_conns and database.connect_attempts must be positive")
	}
	seen := make(map[string]bool, len(c.OAuth))
	for i, p := range c.OAuth {
		if err := p.Validate(); err != nil {
			return oops.With("section", "oauth_providers").With("index", i).Wrap(err)
		}
		if seen[p.Name] {
			return oops.Code("CONFIG_INVALID").
				With("field", "oauth_providers").
				With("provider", p.Name).
				Errorf("oauth provider %q configured twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// RequireDatabase reports a missing database URL.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database.url").
			Errorf("database.url or %s is required", DatabaseURLEnv)
	}
	return nil
}

// RequireSecrets reports keys that are missing or too short.
func (c *Config) RequireSecrets() error {
	keys := []struct{ field, value string }{
		{"secrets.session_key", c.Secrets.SessionKey},
		{"secrets.oauth_state_key", c.Secrets.OAuthStateKey},
	}
	for _, k := range keys {
		if len(k.value) < auth.MinSecretKeyBytes {
			return oops.Code("CONFIG_INVALID").
				With("field", k.field).
				With("min_bytes", auth.MinSecretKeyBytes).
				Errorf("%s must be at least %d bytes", k.field, auth.MinSecretKeyBytes)
		}
	}
	return nil
}
