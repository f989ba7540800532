// Package config loads the server configuration from the environment.
// Call godotenv.Load before Load to pick up a local .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Match strategies.
const (
	MatchAtomic   = "atomic"
	MatchFallback = "fallback"
)

// Config holds every setting the server binaries read from the environment.
type Config struct {
	HTTPAddr string

	// DBDriver is "postgres" or "sqlite".
	DBDriver    string
	DatabaseURL string

	// PubSubDriver is "local", "redis" or "postgres".
	PubSubDriver string
	RedisURL     string

	JWTSecret string

	MatchStrategy     string
	MatchPollInterval time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	JanitorInterval   time.Duration
	MessageRetention  time.Duration

	TelegramBotToken string
}

// Default returns the development defaults: SQLite file, in-process pub/sub.
func Default() *Config {
	return &Config{
		HTTPAddr:          ":8080",
		DBDriver:          "sqlite",
		DatabaseURL:       "strangerchat.db",
		PubSubDriver:      "local",
		MatchStrategy:     MatchAtomic,
		MatchPollInterval: DefaultMatchPollInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		StaleAfter:        DefaultStaleAfter,
		JanitorInterval:   DefaultJanitorInterval,
		MessageRetention:  DefaultMessageRetention,
	}
}

// Load overlays environment variables on Default. Malformed durations are
// reported as errors rather than silently ignored.
func Load() (*Config, error) {
	cfg := Default()

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DBDriver, "DB_DRIVER")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.PubSubDriver, "PUBSUB_DRIVER")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.MatchStrategy, "MATCH_STRATEGY")
	setString(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")

	var errs []error
	errs = append(errs,
		setDuration(&cfg.MatchPollInterval, "MATCH_POLL_INTERVAL"),
		setDuration(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL"),
		setDuration(&cfg.StaleAfter, "STALE_AFTER"),
		setDuration(&cfg.JanitorInterval, "JANITOR_INTERVAL"),
		setDuration(&cfg.MessageRetention, "MESSAGE_RETENTION"),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP address cannot be empty")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.PubSubDriver {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis pub/sub driver")
		}
	case "postgres":
		if c.DBDriver != "postgres" {
			return fmt.Errorf("the postgres pub/sub driver requires DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported PUBSUB_DRIVER %q", c.PubSubDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.MatchStrategy {
	case MatchAtomic, MatchFallback:
	default:
		return fmt.Errorf("unsupported MATCH_STRATEGY %q", c.MatchStrategy)
	}
	if c.MatchPollInterval <= 0 {
		return fmt.Errorf("match poll interval must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.StaleAfter <= c.HeartbeatInterval {
		return fmt.Errorf("stale-after (%s) must exceed the heartbeat interval (%s)", c.StaleAfter, c.HeartbeatInterval)
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("janitor interval must be positive")
	}
	if c.MessageRetention <= 0 {
		return fmt.Errorf("message retention must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
