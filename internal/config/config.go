// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	BotToken    string
	Mode        string
	PollTimeout int // seconds

	// WebhookURL is the public base URL; updates are posted to
	// <WebhookURL>/webhook/<WebhookSecret>.
	WebhookURL    string
	WebhookSecret string
	Port          string

	StoreDriver string
	DBPath      string
	DatabaseURL string
	RedisURL    string

	DirectoryCacheTTL time.Duration
	SessionIdleTTL    time.Duration // 0 disables the idle sweep
	SweepInterval     time.Duration

	AdminIDs []int64
	LogLevel string
}

// Duration decodes TOML strings such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type fileConfig struct {
	Bot struct {
		Token       string  `toml:"token"`
		Mode        string  `toml:"mode"`
		PollTimeout int     `toml:"poll_timeout"`
		AdminIDs    []int64 `toml:"admin_ids"`
	} `toml:"bot"`
	HTTP struct {
		Port          string `toml:"port"`
		WebhookURL    string `toml:"webhook_url"`
		WebhookSecret string `toml:"webhook_secret"`
	} `toml:"http"`
	Store struct {
		Driver      string `toml:"driver"`
		Path        string `toml:"path"`
		DatabaseURL string `toml:"database_url"`
	} `toml:"store"`
	Cache struct {
		RedisURL     string   `toml:"redis_url"`
		DirectoryTTL Duration `toml:"directory_ttl"`
	} `toml:"cache"`
	Sessions struct {
		IdleTTL       Duration `toml:"idle_ttl"`
		SweepInterval Duration `toml:"sweep_interval"`
	} `toml:"sessions"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:              ModePolling,
		PollTimeout:       60,
		Port:              "8080",
		StoreDriver:       DriverSQLite,
		DBPath:            "./data/relay.db",
		DirectoryCacheTTL: 10 * time.Second,
		SweepInterval:     5 * time.Minute,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path and environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("Unknown keys in config file", "path", path, "keys", fmt.Sprint(undecoded))
	}

	setString(&c.BotToken, fc.Bot.Token)
	setString(&c.Mode, fc.Bot.Mode)
	if fc.Bot.PollTimeout > 0 {
		c.PollTimeout = fc.Bot.PollTimeout
	}
	if len(fc.Bot.AdminIDs) > 0 {
		c.AdminIDs = fc.Bot.AdminIDs
	}
	setString(&c.Port, fc.HTTP.Port)
	setString(&c.WebhookURL, fc.HTTP.WebhookURL)
	setString(&c.WebhookSecret, fc.HTTP.WebhookSecret)
	setString(&c.StoreDriver, fc.Store.Driver)
	setString(&c.DBPath, fc.Store.Path)
	setString(&c.DatabaseURL, fc.Store.DatabaseURL)
	setString(&c.RedisURL, fc.Cache.RedisURL)
	if md.IsDefined("cache", "directory_ttl") {
		c.DirectoryCacheTTL = fc.Cache.DirectoryTTL.Duration
	}
	if md.IsDefined("sessions", "idle_ttl") {
		c.SessionIdleTTL = fc.Sessions.IdleTTL.Duration
	}
	if md.IsDefined("sessions", "sweep_interval") {
		c.SweepInterval = fc.Sessions.SweepInterval.Duration
	}
	setString(&c.LogLevel, fc.Log.Level)
	return nil
}

func (c *Config) applyEnv() error {
	c.BotToken = getEnv("BOT_TOKEN", c.BotToken)
	c.Mode = getEnv("BOT_MODE", c.Mode)
	c.PollTimeout = getEnvInt("POLL_TIMEOUT", c.PollTimeout)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)
	c.Port = getEnv("PORT", c.Port)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.DirectoryCacheTTL, err = getEnvDuration("DIRECTORY_CACHE_TTL", c.DirectoryCacheTTL); err != nil {
		return err
	}
	if c.SessionIdleTTL, err = getEnvDuration("SESSION_IDLE_TTL", c.SessionIdleTTL); err != nil {
		return err
	}
	if c.SweepInterval, err = getEnvDuration("SESSION_SWEEP_INTERVAL", c.SweepInterval); err != nil {
		return err
	}
	if c.AdminIDs, err = getEnvIDs("ADMIN_IDS", c.AdminIDs); err != nil {
		return err
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN cannot be empty")
	}
	switch c.Mode {
	case ModePolling:
		if c.PollTimeout <= 0 {
			return errors.New("POLL_TIMEOUT must be > 0")
		}
	case ModeWebhook:
		if c.WebhookURL == "" {
			return errors.New("WEBHOOK_URL is required in webhook mode")
		}
		if c.WebhookSecret == "" {
			return errors.New("WEBHOOK_SECRET is required in webhook mode")
		}
	default:
		return fmt.Errorf("BOT_MODE must be %q or %q, got %q", ModePolling, ModeWebhook, c.Mode)
	}
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DirectoryCacheTTL <= 0 {
		return errors.New("DIRECTORY_CACHE_TTL must be > 0")
	}
	if c.SessionIdleTTL < 0 {
		return errors.New("SESSION_IDLE_TTL cannot be negative")
	}
	if c.SessionIdleTTL > 0 && c.SweepInterval <= 0 {
		return errors.New("SESSION_SWEEP_INTERVAL must be > 0 when SESSION_IDLE_TTL is set")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// WebhookEndpoint returns the URL registered with the platform.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + "/webhook/" + c.WebhookSecret
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvIDs(key string, fallback []int64) ([]int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
