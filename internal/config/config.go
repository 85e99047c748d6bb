// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"production"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        string `env:"PORT" envDefault:"8787"`
	FrontendURL string `env:"FRONTEND_URL"`
	// GRPCHealthAddr enables the gRPC health service when non-empty (e.g. ":8788").
	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR"`

	DBPath        string        `env:"YAR_DB_PATH"`
	DBBusyTimeout time.Duration `env:"YAR_DB_BUSY_TIMEOUT" envDefault:"5s"`
	SessionName   string        `env:"YAR_SESSION_NAME"`

	Engine EngineConfig `envPrefix:"YAR_"`
}

// EngineConfig holds the coordination engine tunables.
type EngineConfig struct {
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"60s"`
	MessageRetention     time.Duration `env:"MESSAGE_RETENTION" envDefault:"24h"`
	GCInterval           time.Duration `env:"GC_INTERVAL" envDefault:"60s"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
	RateLimitPerSecond   int           `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	ListenDefaultTimeout time.Duration `env:"LISTEN_DEFAULT_TIMEOUT" envDefault:"30s"`
	ListenMinTimeout     time.Duration `env:"LISTEN_MIN_TIMEOUT" envDefault:"5s"`
	ListenMaxTimeout     time.Duration `env:"LISTEN_MAX_TIMEOUT" envDefault:"120s"`
	ListenMaxMessages    int           `env:"LISTEN_MAX_MESSAGES" envDefault:"50"`
	ListenPollInterval   time.Duration `env:"LISTEN_POLL_INTERVAL" envDefault:"1s"`
	CursorFallbackWindow time.Duration `env:"CURSOR_FALLBACK_WINDOW" envDefault:"60s"`
}

// DefaultEngine returns the engine tunables with their stock values.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		HeartbeatInterval:    15 * time.Second,
		SessionTTL:           60 * time.Second,
		MessageRetention:     24 * time.Hour,
		GCInterval:           60 * time.Second,
		MaxMessageSize:       65536,
		RateLimitPerSecond:   10,
		ListenDefaultTimeout: 30 * time.Second,
		ListenMinTimeout:     5 * time.Second,
		ListenMaxTimeout:     120 * time.Second,
		ListenMaxMessages:    50,
		ListenPollInterval:   time.Second,
		CursorFallbackWindow: 60 * time.Second,
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}

	if cfg.DBPath == "" {
		path, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = path
	}
	if cfg.SessionName == "" {
		cfg.SessionName = fmt.Sprintf("session-%d", os.Getpid())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultDBPath returns ~/.claude/yar/yar.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "yar", "yar.db"), nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("YAR_DB_PATH cannot be empty")
	}
	if c.DBBusyTimeout <= 0 {
		return fmt.Errorf("YAR_DB_BUSY_TIMEOUT must be > 0")
	}
	return c.Engine.Validate()
}

// Validate checks the engine tunables for consistency.
func (e *EngineConfig) Validate() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"YAR_HEARTBEAT_INTERVAL", e.HeartbeatInterval},
		{"YAR_SESSION_TTL", e.SessionTTL},
		{"YAR_MESSAGE_RETENTION", e.MessageRetention},
		{"YAR_GC_INTERVAL", e.GCInterval},
		{"YAR_LISTEN_MIN_TIMEOUT", e.ListenMinTimeout},
		{"YAR_LISTEN_POLL_INTERVAL", e.ListenPollInterval},
		{"YAR_CURSOR_FALLBACK_WINDOW", e.CursorFallbackWindow},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", p.name, p.value)
		}
	}
	if e.HeartbeatInterval >= e.SessionTTL {
		return fmt.Errorf("YAR_HEARTBEAT_INTERVAL (%s) must be shorter than YAR_SESSION_TTL (%s)", e.HeartbeatInterval, e.SessionTTL)
	}
	if e.ListenMinTimeout > e.ListenMaxTimeout {
		return fmt.Errorf("YAR_LISTEN_MIN_TIMEOUT must not exceed YAR_LISTEN_MAX_TIMEOUT")
	}
	if e.ListenDefaultTimeout < e.ListenMinTimeout || e.ListenDefaultTimeout > e.ListenMaxTimeout {
		return fmt.Errorf("YAR_LISTEN_DEFAULT_TIMEOUT must be within [%s, %s]", e.ListenMinTimeout, e.ListenMaxTimeout)
	}
	if e.MaxMessageSize <= 0 {
		return fmt.Errorf("YAR_MAX_MESSAGE_SIZE must be > 0")
	}
	if e.ListenMaxMessages <= 0 {
		return fmt.Errorf("YAR_LISTEN_MAX_MESSAGES must be > 0")
	}
	if e.RateLimitPerSecond < 0 {
		return fmt.Errorf("YAR_RATE_LIMIT_PER_SECOND must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
