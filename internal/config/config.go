// Package config provides configuration management for the oracle.
// It loads settings from environment variables with the ORACLE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage engine names accepted by ORACLE_STORAGE_ENGINE.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// Config holds all configuration settings for the oracle.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Engine    EngineConfig
	Drift     DriftConfig
	Responses ResponsesConfig
	Log       LogConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `env:"ORACLE_HOST" envDefault:"127.0.0.1"` // Server host
	Port int    `env:"ORACLE_PORT" envDefault:"5000"`      // Server port
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `env:"ORACLE_STORAGE_ENGINE" envDefault:"sqlite"` // sqlite, postgres or memory
	DataPath    string `env:"ORACLE_DATA_PATH" envDefault:"./data"`      // Directory holding oracle.db
	PostgresDSN string `env:"ORACLE_POSTGRES_DSN"`                       // Required when Engine is postgres

	// OpTimeout bounds every store call.
	OpTimeout time.Duration `env:"ORACLE_STORE_TIMEOUT" envDefault:"5s"`

	// BreakerMaxFailures consecutive store failures open the circuit for
	// BreakerCooldown.
	BreakerMaxFailures uint32        `env:"ORACLE_BREAKER_MAX_FAILURES" envDefault:"3"`
	BreakerCooldown    time.Duration `env:"ORACLE_BREAKER_COOLDOWN" envDefault:"30s"`
}

// SQLitePath returns the database file inside DataPath.
func (s StorageConfig) SQLitePath() string {
	return filepath.Join(s.DataPath, "oracle.db")
}

// EngineConfig tunes the mutation engine.
type EngineConfig struct {
	// BroadcastTimeout bounds snapshot assembly for one notification cycle.
	BroadcastTimeout time.Duration `env:"ORACLE_BROADCAST_TIMEOUT" envDefault:"5s"`
}

// DriftConfig controls the periodic drift tick.
type DriftConfig struct {
	Enabled  bool          `env:"ORACLE_DRIFT_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"ORACLE_DRIFT_INTERVAL" envDefault:"30s"`
}

// ResponsesConfig points at an optional YAML reply table.
type ResponsesConfig struct {
	File  string `env:"ORACLE_RESPONSES_FILE"`                    // Empty uses the built-in table
	Watch bool   `env:"ORACLE_RESPONSES_WATCH" envDefault:"true"` // Reload File when it changes
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"ORACLE_LOG_LEVEL" envDefault:"info"`  // debug, info, warn, error
	Format string `env:"ORACLE_LOG_FORMAT" envDefault:"text"` // text or json
}

// SecurityConfig contains browser-facing protections.
type SecurityConfig struct {
	// AllowedOrigins are host patterns (path.Match syntax) accepted for
	// websocket upgrades and CORS. "*" allows every origin.
	AllowedOrigins []string `env:"ORACLE_ALLOWED_ORIGINS" envDefault:"localhost:3000,127.0.0.1:3000,localhost:5000" envSeparator:","`

	// RateLimit is the sustained requests per second allowed per client IP;
	// RateBurst the bucket size. Zero disables rate limiting.
	RateLimit float64 `env:"ORACLE_RATE_LIMIT" envDefault:"10"`
	RateBurst int     `env:"ORACLE_RATE_BURST" envDefault:"20"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enums and ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: ORACLE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	c.Storage.Engine = strings.ToLower(strings.TrimSpace(c.Storage.Engine))
	switch c.Storage.Engine {
	case EngineSQLite:
		if c.Storage.DataPath == "" {
			return fmt.Errorf("config: ORACLE_DATA_PATH is required for the sqlite engine")
		}
	case EnginePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: ORACLE_POSTGRES_DSN is required for the postgres engine")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("config: unknown ORACLE_STORAGE_ENGINE %q (want sqlite, postgres or memory)", c.Storage.Engine)
	}

	if c.Storage.OpTimeout <= 0 {
		return fmt.Errorf("config: ORACLE_STORE_TIMEOUT must be positive")
	}
	if c.Storage.BreakerMaxFailures == 0 {
		return fmt.Errorf("config: ORACLE_BREAKER_MAX_FAILURES must be at least 1")
	}
	if c.Storage.BreakerCooldown <= 0 {
		return fmt.Errorf("config: ORACLE_BREAKER_COOLDOWN must be positive")
	}
	if c.Engine.BroadcastTimeout <= 0 {
		return fmt.Errorf("config: ORACLE_BROADCAST_TIMEOUT must be positive")
	}
	if c.Drift.Enabled && c.Drift.Interval <= 0 {
		return fmt.Errorf("config: ORACLE_DRIFT_INTERVAL must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown ORACLE_LOG_FORMAT %q (want text or json)", c.Log.Format)
	}

	if c.Security.RateLimit < 0 || c.Security.RateBurst < 0 {
		return fmt.Errorf("config: rate limit settings cannot be negative")
	}
	return nil
}
