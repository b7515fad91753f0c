// Package config loads oracle engine configuration from config.yaml with
// environment variable overrides. Secrets (PGPASSWORD, JWT_SIGNING_KEY) must
// only come from environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the oracle engine.
// Environment variables always override YAML values for fields that support both.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3260"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Draw engine limits
	Draw DrawConfig `yaml:"draw"`

	// Import pipeline limits
	Import ImportConfig `yaml:"import"`

	// JWTSigningKey verifies role claims on caller tokens.
	JWTSigningKey string `yaml:"-" env:"JWT_SIGNING_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"brumisa"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"brumisa_oracles"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// DrawConfig holds draw engine limits.
type DrawConfig struct {
	// MaxCount is the upper bound on selections per draw call.
	MaxCount int `yaml:"max_count" env:"DRAW_MAX_COUNT" env-default:"100"`
	// HistoryQueueSize is the buffer of the background draw-history recorder.
	HistoryQueueSize int `yaml:"history_queue_size" env:"DRAW_HISTORY_QUEUE_SIZE" env-default:"256"`
}

// ImportConfig holds import pipeline limits.
type ImportConfig struct {
	// MaxFileBytes caps the size of an uploaded import document.
	MaxFileBytes int64 `yaml:"max_file_bytes" env:"IMPORT_MAX_FILE_BYTES" env-default:"5242880"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.Draw.MaxCount <= 0 {
		return nil, fmt.Errorf("draw.max_count must be positive, got %d", cfg.Draw.MaxCount)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns a postgres:// URL for pgxpool and golang-migrate.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}
