// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"fish-landings/pkg/database"
)

// Config is the root configuration for the ingester, server and migrate binaries.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Pipeline PipelineConfig
}

// DatabaseConfig selects and tunes the landings store.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" default:"sqlite3"`
	Path            string        `env:"DB_PATH" envAlt:"SQLITE_PATH" default:"./fish_landings.db"`
	Host            string        `env:"DB_HOST" default:"localhost"`
	Port            int           `env:"DB_PORT" default:"5432"`
	User            string        `env:"DB_USER" default:"landings"`
	Password        string        `env:"DB_PASSWORD"`
	Database        string        `env:"DB_NAME" default:"landings"`
	SSLMode         string        `env:"DB_SSLMODE" default:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" default:"5m"`
}

// Connection converts the settings to a database connection config.
func (d DatabaseConfig) Connection() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Path:            d.Path,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	QueryRowLimit   int           `env:"SERVER_QUERY_ROW_LIMIT" default:"1000"`
	QueryTimeout    time.Duration `env:"SERVER_QUERY_TIMEOUT" default:"10s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"json"`
}

// PipelineConfig drives the standardization run.
type PipelineConfig struct {
	DataDir     string `env:"PIPELINE_DATA_DIR" envAlt:"DATA_DIR" default:"./data"`
	FilePattern string `env:"PIPELINE_FILE_PATTERN" default:"{year}.csv"`
	FirstYear   int    `env:"PIPELINE_FIRST_YEAR" default:"2014"`
	LastYear    int    `env:"PIPELINE_LAST_YEAR" default:"2024"`
	RulesPath   string `env:"PIPELINE_RULES_PATH"`
	Workers     int    `env:"PIPELINE_WORKERS" default:"4"`
	BatchSize   int    `env:"PIPELINE_BATCH_SIZE" default:"1000"`
	StrictYear  bool   `env:"PIPELINE_STRICT_YEAR" default:"true"`
	DryRun      bool   `env:"PIPELINE_DRY_RUN" default:"false"`
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, "DB_PATH is required when DB_DRIVER=sqlite3")
		}
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "DB_HOST is required when DB_DRIVER=postgres")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("DB_PORT (%d) must be 1-65535", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "DB_NAME is required when DB_DRIVER=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: sqlite3, postgres", c.Database.Driver))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, "DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		errs = append(errs, "DB_MAX_IDLE_CONNS must be non-negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_IDLE_CONNS (%d) must be <= DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.QueryRowLimit <= 0 {
		errs = append(errs, "SERVER_QUERY_ROW_LIMIT must be positive")
	}
	if c.Server.QueryTimeout <= 0 {
		errs = append(errs, "SERVER_QUERY_TIMEOUT must be positive")
	}

	// Pipeline validation
	if c.Pipeline.DataDir == "" {
		errs = append(errs, "PIPELINE_DATA_DIR is required")
	}
	if !strings.Contains(c.Pipeline.FilePattern, "{year}") {
		errs = append(errs, fmt.Sprintf("PIPELINE_FILE_PATTERN (%q) must contain {year}", c.Pipeline.FilePattern))
	}
	if c.Pipeline.FirstYear > c.Pipeline.LastYear {
		errs = append(errs, fmt.Sprintf("PIPELINE_FIRST_YEAR (%d) must be <= PIPELINE_LAST_YEAR (%d)",
			c.Pipeline.FirstYear, c.Pipeline.LastYear))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, "PIPELINE_WORKERS must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, "PIPELINE_BATCH_SIZE must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database password is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, Path: %q, Host: %q, Port: %d, User: %q, Password: [MASKED], Name: %q}, ",
		c.Database.Driver, c.Database.Path, c.Database.Host, c.Database.Port, c.Database.User, c.Database.Database))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d, QueryRowLimit: %d}, ",
		c.Server.Host, c.Server.Port, c.Server.QueryRowLimit))
	b.WriteString(fmt.Sprintf("Pipeline: {DataDir: %q, FilePattern: %q, Years: %d-%d, Workers: %d, StrictYear: %v, DryRun: %v}, ",
		c.Pipeline.DataDir, c.Pipeline.FilePattern, c.Pipeline.FirstYear, c.Pipeline.LastYear,
		c.Pipeline.Workers, c.Pipeline.StrictYear, c.Pipeline.DryRun))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
