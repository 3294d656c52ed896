// Package config provides centralized configuration management for the application.
// Values come from struct tag defaults, then an optional YAML file, then
// environment variables, and are validated on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Upload   UploadConfig   `yaml:"upload"`
	Import   ImportConfig   `yaml:"import"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"2m"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultSQLitePath is used when the sqlite driver is selected without a URL.
const DefaultSQLitePath = "bills.db"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or sqlite (default: postgres)
	Driver string `yaml:"driver" env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string or the SQLite file path.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `yaml:"max_conns" env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `yaml:"min_conns" env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// DSN returns the connection string, falling back to DefaultSQLitePath.
func (c *DatabaseConfig) DSN() string {
	if c.URL == "" && c.Driver == DriverSQLite {
		return DefaultSQLitePath
	}
	return c.URL
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 10MiB)
	MaxFileSize int64 `yaml:"max_file_size" env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is the maximum number of parallel imports (default: 5)
	MaxConcurrent int `yaml:"max_concurrent" env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `yaml:"max_wait_time" env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single import (default: 2m)
	Timeout time.Duration `yaml:"timeout" env:"UPLOAD_TIMEOUT" default:"2m"`
}

// ImportConfig holds record normalization and deduplication settings.
type ImportConfig struct {
	// DefaultCurrency fills records whose export names no currency (default: CNY)
	DefaultCurrency string `yaml:"default_currency" env:"IMPORT_DEFAULT_CURRENCY" default:"CNY"`

	// DedupTolerance is the time window of the content match (default: 1m)
	DedupTolerance time.Duration `yaml:"dedup_tolerance" env:"IMPORT_DEDUP_TOLERANCE" default:"1m"`

	// UTCOffsetHours is the zone of export timestamps (default: 8)
	UTCOffsetHours int `yaml:"utc_offset_hours" env:"IMPORT_UTC_OFFSET_HOURS" default:"8"`
}

// Location returns the fixed zone named by UTCOffsetHours.
func (c *ImportConfig) Location() *time.Location {
	name := "UTC"
	switch {
	case c.UTCOffsetHours > 0:
		name = "UTC+" + strconv.Itoa(c.UTCOffsetHours)
	case c.UTCOffsetHours < 0:
		name = "UTC" + strconv.Itoa(c.UTCOffsetHours)
	}
	return time.FixedZone(name, c.UTCOffsetHours*60*60)
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key header
	RequireAPIKey bool `yaml:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
