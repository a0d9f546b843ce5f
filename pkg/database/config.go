// Package database provides database connectivity and operations.
package database

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Supported driver names, as registered with database/sql.
const (
	DriverPostgres  = "postgres"
	DriverPgx       = "pgx"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

// Config holds database connection configuration.
type Config struct {
	// Driver is the database/sql driver name.
	Driver string `validate:"required,oneof=postgres pgx mysql sqlserver sqlite"`

	// DSN is the driver-specific connection string, passed through untouched.
	DSN string `validate:"required"`

	MaxOpenConns    int           `validate:"gte=0"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverPostgres,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	return nil
}

// ParseDriver normalizes a driver name or alias.
// Unknown names are returned lower-cased so Validate can reject them.
func ParseDriver(s string) string {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	case "pgx":
		return DriverPgx
	case "mysql", "mariadb":
		return DriverMySQL
	case "sqlserver", "mssql":
		return DriverSQLServer
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return d
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - DB_DRIVER: postgres, pgx, mysql, sqlserver or sqlite (default: postgres)
//   - DATABASE_URL or DB_DSN: connection string
//   - DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS: pool sizes
//   - DB_CONN_MAX_LIFETIME, DB_CONN_MAX_IDLE_TIME: durations such as "5m"
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Driver = ParseDriver(driver)
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DSN = dsn
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.DSN = dsn
	}
	if n, ok := intEnv("DB_MAX_OPEN_CONNS"); ok {
		cfg.MaxOpenConns = n
	}
	if n, ok := intEnv("DB_MAX_IDLE_CONNS"); ok {
		cfg.MaxIdleConns = n
	}
	if d, ok := durationEnv("DB_CONN_MAX_LIFETIME"); ok {
		cfg.ConnMaxLifetime = d
	}
	if d, ok := durationEnv("DB_CONN_MAX_IDLE_TIME"); ok {
		cfg.ConnMaxIdleTime = d
	}

	return cfg
}

// intEnv parses a non-negative integer, keeping the default when invalid.
func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func durationEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
