package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"
)

// Migration describes one migration file and whether it has been applied.
type Migration struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies goose migrations found at the root of an fs.FS.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator creates a Migrator for db using the goose dialect matching driver.
func NewMigrator(db *sql.DB, driver string, fsys fs.FS) (*Migrator, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	return &Migrator{provider: p}, nil
}

// MigrateUp applies all pending migrations and returns how many ran.
func (m *Migrator) MigrateUp(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("applying migrations: %w", err)
	}
	return len(results), nil
}

// MigrateDown rolls back the most recently applied migration.
func (m *Migrator) MigrateDown(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	return nil
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading migration status: %w", err)
	}

	migrations := make([]Migration, 0, len(statuses))
	for _, s := range statuses {
		mig := Migration{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		}
		if mig.Applied {
			at := s.AppliedAt
			mig.AppliedAt = &at
		}
		migrations = append(migrations, mig)
	}
	return migrations, nil
}

// Version returns the current schema version, 0 when nothing is applied.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func gooseDialect(driver string) (goosedb.Dialect, error) {
	switch ParseDriver(driver) {
	case DriverPostgres, DriverPgx:
		return goosedb.DialectPostgres, nil
	case DriverMySQL:
		return goosedb.DialectMySQL, nil
	case DriverSQLServer:
		return goosedb.DialectMSSQL, nil
	case DriverSQLite:
		return goosedb.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("no migration dialect for driver %q", driver)
	}
}
