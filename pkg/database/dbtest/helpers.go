// Package dbtest provides test helpers for database tests.
package dbtest

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/bargom/modelrepo/pkg/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the fixture migrations rooted at the migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// SQLiteDSN returns a DSN for a fresh SQLite file in a test temp directory.
func SQLiteDSN(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// SetupTestDB creates a file-backed SQLite database for testing
// and runs the fixture migrations.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Driver = database.DriverSQLite
	cfg.DSN = SQLiteDSN(t)

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	m, err := database.NewMigrator(db, cfg.Driver, Migrations())
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if _, err := m.MigrateUp(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// TeardownTestDB closes the test database connection.
func TeardownTestDB(t testing.TB, db *sql.DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("failed to close test database: %v", err)
	}
}

// SeedWidgets inserts one widget per name and returns their ids in order.
func SeedWidgets(t testing.TB, db *sql.DB, names ...string) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(names))
	for i, name := range names {
		res, err := db.Exec(
			"INSERT INTO widgets (name, weight) VALUES (?, ?)",
			name, float64(i+1)*1.5,
		)
		if err != nil {
			t.Fatalf("failed to seed widget %q: %v", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			t.Fatalf("failed to read widget id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
