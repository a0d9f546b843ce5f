// Package testing provides test utilities for CLI commands.
package testing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bargom/modelrepo/pkg/database/dbtest"
)

// ExecuteCommand runs a cobra command with the given arguments and returns the output.
func ExecuteCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// ExecuteCommandWithErr runs a cobra command and captures stdout and stderr separately.
func ExecuteCommandWithErr(root *cobra.Command, args ...string) (stdout string, stderr string, err error) {
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	root.SetArgs(args)

	err = root.Execute()
	return stdoutBuf.String(), stderrBuf.String(), err
}

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// SQLiteFlags returns the connection flags for a fresh SQLite database.
// The dotenv lookup is disabled so a stray .env cannot leak into the test.
func SQLiteFlags(t *testing.T) []string {
	t.Helper()
	return []string{"--driver", "sqlite", "--dsn", dbtest.SQLiteDSN(t), "--env-file", ""}
}

// MigrationsDir writes the widgets schema as goose migrations into a
// temporary directory and returns it.
func MigrationsDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	WriteFile(t, dir, "00001_create_widgets.sql", `-- +goose Up
CREATE TABLE widgets (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    name   TEXT NOT NULL UNIQUE,
    weight REAL NOT NULL DEFAULT 0
);

-- +goose Down
DROP TABLE widgets;
`)
	return dir
}
