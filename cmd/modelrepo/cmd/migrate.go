package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bargom/modelrepo/pkg/database"
)

var migrationsDir string

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema with goose migrations",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the migration files")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	})

	return cmd
}

// withMigrator opens the configured database and runs fn with a Migrator
// reading migrationsDir.
func withMigrator(cmd *cobra.Command, fn func(*database.Migrator) error) (err error) {
	if err := validateOutputFormat(); err != nil {
		return err
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if info, serr := os.Stat(migrationsDir); serr != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory %q not found", migrationsDir)
	}

	printVerbose(cmd, "Migrating %s from %s\n", s.Database.Driver, migrationsDir)

	db, err := database.Open(s.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := database.Close(db); cerr != nil && err == nil {
			err = cerr
		}
	}()

	m, err := database.NewMigrator(db, s.Database.Driver, os.DirFS(migrationsDir))
	if err != nil {
		return err
	}
	return fn(m)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	return withMigrator(cmd, func(m *database.Migrator) error {
		n, err := m.MigrateUp(cmd.Context())
		if err != nil {
			return err
		}
		v, err := m.Version(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]int64{"applied": int64(n), "version": v})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s, schema version %d\n", n, plural(n, "migration", "migrations"), v)
		return nil
	})
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	return withMigrator(cmd, func(m *database.Migrator) error {
		if err := m.MigrateDown(cmd.Context()); err != nil {
			return err
		}
		v, err := m.Version(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]int64{"version": v})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back, schema version %d\n", v)
		return nil
	})
}

type migrationStatus struct {
	Version   int64      `json:"version"`
	Path      string     `json:"path"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	return withMigrator(cmd, func(m *database.Migrator) error {
		migrations, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := make([]migrationStatus, len(migrations))
		for i, mig := range migrations {
			out[i] = migrationStatus(mig)
		}
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), out)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, mig := range out {
			state, at := "pending", ""
			if mig.Applied {
				state = "applied"
				at = mig.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", mig.Version, state, at, mig.Path)
		}
		return tw.Flush()
	})
}
