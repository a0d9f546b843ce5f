// Package cmd provides the CLI commands for modelrepo.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// cfgFile holds the path to the config file
	cfgFile string
	// envFile is loaded into the environment before configuration is read
	envFile string
	// verbose enables verbose output
	verbose bool
	// outputFormat specifies the output format (json, table, plain)
	outputFormat string
	// driverName and dsn select the database
	driverName string
	dsn        string
	// logLevel sets the minimum level of log records written to stderr
	logLevel string
	// metricsFile receives command metrics in Prometheus text format on exit
	metricsFile string
)

const rootLong = `modelrepo runs commands against a relational database through the
repository primitives: row iteration, scalar and non-query execution.

Commands run either as verbatim query text or as stored procedure calls
rendered for the configured driver. Every command uses its own connection,
which is released as soon as the command finishes.`

// Execute builds the command tree and runs it. An interrupt or SIGTERM
// cancels the running command.
// This is called by main.main().
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates a new root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "modelrepo",
		Short:        "Run repository commands against a database",
		Long:         rootLong,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVarP(&outputFormat, "output", "o", "plain", "output format (json|table|plain)")
	flags.StringVar(&driverName, "driver", "", "database driver (postgres|pgx|mysql|sqlserver|sqlite)")
	flags.StringVar(&dsn, "dsn", "", "database connection string")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&metricsFile, "metrics-file", "", "write command metrics to this file on exit")

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newScalarCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPingCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

// printVerbose prints message only if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
	}
}
