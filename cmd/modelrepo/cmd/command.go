package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bargom/modelrepo/pkg/repository"
)

// commandOptions are the flags shared by query, scalar and exec.
type commandOptions struct {
	kind   string
	params []string
	bind   bool
}

func addCommandFlags(cmd *cobra.Command, opts *commandOptions) {
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "query", "command kind (query|procedure)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "parameter as value or name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.bind, "bind", false, "bind parameters to query text as well as to procedures")
}

func (o *commandOptions) commandKind() (repository.CommandKind, error) {
	return repository.ParseCommandKind(o.kind)
}

func validateOutputFormat() error {
	switch outputFormat {
	case "plain", "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use plain, table or json)", outputFormat)
	}
}

func newQueryCmd() *cobra.Command {
	opts := &commandOptions{}
	cmd := &cobra.Command{
		Use:   "query <text|routine>",
		Short: "Run a command and print every row it returns",
		Long: `Run a command and print the rows it returns.

With --kind procedure the argument names a routine, called with the
parameters given by -p in order.`,
		Example: `  modelrepo query "SELECT id, name FROM widgets" -o table
  modelrepo query find_widgets -k procedure -p 10 -p name=bolt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], opts)
		},
	}
	addCommandFlags(cmd, opts)
	return cmd
}

func runQuery(cmd *cobra.Command, text string, opts *commandOptions) (err error) {
	if err := validateOutputFormat(); err != nil {
		return err
	}
	kind, err := opts.commandKind()
	if err != nil {
		return err
	}

	s, err := openSession(cmd, opts.bind)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	var rs resultSet
	for rec, rerr := range s.base.Rows(s.ctx, text, kind, parseParams(opts.params)...) {
		if rerr != nil {
			return fmt.Errorf("query failed: %w", rerr)
		}
		if rs.Columns == nil {
			rs.Columns = rec.Columns()
		}
		row := make([]any, len(rs.Columns))
		dest := make([]any, len(row))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rec.Scan(dest...); err != nil {
			return fmt.Errorf("reading row: %w", err)
		}
		rs.Rows = append(rs.Rows, row)
	}

	printVerbose(cmd, "Read %d %s\n", len(rs.Rows), plural(len(rs.Rows), "row", "rows"))
	return writeResultSet(cmd.OutOrStdout(), rs)
}

func newScalarCmd() *cobra.Command {
	opts := &commandOptions{}
	cmd := &cobra.Command{
		Use:   "scalar <text|routine>",
		Short: "Run a command and print the first column of its first row",
		Long: `Run a command and print the first column of its first row.

An empty result prints <null>, the same as a NULL value.`,
		Example: `  modelrepo scalar "SELECT count(*) FROM widgets"
  modelrepo scalar count_widgets -k procedure`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScalar(cmd, args[0], opts)
		},
	}
	addCommandFlags(cmd, opts)
	return cmd
}

func runScalar(cmd *cobra.Command, text string, opts *commandOptions) (err error) {
	if err := validateOutputFormat(); err != nil {
		return err
	}
	kind, err := opts.commandKind()
	if err != nil {
		return err
	}

	s, err := openSession(cmd, opts.bind)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	value, err := s.base.Scalar(s.ctx, text, kind, parseParams(opts.params)...)
	if err != nil {
		return fmt.Errorf("scalar failed: %w", err)
	}
	return writeScalar(cmd.OutOrStdout(), value)
}

func newExecCmd() *cobra.Command {
	opts := &commandOptions{}
	cmd := &cobra.Command{
		Use:   "exec <text|routine>",
		Short: "Run a command that returns no rows",
		Example: `  modelrepo exec "DELETE FROM widgets WHERE weight > 10"
  modelrepo exec add_widget -k procedure -p bolt -p 2.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args[0], opts)
		},
	}
	addCommandFlags(cmd, opts)
	return cmd
}

func runExec(cmd *cobra.Command, text string, opts *commandOptions) (err error) {
	if err := validateOutputFormat(); err != nil {
		return err
	}
	kind, err := opts.commandKind()
	if err != nil {
		return err
	}

	s, err := openSession(cmd, opts.bind)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	n, err := s.base.ExecAffected(s.ctx, text, kind, parseParams(opts.params)...)
	if err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return writeAffected(cmd.OutOrStdout(), n)
}
