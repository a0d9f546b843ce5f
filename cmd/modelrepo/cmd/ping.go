package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bargom/modelrepo/pkg/database"
	"github.com/bargom/modelrepo/pkg/logging"
)

var pingTimeout time.Duration

// pingResult reports connectivity and the pool state after the ping.
type pingResult struct {
	Driver          string `json:"driver"`
	DSN             string `json:"dsn"`
	LatencyMS       int64  `json:"latencyMs"`
	MaxConnections  int    `json:"maxConnections"`
	OpenConnections int    `json:"openConnections"`
	InUse           int    `json:"inUse"`
	Idle            int    `json:"idle"`
}

func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the database is reachable",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}
	cmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "give up after this long")
	return cmd
}

func runPing(cmd *cobra.Command, args []string) (err error) {
	if err := validateOutputFormat(); err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer closeSession(s, &err)

	ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := database.Ping(ctx, s.base.DB()); err != nil {
		return err
	}
	stats := database.GetPoolStats(s.base.DB())

	res := pingResult{
		Driver:          s.settings.Database.Driver,
		DSN:             logging.RedactDSN(s.settings.Database.DSN),
		LatencyMS:       time.Since(start).Milliseconds(),
		MaxConnections:  stats.MaxOpenConnections,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s reachable in %dms (open %d, in use %d, idle %d)\n",
		res.Driver, res.LatencyMS, res.OpenConnections, res.InUse, res.Idle)
	return nil
}
