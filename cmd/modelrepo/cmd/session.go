package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bargom/modelrepo/pkg/logging"
	"github.com/bargom/modelrepo/pkg/metrics"
	"github.com/bargom/modelrepo/pkg/repository"
)

// session holds everything one command invocation needs.
type session struct {
	ctx      context.Context
	base     *repository.Base
	logger   *logging.Logger
	registry *metrics.Registry
	settings settings

	previousDefault *slog.Logger
}

// openSession resolves settings and opens a repository Base for cmd.
func openSession(cmd *cobra.Command, bindQueryArgs bool) (*session, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	// the repository logs through the slog default, tagged by module
	logger := logging.NewWithWriter(s.Log, cmd.ErrOrStderr()).
		WithOperation(cmd.Name()).
		WithDatabase(s.Database.Driver, s.Database.DSN)
	previous := slog.Default()
	logger.SetDefault()

	registry := metrics.NewRegistry(metrics.DefaultConfig().WithVersion(Version))
	ctx := logging.NewInvocation(cmd.Context())

	printVerbose(cmd, "Invocation %s: connecting to %s (%s)\n",
		logging.InvocationID(ctx), s.Database.Driver, logging.RedactDSN(s.Database.DSN))

	base, err := repository.New(s.Database,
		repository.WithMetrics(registry),
		repository.WithSlowThreshold(s.Log.SlowQueryThreshold),
		repository.WithQueryArgs(bindQueryArgs),
	)
	if err != nil {
		slog.SetDefault(previous)
		return nil, err
	}

	return &session{
		ctx:             ctx,
		base:            base,
		logger:          logger.WithModule("cli"),
		registry:        registry,
		settings:        s,
		previousDefault: previous,
	}, nil
}

// Close releases the repository, writes the metrics file when configured
// and restores the previous slog default.
func (s *session) Close() error {
	defer slog.SetDefault(s.previousDefault)

	err := s.base.Close()
	if path := s.settings.MetricsFile; path != "" {
		if werr := s.registry.WriteTextfile(path); werr != nil {
			err = errors.Join(err, fmt.Errorf("writing metrics file: %w", werr))
		} else {
			s.logger.DebugContext(s.ctx, "metrics written", slog.String("path", path))
		}
	}
	return err
}

// closeSession closes s and folds its error into *errp.
func closeSession(s *session, errp *error) {
	if cerr := s.Close(); cerr != nil {
		*errp = errors.Join(*errp, cerr)
	}
}
