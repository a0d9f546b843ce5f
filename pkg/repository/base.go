package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bargom/modelrepo/pkg/database"
	"github.com/bargom/modelrepo/pkg/logging"
	"github.com/bargom/modelrepo/pkg/metrics"
)

const tracerName = "github.com/bargom/modelrepo/pkg/repository"

const (
	primitiveRows   = "rows"
	primitiveScalar = "scalar"
	primitiveExec   = "exec"
)

// Base is embedded by concrete repositories. It owns one database handle
// and runs every command on a connection acquired for that command alone.
// Base is safe for concurrent use.
type Base struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool
	closed  atomic.Bool

	logger        *slog.Logger
	metrics       *metrics.DBMetrics
	tracer        trace.Tracer
	slowThreshold time.Duration
	bindQueryArgs bool

	statsInterval time.Duration
	stopStats     func()
}

// Option configures a Base.
type Option func(*Base)

// WithLogger sets the logger. Defaults to the slog default logger tagged
// with module=repository.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records command and pool metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Base) {
		if reg != nil {
			b.metrics = reg.DB()
		}
	}
}

// WithTracer sets the tracer used for command spans. Defaults to the
// global tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Base) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithSlowThreshold logs commands slower than d at warn level. Zero disables.
func WithSlowThreshold(d time.Duration) Option {
	return func(b *Base) {
		b.slowThreshold = d
	}
}

// WithQueryArgs controls whether parameters passed with the Query kind are
// bound. By default they are dropped and only stored procedure calls bind
// parameters.
func WithQueryArgs(bind bool) Option {
	return func(b *Base) {
		b.bindQueryArgs = bind
	}
}

// WithPoolStatsInterval refreshes the pool gauges every d in the background
// until Close. It takes effect only together with WithMetrics.
func WithPoolStatsInterval(d time.Duration) Option {
	return func(b *Base) {
		b.statsInterval = d
	}
}

// New opens a handle from cfg and returns a Base owning it. The dialect is
// chosen from cfg.Driver. No connection is made until the first command.
func New(cfg database.Config, opts ...Option) (*Base, error) {
	cfg.Driver = database.ParseDriver(cfg.Driver)
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}

	b := NewWithDB(db, DialectFor(cfg.Driver), opts...)
	b.ownsDB = true
	b.logger.Debug("repository opened",
		slog.String("driver", cfg.Driver),
		slog.String("dsn", logging.RedactDSN(cfg.DSN)),
	)
	return b, nil
}

// NewWithDB wraps an existing handle. The caller keeps ownership of db;
// Close does not close it. A nil dialect means Standard.
func NewWithDB(db *sql.DB, dialect Dialect, opts ...Option) *Base {
	if dialect == nil {
		dialect = Standard
	}

	b := &Base{
		db:            db,
		dialect:       dialect,
		logger:        logging.ModuleLogger("repository"),
		tracer:        otel.Tracer(tracerName),
		slowThreshold: logging.DefaultConfig().SlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil && b.statsInterval > 0 {
		b.stopStats = b.metrics.StartConnectionStatsCollector(db, b.statsInterval)
	}
	return b
}

// DB returns the underlying handle.
func (b *Base) DB() *sql.DB {
	return b.db
}

// Dialect returns the dialect used to render stored procedure calls.
func (b *Base) Dialect() Dialect {
	return b.dialect
}

// Close marks the Base closed, stops the pool stats refresh and, when New
// opened the handle, closes it. Calling Close more than once is a no-op.
func (b *Base) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.stopStats != nil {
		b.stopStats()
	}
	if !b.ownsDB {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing repository: %w", err)
	}
	return nil
}

// command is one prepared invocation of a primitive.
type command struct {
	primitive string
	kind      CommandKind
	text      string
	statement string
	args      []any
	operation metrics.Operation
}

func (b *Base) prepare(ctx context.Context, primitive string, shape CallShape, text string, kind CommandKind, args []any) (command, error) {
	cmd, err := b.buildCommand(ctx, primitive, shape, text, kind, args)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "command rejected",
			slog.String("primitive", primitive),
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)
	}
	return cmd, err
}

func (b *Base) buildCommand(ctx context.Context, primitive string, shape CallShape, text string, kind CommandKind, args []any) (command, error) {
	cmd := command{
		primitive: primitive,
		kind:      kind,
		text:      text,
	}
	if b.closed.Load() {
		return cmd, ErrClosed
	}

	switch kind {
	case StoredProcedure:
		stmt, bound, err := b.dialect.RenderCall(text, shape, args)
		if err != nil {
			return cmd, err
		}
		cmd.statement = stmt
		cmd.args = bound
		cmd.operation = metrics.OperationProcedure
	case Query:
		cmd.statement = text
		cmd.operation = metrics.DetectOperation(text)
		if b.bindQueryArgs {
			cmd.args = args
		} else if len(args) > 0 {
			b.logger.LogAttrs(ctx, slog.LevelWarn, "query arguments dropped",
				slog.String("primitive", primitive),
				slog.Int("dropped", len(args)),
			)
		}
	default:
		return cmd, fmt.Errorf("%w: %d", ErrUnknownCommandKind, int(kind))
	}
	return cmd, nil
}

// observation tracks one command from start to finish.
type observation struct {
	span  trace.Span
	timer *metrics.CommandTimer
	start time.Time
}

func (b *Base) begin(ctx context.Context, cmd command) (context.Context, *observation) {
	ctx, span := b.tracer.Start(ctx, "repository."+cmd.primitive,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system.name", b.dialect.Name()),
			attribute.String("db.operation.name", string(cmd.operation)),
			attribute.String("db.query.text", cmd.statement),
			attribute.String("modelrepo.command.kind", cmd.kind.String()),
			attribute.Int("modelrepo.command.args", len(cmd.args)),
		),
	)

	obs := &observation{span: span, start: time.Now()}
	if b.metrics != nil {
		obs.timer = b.metrics.NewCommandTimer(cmd.primitive, cmd.kind.String(), cmd.operation)
	}
	return ctx, obs
}

func (b *Base) end(ctx context.Context, cmd command, obs *observation, err error, attrs ...slog.Attr) {
	elapsed := time.Since(obs.start)
	if obs.timer != nil {
		obs.timer.Done(err)
		b.metrics.UpdateFromDBStats(b.db.Stats())
	}

	attrs = append(attrs,
		slog.String("primitive", cmd.primitive),
		slog.String("kind", cmd.kind.String()),
		slog.String("statement", cmd.statement),
		slog.Duration("duration", elapsed),
	)

	switch {
	case err != nil:
		obs.span.RecordError(err)
		obs.span.SetStatus(codes.Error, err.Error())
		b.logger.LogAttrs(ctx, slog.LevelWarn, "command failed", append(attrs, slog.Any("error", err))...)
	case b.slowThreshold > 0 && elapsed >= b.slowThreshold:
		b.logger.LogAttrs(ctx, slog.LevelWarn, "slow command", attrs...)
	default:
		b.logger.LogAttrs(ctx, slog.LevelDebug, "command executed", attrs...)
	}
	obs.span.End()
}

// release returns conn to the pool, logging a failure to do so.
func (b *Base) release(ctx context.Context, conn *sql.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "releasing connection failed", slog.Any("error", err))
	}
}

// Cursor returns a lazy cursor over the rows produced by the command.
// Nothing runs until the first call to Next.
func (b *Base) Cursor(ctx context.Context, query string, kind CommandKind, args ...any) *Cursor {
	cmd, err := b.prepare(ctx, primitiveRows, CallRows, query, kind, args)
	return &Cursor{
		base:    b,
		ctx:     ctx,
		cmd:     cmd,
		prepErr: err,
	}
}

// Scalar runs the command and returns the first column of the first row.
// Further rows and columns are ignored. An empty result and SQL NULL both
// yield nil with no error. Driver errors are returned unchanged.
func (b *Base) Scalar(ctx context.Context, query string, kind CommandKind, args ...any) (any, error) {
	cmd, err := b.prepare(ctx, primitiveScalar, CallScalar, query, kind, args)
	if err != nil {
		return nil, err
	}

	ctx, obs := b.begin(ctx, cmd)
	value, err := b.scalar(ctx, cmd)
	b.end(ctx, cmd, obs, err, slog.Bool("empty", value == nil))
	return value, err
}

func (b *Base) scalar(ctx context.Context, cmd command) (any, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer b.release(ctx, conn)

	rows, err := conn.QueryContext(ctx, cmd.statement, cmd.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	var value any
	dest := make([]any, len(columns))
	dest[0] = &value
	for i := 1; i < len(dest); i++ {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return value, nil
}

// ScalarOf runs Scalar and converts the value to T using database/sql
// conversion rules. ok is false when the result was empty or NULL.
func ScalarOf[T any](ctx context.Context, b *Base, query string, kind CommandKind, args ...any) (value T, ok bool, err error) {
	raw, err := b.Scalar(ctx, query, kind, args...)
	if err != nil {
		return value, false, err
	}

	var n sql.Null[T]
	if err := n.Scan(raw); err != nil {
		return value, false, fmt.Errorf("converting scalar to %T: %w", value, err)
	}
	return n.V, n.Valid, nil
}

// Exec runs the command for its effect. Driver errors are returned unchanged.
func (b *Base) Exec(ctx context.Context, query string, kind CommandKind, args ...any) error {
	_, err := b.exec(ctx, query, kind, args, false)
	return err
}

// ExecAffected runs the command and returns the number of affected rows.
func (b *Base) ExecAffected(ctx context.Context, query string, kind CommandKind, args ...any) (int64, error) {
	return b.exec(ctx, query, kind, args, true)
}

func (b *Base) exec(ctx context.Context, query string, kind CommandKind, args []any, count bool) (int64, error) {
	cmd, err := b.prepare(ctx, primitiveExec, CallExec, query, kind, args)
	if err != nil {
		return 0, err
	}

	ctx, obs := b.begin(ctx, cmd)
	affected, err := b.execOn(ctx, cmd, count)
	if count {
		b.end(ctx, cmd, obs, err, slog.Int64("affected", affected))
	} else {
		b.end(ctx, cmd, obs, err)
	}
	return affected, err
}

func (b *Base) execOn(ctx context.Context, cmd command, count bool) (int64, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer b.release(ctx, conn)

	res, err := conn.ExecContext(ctx, cmd.statement, cmd.args...)
	if err != nil {
		return 0, err
	}
	if !count {
		return 0, nil
	}
	return res.RowsAffected()
}
