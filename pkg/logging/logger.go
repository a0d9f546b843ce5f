package logging

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a slog.Logger whose records are redacted and tagged with the
// invocation and span of the context they are logged with.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a Logger writing to the output named by config.
func New(config Config) *Logger {
	return NewWithWriter(config, config.GetOutput())
}

// NewWithWriter creates a Logger writing to w. Connection strings and other
// credentials are redacted before they reach w.
func NewWithWriter(config Config, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	redactor := NewRedactor()
	for _, f := range config.SensitiveFields {
		redactor.AddSensitiveField(f)
	}
	for _, p := range config.RedactPatterns {
		// invalid patterns are skipped
		_ = redactor.AddSensitivePattern(p)
	}
	for _, f := range config.AllowlistFields {
		redactor.AddAllowlistField(f)
	}

	return &Logger{
		Logger: slog.New(&correlationHandler{next: NewRedactingHandler(handler, redactor)}),
		config: config,
	}
}

// Config returns the configuration the logger was built with.
func (l *Logger) Config() Config {
	return l.config
}

// SetDefault installs l as the slog default, which ModuleLogger derives from.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// With returns a Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// WithModule tags records with the emitting module.
func (l *Logger) WithModule(module string) *Logger {
	return l.With("module", module)
}

// WithOperation tags records with the operation being run, such as a CLI
// command name.
func (l *Logger) WithOperation(operation string) *Logger {
	return l.With("operation", operation)
}

// WithDatabase tags records with the driver and a redacted DSN.
func (l *Logger) WithDatabase(driver, dsn string) *Logger {
	return l.With(
		slog.String("driver", driver),
		slog.String("dsn", RedactDSN(dsn)),
	)
}

// correlationHandler adds the invocation id and the active span's ids.
type correlationHandler struct {
	next slog.Handler
}

func (h *correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := InvocationID(ctx); id != "" {
		r.AddAttrs(slog.String("invocation_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{next: h.next.WithGroup(name)}
}

// ModuleLogger returns the slog default tagged with module.
func ModuleLogger(module string) *slog.Logger {
	return slog.Default().With("module", module)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
