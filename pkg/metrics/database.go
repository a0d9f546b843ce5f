package metrics

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// DBMetrics records repository command and pool metrics.
type DBMetrics struct {
	registry *Registry
}

// DB returns the database metrics interface for the registry.
func (r *Registry) DB() *DBMetrics {
	return &DBMetrics{registry: r}
}

// Operation is the statement verb a command starts with.
type Operation string

const (
	OperationSelect    Operation = "SELECT"
	OperationInsert    Operation = "INSERT"
	OperationUpdate    Operation = "UPDATE"
	OperationDelete    Operation = "DELETE"
	OperationProcedure Operation = "PROCEDURE"
	OperationOther     Operation = "OTHER"
)

// CommandStatus represents the result status of a command.
type CommandStatus string

const (
	CommandStatusSuccess CommandStatus = "success"
	CommandStatusError   CommandStatus = "error"
)

// RecordCommand records the outcome and duration of one command.
func (d *DBMetrics) RecordCommand(primitive, kind string, operation Operation, duration time.Duration, err error) {
	status := CommandStatusSuccess
	if err != nil {
		status = CommandStatusError
	}

	d.registry.commandsTotal.WithLabelValues(primitive, kind, string(operation), string(status)).Inc()
	d.registry.commandDuration.WithLabelValues(primitive, kind).Observe(duration.Seconds())

	if err != nil {
		d.registry.commandErrors.WithLabelValues(primitive, kind, classifyDBError(err)).Inc()
	}
}

// CursorOpened marks a cursor as holding a connection.
func (d *DBMetrics) CursorOpened() {
	d.registry.openCursors.Inc()
}

// CursorClosed marks a cursor as released.
func (d *DBMetrics) CursorClosed() {
	d.registry.openCursors.Dec()
}

// UpdateFromDBStats updates pool gauges from sql.DBStats.
func (d *DBMetrics) UpdateFromDBStats(stats sql.DBStats) {
	d.registry.connectionsInUse.Set(float64(stats.InUse))
	d.registry.connectionsIdle.Set(float64(stats.Idle))
	d.registry.connectionsMax.Set(float64(stats.MaxOpenConnections))
}

// DetectOperation reports the verb of a statement. Stored procedure
// invocations (CALL, EXEC) map to OperationProcedure.
func DetectOperation(query string) Operation {
	query = strings.TrimSpace(strings.ToUpper(query))

	switch {
	case strings.HasPrefix(query, "SELECT"), strings.HasPrefix(query, "WITH"):
		return OperationSelect
	case strings.HasPrefix(query, "INSERT"):
		return OperationInsert
	case strings.HasPrefix(query, "UPDATE"):
		return OperationUpdate
	case strings.HasPrefix(query, "DELETE"):
		return OperationDelete
	case strings.HasPrefix(query, "CALL"), strings.HasPrefix(query, "EXEC"):
		return OperationProcedure
	default:
		return OperationOther
	}
}

// CommandTimer times one command from creation until Done.
type CommandTimer struct {
	dbMetrics *DBMetrics
	primitive string
	kind      string
	operation Operation
	start     time.Time
}

// NewCommandTimer starts timing a command.
func (d *DBMetrics) NewCommandTimer(primitive, kind string, operation Operation) *CommandTimer {
	return &CommandTimer{
		dbMetrics: d,
		primitive: primitive,
		kind:      kind,
		operation: operation,
		start:     time.Now(),
	}
}

// Done records the command duration and any error, and returns the elapsed time.
func (ct *CommandTimer) Done(err error) time.Duration {
	elapsed := time.Since(ct.start)
	ct.dbMetrics.RecordCommand(ct.primitive, ct.kind, ct.operation, elapsed, err)
	return elapsed
}

// classifyDBError attempts to classify a database error for metrics.
func classifyDBError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, sql.ErrNoRows):
		return "not_found"
	case errors.Is(err, sql.ErrConnDone):
		return "connection"
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "connect:"):
		return "connection"
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "duplicate"), strings.Contains(errStr, "unique"):
		return "duplicate_key"
	case strings.Contains(errStr, "constraint"):
		return "constraint_violation"
	case strings.Contains(errStr, "deadlock"):
		return "deadlock"
	case strings.Contains(errStr, "syntax"):
		return "syntax"
	case strings.Contains(errStr, "no such"), strings.Contains(errStr, "does not exist"):
		return "undefined_object"
	default:
		return "unknown"
	}
}

// StartConnectionStatsCollector starts a goroutine that periodically updates
// the pool gauges from db. The returned function stops it.
func (d *DBMetrics) StartConnectionStatsCollector(db *sql.DB, interval time.Duration) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.UpdateFromDBStats(db.Stats())
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
