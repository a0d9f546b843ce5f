package repository

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"log/slog"
)

// Cursor is a forward-only, single-pass iterator over the rows of one
// command. The command runs on the first call to Next. The connection it
// holds is released when the rows are exhausted, when iteration fails, or
// on Close, whichever comes first. A Cursor is not safe for concurrent use.
type Cursor struct {
	base    *Base
	ctx     context.Context
	cmd     command
	prepErr error

	started bool
	done    bool
	conn    *sql.Conn
	rows    *sql.Rows
	record  *Record
	obs     *observation
	count   int
	err     error
}

// Next advances to the next row, running the command on the first call.
// It returns false once the rows are exhausted or an error occurred; Err
// tells the two apart.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if !c.started {
		c.started = true
		if !c.open() {
			return false
		}
	}

	if c.rows.Next() {
		c.count++
		return true
	}
	c.finish(c.rows.Err())
	return false
}

// Record returns the current row. It is valid until the next call to Next
// and nil before the first successful one.
func (c *Cursor) Record() *Record {
	if c.done || c.count == 0 {
		return nil
	}
	return c.record
}

// Err returns the error that stopped iteration, if any. Driver errors are
// returned unchanged.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the rows and the connection. Rows not yet read are
// discarded. Close is idempotent and safe before the first Next.
func (c *Cursor) Close() error {
	if c.done {
		return nil
	}
	c.started = true
	return c.finish(nil)
}

func (c *Cursor) open() bool {
	if c.prepErr != nil {
		c.err = c.prepErr
		c.done = true
		return false
	}

	b := c.base
	c.ctx, c.obs = b.begin(c.ctx, c.cmd)
	if b.metrics != nil {
		b.metrics.CursorOpened()
	}

	conn, err := b.db.Conn(c.ctx)
	if err != nil {
		c.finish(err)
		return false
	}
	c.conn = conn

	rows, err := conn.QueryContext(c.ctx, c.cmd.statement, c.cmd.args...)
	if err != nil {
		c.finish(err)
		return false
	}
	c.rows = rows

	columns, err := rows.Columns()
	if err != nil {
		c.finish(err)
		return false
	}
	c.record = newRecord(rows, columns)
	return true
}

// finish releases everything the cursor holds and records the outcome.
// cause is the error that ended iteration; release failures are returned.
func (c *Cursor) finish(cause error) error {
	if c.done {
		return nil
	}
	c.done = true
	if cause != nil {
		c.err = cause
	}

	var closeErr error
	if c.rows != nil {
		closeErr = c.rows.Close()
		c.rows = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			closeErr = errors.Join(closeErr, err)
		}
		c.conn = nil
	}

	if c.obs != nil {
		b := c.base
		if b.metrics != nil {
			b.metrics.CursorClosed()
		}
		b.end(c.ctx, c.cmd, c.obs, c.err, slog.Int("rows", c.count))
		c.obs = nil
	}
	return closeErr
}

// Rows returns a lazy sequence over the rows of the command. Each range
// over the sequence runs the command once on its own connection. Breaking
// out of the loop releases the connection immediately. An error ends the
// sequence as a final (nil, err) pair.
func (b *Base) Rows(ctx context.Context, query string, kind CommandKind, args ...any) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		c := b.Cursor(ctx, query, kind, args...)
		defer c.Close()

		for c.Next() {
			if !yield(c.Record(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(nil, err)
		}
	}
}
