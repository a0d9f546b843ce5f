package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
)

// Result is the scripted response to one statement.
type Result struct {
	Columns      []string
	Rows         [][]driver.Value
	RowsAffected int64

	// Err is returned when the statement executes.
	Err error

	// RowErr is returned by the cursor once FailAfter rows were produced.
	RowErr    error
	FailAfter int
}

// Statement is one statement received by the driver with its bound arguments.
type Statement struct {
	Query string
	Args  []driver.NamedValue
}

// Values returns the bound argument values in ordinal order.
func (s Statement) Values() []any {
	values := make([]any, len(s.Args))
	for i, a := range s.Args {
		values[i] = a.Value
	}
	return values
}

// Recorder is a database/sql connector that records connection lifecycle
// and every statement it receives, and answers from a script.
type Recorder struct {
	mu         sync.Mutex
	script     func(query string, args []driver.NamedValue) Result
	connectErr error
	connects   int
	closes     int
	rowsOpened int
	rowsClosed int
	statements []Statement
}

// NewRecorder creates a Recorder answering every statement with an empty result.
func NewRecorder() *Recorder {
	return &Recorder{
		script: func(string, []driver.NamedValue) Result { return Result{} },
	}
}

// Respond installs fn as the script.
func (r *Recorder) Respond(fn func(query string, args []driver.NamedValue) Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = fn
}

// RespondWith answers every statement with res.
func (r *Recorder) RespondWith(res Result) {
	r.Respond(func(string, []driver.NamedValue) Result { return res })
}

// FailConnect makes every new connection attempt fail with err.
func (r *Recorder) FailConnect(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectErr = err
}

// Open returns a handle backed by r with idle retention disabled, so every
// released connection is closed and shows up in Closes. The handle is
// closed when the test ends.
func (r *Recorder) Open(t testing.TB) *sql.DB {
	t.Helper()

	db := sql.OpenDB(r)
	db.SetMaxIdleConns(0)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close recorder database: %v", err)
		}
	})
	return db
}

// Connects returns how many connections were opened.
func (r *Recorder) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Closes returns how many connections were closed.
func (r *Recorder) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// OpenConns returns connections opened and not yet closed.
func (r *Recorder) OpenConns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects - r.closes
}

// OpenRows returns result cursors handed out and not yet closed.
func (r *Recorder) OpenRows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rowsOpened - r.rowsClosed
}

// Statements returns a copy of the statements received so far.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.statements))
	copy(out, r.statements)
	return out
}

// LastStatement returns the most recent statement, if any.
func (r *Recorder) LastStatement() (Statement, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statements) == 0 {
		return Statement{}, false
	}
	return r.statements[len(r.statements)-1], true
}

// Connect implements driver.Connector.
func (r *Recorder) Connect(context.Context) (driver.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectErr != nil {
		return nil, r.connectErr
	}
	r.connects++
	return &recorderConn{r: r}, nil
}

// Driver implements driver.Connector.
func (r *Recorder) Driver() driver.Driver {
	return recorderDriver{r: r}
}

func (r *Recorder) record(query string, args []driver.NamedValue) Result {
	recorded := make([]driver.NamedValue, len(args))
	copy(recorded, args)

	r.mu.Lock()
	r.statements = append(r.statements, Statement{Query: query, Args: recorded})
	script := r.script
	r.mu.Unlock()

	return script(query, recorded)
}

type recorderDriver struct {
	r *Recorder
}

func (d recorderDriver) Open(string) (driver.Conn, error) {
	return d.r.Connect(context.Background())
}

var errNoPrepare = errors.New("dbtest: prepared statements are not supported")

type recorderConn struct {
	r      *Recorder
	closed bool
}

func (c *recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errNoPrepare
}

func (c *recorderConn) Begin() (driver.Tx, error) {
	return nil, errors.New("dbtest: transactions are not supported")
}

func (c *recorderConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.r.mu.Lock()
	c.r.closes++
	c.r.mu.Unlock()
	return nil
}

func (c *recorderConn) CheckNamedValue(nv *driver.NamedValue) error {
	v, err := driver.DefaultParameterConverter.ConvertValue(nv.Value)
	if err != nil {
		return err
	}
	nv.Value = v
	return nil
}

func (c *recorderConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	res := c.r.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	c.r.mu.Lock()
	c.r.rowsOpened++
	c.r.mu.Unlock()
	return &recorderRows{r: c.r, res: res}, nil
}

func (c *recorderConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res := c.r.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	return driver.RowsAffected(res.RowsAffected), nil
}

type recorderRows struct {
	r      *Recorder
	res    Result
	pos    int
	closed bool
}

func (rs *recorderRows) Columns() []string {
	return rs.res.Columns
}

func (rs *recorderRows) Close() error {
	if rs.closed {
		return nil
	}
	rs.closed = true
	rs.r.mu.Lock()
	rs.r.rowsClosed++
	rs.r.mu.Unlock()
	return nil
}

func (rs *recorderRows) Next(dest []driver.Value) error {
	if rs.res.RowErr != nil && rs.pos >= rs.res.FailAfter {
		return rs.res.RowErr
	}
	if rs.pos >= len(rs.res.Rows) {
		return io.EOF
	}
	copy(dest, rs.res.Rows[rs.pos])
	rs.pos++
	return nil
}

var (
	_ driver.Connector         = (*Recorder)(nil)
	_ driver.QueryerContext    = (*recorderConn)(nil)
	_ driver.ExecerContext     = (*recorderConn)(nil)
	_ driver.NamedValueChecker = (*recorderConn)(nil)
)
