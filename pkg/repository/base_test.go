package repository_test

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/modelrepo/pkg/database"
	"github.com/bargom/modelrepo/pkg/database/dbtest"
	"github.com/bargom/modelrepo/pkg/logging"
	"github.com/bargom/modelrepo/pkg/repository"
)

var errDriver = errors.New("driver: relation \"widgets\" does not exist")

func newRecorderBase(t *testing.T, opts ...repository.Option) (*repository.Base, *dbtest.Recorder) {
	t.Helper()

	rec := dbtest.NewRecorder()
	db := rec.Open(t)
	opts = append([]repository.Option{repository.WithLogger(logging.Discard())}, opts...)
	return repository.NewWithDB(db, repository.Standard, opts...), rec
}

// assertReleased checks that every connection opened was closed again.
func assertReleased(t *testing.T, b *repository.Base, rec *dbtest.Recorder) {
	t.Helper()

	assert.Equal(t, 0, b.DB().Stats().InUse, "connections in use")
	assert.Equal(t, rec.Connects(), rec.Closes(), "connects and closes")
	assert.Equal(t, 0, rec.OpenRows(), "open driver rows")
}

func widgetRows() dbtest.Result {
	return dbtest.Result{
		Columns: []string{"id", "name"},
		Rows: [][]driver.Value{
			{int64(1), "sprocket"},
			{int64(2), "flange"},
			{int64(3), "gear"},
		},
	}
}

func TestStoredProcedure_BindsParametersInOrder(t *testing.T) {
	ctx := context.Background()
	b, rec := newRecorderBase(t)

	require.NoError(t, b.Exec(ctx, "archive_widgets", repository.StoredProcedure, "a", int64(2), 3.5))

	stmt, ok := rec.LastStatement()
	require.True(t, ok)
	assert.Equal(t, "CALL archive_widgets(?, ?, ?)", stmt.Query)
	assert.Equal(t, []any{"a", int64(2), 3.5}, stmt.Values())
	for i, arg := range stmt.Args {
		assert.Equal(t, i+1, arg.Ordinal)
	}
}

func TestStoredProcedure_AllPrimitivesBind(t *testing.T) {
	ctx := context.Background()
	b, rec := newRecorderBase(t)
	rec.RespondWith(dbtest.Result{Columns: []string{"n"}, Rows: [][]driver.Value{{int64(1)}}})

	_, err := b.Scalar(ctx, "count_widgets", repository.StoredProcedure, "x")
	require.NoError(t, err)
	for _, err := range b.Rows(ctx, "list_widgets", repository.StoredProcedure, "y", "z") {
		require.NoError(t, err)
	}

	stmts := rec.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, []any{"x"}, stmts[0].Values())
	assert.Equal(t, []any{"y", "z"}, stmts[1].Values())
}

func TestStoredProcedure_NamedArgument(t *testing.T) {
	t.Run("positional dialect binds by position", func(t *testing.T) {
		b, rec := newRecorderBase(t)

		require.NoError(t, b.Exec(context.Background(), "rename_widget", repository.StoredProcedure,
			int64(4), sql.Named("name", "cog")))

		stmt, _ := rec.LastStatement()
		assert.Equal(t, "CALL rename_widget(?, ?)", stmt.Query)
		require.Len(t, stmt.Args, 2)
		assert.Equal(t, "", stmt.Args[1].Name)
		assert.Equal(t, 2, stmt.Args[1].Ordinal)
		assert.Equal(t, "cog", stmt.Args[1].Value)
	})

	t.Run("sqlserver keeps the name", func(t *testing.T) {
		rec := dbtest.NewRecorder()
		b := repository.NewWithDB(rec.Open(t), repository.SQLServer, repository.WithLogger(logging.Discard()))

		require.NoError(t, b.Exec(context.Background(), "rename_widget", repository.StoredProcedure,
			int64(4), sql.Named("name", "cog")))

		stmt, _ := rec.LastStatement()
		assert.Equal(t, "EXEC rename_widget @p1, @name = @name", stmt.Query)
		require.Len(t, stmt.Args, 2)
		assert.Equal(t, "", stmt.Args[0].Name)
		assert.Equal(t, "name", stmt.Args[1].Name)
		assert.Equal(t, "cog", stmt.Args[1].Value)
	})
}

func TestQuery_DoesNotBindParameters(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &logs)
	b, rec := newRecorderBase(t, repository.WithLogger(logger.Logger))
	rec.RespondWith(widgetRows())

	require.NoError(t, b.Exec(ctx, "DELETE FROM widgets WHERE id = 1", repository.Query, int64(99)))
	_, err := b.Scalar(ctx, "SELECT count(*) FROM widgets", repository.Query, "ignored")
	require.NoError(t, err)
	for _, err := range b.Rows(ctx, "SELECT id, name FROM widgets", repository.Query, "ignored", 1) {
		require.NoError(t, err)
	}

	stmts := rec.Statements()
	require.Len(t, stmts, 3)
	assert.Equal(t, "DELETE FROM widgets WHERE id = 1", stmts[0].Query)
	for _, s := range stmts {
		assert.Empty(t, s.Args, s.Query)
	}
	assert.Contains(t, logs.String(), "query arguments dropped")
}

func TestQuery_WithQueryArgsBindsParameters(t *testing.T) {
	b, rec := newRecorderBase(t, repository.WithQueryArgs(true))

	require.NoError(t, b.Exec(context.Background(), "DELETE FROM widgets WHERE id = ?", repository.Query, int64(5)))

	stmt, _ := rec.LastStatement()
	assert.Equal(t, []any{int64(5)}, stmt.Values())
}

func TestPrimitives_OpenAndReleaseOnce(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(b *repository.Base) error
	}{
		{
			name: "exec",
			run: func(b *repository.Base) error {
				return b.Exec(ctx, "UPDATE widgets SET active = 1", repository.Query)
			},
		},
		{
			name: "scalar",
			run: func(b *repository.Base) error {
				_, err := b.Scalar(ctx, "SELECT id FROM widgets", repository.Query)
				return err
			},
		},
		{
			name: "rows",
			run: func(b *repository.Base) error {
				for _, err := range b.Rows(ctx, "SELECT id, name FROM widgets", repository.Query) {
					if err != nil {
						return err
					}
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec := newRecorderBase(t)
			rec.RespondWith(widgetRows())

			require.NoError(t, tt.run(b))

			assert.Equal(t, 1, rec.Connects())
			assert.Equal(t, 1, rec.Closes())
			assert.Len(t, rec.Statements(), 1)
			assertReleased(t, b, rec)
		})
	}
}

func TestPrimitives_ReturnDriverErrorsUnchanged(t *testing.T) {
	ctx := context.Background()

	t.Run("execution", func(t *testing.T) {
		b, rec := newRecorderBase(t)
		rec.RespondWith(dbtest.Result{Err: errDriver})

		err := b.Exec(ctx, "DELETE FROM widgets", repository.Query)
		assert.True(t, err == errDriver, "exec error was wrapped: %v", err)

		_, err = b.ExecAffected(ctx, "DELETE FROM widgets", repository.Query)
		assert.True(t, err == errDriver, "exec affected error was wrapped: %v", err)

		v, err := b.Scalar(ctx, "SELECT 1", repository.Query)
		assert.Nil(t, v)
		assert.True(t, err == errDriver, "scalar error was wrapped: %v", err)

		var seen []error
		for r, err := range b.Rows(ctx, "SELECT 1", repository.Query) {
			assert.Nil(t, r)
			seen = append(seen, err)
		}
		require.Len(t, seen, 1)
		assert.True(t, seen[0] == errDriver, "rows error was wrapped: %v", seen[0])

		assertReleased(t, b, rec)
	})

	t.Run("connect", func(t *testing.T) {
		b, rec := newRecorderBase(t)
		errConnect := errors.New("dial tcp 10.0.0.1:5432: connection refused")
		rec.FailConnect(errConnect)

		err := b.Exec(ctx, "SELECT 1", repository.Query)
		assert.True(t, err == errConnect, "connect error was wrapped: %v", err)
		assert.Zero(t, rec.Connects())
		assert.Zero(t, b.DB().Stats().InUse)
	})

	t.Run("mid iteration", func(t *testing.T) {
		b, rec := newRecorderBase(t)
		res := widgetRows()
		res.RowErr = errDriver
		res.FailAfter = 2
		rec.RespondWith(res)

		var names []string
		var iterErr error
		for r, err := range b.Rows(ctx, "SELECT id, name FROM widgets", repository.Query) {
			if err != nil {
				iterErr = err
				continue
			}
			name, err := r.String("name")
			require.NoError(t, err)
			names = append(names, name)
		}

		assert.Equal(t, []string{"sprocket", "flange"}, names)
		assert.True(t, iterErr == errDriver, "iteration error was wrapped: %v", iterErr)
		assertReleased(t, b, rec)
	})
}

func TestPrimitives_ReleaseOnEmptyResult(t *testing.T) {
	ctx := context.Background()
	b, rec := newRecorderBase(t)
	rec.RespondWith(dbtest.Result{Columns: []string{"id"}})

	v, err := b.Scalar(ctx, "SELECT id FROM widgets WHERE 1 = 0", repository.Query)
	require.NoError(t, err)
	assert.Nil(t, v)

	count := 0
	for _, err := range b.Rows(ctx, "SELECT id FROM widgets WHERE 1 = 0", repository.Query) {
		require.NoError(t, err)
		count++
	}
	assert.Zero(t, count)

	assert.Equal(t, 2, rec.Connects())
	assertReleased(t, b, rec)
}

func TestScalar_FirstColumnOfFirstRow(t *testing.T) {
	b, rec := newRecorderBase(t)
	rec.RespondWith(dbtest.Result{
		Columns: []string{"name", "id"},
		Rows: [][]driver.Value{
			{"sprocket", int64(1)},
			{"flange", int64(2)},
		},
	})

	v, err := b.Scalar(context.Background(), "SELECT name, id FROM widgets", repository.Query)

	require.NoError(t, err)
	assert.Equal(t, "sprocket", v)
	assertReleased(t, b, rec)
}

func TestScalar_NullReadsAsNil(t *testing.T) {
	b, rec := newRecorderBase(t)
	rec.RespondWith(dbtest.Result{Columns: []string{"max"}, Rows: [][]driver.Value{{nil}}})

	v, err := b.Scalar(context.Background(), "SELECT max(weight) FROM widgets", repository.Query)

	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestScalarOf(t *testing.T) {
	ctx := context.Background()
	b, rec := newRecorderBase(t)

	rec.RespondWith(dbtest.Result{Columns: []string{"n"}, Rows: [][]driver.Value{{int64(42)}}})
	n, ok, err := repository.ScalarOf[int](ctx, b, "SELECT count(*) FROM widgets", repository.Query)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	s, ok, err := repository.ScalarOf[string](ctx, b, "SELECT count(*) FROM widgets", repository.Query)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", s)

	rec.RespondWith(dbtest.Result{Columns: []string{"n"}})
	n, ok, err = repository.ScalarOf[int](ctx, b, "SELECT id FROM widgets WHERE 1 = 0", repository.Query)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)

	rec.RespondWith(dbtest.Result{Columns: []string{"n"}, Rows: [][]driver.Value{{"many"}}})
	_, ok, err = repository.ScalarOf[int64](ctx, b, "SELECT label FROM widgets", repository.Query)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestExecAffected(t *testing.T) {
	b, rec := newRecorderBase(t)
	rec.RespondWith(dbtest.Result{RowsAffected: 3})

	n, err := b.ExecAffected(context.Background(), "UPDATE widgets SET active = 0", repository.Query)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assertReleased(t, b, rec)
}

func TestPrimitives_RejectUnknownKind(t *testing.T) {
	ctx := context.Background()
	b, rec := newRecorderBase(t)

	err := b.Exec(ctx, "SELECT 1", repository.CommandKind(9))
	assert.ErrorIs(t, err, repository.ErrUnknownCommandKind)

	_, err = b.Scalar(ctx, "SELECT 1", repository.CommandKind(9))
	assert.ErrorIs(t, err, repository.ErrUnknownCommandKind)

	c := b.Cursor(ctx, "SELECT 1", repository.CommandKind(9))
	assert.False(t, c.Next())
	assert.ErrorIs(t, c.Err(), repository.ErrUnknownCommandKind)

	assert.Zero(t, rec.Connects())
}

func TestPrimitives_RejectInvalidRoutine(t *testing.T) {
	b, rec := newRecorderBase(t)

	err := b.Exec(context.Background(), "archive; DROP TABLE widgets", repository.StoredProcedure)

	assert.ErrorIs(t, err, repository.ErrInvalidRoutineName)
	assert.Empty(t, rec.Statements())
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("borrowed handle stays open", func(t *testing.T) {
		b, _ := newRecorderBase(t)

		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		assert.ErrorIs(t, b.Exec(ctx, "SELECT 1", repository.Query), repository.ErrClosed)
		assert.NoError(t, b.DB().PingContext(ctx))
	})

	t.Run("owned handle is closed", func(t *testing.T) {
		cfg := database.DefaultConfig()
		cfg.Driver = database.DriverSQLite
		cfg.DSN = dbtest.SQLiteDSN(t)

		b, err := repository.New(cfg, repository.WithLogger(logging.Discard()))
		require.NoError(t, err)
		assert.Equal(t, repository.SQLite, b.Dialect())

		require.NoError(t, b.Exec(ctx, "CREATE TABLE t (id INTEGER)", repository.Query))
		require.NoError(t, b.Close())

		err = b.DB().PingContext(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is closed")
		_, err = b.Scalar(ctx, "SELECT 1", repository.Query)
		assert.ErrorIs(t, err, repository.ErrClosed)
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := repository.New(database.Config{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database config")
}

func TestNew_DriverAlias(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.Driver = "sqlite3"
	cfg.DSN = filepath.Join(t.TempDir(), "alias.db")

	b, err := repository.New(cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, repository.SQLite, b.Dialect())
	n, err := b.Scalar(context.Background(), "SELECT 1", repository.Query)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestNewWithDB_Defaults(t *testing.T) {
	rec := dbtest.NewRecorder()
	db := rec.Open(t)

	b := repository.NewWithDB(db, nil)

	assert.Same(t, db, b.DB())
	assert.Equal(t, repository.Standard, b.Dialect())
}

func TestSlowCommandsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &logs)
	b, rec := newRecorderBase(t,
		repository.WithLogger(logger.Logger),
		repository.WithSlowThreshold(time.Nanosecond),
	)
	rec.Respond(func(string, []driver.NamedValue) dbtest.Result {
		time.Sleep(time.Millisecond)
		return dbtest.Result{}
	})

	require.NoError(t, b.Exec(context.Background(), "VACUUM", repository.Query))

	assert.Contains(t, logs.String(), "slow command")
	assert.Contains(t, logs.String(), `"statement":"VACUUM"`)
}

func TestFailuresAreLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: "warn", Format: "json"}, &logs)
	b, rec := newRecorderBase(t, repository.WithLogger(logger.Logger))
	rec.RespondWith(dbtest.Result{Err: errDriver})

	_ = b.Exec(context.Background(), "DELETE FROM widgets", repository.Query)

	out := logs.String()
	assert.Contains(t, out, "command failed")
	assert.Contains(t, out, `"primitive":"exec"`)
	assert.Contains(t, out, `"kind":"query"`)
	assert.Contains(t, out, "does not exist")
}
