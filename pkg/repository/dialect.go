package repository

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bargom/modelrepo/pkg/database"
)

// CallShape is the result a stored procedure call is rendered for.
type CallShape int

const (
	// CallRows renders a call whose result set is iterated.
	CallRows CallShape = iota
	// CallScalar renders a call whose first value is read.
	CallScalar
	// CallExec renders a call run for its effect.
	CallExec
)

// Dialect renders stored procedure invocations for one database family.
type Dialect interface {
	// Name identifies the dialect in logs and spans.
	Name() string
	// RenderCall returns the statement invoking routine with args and the
	// arguments to bind to it, in order.
	RenderCall(routine string, shape CallShape, args []any) (string, []any, error)
}

// Built-in dialects.
var (
	Postgres  Dialect = postgresDialect{}
	MySQL     Dialect = mysqlDialect{}
	SQLServer Dialect = sqlServerDialect{}
	SQLite    Dialect = sqliteDialect{}
	Standard  Dialect = standardDialect{}
)

// DialectFor returns the dialect for a driver name. Unknown drivers get Standard.
func DialectFor(driver string) Dialect {
	switch database.ParseDriver(driver) {
	case database.DriverPostgres, database.DriverPgx:
		return Postgres
	case database.DriverMySQL:
		return MySQL
	case database.DriverSQLServer:
		return SQLServer
	case database.DriverSQLite:
		return SQLite
	default:
		return Standard
	}
}

// one identifier part: bare, "double quoted", [bracketed] or `backticked`
const identPart = `(?:[A-Za-z_][A-Za-z0-9_$]*|"[^"]+"|\[[^\]]+\]|` + "`[^`]+`" + `)`

var routineName = regexp.MustCompile(`^` + identPart + `(?:\.` + identPart + `){0,2}$`)

// ValidateRoutineName checks that name is a possibly qualified identifier.
func ValidateRoutineName(name string) error {
	if !routineName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidRoutineName, name)
	}
	return nil
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) RenderCall(routine string, shape CallShape, args []any) (string, []any, error) {
	if err := ValidateRoutineName(routine); err != nil {
		return "", nil, err
	}

	params := make([]string, len(args))
	bound := make([]any, len(args))
	for i, arg := range args {
		placeholder := "$" + strconv.Itoa(i+1)
		if named, ok := arg.(sql.NamedArg); ok {
			params[i] = named.Name + " => " + placeholder
			bound[i] = named.Value
			continue
		}
		params[i] = placeholder
		bound[i] = arg
	}

	call := routine + "(" + strings.Join(params, ", ") + ")"
	switch shape {
	case CallRows:
		return "SELECT * FROM " + call, bound, nil
	case CallScalar:
		return "SELECT " + call, bound, nil
	default:
		return "CALL " + call, bound, nil
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) RenderCall(routine string, _ CallShape, args []any) (string, []any, error) {
	if err := ValidateRoutineName(routine); err != nil {
		return "", nil, err
	}

	return "CALL " + routine + "(" + placeholders(len(args)) + ")", positional(args), nil
}

type sqlServerDialect struct{}

func (sqlServerDialect) Name() string { return "sqlserver" }

// RenderCall uses EXEC for every shape; the driver names positional
// arguments @p1, @p2 and so on by ordinal.
func (sqlServerDialect) RenderCall(routine string, _ CallShape, args []any) (string, []any, error) {
	if err := ValidateRoutineName(routine); err != nil {
		return "", nil, err
	}

	params := make([]string, len(args))
	for i, arg := range args {
		if named, ok := arg.(sql.NamedArg); ok {
			params[i] = "@" + named.Name + " = @" + named.Name
			continue
		}
		params[i] = "@p" + strconv.Itoa(i+1)
	}

	stmt := "EXEC " + routine
	if len(params) > 0 {
		stmt += " " + strings.Join(params, ", ")
	}
	return stmt, args, nil
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) RenderCall(string, CallShape, []any) (string, []any, error) {
	return "", nil, ErrStoredProcedureUnsupported
}

type standardDialect struct{}

func (standardDialect) Name() string { return "standard" }

func (standardDialect) RenderCall(routine string, _ CallShape, args []any) (string, []any, error) {
	if err := ValidateRoutineName(routine); err != nil {
		return "", nil, err
	}
	return "CALL " + routine + "(" + placeholders(len(args)) + ")", positional(args), nil
}

// positional binds named arguments by position, since ? placeholders carry
// no names.
func positional(args []any) []any {
	bound := make([]any, len(args))
	for i, arg := range args {
		if named, ok := arg.(sql.NamedArg); ok {
			bound[i] = named.Value
			continue
		}
		bound[i] = arg
	}
	return bound
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
