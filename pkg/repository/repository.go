// Package repository implements the repository pattern over database/sql.
//
// Base holds one database handle and offers three primitives to concrete
// repositories: Rows (lazy row iteration), Scalar (first column of the
// first row) and Exec (effect only). Each primitive runs either a verbatim
// query or a stored procedure call, acquires a dedicated connection for
// the one command and releases it on every exit path.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bargom/modelrepo/pkg/model"
)

var (
	// ErrNotFound is returned by Read when no record has the identifier.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownCommandKind is returned for a CommandKind outside Query and StoredProcedure.
	ErrUnknownCommandKind = errors.New("unknown command kind")

	// ErrInvalidRoutineName is returned when a stored procedure name is not an identifier.
	ErrInvalidRoutineName = errors.New("invalid routine name")

	// ErrStoredProcedureUnsupported is returned by dialects without stored procedures.
	ErrStoredProcedureUnsupported = errors.New("stored procedures are not supported by this dialect")

	// ErrColumnNotFound is returned when a Record has no column with the requested name.
	ErrColumnNotFound = errors.New("column not found")

	// ErrClosed is returned by primitives called after Close.
	ErrClosed = errors.New("repository is closed")
)

// Repository is the CRUD contract of a repository over records of type T
// identified by P.
type Repository[T any, P comparable] interface {
	// Create persists e and returns the identifier assigned by the store.
	Create(ctx context.Context, e model.Entity[P]) (P, error)
	// Read returns the record identified by id, or ErrNotFound.
	Read(ctx context.Context, id P) (T, error)
	// ReadAll returns every record in store order.
	ReadAll(ctx context.Context) ([]T, error)
	// Update reports whether exactly one record was changed.
	Update(ctx context.Context, e model.Entity[P]) (bool, error)
	// Delete reports whether exactly one record was removed.
	Delete(ctx context.Context, id P) (bool, error)
}

// CommandKind tells a primitive how to interpret its command text.
type CommandKind int

const (
	// Query runs the command text verbatim.
	Query CommandKind = iota
	// StoredProcedure treats the command text as a routine name and binds
	// the parameters as its arguments, in order.
	StoredProcedure
)

// String returns the label used in logs, metrics and the CLI.
func (k CommandKind) String() string {
	switch k {
	case Query:
		return "query"
	case StoredProcedure:
		return "stored_procedure"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Valid reports whether k is Query or StoredProcedure.
func (k CommandKind) Valid() bool {
	return k == Query || k == StoredProcedure
}

// ParseCommandKind parses a kind name as accepted by configuration and the CLI.
func ParseCommandKind(s string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "query", "text":
		return Query, nil
	case "procedure", "proc", "sp", "storedprocedure", "stored_procedure":
		return StoredProcedure, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommandKind, s)
	}
}
