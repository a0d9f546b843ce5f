package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Record is the row a Cursor is positioned on. It reads straight from the
// driver cursor and is only valid until the cursor moves.
type Record struct {
	rows    *sql.Rows
	columns []string
}

func newRecord(rows *sql.Rows, columns []string) *Record {
	return &Record{rows: rows, columns: columns}
}

// Columns returns the column names of the result set.
func (r *Record) Columns() []string {
	return r.columns
}

// Ordinal returns the index of the named column. An exact match wins over
// a case-insensitive one.
func (r *Record) Ordinal(name string) (int, error) {
	for i, c := range r.columns {
		if c == name {
			return i, nil
		}
	}
	for i, c := range r.columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Scan copies the columns of the row into dest, as sql.Rows.Scan does.
func (r *Record) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

// Value returns the raw value of column i, nil for SQL NULL.
func (r *Record) Value(i int) (any, error) {
	var v any
	if err := r.scanColumn(i, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValueByName returns the raw value of the named column.
func (r *Record) ValueByName(name string) (any, error) {
	i, err := r.Ordinal(name)
	if err != nil {
		return nil, err
	}
	return r.Value(i)
}

// IsNull reports whether the named column is SQL NULL.
func (r *Record) IsNull(name string) (bool, error) {
	v, err := r.ValueByName(name)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// String returns the named column as a string; NULL reads as "".
func (r *Record) String(name string) (string, error) {
	return column[string](r, name)
}

// Int64 returns the named column as an int64; NULL reads as 0.
func (r *Record) Int64(name string) (int64, error) {
	return column[int64](r, name)
}

// Float64 returns the named column as a float64; NULL reads as 0.
func (r *Record) Float64(name string) (float64, error) {
	return column[float64](r, name)
}

// Bool returns the named column as a bool; NULL reads as false.
func (r *Record) Bool(name string) (bool, error) {
	return column[bool](r, name)
}

// Time returns the named column as a time.Time; NULL reads as the zero time.
func (r *Record) Time(name string) (time.Time, error) {
	return column[time.Time](r, name)
}

// Bytes returns a copy of the named column; NULL reads as nil.
func (r *Record) Bytes(name string) ([]byte, error) {
	return column[[]byte](r, name)
}

func column[T any](r *Record, name string) (T, error) {
	var n sql.Null[T]
	i, err := r.Ordinal(name)
	if err != nil {
		return n.V, err
	}
	if err := r.scanColumn(i, &n); err != nil {
		return n.V, err
	}
	return n.V, nil
}

// scanColumn scans column i into dest and discards the others.
func (r *Record) scanColumn(i int, dest any) error {
	if i < 0 || i >= len(r.columns) {
		return fmt.Errorf("%w: index %d of %d", ErrColumnNotFound, i, len(r.columns))
	}
	targets := make([]any, len(r.columns))
	for j := range targets {
		if j == i {
			targets[j] = dest
			continue
		}
		targets[j] = new(any)
	}
	return r.rows.Scan(targets...)
}
