package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

const nullText = "<null>"

// resultSet is the materialized output of a query command.
type resultSet struct {
	Columns []string
	Rows    [][]any
}

func writeResultSet(w io.Writer, rs resultSet) error {
	switch outputFormat {
	case "json":
		out := make([]map[string]any, 0, len(rs.Rows))
		for _, row := range rs.Rows {
			obj := make(map[string]any, len(rs.Columns))
			for i, col := range rs.Columns {
				obj[col] = jsonValue(row[i])
			}
			out = append(out, obj)
		}
		return writeJSON(w, out)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(upper(rs.Columns), "\t"))
		fmt.Fprintln(tw, strings.Join(rule(rs.Columns), "\t"))
		for _, row := range rs.Rows {
			fmt.Fprintln(tw, strings.Join(formatRow(row), "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d %s)\n", len(rs.Rows), plural(len(rs.Rows), "row", "rows"))
		return nil
	default:
		for _, row := range rs.Rows {
			fmt.Fprintln(w, strings.Join(formatRow(row), "\t"))
		}
		return nil
	}
}

func writeScalar(w io.Writer, value any) error {
	if outputFormat == "json" {
		return writeJSON(w, map[string]any{"value": jsonValue(value)})
	}
	_, err := fmt.Fprintln(w, formatValue(value))
	return err
}

func writeAffected(w io.Writer, n int64) error {
	if outputFormat == "json" {
		return writeJSON(w, map[string]int64{"rows_affected": n})
	}
	_, err := fmt.Fprintf(w, "%d %s affected\n", n, plural(int(n), "row", "rows"))
	return err
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatRow(row []any) []string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = formatValue(v)
	}
	return cells
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return nullText
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// jsonValue keeps text columns readable instead of base64.
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func upper(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToUpper(c)
	}
	return out
}

func rule(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.Repeat("-", max(len(c), 3))
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
