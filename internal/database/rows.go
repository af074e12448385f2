package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// TimeLayout is the on-disk timestamp format. It is fixed width and UTC, so
// text comparison orders timestamps chronologically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp. RFC 3339 and SQLite's
// CURRENT_TIMESTAMP format are accepted for rows written by other tools.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Fields maps column names to values for generic CRUD calls.
type Fields map[string]any

// Row is one result row addressed by column name. Values are int64, float64,
// string, []byte or nil, as returned by SQLite.
type Row map[string]any

// IsNull reports whether the column is missing or NULL.
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// Int64 returns the column as an integer, 0 when NULL.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// Float64 returns the column as a float, 0 when NULL.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	}
	return 0
}

// String returns the column as text, "" when NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns true for any non-zero integer or "true"/"1" text.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case string:
		return v == "true" || v == "1"
	default:
		return r.Int64(col) != 0
	}
}

// Time parses the column as a stored timestamp, zero when NULL or malformed.
func (r Row) Time(col string) time.Time {
	s := r.String(col)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// scanRows drains rows into name-keyed maps.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
