package memory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// timeLayout is RFC 3339 with fixed-width microseconds so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// checkRowsErr checks for errors that may have occurred during row iteration.
// Call it after a for rows.Next() loop.
func checkRowsErr(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTimeString returns nil for a nil time, the formatted string otherwise.
func nullTimeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTimes fills the created/updated/completed timestamps of a row.
func parseTimes(createdAt, updatedAt string, completedAt sql.NullString, created, updated *time.Time, completed **time.Time) error {
	var err error
	if *created, err = parseTime(createdAt); err != nil {
		return err
	}
	if *updated, err = parseTime(updatedAt); err != nil {
		return err
	}
	*completed, err = parseNullTime(completedAt)
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs[S ~string](vals []S) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// now is replaced in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }
