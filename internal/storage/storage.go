// Package storage holds errors and helpers shared by the LedgerStore
// implementations in its subpackages.
package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a plate has no ledger entry.
var ErrNotFound = errors.New("not found")

// TimeFormat is the canonical persisted timestamp layout. Display
// formatting is derived at the query boundary, never stored.
const TimeFormat = time.RFC3339Nano

// FormatTime renders a timestamp in the canonical persisted form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a persisted timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
