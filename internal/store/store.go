// Package store defines the backing-store contract shared by the
// spreadsheet and relational backends. The rest of the system only ever
// sees this interface; which backend is wired in is a startup decision.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Row is one stored record keyed by column header. Values are always
// strings; both backends persist TEXT-typed cells.
type Row map[string]string

// Store is the uniform adapter over a tabular backing store.
type Store interface {
	// ReadAll returns every row of the table in store order.
	ReadAll(ctx context.Context, table string) ([]Row, error)
	// AppendRow appends one row with values in headers order.
	AppendRow(ctx context.Context, table string, headers, values []string) error
	// UpsertByKey updates the first row whose keyColumn matches
	// record[keyColumn], or appends when no such row exists.
	UpsertByKey(ctx context.Context, table, keyColumn string, headers []string, record Row) error
	// EnsureSchema creates the table and any missing columns.
	// Calling it again with the same columns is a no-op.
	EnsureSchema(ctx context.Context, table string, columns []string) error
}

// StoreError classifies backend failures. Transient errors (rate limit,
// unavailable) are safe to retry; permanent ones (bad schema, auth) are not.
type StoreError struct {
	Op        string
	Table     string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("store %s on %s (%s): %v", e.Op, e.Table, kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewTransient wraps a retryable backend failure.
func NewTransient(op, table string, err error) *StoreError {
	return &StoreError{Op: op, Table: table, Transient: true, Err: err}
}

// NewPermanent wraps a non-retryable backend failure.
func NewPermanent(op, table string, err error) *StoreError {
	return &StoreError{Op: op, Table: table, Err: err}
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Transient
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9_]+`)
var underscoreRun = regexp.MustCompile(`_{2,}`)

// NormalizeTableName maps a logical sheet title to a safe SQL
// identifier: "Data" -> "data", "MS:Insurance" -> "ms_insurance".
func NormalizeTableName(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = nonAlnum.ReplaceAllString(t, "_")
	t = underscoreRun.ReplaceAllString(t, "_")
	return strings.Trim(t, "_")
}
