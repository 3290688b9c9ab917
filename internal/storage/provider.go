// Package storage defines the interface for the durable URL store.
// Crawled addresses are written here and later read by an external indexer;
// the crawler itself never reads them back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "urls"

var (
	// ErrDuplicate reports that the address is already stored.
	ErrDuplicate = errors.New("address already stored")
	// ErrUnavailable reports a transient connectivity failure. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// URLStore persists crawled addresses.
type URLStore interface {
	// InsertURL stores address. It returns an error wrapping ErrDuplicate when the
	// address already exists and one wrapping ErrUnavailable when the backend
	// could not be reached.
	InsertURL(ctx context.Context, address string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}

// ResolveTable applies the default table name and rejects anything that is not a
// plain SQL identifier, since the name is interpolated into statements.
func ResolveTable(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
