// Package sqlite provides a SQLite-backed URL store for local runs that have no
// Postgres available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/linkcrawler/internal/storage"
)

// URLStore writes crawled addresses into a SQLite database file.
type URLStore struct {
	db    *sql.DB
	table string
}

// Open opens or creates the database at path. The "sqlite://" and "file:"
// prefixes are accepted so the same DSN flag works for both drivers.
func Open(path, table string) (*URLStore, error) {
	resolved, err := storage.ResolveTable(table)
	if err != nil {
		return nil, err
	}
	path = strings.TrimPrefix(strings.TrimPrefix(path, "sqlite://"), "file:")
	if path == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// busy_timeout lets concurrent writers queue on the single write lock
	// instead of failing immediately.
	dsn := path + "?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &URLStore{db: db, table: resolved}, nil
}

// EnsureSchema creates the URL table when it does not exist yet.
func (s *URLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (address TEXT UNIQUE NOT NULL)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, classify(err))
	}
	return nil
}

// InsertURL inserts address. A row that already exists yields storage.ErrDuplicate.
func (s *URLStore) InsertURL(ctx context.Context, address string) error {
	query := fmt.Sprintf(`INSERT INTO %s (address) VALUES (?) ON CONFLICT (address) DO NOTHING`, s.table)
	res, err := s.db.ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("insert url: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert url rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert url %q: %w", address, storage.ErrDuplicate)
	}
	return nil
}

// Count returns the number of rows stored for address.
func (s *URLStore) Count(ctx context.Context, address string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE address = ?`, s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, query, address).Scan(&n); err != nil {
		return 0, fmt.Errorf("count url: %w", err)
	}
	return n, nil
}

// Ping verifies the database file can be opened.
func (s *URLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", classify(err))
	}
	return nil
}

// Close closes the database handle.
func (s *URLStore) Close() {
	_ = s.db.Close()
}

func classify(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %w", storage.ErrDuplicate, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
	}
	return err
}
