// Package postgres provides the Postgres-backed URL store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkcrawler/internal/storage"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool used for URL rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execPinger interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// URLStore writes crawled addresses into Postgres.
type URLStore struct {
	pool  execPinger
	table string
}

// NewURLStore creates a pgxpool-backed URLStore. The pool connects lazily; call
// Ping to verify connectivity.
func NewURLStore(ctx context.Context, cfg Config) (*URLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := storage.ResolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &URLStore{pool: pool, table: table}, nil
}

// NewURLStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewURLStoreWithPool(pool execPinger, table string) (*URLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	resolved, err := storage.ResolveTable(table)
	if err != nil {
		return nil, err
	}
	return &URLStore{pool: pool, table: resolved}, nil
}

// EnsureSchema creates the URL table when it does not exist yet.
func (s *URLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (address TEXT UNIQUE NOT NULL)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, classify(err))
	}
	return nil
}

// InsertURL inserts address. A row that already exists yields storage.ErrDuplicate.
func (s *URLStore) InsertURL(ctx context.Context, address string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("url store is not configured")
	}
	query := fmt.Sprintf(`INSERT INTO %s (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, address)
	if err != nil {
		return fmt.Errorf("insert url: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert url %q: %w", address, storage.ErrDuplicate)
	}
	return nil
}

// Ping verifies the pool can reach Postgres.
func (s *URLStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", classify(err))
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *URLStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// classify maps driver errors onto the storage sentinels. Server-side errors
// other than unique violations and connection-class failures are returned as is.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %w", storage.ErrDuplicate, err)
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}
