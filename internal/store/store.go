// Package store implements the persistence layer described in spec.md
// §4.7: a bounded connection pool over an embedded SQL store, exposing
// parameterized exec/query and transaction begin/commit/rollback. The
// driver is modernc.org/sqlite (pure Go, no CGO); schema is applied at
// startup via embedded goose migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB configured for the gateway's access pattern:
// single-writer SQLite under WAL, busy-timeout instead of a hand-rolled
// condvar pool (database/sql already pools connections; WAL mode lets
// readers proceed concurrently with the one writer).
type Store struct {
	conn *sql.DB
}

// Open opens path, applies pending migrations, and returns a ready Store.
// poolSize bounds concurrent connections, mirroring spec.md's
// DB_CONN_POOL_SIZE; SQLite itself enforces single-writer semantics
// regardless of pool size.
func Open(ctx context.Context, path string, poolSize int) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := fmt.Sprintf("%s%s_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path, sep)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open sqlite")
	}
	if poolSize <= 0 {
		poolSize = 16
	}
	conn.SetMaxOpenConns(poolSize)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "store: ping sqlite")
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "store: migrations sub-fs")
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "store: create migration provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "store: apply migrations")
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the raw *sql.DB for repositories within this package.
func (s *Store) Conn() *sql.DB { return s.conn }

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. This is the core's transaction primitive for
// the multi-row invariants spec.md §4.7 names: admin-reload and
// cmd-message upsert probe+write.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "store: commit tx")
	}
	return nil
}
