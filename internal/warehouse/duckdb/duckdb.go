// Package duckdb is the embedded warehouse driver.
//
// It keeps every layer in one DuckDB database file (or in memory when the
// DSN is empty). Each layer is published inside a single transaction, so a
// failed run never exposes a half-written table.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// DriverName is the name reported by Store.Driver.
const DriverName = "duckdb"

// =============================================================================
// Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database file path. Empty means in-memory.
	DSN string

	// MemoryLimit is passed to SET memory_limit when set (e.g. "2GB").
	MemoryLimit string

	// Threads is passed to SET threads when positive.
	Threads int

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// PingTimeout bounds the connectivity check in New.
	PingTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    8,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store implements warehouse.Store on DuckDB.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

var _ warehouse.Store = (*Store)(nil)

// New opens the database and verifies the connection.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, errors.Storage(fmt.Errorf("open database: %w", err), "duckdb")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Storage(fmt.Errorf("ping database: %w: %w", errors.ErrConnectionFailed, err), "duckdb")
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", cfg.MemoryLimit)); err != nil {
			db.Close()
			return nil, errors.Storage(fmt.Errorf("set memory limit: %w", err), "duckdb")
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", cfg.Threads)); err != nil {
			db.Close()
			return nil, errors.Storage(fmt.Errorf("set threads: %w", err), "duckdb")
		}
	}

	return &Store{
		db:     db,
		config: cfg,
	}, nil
}

// Driver implements warehouse.Store.
func (s *Store) Driver() string { return DriverName }

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Storage(err, "ping")
	}
	return nil
}

// =============================================================================
// Schema
// =============================================================================

// columnType maps a logical kind to a DuckDB type.
func columnType(k schema.Kind) string {
	switch k {
	case schema.DateTime:
		return "TIMESTAMP"
	case schema.Date:
		return "DATE"
	case schema.UInt8:
		return "UTINYINT"
	case schema.Int32:
		return "INTEGER"
	case schema.UInt32:
		return "UINTEGER"
	case schema.UInt64:
		return "UBIGINT"
	case schema.Float32:
		return "FLOAT"
	case schema.Float64:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func createTableSQL(t schema.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s %s NOT NULL", c.Name, columnType(c.Kind))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(cols, ",\n\t"))
}

// EnsureSchema implements warehouse.Store.
func (s *Store) EnsureSchema(ctx context.Context, tables ...schema.Table) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		created := make(map[string]bool)
		for _, t := range tables {
			if db := t.Database(); !created[db] {
				if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+db); err != nil {
					return errors.Storage(err, "create schema "+db)
				}
				created[db] = true
			}
			if _, err := tx.ExecContext(ctx, createTableSQL(t)); err != nil {
				return errors.Storage(err, "create table "+t.Name)
			}
		}
		return nil
	})
}

// Columns implements warehouse.Store.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	db, name, ok := strings.Cut(table, ".")
	if !ok {
		db, name = "main", table
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, db, name)
	if err != nil {
		return nil, errors.Storage(err, "describe "+table)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Storage(err, "describe "+table)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage(err, "describe "+table)
	}
	if len(cols) == 0 {
		return nil, errors.NewTableNotFound(table)
	}
	return cols, nil
}

// =============================================================================
// Reads
// =============================================================================

// Select implements warehouse.Store.
func (s *Store) Select(ctx context.Context, t schema.Table, fn warehouse.RowFunc) error {
	return s.SelectLimit(ctx, t, 0, fn)
}

// SelectLimit implements warehouse.Store.
func (s *Store) SelectLimit(ctx context.Context, t schema.Table, limit int, fn warehouse.RowFunc) error {
	rows, err := s.db.QueryContext(ctx, warehouse.SelectLimitSQL(t, limit))
	if err != nil {
		return errors.Storage(err, "select "+t.Name)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return fmt.Errorf("read %s: %w", t.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Storage(err, "select "+t.Name)
	}
	return nil
}

// Count implements warehouse.Store.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, errors.Storage(err, "count "+table)
	}
	return n, nil
}

// Query implements warehouse.Store.
func (s *Store) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Storage(err, "query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Storage(err, "query columns")
	}

	res := &warehouse.Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Storage(err, "query scan")
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage(err, "query")
	}
	return res, nil
}

// =============================================================================
// Writes
// =============================================================================

// Replace implements warehouse.Store. All batches share one transaction.
func (s *Store) Replace(ctx context.Context, batches ...warehouse.Batch) error {
	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		for _, b := range batches {
			if err := replaceTable(ctx, tx, b); err != nil {
				return err
			}
		}
		return nil
	})
}

func replaceTable(ctx context.Context, tx *sql.Tx, b warehouse.Batch) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+b.Table.Name); err != nil {
		return errors.Storage(err, "truncate "+b.Table.Name)
	}
	if len(b.Rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, warehouse.InsertSQL(b.Table.Name, b.Table, true))
	if err != nil {
		return errors.Storage(err, "prepare insert "+b.Table.Name)
	}
	defer stmt.Close()

	for i, row := range b.Rows {
		if len(row) != len(b.Table.Columns) {
			return fmt.Errorf("%s row %d: %d values for %d columns: %w",
				b.Table.Name, i, len(row), len(b.Table.Columns), errors.ErrSchemaViolation)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return errors.Storage(err, fmt.Sprintf("insert %s row %d", b.Table.Name, i))
		}
	}
	return nil
}

// =============================================================================
// Transaction Support
// =============================================================================

// TransactionContext executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.Storage(errors.ErrWriterClosed, "begin transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Storage(err, "commit transaction")
	}

	return nil
}
