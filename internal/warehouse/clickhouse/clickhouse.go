// Package clickhouse is the remote warehouse driver.
//
// ClickHouse has no multi-statement transactions, so Replace loads every
// batch into a "<table>__staging" twin first and only then swaps each twin
// in with EXCHANGE TABLES. A failure while loading leaves all live tables
// untouched.
package clickhouse

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// DriverName is the name reported by Store.Driver.
const DriverName = "clickhouse"

const stagingSuffix = "__staging"

// Config holds connection options.
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string

	// TLS enables TLS; CAFile optionally pins the server CA.
	TLS    bool
	CAFile string

	DialTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() Config {
	return Config{
		Addr:            []string{"127.0.0.1:9000"},
		Database:        "default",
		Username:        "default",
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Store implements warehouse.Store on ClickHouse.
type Store struct {
	conn   driver.Conn
	config Config
	mu     sync.RWMutex
}

var _ warehouse.Store = (*Store)(nil)

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	opts := &ch.Options{
		Addr: cfg.Addr,
		Auth: ch.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		},
		DialTimeout:      cfg.DialTimeout,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  cfg.ConnMaxLifetime,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	if cfg.TLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CAFile != "" {
			caCert, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read clickhouse CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("append clickhouse CA cert: %w", errors.ErrInvalidConfig)
			}
			tlsConfig.RootCAs = pool
		}
		opts.TLS = tlsConfig
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, errors.Storage(fmt.Errorf("open: %w: %w", errors.ErrConnectionFailed, err), "clickhouse")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errors.Storage(fmt.Errorf("ping: %w: %w", errors.ErrConnectionFailed, err), "clickhouse")
	}

	logging.Component("clickhouse").Info("connected",
		"addr", strings.Join(cfg.Addr, ","),
		"database", cfg.Database,
		"tls", opts.TLS != nil,
	)

	return &Store{conn: conn, config: cfg}, nil
}

// Driver implements warehouse.Store.
func (s *Store) Driver() string { return DriverName }

// Ping implements warehouse.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return errors.Storage(err, "ping")
	}
	return nil
}

// Close implements warehouse.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// =============================================================================
// Schema
// =============================================================================

func columnType(k schema.Kind) string {
	switch k {
	case schema.DateTime:
		return "DateTime('UTC')"
	case schema.String:
		return "String"
	default:
		return k.String()
	}
}

// createTableSQL renders a MergeTree table ordered by t's sort key. Descending
// keys are not part of the physical order; Select re-sorts on read.
func createTableSQL(t schema.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s %s", c.Name, columnType(c.Kind))
	}

	var order []string
	for _, o := range t.OrderBy {
		if !strings.HasPrefix(o, "-") {
			order = append(order, o)
		}
	}
	orderBy := "tuple()"
	if len(order) > 0 {
		orderBy = "(" + strings.Join(order, ", ") + ")"
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree() ORDER BY %s",
		t.Name, strings.Join(cols, ",\n\t"), orderBy)
}

// EnsureSchema implements warehouse.Store.
func (s *Store) EnsureSchema(ctx context.Context, tables ...schema.Table) error {
	created := make(map[string]bool)
	for _, t := range tables {
		if db := t.Database(); !created[db] {
			if err := s.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db); err != nil {
				return errors.Storage(err, "create database "+db)
			}
			created[db] = true
		}
		if err := s.conn.Exec(ctx, createTableSQL(t)); err != nil {
			return errors.Storage(err, "create table "+t.Name)
		}
	}
	return nil
}

// Columns implements warehouse.Store.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	db, name, ok := strings.Cut(table, ".")
	if !ok {
		db, name = s.config.Database, table
	}

	rows, err := s.conn.Query(ctx,
		"SELECT name FROM system.columns WHERE database = ? AND table = ? ORDER BY position", db, name)
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
	rows, err := s.conn.Query(ctx, warehouse.SelectLimitSQL(t, limit))
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
	var n uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM "+table).Scan(&n); err != nil {
		return 0, errors.Storage(err, "count "+table)
	}
	return int64(n), nil
}

// Query implements warehouse.Store.
func (s *Store) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, errors.Storage(err, "query")
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	res := &warehouse.Result{Columns: rows.Columns()}
	for rows.Next() {
		ptrs := make([]any, len(types))
		for i, ct := range types {
			ptrs[i] = newScanTarget(ct.ScanType())
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Storage(err, "query scan")
		}
		vals := make([]any, len(ptrs))
		for i, p := range ptrs {
			vals[i] = deref(p)
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

// Replace implements warehouse.Store.
func (s *Store) Replace(ctx context.Context, batches ...warehouse.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logging.ComponentContext(ctx, "clickhouse")

	staged := make([]string, 0, len(batches))
	defer func() {
		for _, st := range staged {
			if err := s.conn.Exec(context.Background(), "DROP TABLE IF EXISTS "+st); err != nil {
				log.Warn("drop staging table failed", "table", st, "error", err)
			}
		}
	}()

	// Phase 1: load every staging table. Live tables are not touched yet.
	for _, b := range batches {
		st := b.Table.Name + stagingSuffix
		if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+st); err != nil {
			return errors.Storage(err, "drop "+st)
		}
		if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", st, b.Table.Name)); err != nil {
			return errors.Storage(err, "create "+st)
		}
		staged = append(staged, st)

		if err := s.load(ctx, st, b); err != nil {
			return err
		}
	}

	// Phase 2: swap each staging table in.
	for _, b := range batches {
		st := b.Table.Name + stagingSuffix
		if err := s.conn.Exec(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", st, b.Table.Name)); err != nil {
			return errors.Storage(err, "exchange "+b.Table.Name)
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context, table string, b warehouse.Batch) error {
	if len(b.Rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, warehouse.InsertSQL(table, b.Table, false))
	if err != nil {
		return errors.Storage(err, "prepare batch "+table)
	}

	for i, row := range b.Rows {
		if len(row) != len(b.Table.Columns) {
			batch.Abort()
			return fmt.Errorf("%s row %d: %d values for %d columns: %w",
				b.Table.Name, i, len(row), len(b.Table.Columns), errors.ErrSchemaViolation)
		}
		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return errors.Storage(err, fmt.Sprintf("append %s row %d", table, i))
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Storage(err, "send batch "+table)
	}
	return nil
}
