// Package warehouse defines the storage-engine boundary of the pipeline.
//
// Layer engines never talk SQL dialects directly: they read upstream tables
// with Select, check contracts with Columns, and publish a whole layer with a
// single Replace call. Drivers live in subpackages (duckdb, clickhouse) and
// are chosen by pipeline.OpenStore.
package warehouse

import (
	"context"
	"time"

	"github.com/xtxerr/medallion/internal/schema"
)

// Scanner is satisfied by *sql.Rows and clickhouse driver.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// RowFunc is called once per selected row.
type RowFunc func(row Scanner) error

// Row is implemented by every layer row type. Values follow the column order
// of the row's table.
type Row interface {
	Values() []any
}

// Batch is the complete new content of one table.
type Batch struct {
	Table schema.Table
	Rows  [][]any
}

// NewBatch converts typed rows into a Batch for t.
func NewBatch[R Row](t schema.Table, rows []R) Batch {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return Batch{Table: t, Rows: out}
}

// Result is the materialised output of an ad-hoc query.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Store is a warehouse connection.
//
// Implementations must be safe for concurrent reads. Writes are serialised by
// the pipeline; no cross-run locking is provided.
type Store interface {
	// Driver returns the driver name ("duckdb", "clickhouse").
	Driver() string

	// EnsureSchema creates missing databases and tables.
	EnsureSchema(ctx context.Context, tables ...schema.Table) error

	// Columns lists the columns of an existing table. A missing table yields
	// an error matching errors.ErrTableNotFound.
	Columns(ctx context.Context, table string) ([]string, error)

	// Select streams every row of t in t's sort order, with columns in t's
	// column order.
	Select(ctx context.Context, t schema.Table, fn RowFunc) error

	// SelectLimit is Select stopping after limit rows. limit <= 0 reads
	// every row.
	SelectLimit(ctx context.Context, t schema.Table, limit int, fn RowFunc) error

	// Replace swaps in the full content of every batch. Either all tables
	// show the new content afterwards or, on error, all keep their prior
	// content.
	Replace(ctx context.Context, batches ...Batch) error

	// Count returns the row count of a table.
	Count(ctx context.Context, table string) (int64, error)

	// Query runs ad-hoc SQL and materialises the result.
	Query(ctx context.Context, query string) (*Result, error)

	Ping(ctx context.Context) error
	Close() error
}

// ScanDest returns one typed destination pointer per column of t, suitable
// for Scanner.Scan, plus a function that dereferences them into plain values.
func ScanDest(t schema.Table) ([]any, func() []any) {
	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Kind {
		case schema.String:
			dest[i] = new(string)
		case schema.DateTime, schema.Date:
			dest[i] = new(time.Time)
		case schema.UInt8:
			dest[i] = new(uint8)
		case schema.Int32:
			dest[i] = new(int32)
		case schema.UInt32:
			dest[i] = new(uint32)
		case schema.UInt64:
			dest[i] = new(uint64)
		case schema.Float32:
			dest[i] = new(float32)
		case schema.Float64:
			dest[i] = new(float64)
		}
	}

	values := func() []any {
		out := make([]any, len(dest))
		for i, d := range dest {
			switch p := d.(type) {
			case *string:
				out[i] = *p
			case *time.Time:
				out[i] = p.UTC()
			case *uint8:
				out[i] = *p
			case *int32:
				out[i] = *p
			case *uint32:
				out[i] = *p
			case *uint64:
				out[i] = *p
			case *float32:
				out[i] = *p
			case *float64:
				out[i] = *p
			}
		}
		return out
	}

	return dest, values
}

// Records reads every row of t as column-name keyed maps, in sort order.
func Records(ctx context.Context, s Store, t schema.Table) ([]map[string]any, error) {
	return RecordsLimit(ctx, s, t, 0)
}

// RecordsLimit is Records for the first limit rows in sort order.
func RecordsLimit(ctx context.Context, s Store, t schema.Table, limit int) ([]map[string]any, error) {
	dest, values := ScanDest(t)
	names := t.ColumnNames()

	var out []map[string]any
	err := s.SelectLimit(ctx, t, limit, func(row Scanner) error {
		if err := row.Scan(dest...); err != nil {
			return err
		}
		rec := make(map[string]any, len(names))
		for i, v := range values() {
			rec[names[i]] = v
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
