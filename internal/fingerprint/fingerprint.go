// Package fingerprint computes content hashes of warehouse tables.
//
// A fingerprint is independent of physical row order, so two runs over the
// same input produce the same fingerprint even when rows tie on the table's
// order key.
package fingerprint

import (
	"context"
	"fmt"

	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Fingerprint identifies the content of one table.
type Fingerprint struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
	Hash  string `json:"hash"`
}

// Rows hashes a set of rows. Each row hashes its values in column order; the
// row hashes are summed so the result does not depend on row order.
func Rows(t schema.Table, rows [][]any) Fingerprint {
	var sum uint64
	for _, r := range rows {
		sum += row(r)
	}
	return finish(t, int64(len(rows)), sum)
}

// Table reads t from store and fingerprints it.
func Table(ctx context.Context, store warehouse.Store, t schema.Table) (Fingerprint, error) {
	dest, values := warehouse.ScanDest(t)

	var (
		n   int64
		sum uint64
	)
	err := store.Select(ctx, t, func(r warehouse.Scanner) error {
		if err := r.Scan(dest...); err != nil {
			return err
		}
		sum += row(values())
		n++
		return nil
	})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint %s: %w", t.Name, err)
	}
	return finish(t, n, sum), nil
}

// Tables fingerprints every table, keyed by qualified name.
func Tables(ctx context.Context, store warehouse.Store, tables ...schema.Table) (map[string]Fingerprint, error) {
	out := make(map[string]Fingerprint, len(tables))
	for _, t := range tables {
		fp, err := Table(ctx, store, t)
		if err != nil {
			return nil, err
		}
		out[t.Name] = fp
	}
	return out, nil
}

func row(values []any) uint64 {
	b := NewHashBuilder()
	for _, v := range values {
		b.Value(v)
	}
	return b.Build()
}

func finish(t schema.Table, n int64, sum uint64) Fingerprint {
	b := NewHashBuilder().String(t.Name)
	for _, c := range t.Columns {
		b.String(c.Name).String(c.Kind.String())
	}
	b.Uint64(uint64(n)).Uint64(sum)
	return Fingerprint{
		Table: t.Name,
		Rows:  n,
		Hash:  fmt.Sprintf("%016x", b.Build()),
	}
}
