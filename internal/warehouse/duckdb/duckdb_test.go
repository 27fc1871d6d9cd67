package duckdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

var testTable = schema.Table{
	Name:  "gold.test_metrics",
	Layer: schema.LayerGold,
	Columns: []schema.Column{
		{Name: "day", Kind: schema.Date},
		{Name: "name", Kind: schema.String},
		{Name: "hits", Kind: schema.UInt64},
		{Name: "flag", Kind: schema.UInt8},
		{Name: "score", Kind: schema.Float64},
	},
	OrderBy: []string{"-score", "name"},
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(context.Background(), testTable); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestStore_ReplaceAndSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := warehouse.Batch{
		Table: testTable,
		Rows: [][]any{
			{day(1), "a", uint64(1), uint8(0), 0.5},
			{day(2), "b", uint64(2), uint8(1), 1.5},
		},
	}
	if err := s.Replace(ctx, batch); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	records, err := warehouse.Records(ctx, s, testTable)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(records))
	}
	// Sorted by score descending.
	if records[0]["name"] != "b" {
		t.Errorf("unexpected order: %v", records)
	}
	if got := records[0]["day"].(time.Time); !got.Equal(day(2)) {
		t.Errorf("unexpected date %v", got)
	}

	// A second replace discards prior content.
	batch.Rows = batch.Rows[:1]
	if err := s.Replace(ctx, batch); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	n, err := s.Count(ctx, testTable.Name)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after replace, got %d", n)
	}
}

func TestStore_ReplaceIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := warehouse.Batch{
		Table: testTable,
		Rows:  [][]any{{day(1), "a", uint64(1), uint8(0), 0.5}},
	}
	if err := s.Replace(ctx, good); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	bad := warehouse.Batch{
		Table: testTable,
		Rows: [][]any{
			{day(1), "x", uint64(1), uint8(0), 0.1},
			{day(1), "y"}, // short row
		},
	}
	if err := s.Replace(ctx, bad); err == nil {
		t.Fatal("expected error for short row")
	}

	records, err := warehouse.Records(ctx, s, testTable)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "a" {
		t.Errorf("prior content should survive a failed replace, got %v", records)
	}
}

func TestStore_Columns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cols, err := s.Columns(ctx, testTable.Name)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if strings.Join(cols, ",") != "day,name,hits,flag,score" {
		t.Errorf("unexpected columns %v", cols)
	}

	_, err = s.Columns(ctx, "gold.missing_table")
	if !errors.Is(err, errors.ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

func TestStore_Query(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Query(ctx, "SELECT 1 AS one, 'x' AS two")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Columns) != 2 || len(res.Rows) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Rows[0][1] != "x" {
		t.Errorf("unexpected value %v", res.Rows[0][1])
	}

	if _, err := s.Query(ctx, "SELEC nonsense"); !errors.Is(err, errors.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestCreateTableSQL(t *testing.T) {
	ddl := createTableSQL(testTable)
	for _, want := range []string{"gold.test_metrics", "day DATE", "hits UBIGINT", "flag UTINYINT", "score DOUBLE"} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestStore_SelectLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := warehouse.Batch{Table: testTable}
	for i := 1; i <= 5; i++ {
		batch.Rows = append(batch.Rows, []any{day(i), string(rune('a' + i)), uint64(i), uint8(0), float64(i)})
	}
	if err := s.Replace(ctx, batch); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	records, err := warehouse.RecordsLimit(ctx, s, testTable, 2)
	if err != nil {
		t.Fatalf("RecordsLimit: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// highest score first
	if records[0]["score"] != 5.0 || records[1]["score"] != 4.0 {
		t.Errorf("limit did not keep the sort order: %v", records)
	}

	all, err := warehouse.RecordsLimit(ctx, s, testTable, 0)
	if err != nil {
		t.Fatalf("RecordsLimit(0): %v", err)
	}
	if len(all) != 5 {
		t.Errorf("limit 0 should read every row, got %d", len(all))
	}
}

func TestSelectLimitSQL(t *testing.T) {
	got := warehouse.SelectLimitSQL(testTable, 3)
	want := "SELECT day, name, hits, flag, score FROM gold.test_metrics ORDER BY score DESC, name LIMIT 3"
	if got != want {
		t.Errorf("SelectLimitSQL = %q, want %q", got, want)
	}
	if warehouse.SelectLimitSQL(testTable, 0) != warehouse.SelectSQL(testTable) {
		t.Error("non-positive limit should not add a LIMIT clause")
	}
}
