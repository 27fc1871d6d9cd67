package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/export"
	"github.com/xtxerr/medallion/internal/metrics"
	"github.com/xtxerr/medallion/internal/notify"
	"github.com/xtxerr/medallion/internal/pipeline/config"
	"github.com/xtxerr/medallion/internal/retention"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/testutil"
	"github.com/xtxerr/medallion/internal/warehouse"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.RunMessage
}

func (n *recordingNotifier) Notify(_ context.Context, m notify.RunMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := testutil.WriteSources(t, filepath.Join(dir, "raw"))

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Warehouse.DuckDB.Path = ":memory:"
	cfg.Sources.Events = src.Events
	cfg.Sources.Users = src.Users
	cfg.Sources.IPReputation = src.IPReputation
	cfg.Enrichment.Workers = 2
	cfg.Enrichment.PartitionSize = 2
	cfg.Export.KeepRuns = 2
	return cfg
}

func TestRunner_Run(t *testing.T) {
	cfg := testConfig(t)
	store := testutil.OpenDuckDB(t)
	n := &recordingNotifier{}

	rep, err := NewRunner(store, cfg, WithNotifier(n)).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.RunID == "" || rep.Driver != "duckdb" {
		t.Errorf("report header = %q/%q", rep.RunID, rep.Driver)
	}
	if rep.Bronze == nil || rep.Bronze.Events != 6 || rep.Bronze.Users != 2 {
		t.Errorf("bronze = %+v", rep.Bronze)
	}
	if rep.Silver.Rows != 6 {
		t.Errorf("silver rows = %d, want 6", rep.Silver.Rows)
	}
	if len(rep.Fingerprints) != 1+len(schema.Gold()) {
		t.Errorf("fingerprints = %d tables", len(rep.Fingerprints))
	}
	if rep.Fingerprints[schema.SilverEvents.Name].Rows != 6 {
		t.Errorf("silver fingerprint = %+v", rep.Fingerprints[schema.SilverEvents.Name])
	}

	if rep.Manifest == nil {
		t.Fatal("expected a snapshot manifest")
	}
	m, err := export.ReadManifest(filepath.Join(cfg.RunsDir(), rep.RunID))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	entry, ok := m.Table(schema.SilverEvents.Name)
	if !ok || entry.Rows != 6 || entry.Hash != rep.Fingerprints[schema.SilverEvents.Name].Hash {
		t.Errorf("manifest silver entry = %+v", entry)
	}

	if len(n.msgs) != 1 || n.msgs[0].Status != notify.StatusSuccess || n.msgs[0].RunID != rep.RunID {
		t.Errorf("notifications = %+v", n.msgs)
	}
	if n.msgs[0].Snapshot == "" {
		t.Error("notification missing snapshot dir")
	}
}

func TestRunner_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	store := testutil.OpenDuckDB(t)
	r := NewRunner(store, cfg)
	ctx := context.Background()

	var reports []*Report
	for range 3 {
		rep, err := r.Run(ctx, RunOptions{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		reports = append(reports, rep)
	}

	first := reports[0].Fingerprints
	for i, rep := range reports[1:] {
		for table, fp := range first {
			if rep.Fingerprints[table] != fp {
				t.Errorf("run %d: %s fingerprint %+v differs from %+v", i+2, table, rep.Fingerprints[table], fp)
			}
		}
		if rep.RunID <= reports[i].RunID {
			t.Errorf("run IDs not increasing: %s then %s", reports[i].RunID, rep.RunID)
		}
	}

	runs, err := retention.New(cfg.RunsDir(), 0).Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[1] != reports[2].RunID {
		t.Errorf("snapshots after retention = %v", runs)
	}
	if reports[2].Retention == nil || len(reports[2].Retention.RunsDeleted) != 1 {
		t.Errorf("retention = %+v", reports[2].Retention)
	}
}

func TestRunner_SkipBronzeAndNoExport(t *testing.T) {
	cfg := testConfig(t)
	store := testutil.OpenDuckDB(t)
	r := NewRunner(store, cfg)
	ctx := context.Background()

	first, err := r.Run(ctx, RunOptions{NoExport: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Manifest != nil {
		t.Error("NoExport still wrote a snapshot")
	}
	if _, err := os.Stat(cfg.RunsDir()); !os.IsNotExist(err) {
		t.Errorf("runs dir should not exist, stat err = %v", err)
	}

	// Sources disappear; a recompute from the loaded Bronze still works.
	os.Remove(cfg.Sources.Events)
	second, err := r.Run(ctx, RunOptions{SkipBronze: true, NoExport: true})
	if err != nil {
		t.Fatalf("Run with SkipBronze: %v", err)
	}
	if second.Bronze != nil {
		t.Error("bronze should not have been loaded")
	}
	if second.Fingerprints[schema.GoldIPThreat.Name] != first.Fingerprints[schema.GoldIPThreat.Name] {
		t.Error("gold changed without new input")
	}
}

func TestRunner_FailFast(t *testing.T) {
	cfg := testConfig(t)
	store := testutil.OpenDuckDB(t)
	n := &recordingNotifier{}
	m := metrics.New(false)
	r := NewRunner(store, cfg, WithNotifier(n), WithMetrics(m))
	ctx := context.Background()

	if _, err := r.Run(ctx, RunOptions{NoExport: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := countRows(t, store, schema.SilverEvents)

	os.Remove(cfg.Sources.Events)
	rep, err := r.Run(ctx, RunOptions{})
	if err == nil {
		t.Fatal("expected failure with missing events source")
	}
	var se *errors.StageError
	if !errors.As(err, &se) || se.Layer != schema.LayerBronze {
		t.Errorf("err = %v, want bronze StageError", err)
	}
	if rep == nil || rep.Silver.Rows != 0 || rep.Manifest != nil {
		t.Errorf("later stages ran: %+v", rep)
	}
	if after := countRows(t, store, schema.SilverEvents); after != before {
		t.Errorf("silver changed from %d to %d rows", before, after)
	}

	last := n.msgs[len(n.msgs)-1]
	if last.Status != notify.StatusFailure || last.Layer != schema.LayerBronze || last.Error == "" {
		t.Errorf("failure notification = %+v", last)
	}
}

func TestRunner_MetricsTextfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "medallion.prom")

	if _, err := NewRunner(testutil.OpenDuckDB(t), cfg).Run(context.Background(), RunOptions{NoExport: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty metrics textfile")
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Warehouse.DuckDB.Path = ":memory:"
	store, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore duckdb: %v", err)
	}
	defer store.Close()
	if store.Driver() != "duckdb" {
		t.Errorf("driver = %q", store.Driver())
	}

	cfg.Warehouse.Driver = "sqlite"
	if _, err := OpenStore(cfg); !errors.Is(err, errors.ErrUnknownDriver) {
		t.Errorf("err = %v, want ErrUnknownDriver", err)
	}
}

func countRows(t *testing.T, store warehouse.Store, tbl schema.Table) int64 {
	t.Helper()
	n, err := store.Count(context.Background(), tbl.Name)
	if err != nil {
		t.Fatalf("count %s: %v", tbl.Name, err)
	}
	return n
}
