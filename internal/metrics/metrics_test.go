package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xtxerr/medallion/internal/coerce"
)

func TestMetrics(t *testing.T) {
	m := New(false)

	m.ObserveStage("silver", 2*time.Second, nil)
	m.ObserveStage("gold", time.Second, errors.New("boom"))
	m.ObserveRun(time.Unix(1700000000, 0), nil)
	m.ObserveRun(time.Now(), errors.New("boom"))
	m.SetTableRows("silver.logs_enriched", 42)
	m.AddJoinMisses(3, 1)

	stats := coerce.NewStats()
	stats.Observe("event_ts", "", false)
	stats.Observe("event_ts", "garbage", false)
	stats.Observe("status_code", "x", false)
	m.AddDegraded(stats)
	m.AddDegraded(nil)

	if got := testutil.ToFloat64(m.runs.WithLabelValues(StatusSuccess)); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues(StatusFailure)); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess); got != 1700000000 {
		t.Errorf("last success = %v", got)
	}
	if got := testutil.ToFloat64(m.stageFailures.WithLabelValues("gold")); got != 1 {
		t.Errorf("gold failures = %v", got)
	}
	if got := testutil.ToFloat64(m.tableRows.WithLabelValues("silver.logs_enriched")); got != 42 {
		t.Errorf("table rows = %v", got)
	}
	if got := testutil.ToFloat64(m.degraded.WithLabelValues("event_ts", "malformed")); got != 1 {
		t.Errorf("malformed event_ts = %v", got)
	}
	if got := testutil.ToFloat64(m.joinMisses.WithLabelValues("users")); got != 3 {
		t.Errorf("user join misses = %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New(false)
	m.SetTableRows("gold.hourly_patterns", 7)

	path := filepath.Join(t.TempDir(), "medallion.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `medallion_table_rows{table="gold.hourly_patterns"} 7`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}
