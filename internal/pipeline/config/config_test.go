package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	perrors "github.com/xtxerr/medallion/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	if cfg.Warehouse.Driver != "duckdb" {
		t.Errorf("expected duckdb driver, got %s", cfg.Warehouse.Driver)
	}
	if len(cfg.Aggregation.BotMarkers) == 0 {
		t.Error("expected default bot markers")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medallion.yaml")

	content := `
data_dir: /var/lib/medallion
warehouse:
  driver: clickhouse
  clickhouse:
    addr: ["ch-1:9000", "ch-2:9000"]
    dial_timeout: 5s
export:
  keep_runs: 3
watch:
  debounce: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/var/lib/medallion" {
		t.Errorf("unexpected data_dir %s", cfg.DataDir)
	}
	if cfg.Warehouse.Driver != "clickhouse" || len(cfg.Warehouse.ClickHouse.Addr) != 2 {
		t.Errorf("unexpected warehouse %+v", cfg.Warehouse)
	}
	if cfg.Warehouse.ClickHouse.DialTimeout != 5*time.Second {
		t.Errorf("unexpected dial timeout %v", cfg.Warehouse.ClickHouse.DialTimeout)
	}
	if cfg.Export.KeepRuns != 3 {
		t.Errorf("unexpected keep_runs %d", cfg.Export.KeepRuns)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("unexpected debounce %v", cfg.Watch.Debounce)
	}
	// Untouched sections keep their defaults.
	if cfg.Aggregation.PercentileAccuracy != 0.01 {
		t.Errorf("unexpected accuracy %v", cfg.Aggregation.PercentileAccuracy)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MEDALLION_DATA_DIR":         "/tmp/m",
		"MEDALLION_CLICKHOUSE_ADDR":  "a:9000, b:9000,",
		"MEDALLION_EXPORT_KEEP_RUNS": "12",
		"MEDALLION_NOTIFY_ENABLED":   "true",
		"MEDALLION_DUCKDB_THREADS":   "lots",
		"MEDALLION_WATCH_DEBOUNCE":   "3s",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	ApplyEnv(cfg, lookup)

	if cfg.DataDir != "/tmp/m" {
		t.Errorf("unexpected data_dir %s", cfg.DataDir)
	}
	if len(cfg.Warehouse.ClickHouse.Addr) != 2 || cfg.Warehouse.ClickHouse.Addr[1] != "b:9000" {
		t.Errorf("unexpected addr %v", cfg.Warehouse.ClickHouse.Addr)
	}
	if cfg.Export.KeepRuns != 12 {
		t.Errorf("unexpected keep_runs %d", cfg.Export.KeepRuns)
	}
	if !cfg.Notify.Enabled {
		t.Error("expected notify enabled")
	}
	if cfg.Warehouse.DuckDB.Threads != 0 {
		t.Error("unparsable override should be ignored")
	}
	if cfg.Watch.Debounce != 3*time.Second {
		t.Errorf("unexpected debounce %v", cfg.Watch.Debounce)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no data dir", func(c *Config) { c.DataDir = "" }, true},
		{"bad driver", func(c *Config) { c.Warehouse.Driver = "sqlite" }, true},
		{"clickhouse without addr", func(c *Config) {
			c.Warehouse.Driver = "clickhouse"
			c.Warehouse.ClickHouse.Addr = nil
		}, true},
		{"bad accuracy", func(c *Config) { c.Aggregation.PercentileAccuracy = 1.5 }, true},
		{"bad codec", func(c *Config) { c.Export.Compression = "brotli" }, true},
		{"notify without brokers", func(c *Config) { c.Notify.Enabled = true }, true},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"zero partition", func(c *Config) { c.Enrichment.PartitionSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !perrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDuckDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"

	if got := cfg.DuckDBPath(); got != filepath.Join("/data", "medallion.duckdb") {
		t.Errorf("unexpected path %s", got)
	}
	cfg.Warehouse.DuckDB.Path = ":memory:"
	if got := cfg.DuckDBPath(); got != "" {
		t.Errorf("expected in-memory DSN, got %q", got)
	}
	cfg.Warehouse.DuckDB.Path = "/abs/x.duckdb"
	if got := cfg.DuckDBPath(); got != "/abs/x.duckdb" {
		t.Errorf("unexpected path %s", got)
	}
}
