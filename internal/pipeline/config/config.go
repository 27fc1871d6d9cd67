// Package config loads the pipeline configuration.
//
// Sources are applied in this order: built-in defaults, an optional .env
// file, the YAML file, then MEDALLION_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/medallion/config"
)

// Config represents the complete pipeline configuration.
type Config struct {
	// DataDir is the root directory for the DuckDB file and snapshots.
	DataDir string `yaml:"data_dir"`

	Warehouse   WarehouseConfig   `yaml:"warehouse"`
	Sources     SourcesConfig     `yaml:"sources"`
	Enrichment  EnrichmentConfig  `yaml:"enrichment"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Export      ExportConfig      `yaml:"export"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Notify      NotifyConfig      `yaml:"notify"`
	Serve       ServeConfig       `yaml:"serve"`
	Watch       WatchConfig       `yaml:"watch"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// WarehouseConfig selects and configures the storage engine.
type WarehouseConfig struct {
	// Driver is "duckdb" or "clickhouse".
	Driver string `yaml:"driver"`

	DuckDB     DuckDBConfig     `yaml:"duckdb"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// DuckDBConfig configures the embedded engine.
type DuckDBConfig struct {
	// Path is the database file. Relative paths resolve under data_dir.
	// ":memory:" keeps everything in memory.
	Path string `yaml:"path"`

	// MemoryLimit is DuckDB's memory_limit setting, e.g. "2GB".
	MemoryLimit string `yaml:"memory_limit"`

	// Threads is DuckDB's threads setting. 0 keeps DuckDB's default.
	Threads int `yaml:"threads"`
}

// ClickHouseConfig configures the remote engine.
type ClickHouseConfig struct {
	Addr         []string      `yaml:"addr"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	TLS          bool          `yaml:"tls"`
	CAFile       string        `yaml:"ca_file"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

// SourcesConfig locates the raw producer outputs loaded into Bronze.
type SourcesConfig struct {
	// Events is the web log CSV.
	Events string `yaml:"events"`

	// Users is a JSON array of user documents.
	Users string `yaml:"users"`

	// IPReputation is a JSON array of IP reputation documents.
	IPReputation string `yaml:"ip_reputation"`
}

// EnrichmentConfig tunes the Silver stage.
type EnrichmentConfig struct {
	// Workers is the number of concurrent partitions. 0 means NumCPU.
	Workers int `yaml:"workers"`

	// PartitionSize is the number of events per partition.
	PartitionSize int `yaml:"partition_size"`
}

// AggregationConfig tunes the Gold stage.
type AggregationConfig struct {
	// PercentileAccuracy is the DDSketch relative accuracy.
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`

	// BotMarkers are user agent substrings marking automated traffic.
	BotMarkers []string `yaml:"bot_markers"`

	// AuthPrefixes and AdminPrefixes drive the URL classifier.
	AuthPrefixes  []string `yaml:"auth_prefixes"`
	AdminPrefixes []string `yaml:"admin_prefixes"`
}

// ExportConfig configures Parquet snapshots.
type ExportConfig struct {
	Enabled bool `yaml:"enabled"`

	// Compression is one of snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// KeepRuns is the number of snapshots retention keeps. 0 keeps all.
	KeepRuns int `yaml:"keep_runs"`
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	// Textfile, when set, receives the registry in Prometheus text format
	// after each run (node_exporter textfile collector).
	Textfile string `yaml:"textfile"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	ServiceName string  `yaml:"service_name"`
}

// NotifyConfig configures run completion messages.
type NotifyConfig struct {
	Enabled bool          `yaml:"enabled"`
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServeConfig configures the read API.
type ServeConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxRows     int      `yaml:"max_rows"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir: config.DefaultDataDir,
		Warehouse: WarehouseConfig{
			Driver: config.DefaultWarehouseDriver,
			DuckDB: DuckDBConfig{
				Path: config.DefaultDuckDBFile,
			},
			ClickHouse: ClickHouseConfig{
				Addr:         []string{config.DefaultClickHouseAddr},
				Database:     config.DefaultClickHouseDatabase,
				Username:     "default",
				DialTimeout:  config.DefaultClickHouseDialTimeout,
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		Sources: SourcesConfig{
			Events:       config.DefaultEventsSource,
			Users:        config.DefaultUsersSource,
			IPReputation: config.DefaultIPReputationSource,
		},
		Enrichment: EnrichmentConfig{
			Workers:       config.DefaultEnrichmentWorkers,
			PartitionSize: config.DefaultPartitionSize,
		},
		Aggregation: AggregationConfig{
			PercentileAccuracy: config.DefaultPercentileAccuracy,
			BotMarkers:         append([]string(nil), config.DefaultBotMarkers...),
			AuthPrefixes:       append([]string(nil), config.DefaultAuthPrefixes...),
			AdminPrefixes:      append([]string(nil), config.DefaultAdminPrefixes...),
		},
		Export: ExportConfig{
			Enabled:     true,
			Compression: config.DefaultExportCompression,
			KeepRuns:    config.DefaultKeepRuns,
		},
		Tracing: TracingConfig{
			SampleRatio: 1.0,
			ServiceName: config.DefaultTracingServiceName,
		},
		Notify: NotifyConfig{
			Topic:   config.DefaultNotifyTopic,
			Timeout: config.DefaultNotifyTimeout,
		},
		Serve: ServeConfig{
			Listen:  config.DefaultListenAddress,
			MaxRows: config.DefaultServeMaxRows,
		},
		Watch: WatchConfig{
			Debounce: config.DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults.
// A missing file at path is not an error when path is empty.
func Load(path string) (*Config, error) {
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	ApplyEnv(cfg, os.LookupEnv)

	return cfg, nil
}

// DuckDBPath resolves the DuckDB DSN. ":memory:" maps to "" (in-memory).
func (c *Config) DuckDBPath() string {
	p := c.Warehouse.DuckDB.Path
	switch {
	case p == ":memory:" || p == "":
		return ""
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(c.DataDir, p)
	}
}

// RunsDir returns the snapshot root.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "runs")
}
