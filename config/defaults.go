// Package config provides configuration defaults for the medallion pipeline.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via medallion.yaml or MEDALLION_*
// environment variables.
package config

import "time"

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root for the DuckDB file and Parquet snapshots.
	// Override via config: data_dir
	DefaultDataDir = "./data"

	// DefaultWarehouseDriver selects the embedded engine.
	// Override via config: warehouse.driver
	DefaultWarehouseDriver = "duckdb"

	// DefaultDuckDBFile is the database file name under data_dir.
	// Override via config: warehouse.duckdb.path
	DefaultDuckDBFile = "medallion.duckdb"

	// DefaultClickHouseAddr is the native-protocol address of a local server.
	// Override via config: warehouse.clickhouse.addr
	DefaultClickHouseAddr = "127.0.0.1:9000"

	// DefaultClickHouseDatabase is used for unqualified names only; layer
	// tables always live in the bronze, silver and gold databases.
	DefaultClickHouseDatabase = "default"

	// DefaultClickHouseDialTimeout bounds connection setup.
	DefaultClickHouseDialTimeout = 30 * time.Second
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultEventsSource is the web log CSV.
	// Override via config: sources.events
	DefaultEventsSource = "./data/raw/logs_web.csv"

	// DefaultUsersSource is the user document export (JSON array).
	// Override via config: sources.users
	DefaultUsersSource = "./data/raw/users.json"

	// DefaultIPReputationSource is the IP reputation export (JSON array).
	// Override via config: sources.ip_reputation
	DefaultIPReputationSource = "./data/raw/ip_reputation.json"
)

// =============================================================================
// Transformation Defaults
// =============================================================================

const (
	// DefaultEnrichmentWorkers is the number of goroutines enriching
	// partitions of the Bronze event set. 0 means runtime.NumCPU().
	// Override via config: enrichment.workers
	DefaultEnrichmentWorkers = 0

	// DefaultPartitionSize is the number of events per enrichment partition.
	// Override via config: enrichment.partition_size
	DefaultPartitionSize = 50000

	// DefaultPercentileAccuracy is the DDSketch relative accuracy used for
	// p95 latency (0.01 = 1%).
	// Override via config: aggregation.percentile_accuracy
	DefaultPercentileAccuracy = 0.01
)

// DefaultBotMarkers are case-insensitive user agent substrings that mark a
// request as automated.
var DefaultBotMarkers = []string{
	"bot", "crawl", "spider", "slurp", "curl", "wget", "python-requests", "headless",
}

// DefaultAuthPrefixes are URL path prefixes classified as authentication.
var DefaultAuthPrefixes = []string{
	"/login", "/logout", "/auth", "/signin", "/register", "/api/auth", "/oauth", "/password",
}

// DefaultAdminPrefixes are URL path prefixes classified as admin.
var DefaultAdminPrefixes = []string{
	"/admin", "/api/admin", "/wp-admin",
}

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec for snapshots.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultKeepRuns is how many run snapshots retention keeps.
	// Override via config: export.keep_runs
	DefaultKeepRuns = 7
)

// =============================================================================
// Serving and Integration Defaults
// =============================================================================

const (
	// DefaultListenAddress is the read API listen address.
	// Override via config: serve.listen
	DefaultListenAddress = "127.0.0.1:8088"

	// DefaultServeMaxRows caps rows returned per API request.
	// Override via config: serve.max_rows
	DefaultServeMaxRows = 10000

	// DefaultNotifyTopic receives one message per finished run.
	// Override via config: notify.topic
	DefaultNotifyTopic = "medallion.runs"

	// DefaultNotifyTimeout bounds a notification write.
	DefaultNotifyTimeout = 10 * time.Second

	// DefaultTracingServiceName is the OpenTelemetry service.name.
	DefaultTracingServiceName = "medallion"

	// DefaultWatchDebounce collapses bursts of source file events.
	// Override via config: watch.debounce
	DefaultWatchDebounce = 2 * time.Second
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeout is how long serve waits for in-flight requests.
	DefaultShutdownTimeout = 15 * time.Second
)
