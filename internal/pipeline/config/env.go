package config

import (
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDALLION_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from MEDALLION_* variables. Unparsable numeric
// values are ignored so that Validate reports the configured value instead.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = splitList(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	str("WAREHOUSE_DRIVER", &cfg.Warehouse.Driver)
	str("DUCKDB_PATH", &cfg.Warehouse.DuckDB.Path)
	str("DUCKDB_MEMORY_LIMIT", &cfg.Warehouse.DuckDB.MemoryLimit)
	integer("DUCKDB_THREADS", &cfg.Warehouse.DuckDB.Threads)
	list("CLICKHOUSE_ADDR", &cfg.Warehouse.ClickHouse.Addr)
	str("CLICKHOUSE_DATABASE", &cfg.Warehouse.ClickHouse.Database)
	str("CLICKHOUSE_USER", &cfg.Warehouse.ClickHouse.Username)
	str("CLICKHOUSE_PASSWORD", &cfg.Warehouse.ClickHouse.Password)
	boolean("CLICKHOUSE_TLS", &cfg.Warehouse.ClickHouse.TLS)
	str("CLICKHOUSE_CA_FILE", &cfg.Warehouse.ClickHouse.CAFile)

	str("SOURCE_EVENTS", &cfg.Sources.Events)
	str("SOURCE_USERS", &cfg.Sources.Users)
	str("SOURCE_IP_REPUTATION", &cfg.Sources.IPReputation)

	integer("ENRICHMENT_WORKERS", &cfg.Enrichment.Workers)

	boolean("EXPORT_ENABLED", &cfg.Export.Enabled)
	integer("EXPORT_KEEP_RUNS", &cfg.Export.KeepRuns)

	str("METRICS_TEXTFILE", &cfg.Metrics.Textfile)

	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	boolean("NOTIFY_ENABLED", &cfg.Notify.Enabled)
	list("KAFKA_BROKERS", &cfg.Notify.Brokers)
	str("KAFKA_TOPIC", &cfg.Notify.Topic)

	str("LISTEN", &cfg.Serve.Listen)
	list("CORS_ORIGINS", &cfg.Serve.CORSOrigins)

	duration("WATCH_DEBOUNCE", &cfg.Watch.Debounce)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
