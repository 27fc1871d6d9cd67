package pipeline

import (
	"fmt"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/pipeline/config"
	"github.com/xtxerr/medallion/internal/warehouse"
	"github.com/xtxerr/medallion/internal/warehouse/clickhouse"
	"github.com/xtxerr/medallion/internal/warehouse/duckdb"
)

// OpenStore connects to the configured warehouse.
func OpenStore(cfg *config.Config) (warehouse.Store, error) {
	switch cfg.Warehouse.Driver {
	case duckdb.DriverName:
		dc := duckdb.DefaultConfig()
		dc.DSN = cfg.DuckDBPath()
		dc.MemoryLimit = cfg.Warehouse.DuckDB.MemoryLimit
		dc.Threads = cfg.Warehouse.DuckDB.Threads
		return duckdb.New(dc)

	case clickhouse.DriverName:
		c := cfg.Warehouse.ClickHouse
		cc := clickhouse.DefaultConfig()
		cc.Addr = c.Addr
		cc.Database = c.Database
		cc.Username = c.Username
		cc.Password = c.Password
		cc.TLS = c.TLS
		cc.CAFile = c.CAFile
		if c.DialTimeout > 0 {
			cc.DialTimeout = c.DialTimeout
		}
		if c.MaxOpenConns > 0 {
			cc.MaxOpenConns = c.MaxOpenConns
		}
		if c.MaxIdleConns > 0 {
			cc.MaxIdleConns = c.MaxIdleConns
		}
		return clickhouse.New(cc)

	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownDriver, cfg.Warehouse.Driver)
	}
}
