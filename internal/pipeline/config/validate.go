package config

import (
	"errors"
	"fmt"

	perrors "github.com/xtxerr/medallion/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	v := perrors.NewValidationErrors()

	if c.DataDir == "" {
		v.AddMissing("data_dir")
	}

	if err := c.Warehouse.Validate(); err != nil {
		v.Add(fmt.Errorf("warehouse: %w", err))
	}
	if err := c.Enrichment.Validate(); err != nil {
		v.Add(fmt.Errorf("enrichment: %w", err))
	}
	if err := c.Aggregation.Validate(); err != nil {
		v.Add(fmt.Errorf("aggregation: %w", err))
	}
	if err := c.Export.Validate(); err != nil {
		v.Add(fmt.Errorf("export: %w", err))
	}
	if err := c.Tracing.Validate(); err != nil {
		v.Add(fmt.Errorf("tracing: %w", err))
	}
	if err := c.Notify.Validate(); err != nil {
		v.Add(fmt.Errorf("notify: %w", err))
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		v.AddField("logging.format", "must be text or json")
	}

	return v.Err()
}

// Validate checks the warehouse configuration.
func (c *WarehouseConfig) Validate() error {
	var errs []error

	switch c.Driver {
	case "duckdb":
	case "clickhouse":
		if len(c.ClickHouse.Addr) == 0 {
			errs = append(errs, perrors.NewMissingField("clickhouse.addr"))
		}
		if c.ClickHouse.MaxOpenConns < 0 || c.ClickHouse.MaxIdleConns < 0 {
			errs = append(errs, perrors.NewValidation("clickhouse pool", "sizes must not be negative"))
		}
	case "":
		errs = append(errs, perrors.NewMissingField("driver"))
	default:
		errs = append(errs, perrors.NewValidation("driver", fmt.Sprintf("%q is not duckdb or clickhouse", c.Driver)))
	}

	if c.DuckDB.Threads < 0 {
		errs = append(errs, perrors.NewValidation("duckdb.threads", "must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the enrichment configuration.
func (c *EnrichmentConfig) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, perrors.NewValidation("workers", "must not be negative"))
	}
	if c.PartitionSize <= 0 {
		errs = append(errs, perrors.NewValidation("partition_size", "must be positive"))
	}
	return errors.Join(errs...)
}

// Validate checks the aggregation configuration.
func (c *AggregationConfig) Validate() error {
	if c.PercentileAccuracy <= 0 || c.PercentileAccuracy >= 1 {
		return perrors.NewValidation("percentile_accuracy", "must be between 0 and 1 (exclusive)")
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	var errs []error
	switch c.Compression {
	case "", "none", "snappy", "zstd", "lz4", "gzip":
	default:
		errs = append(errs, perrors.NewValidation("compression", fmt.Sprintf("unknown codec %q", c.Compression)))
	}
	if c.KeepRuns < 0 {
		errs = append(errs, perrors.NewValidation("keep_runs", "must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the tracing configuration.
func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, perrors.NewMissingField("endpoint"))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, perrors.NewValidation("sample_ratio", "must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// Validate checks the notify configuration.
func (c *NotifyConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, perrors.NewMissingField("brokers"))
	}
	if c.Topic == "" {
		errs = append(errs, perrors.NewMissingField("topic"))
	}
	return errors.Join(errs...)
}
