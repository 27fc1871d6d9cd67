package api

import (
	"context"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/medallion/internal/export"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/query"
	"github.com/xtxerr/medallion/internal/retention"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// scrapeTimeout bounds the warehouse queries of one scrape.
const scrapeTimeout = 10 * time.Second

// warehouseCollector reports the committed pipeline state on every scrape:
// table row counts from the warehouse and the newest run snapshot. Nothing
// is cached between scrapes.
type warehouseCollector struct {
	store   warehouse.Store
	runsDir string

	up           *prometheus.Desc
	tableRows    *prometheus.Desc
	tableExists  *prometheus.Desc
	snapshots    *prometheus.Desc
	lastFinished *prometheus.Desc
	lastInfo     *prometheus.Desc
	lastRows     *prometheus.Desc
}

func newWarehouseCollector(store warehouse.Store, runsDir string) *warehouseCollector {
	const ns = "medallion"
	return &warehouseCollector{
		store:   store,
		runsDir: runsDir,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "warehouse", "up"),
			"Whether the warehouse answered the last ping.",
			nil, nil,
		),
		tableRows: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "warehouse", "table_rows"),
			"Committed rows per pipeline table.",
			[]string{"table", "layer"}, nil,
		),
		tableExists: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "warehouse", "table_exists"),
			"Whether a pipeline table exists in the warehouse.",
			[]string{"table", "layer"}, nil,
		),
		snapshots: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "snapshot", "count"),
			"Number of complete run snapshots on disk.",
			nil, nil,
		),
		lastFinished: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "snapshot", "last_finished_timestamp_seconds"),
			"Finish time of the newest run snapshot.",
			nil, nil,
		),
		lastInfo: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "snapshot", "last_info"),
			"Identity of the newest run snapshot.",
			[]string{"run_id", "driver"}, nil,
		),
		lastRows: prometheus.NewDesc(
			prometheus.BuildFQName(ns, "snapshot", "last_table_rows"),
			"Rows per table in the newest run snapshot.",
			[]string{"table", "layer"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *warehouseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.tableRows
	ch <- c.tableExists
	ch <- c.snapshots
	ch <- c.lastFinished
	ch <- c.lastInfo
	ch <- c.lastRows
}

// Collect implements prometheus.Collector.
func (c *warehouseCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	c.collectWarehouse(ctx, ch)
	c.collectSnapshot(ch)
}

func (c *warehouseCollector) collectWarehouse(ctx context.Context, ch chan<- prometheus.Metric) {
	log := logging.Component("api")

	if err := c.store.Ping(ctx); err != nil {
		log.Warn("metrics scrape: warehouse ping failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	counts, err := query.Verify(ctx, c.store)
	if err != nil {
		log.Warn("metrics scrape: count tables failed", "error", err)
		return
	}
	for _, tc := range counts {
		exists := 0.0
		if tc.Exists {
			exists = 1
			ch <- prometheus.MustNewConstMetric(c.tableRows, prometheus.GaugeValue, float64(tc.Rows), tc.Table, tc.Layer)
		}
		ch <- prometheus.MustNewConstMetric(c.tableExists, prometheus.GaugeValue, exists, tc.Table, tc.Layer)
	}
}

func (c *warehouseCollector) collectSnapshot(ch chan<- prometheus.Metric) {
	if c.runsDir == "" {
		return
	}
	runs, err := retention.New(c.runsDir, 0).Runs()
	if err != nil {
		logging.Component("api").Warn("metrics scrape: list runs failed", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.snapshots, prometheus.GaugeValue, float64(len(runs)))
	if len(runs) == 0 {
		return
	}

	latest := runs[len(runs)-1]
	m, err := export.ReadManifest(filepath.Join(c.runsDir, latest))
	if err != nil {
		logging.Component("api").Warn("metrics scrape: read manifest failed", "run_id", latest, "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.lastFinished, prometheus.GaugeValue, float64(m.FinishedAt.Unix()))
	ch <- prometheus.MustNewConstMetric(c.lastInfo, prometheus.GaugeValue, 1, m.RunID, m.Driver)
	for _, t := range m.Tables {
		ch <- prometheus.MustNewConstMetric(c.lastRows, prometheus.GaugeValue, float64(t.Rows), t.Name, t.Layer)
	}
}
