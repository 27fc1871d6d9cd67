// Package metrics exposes pipeline run metrics in Prometheus format.
//
// Metrics live in a private registry so tests and multiple runners never
// collide on the global default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xtxerr/medallion/internal/coerce"
)

const namespace = "medallion"

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	tableRows     *prometheus.GaugeVec
	degraded      *prometheus.CounterVec
	joinMisses    *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

// New creates and registers the collectors. withRuntime adds the Go and
// process collectors, which only make sense for long-running processes.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "runs_total", Help: "Pipeline runs by outcome."},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "stage_failures_total", Help: "Failed stages by stage name."},
			[]string{"stage"},
		),
		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "table_rows", Help: "Rows written to each table by the last run."},
			[]string{"table"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "degraded_values_total", Help: "Values replaced by defaults during enrichment."},
			[]string{"field", "reason"},
		),
		joinMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "join_misses_total", Help: "Events without a matching dimension row."},
			[]string{"dimension"},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "last_success_timestamp_seconds", Help: "Unix time of the last successful run."},
		),
	}

	m.registry.MustRegister(m.runs, m.stageDuration, m.stageFailures, m.tableRows, m.degraded, m.joinMisses, m.lastSuccess)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(finished time.Time, err error) {
	if err != nil {
		m.runs.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.runs.WithLabelValues(StatusSuccess).Inc()
	m.lastSuccess.Set(float64(finished.Unix()))
}

// SetTableRows records the row count of a table.
func (m *Metrics) SetTableRows(table string, rows int) {
	m.tableRows.WithLabelValues(table).Set(float64(rows))
}

// AddDegraded adds enrichment degradation counts.
func (m *Metrics) AddDegraded(s *coerce.Stats) {
	if s == nil {
		return
	}
	for field, n := range s.Missing() {
		m.degraded.WithLabelValues(field, "missing").Add(float64(n))
	}
	for field, n := range s.Malformed() {
		m.degraded.WithLabelValues(field, "malformed").Add(float64(n))
	}
}

// AddJoinMisses adds unmatched dimension lookups.
func (m *Metrics) AddJoinMisses(users, ips int) {
	m.joinMisses.WithLabelValues("users").Add(float64(users))
	m.joinMisses.WithLabelValues("ip_reputation").Add(float64(ips))
}

// WriteTextfile writes the registry in text format for the node_exporter
// textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
