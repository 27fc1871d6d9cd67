// Package pipeline coordinates one full medallion run: Bronze load, Silver
// enrichment, Gold aggregation, snapshot export, retention and run
// notification.
//
// Stages run strictly in order and the first failure aborts the run. Every
// stage is logged with the run ID, traced as its own span and timed in
// metrics.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/medallion/internal/bronze"
	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/export"
	"github.com/xtxerr/medallion/internal/fingerprint"
	"github.com/xtxerr/medallion/internal/gold"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/metrics"
	"github.com/xtxerr/medallion/internal/notify"
	"github.com/xtxerr/medallion/internal/pipeline/config"
	"github.com/xtxerr/medallion/internal/retention"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/silver"
	"github.com/xtxerr/medallion/internal/tracing"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Stage names used in logs, spans and metrics.
const (
	StageSchema      = "schema"
	StageBronze      = schema.LayerBronze
	StageSilver      = schema.LayerSilver
	StageGold        = schema.LayerGold
	StageFingerprint = "fingerprint"
	StageExport      = "export"
	StageRetention   = "retention"
)

// RunOptions selects optional stages.
type RunOptions struct {
	// SkipBronze keeps the current Bronze tables instead of reloading the
	// sources.
	SkipBronze bool

	// NoExport skips the Parquet snapshot and retention even when export is
	// enabled in the configuration.
	NoExport bool
}

// Report summarises a finished run.
type Report struct {
	RunID      string
	Driver     string
	StartedAt  time.Time
	FinishedAt time.Time

	Bronze       *bronze.LoadResult
	Silver       silver.Result
	Gold         gold.Result
	Fingerprints map[string]fingerprint.Fingerprint
	Manifest     *export.Manifest
	Retention    *retention.CleanupResult
}

// Runner executes pipeline runs against one warehouse. Runs on the same
// Runner are serialised.
type Runner struct {
	mu       sync.Mutex
	store    warehouse.Store
	cfg      *config.Config
	metrics  *metrics.Metrics
	notifier notify.Notifier
	newID    func() (string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithNotifier publishes a message after every run.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// NewRunner creates a Runner.
func NewRunner(store warehouse.Store, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		cfg:      cfg,
		metrics:  metrics.New(false),
		notifier: notify.Nop{},
		newID:    newRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newRunID returns a UUIDv7, whose string form sorts by creation time.
func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Metrics returns the runner's metrics.
func (r *Runner) Metrics() *metrics.Metrics { return r.metrics }

// Run executes one complete run. A failure in any stage aborts the run with
// an error carrying the failing stage; tables of stages that did not commit
// keep their previous content.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID, err := r.newID()
	if err != nil {
		return nil, errors.Wrap(err, "generate run id")
	}

	rep := &Report{RunID: runID, Driver: r.store.Driver(), StartedAt: time.Now().UTC()}
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.ComponentContext(ctx, "pipeline")
	log.Info("run started", "driver", rep.Driver, "skip_bronze", opts.SkipBronze)

	err = r.execute(ctx, rep, opts)
	rep.FinishedAt = time.Now().UTC()
	r.metrics.ObserveRun(rep.FinishedAt, err)

	if err != nil {
		log.Error("run failed",
			"error", err,
			"retriable", errors.IsRetriable(err),
			"duration", rep.FinishedAt.Sub(rep.StartedAt),
		)
	} else {
		log.Info("run finished",
			"silver_rows", rep.Silver.Rows,
			"duration", rep.FinishedAt.Sub(rep.StartedAt),
		)
	}

	r.publish(ctx, rep, err)
	r.writeTextfile(ctx)
	return rep, err
}

func (r *Runner) execute(ctx context.Context, rep *Report, opts RunOptions) error {
	err := r.stage(ctx, rep.RunID, StageSchema, func(ctx context.Context) error {
		return errors.NewStageError(StageSchema, "", r.store.EnsureSchema(ctx, schema.All()...))
	})
	if err != nil {
		return err
	}

	if !opts.SkipBronze {
		err = r.stage(ctx, rep.RunID, StageBronze, func(ctx context.Context) error {
			res, err := bronze.NewLoader(r.store, bronze.Sources{
				Events:       r.cfg.Sources.Events,
				Users:        r.cfg.Sources.Users,
				IPReputation: r.cfg.Sources.IPReputation,
			}).Load(ctx)
			if err != nil {
				return err
			}
			rep.Bronze = &res
			r.metrics.SetTableRows(schema.BronzeEvents.Name, res.Events)
			r.metrics.SetTableRows(schema.BronzeUsers.Name, res.Users)
			r.metrics.SetTableRows(schema.BronzeIPReputation.Name, res.IPReputation)
			return nil
		})
		if err != nil {
			return err
		}
	}

	err = r.stage(ctx, rep.RunID, StageSilver, func(ctx context.Context) error {
		res, err := silver.NewEngine(r.store, silver.Options{
			Workers:       r.cfg.Enrichment.Workers,
			PartitionSize: r.cfg.Enrichment.PartitionSize,
		}).Run(ctx)
		if err != nil {
			return err
		}
		rep.Silver = res
		r.metrics.SetTableRows(schema.SilverEvents.Name, res.Rows)
		r.metrics.AddDegraded(res.Degraded)
		r.metrics.AddJoinMisses(res.Joins.UnmatchedUsers, res.Joins.UnmatchedIPs)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, rep.RunID, StageGold, func(ctx context.Context) error {
		agg := r.cfg.Aggregation
		res, err := gold.NewEngine(r.store, gold.Options{
			Classify:           gold.PrefixClassifier(agg.AuthPrefixes, agg.AdminPrefixes),
			IsBot:              gold.MarkerDetector(agg.BotMarkers),
			PercentileAccuracy: agg.PercentileAccuracy,
		}).Run(ctx)
		if err != nil {
			return err
		}
		rep.Gold = res
		for table, n := range res.Rows {
			r.metrics.SetTableRows(table, n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, rep.RunID, StageFingerprint, func(ctx context.Context) error {
		fps, err := fingerprint.Tables(ctx, r.store, append(schema.Silver(), schema.Gold()...)...)
		if err != nil {
			return errors.NewStageError(StageFingerprint, "", err)
		}
		rep.Fingerprints = fps
		return nil
	})
	if err != nil {
		return err
	}

	if opts.NoExport || !r.cfg.Export.Enabled {
		return nil
	}

	err = r.stage(ctx, rep.RunID, StageExport, func(ctx context.Context) error {
		m, err := r.export(ctx, rep)
		if err != nil {
			return errors.NewStageError(StageExport, "", err)
		}
		rep.Manifest = m
		return nil
	})
	if err != nil {
		return err
	}

	return r.stage(ctx, rep.RunID, StageRetention, func(ctx context.Context) error {
		res := retention.New(r.cfg.RunsDir(), r.cfg.Export.KeepRuns).RunCleanup()
		rep.Retention = &res
		if len(res.Errors) > 0 {
			return errors.NewStageError(StageRetention, "", errors.Join(res.Errors...))
		}
		if len(res.RunsDeleted) > 0 {
			logging.ComponentContext(ctx, "retention").Info("old snapshots removed",
				"deleted", len(res.RunsDeleted), "kept", res.RunsKept, "bytes_freed", res.BytesFreed)
		}
		return nil
	})
}

// export snapshots the committed Silver and Gold tables.
func (r *Runner) export(ctx context.Context, rep *Report) (*export.Manifest, error) {
	events, err := silver.Read(ctx, r.store)
	if err != nil {
		return nil, err
	}
	tables, err := gold.Read(ctx, r.store)
	if err != nil {
		return nil, err
	}
	opts := export.DefaultOptions()
	opts.Compression = export.ParseCompressionType(r.cfg.Export.Compression)

	return export.New(r.cfg.RunsDir(), opts).Export(export.Snapshot{
		RunID:        rep.RunID,
		Driver:       rep.Driver,
		StartedAt:    rep.StartedAt,
		Silver:       events,
		Gold:         tables,
		Fingerprints: rep.Fingerprints,
	})
}

// stage runs fn under the stage's log context, span and timer.
func (r *Runner) stage(ctx context.Context, runID, name string, fn func(context.Context) error) error {
	ctx = logging.ContextWithLayer(ctx, name)
	ctx, span := tracing.StartStage(ctx, name, runID)
	start := time.Now()

	err := fn(ctx)

	r.metrics.ObserveStage(name, time.Since(start), err)
	tracing.End(span, err)
	return err
}

// publish sends the run message. Notification failures never fail a run
// whose tables are already committed.
func (r *Runner) publish(ctx context.Context, rep *Report, runErr error) {
	msg := notify.RunMessage{
		RunID:      rep.RunID,
		Status:     notify.StatusSuccess,
		Driver:     rep.Driver,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Tables:     rep.Fingerprints,
		Rows:       rep.Gold.Rows,
	}
	if runErr != nil {
		msg.Status = notify.StatusFailure
		msg.Error = runErr.Error()
		var se *errors.StageError
		if errors.As(runErr, &se) {
			msg.Layer = se.Layer
		}
	}
	if rep.Manifest != nil {
		msg.Snapshot = export.New(r.cfg.RunsDir(), export.Options{}).RunDir(rep.RunID)
	}

	if err := r.notifier.Notify(ctx, msg); err != nil {
		logging.ComponentContext(ctx, "notify").Warn("run notification failed", "error", err)
	}
}

func (r *Runner) writeTextfile(ctx context.Context) {
	path := r.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := r.metrics.WriteTextfile(path); err != nil {
		logging.ComponentContext(ctx, "metrics").Warn("write metrics textfile failed", "path", path, "error", err)
	}
}
