// Package gold computes the analytical aggregate tables from Silver.
//
// Every family is a pure function over projected facts. The engine reads
// Silver once, computes the families concurrently and publishes all Gold
// tables with a single atomic Replace.
package gold

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/silver"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Options configures aggregation.
type Options struct {
	// Classify maps URL paths to categories. nil puts every path in
	// CategoryOther.
	Classify Classifier

	// IsBot flags automated user agents. nil flags nothing.
	IsBot BotDetector

	// PercentileAccuracy is the DDSketch relative accuracy for p95 latency.
	PercentileAccuracy float64
}

// Tables holds one computed Gold set.
type Tables struct {
	DailyTraffic    []DailyTraffic
	UserActivity    []UserActivity
	IPThreat        []IPThreat
	SecuritySummary []SecuritySummary
	HourlyPatterns  []HourlyPattern
}

// Batches converts the set into warehouse batches in schema.Gold order.
func (t *Tables) Batches() []warehouse.Batch {
	return []warehouse.Batch{
		warehouse.NewBatch(schema.GoldDailyTraffic, t.DailyTraffic),
		warehouse.NewBatch(schema.GoldUserActivity, t.UserActivity),
		warehouse.NewBatch(schema.GoldIPThreat, t.IPThreat),
		warehouse.NewBatch(schema.GoldSecuritySummary, t.SecuritySummary),
		warehouse.NewBatch(schema.GoldHourlyPatterns, t.HourlyPatterns),
	}
}

// Counts returns the row count per Gold table name.
func (t *Tables) Counts() map[string]int {
	return map[string]int{
		schema.GoldDailyTraffic.Name:    len(t.DailyTraffic),
		schema.GoldUserActivity.Name:    len(t.UserActivity),
		schema.GoldIPThreat.Name:        len(t.IPThreat),
		schema.GoldSecuritySummary.Name: len(t.SecuritySummary),
		schema.GoldHourlyPatterns.Name:  len(t.HourlyPatterns),
	}
}

// Result summarises one Gold recompute.
type Result struct {
	SilverRows int
	Rows       map[string]int
	Duration   time.Duration
}

// Engine recomputes every Gold table from Silver.
type Engine struct {
	store warehouse.Store
	opts  Options
}

// NewEngine creates an Engine.
func NewEngine(store warehouse.Store, opts Options) *Engine {
	return &Engine{store: store, opts: opts}
}

// Run reads Silver, computes all families and replaces Gold atomically. A
// missing Silver column aborts before any Gold table is touched.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	log := logging.ComponentContext(ctx, "gold")

	events, err := silver.Read(ctx, e.store)
	if err != nil {
		return Result{}, errors.NewStageError(schema.LayerGold, schema.SilverEvents.Name, err)
	}

	tables, err := Compute(ctx, events, e.opts)
	if err != nil {
		return Result{}, errors.NewStageError(schema.LayerGold, "", err)
	}

	if err := e.store.Replace(ctx, tables.Batches()...); err != nil {
		return Result{}, errors.NewStageError(schema.LayerGold, "", err)
	}

	res := Result{
		SilverRows: len(events),
		Rows:       tables.Counts(),
		Duration:   time.Since(start),
	}
	log.Info("gold recomputed",
		"silver_rows", res.SilverRows,
		"daily_traffic", len(tables.DailyTraffic),
		"user_activity", len(tables.UserActivity),
		"ip_threat", len(tables.IPThreat),
		"security_summary", len(tables.SecuritySummary),
		"hourly_patterns", len(tables.HourlyPatterns),
		"duration", res.Duration,
	)
	return res, nil
}

// Compute projects events and runs every family concurrently. An empty
// input yields empty tables.
func Compute(ctx context.Context, events []silver.Event, opts Options) (*Tables, error) {
	if opts.Classify == nil {
		opts.Classify = func(string) Category { return CategoryOther }
	}
	if opts.IsBot == nil {
		opts.IsBot = func(string) bool { return false }
	}

	facts := Project(events, opts.Classify, opts.IsBot)
	t := &Tables{}

	var g errgroup.Group
	g.Go(func() error {
		rows, err := ComputeDailyTraffic(facts, opts.PercentileAccuracy)
		if err != nil {
			return errors.Wrap(err, schema.GoldDailyTraffic.Name)
		}
		t.DailyTraffic = rows
		return nil
	})
	g.Go(func() error {
		t.UserActivity = ComputeUserActivity(facts)
		return nil
	})
	g.Go(func() error {
		t.IPThreat = ComputeIPThreat(facts)
		return nil
	})
	g.Go(func() error {
		t.SecuritySummary = ComputeSecuritySummary(facts)
		return nil
	})
	g.Go(func() error {
		t.HourlyPatterns = ComputeHourlyPatterns(facts)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
