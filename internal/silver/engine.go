package silver

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/medallion/internal/bronze"
	"github.com/xtxerr/medallion/internal/coerce"
	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Options tunes partitioned enrichment.
type Options struct {
	// Workers is the number of concurrent partitions. 0 means NumCPU.
	Workers int

	// PartitionSize is the number of events per partition.
	PartitionSize int
}

// Result summarises one Silver recompute.
type Result struct {
	Rows     int
	Joins    JoinStats
	Degraded *coerce.Stats
	Duration time.Duration
}

// Engine recomputes silver.logs_enriched from Bronze.
type Engine struct {
	store warehouse.Store
	opts  Options
}

// NewEngine creates an Engine.
func NewEngine(store warehouse.Store, opts Options) *Engine {
	return &Engine{store: store, opts: opts}
}

// Run reads Bronze, enriches every event and replaces Silver atomically.
// On error Silver keeps its previous content.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	log := logging.ComponentContext(ctx, "silver")

	snap, err := bronze.Read(ctx, e.store)
	if err != nil {
		return Result{}, errors.NewStageError(schema.LayerSilver, "", err)
	}

	rows, res, err := Transform(ctx, snap, e.opts)
	if err != nil {
		return Result{}, errors.NewStageError(schema.LayerSilver, "", err)
	}

	if err := e.store.Replace(ctx, warehouse.NewBatch(schema.SilverEvents, rows)); err != nil {
		return Result{}, errors.NewStageError(schema.LayerSilver, schema.SilverEvents.Name, err)
	}

	res.Duration = time.Since(start)

	log.Info("silver recomputed",
		"rows", res.Rows,
		"unmatched_users", res.Joins.UnmatchedUsers,
		"unmatched_ips", res.Joins.UnmatchedIPs,
		"duration", res.Duration,
	)
	if n := res.Degraded.Total(); n > 0 {
		log.Warn("values replaced by defaults", append([]any{"total", n}, res.Degraded.LogArgs()...)...)
	}

	return res, nil
}

// Transform enriches every event of snap. The output has exactly one row per
// Bronze event, sorted by (event_ts, event_id) with load order breaking ties.
func Transform(ctx context.Context, snap *bronze.Snapshot, opts Options) ([]Event, Result, error) {
	dims := NewDimensions(snap.Users, snap.IPReputation)
	stats := coerce.NewStats()

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	size := opts.PartitionSize
	if size <= 0 {
		size = len(snap.Events)
	}

	out := make([]Event, len(snap.Events))
	parts := partitions(len(snap.Events), size)
	joins := make([]JoinStats, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := coerce.NewStats()
			for j := p.lo; j < p.hi; j++ {
				out[j] = Enrich(snap.Events[j], dims, local, &joins[i])
			}
			stats.Merge(local)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Result{}, err
	}

	slices.SortStableFunc(out, func(a, b Event) int {
		if c := a.EventTS.Compare(b.EventTS); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})

	res := Result{Rows: len(out), Degraded: stats}
	for _, js := range joins {
		res.Joins.Add(js)
	}
	return out, res, nil
}

type span struct{ lo, hi int }

func partitions(n, size int) []span {
	if n == 0 {
		return nil
	}
	spans := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		spans = append(spans, span{lo, min(lo+size, n)})
	}
	return spans
}

func sortedBySeq[T any](rows []T, seq func(T) uint64) []T {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(seq(a), seq(b))
	})
	return sorted
}

// Read loads silver.logs_enriched after checking its contract.
func Read(ctx context.Context, store warehouse.Store) ([]Event, error) {
	cols, err := store.Columns(ctx, schema.SilverEvents.Name)
	if err != nil {
		return nil, err
	}
	if err := schema.RequireTable(schema.SilverEvents, cols); err != nil {
		return nil, err
	}

	var events []Event
	err = store.Select(ctx, schema.SilverEvents, func(row warehouse.Scanner) error {
		e, err := ScanEvent(row)
		if err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	return events, err
}
