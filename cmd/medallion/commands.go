package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/xtxerr/medallion/config"
	"github.com/xtxerr/medallion/internal/api"
	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/metrics"
	"github.com/xtxerr/medallion/internal/notify"
	"github.com/xtxerr/medallion/internal/pipeline"
	pconfig "github.com/xtxerr/medallion/internal/pipeline/config"
	"github.com/xtxerr/medallion/internal/query"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/shell"
	"github.com/xtxerr/medallion/internal/warehouse"
	"github.com/xtxerr/medallion/internal/watch"
)

type app struct {
	cfg   *pconfig.Config
	store warehouse.Store
	out   io.Writer
}

func (a *app) initSchema(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx, schema.All()...); err != nil {
		return err
	}
	logging.Component("main").Info("schema ready", "driver", a.store.Driver(), "tables", len(schema.All()))
	return nil
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	skipBronze := fs.Bool("skip-bronze", false, "recompute from the current Bronze tables")
	noExport := fs.Bool("no-export", false, "skip the Parquet snapshot")
	watchMode := fs.Bool("watch", false, "rerun when source files change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	if a.cfg.Notify.Enabled {
		notifier = notify.NewKafka(notify.Config{
			Brokers: a.cfg.Notify.Brokers,
			Topic:   a.cfg.Notify.Topic,
			Timeout: a.cfg.Notify.Timeout,
		})
	}
	defer notifier.Close()

	runner := pipeline.NewRunner(a.store, a.cfg,
		pipeline.WithMetrics(metrics.New(false)),
		pipeline.WithNotifier(notifier),
	)
	opts := pipeline.RunOptions{SkipBronze: *skipBronze, NoExport: *noExport}

	rep, err := runner.Run(ctx, opts)
	if err != nil && !*watchMode {
		return err
	}
	if err == nil {
		fmt.Fprintf(a.out, "run %s: %d silver rows", rep.RunID, rep.Silver.Rows)
		if rep.Manifest != nil {
			fmt.Fprintf(a.out, ", snapshot %s", rep.RunID)
		}
		fmt.Fprintln(a.out)
	}
	if !*watchMode {
		return nil
	}

	// Source changes always reload Bronze.
	opts.SkipBronze = false
	w := watch.New(
		[]string{a.cfg.Sources.Events, a.cfg.Sources.Users, a.cfg.Sources.IPReputation},
		a.cfg.Watch.Debounce,
		func(ctx context.Context) error {
			_, err := runner.Run(ctx, opts)
			return err
		},
	)
	return w.Run(ctx)
}

func (a *app) insights(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("insights", flag.ContinueOnError)
	top := fs.Int("top", query.DefaultTop, "number of IPs and users to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := query.Insights(ctx, a.store, *top)
	if err != nil {
		return err
	}
	r.Render(a.out)
	return nil
}

func (a *app) verify(ctx context.Context) error {
	counts, err := query.Verify(ctx, a.store)
	if err != nil {
		return err
	}
	query.RenderCounts(a.out, counts)
	for _, c := range counts {
		if !c.Exists {
			return fmt.Errorf("table %s is missing", c.Table)
		}
	}
	return nil
}

func (a *app) shell(ctx context.Context) error {
	return shell.New(a.store, a.out).Run(ctx, os.Stdin)
}

func (a *app) serve(ctx context.Context) error {
	return api.New(api.Config{
		Listen:          a.cfg.Serve.Listen,
		Store:           a.store,
		Registry:        metrics.New(true).Registry(),
		RunsDir:         a.cfg.RunsDir(),
		MaxRows:         a.cfg.Serve.MaxRows,
		CORSOrigins:     a.cfg.Serve.CORSOrigins,
		ShutdownTimeout: config.DefaultShutdownTimeout,
	}).Run(ctx)
}
