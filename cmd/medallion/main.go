// medallion runs the Bronze, Silver and Gold security telemetry pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/medallion/internal/logging"
	"github.com/xtxerr/medallion/internal/pipeline"
	"github.com/xtxerr/medallion/internal/pipeline/config"
	"github.com/xtxerr/medallion/internal/tracing"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `usage: medallion [-config path] <command> [flags]

commands:
  init       create every Bronze, Silver and Gold table
  run        load Bronze, recompute Silver and Gold, export a snapshot
             flags: -skip-bronze -no-export -watch
  insights   print the Gold overview
  verify     print row counts of every table
  shell      SQL console (reads statements from stdin when not a terminal)
  serve      read-only HTTP API over Gold and snapshots
  version    print the version
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("medallion", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cfgPath := fs.String("config", "", "config file path")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Println("medallion", Version)
		return 0
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		return 1
	}
	// stdout carries command output.
	logging.InitWriter(os.Stderr, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format == "json")
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		log.Error("tracing setup failed", "error", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("create data dir failed", "dir", cfg.DataDir, "error", err)
		return 1
	}
	store, err := pipeline.OpenStore(cfg)
	if err != nil {
		log.Error("open warehouse failed", "driver", cfg.Warehouse.Driver, "error", err)
		return 1
	}
	defer store.Close()

	app := &app{cfg: cfg, store: store, out: os.Stdout}
	var cmdErr error
	switch cmd {
	case "init":
		cmdErr = app.initSchema(ctx)
	case "run":
		cmdErr = app.run(ctx, cmdArgs)
	case "insights":
		cmdErr = app.insights(ctx, cmdArgs)
	case "verify":
		cmdErr = app.verify(ctx)
	case "shell":
		cmdErr = app.shell(ctx)
	case "serve":
		cmdErr = app.serve(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	if cmdErr != nil {
		log.Error(cmd+" failed", "error", cmdErr)
		return 1
	}
	return 0
}
