// Command reltab flattens a nested document into relational tables and
// loads them into a SQL backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reltab/internal/metrics"
	"reltab/internal/metrics/datadog"
	"reltab/internal/pipeline"

	// Register all storage backends with the factory; the config selects
	// which one is used.
	_ "reltab/internal/storage/all"
)

func main() {
	var (
		cfgPath     string
		input       string
		format      string
		driver      string
		dsn         string
		strategy    string
		maxDepth    int
		minDictSize int
		workers     int
		tablePrefix string
		dryRun      bool
		metricsFlag string
	)

	flag.StringVar(&cfgPath, "config", "", "pipeline config JSON path (overrides the other flags)")
	flag.StringVar(&input, "input", "", "input document path")
	flag.StringVar(&format, "format", "", "input format: json, yaml, csv, html (default: by extension)")
	flag.StringVar(&driver, "driver", "sqlite", "storage driver: sqlite, postgres, mysql, mssql")
	flag.StringVar(&dsn, "dsn", "", "storage DSN")
	flag.StringVar(&strategy, "strategy", "depth", "flatten strategy: depth or adaptive")
	flag.IntVar(&maxDepth, "max-depth", -1, "max promotion depth (default: engine default)")
	flag.IntVar(&minDictSize, "min-dict-size", -1, "min map size for promotion (default: engine default)")
	flag.IntVar(&workers, "workers", 0, "insert worker pool size")
	flag.StringVar(&tablePrefix, "table-prefix", "", "prefix for derived table names")
	flag.BoolVar(&dryRun, "dry-run", false, "print derived table definitions instead of writing")
	flag.StringVar(&metricsFlag, "metrics", "", "metrics backend: datadog or none (default: RELTAB_METRICS env, then none)")
	verbose := flag.Bool("v", false, "enable debug logs")

	flag.Parse()

	cfg, err := buildConfig(cfgPath, input, format, driver, dsn, strategy, maxDepth, minDictSize, workers, tablePrefix, dryRun)
	if err != nil {
		fatalf("%v", err)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	stopMetrics := setupMetrics(metricsFlag, sugar)
	defer stopMetrics()

	ctx := context.Background()
	start := time.Now()

	runner := &pipeline.Runner{
		Config: cfg,
		Logger: printfAdapter{sugar},
	}
	summary, err := runner.Run(ctx)
	if err != nil {
		sugar.Errorf("run failed: %v", err)
		stopMetrics()
		_ = logger.Sync()
		os.Exit(1)
	}

	if *verbose {
		sugar.Infof("completed run=%s in %s", summary.RunID, time.Since(start).Truncate(time.Millisecond))
	}
}

// buildConfig assembles a pipeline config from the config file or, when no
// file is given, from the direct flags.
func buildConfig(
	cfgPath, input, format, driver, dsn, strategy string,
	maxDepth, minDictSize, workers int,
	tablePrefix string,
	dryRun bool,
) (pipeline.Config, error) {
	if cfgPath != "" {
		return pipeline.LoadConfig(cfgPath)
	}

	if input == "" {
		return pipeline.Config{}, fmt.Errorf("either -config or -input is required")
	}

	cfg := pipeline.Config{
		Source: pipeline.Source{Path: input, Format: format},
		Transform: pipeline.Transform{
			Strategy: strategy,
		},
		Storage: pipeline.Storage{
			Driver:      driver,
			DSN:         dsn,
			TablePrefix: tablePrefix,
		},
		Runtime: pipeline.Runtime{
			Workers: workers,
			DryRun:  dryRun,
		},
	}
	if maxDepth >= 0 {
		cfg.Transform.MaxDepth = &maxDepth
	}
	if minDictSize >= 0 {
		cfg.Transform.MinDictSize = &minDictSize
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return cfg, nil
}

// setupMetrics decides the metrics backend: flag, then RELTAB_METRICS env,
// then disabled. The returned cleanup must run before the process exits;
// for the Datadog backend it stops the flush loop and submits whatever is
// still buffered. A one-shot run finishes well under the flush interval,
// so a skipped cleanup loses the whole run's metrics.
func setupMetrics(flagValue string, sugar *zap.SugaredLogger) func() {
	name := flagValue
	if name == "" {
		name = os.Getenv("RELTAB_METRICS")
	}

	switch name {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "reltab",
			Tags:    extraTags,
		})
		if err != nil {
			sugar.Warnf("metrics: failed to init datadog backend: %v; metrics disabled", err)
			return func() {}
		}
		sugar.Infof("metrics: backend=datadog tags=%v", extraTags)
		metrics.SetBackend(b)
		return metricsCleanup(b, sugar)

	case "", "none":
		// metrics disabled; nop backend remains

	default:
		sugar.Warnf("metrics: unknown backend %q; metrics disabled", name)
	}
	return func() {}
}

// metricsCleanup wraps a backend's Close for shutdown: the final flush may
// fail, and a flush failure must not change the process exit path.
func metricsCleanup(b interface{ Close() error }, sugar *zap.SugaredLogger) func() {
	return func() {
		if err := b.Close(); err != nil {
			sugar.Warnf("metrics: close/flush error: %v", err)
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// printfAdapter exposes a SugaredLogger through the pipeline's Printf seam.
type printfAdapter struct {
	sugar *zap.SugaredLogger
}

func (a printfAdapter) Printf(format string, v ...any) {
	a.sugar.Infof(format, v...)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
