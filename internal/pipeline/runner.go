// Package pipeline wires the document loaders, the flatten engine, and the
// storage backends into one run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reltab/internal/document"
	"reltab/internal/flatten"
	"reltab/internal/metrics"
	"reltab/internal/storage"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger and zap's SugaredLogger (via an adapter) satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes one configured pipeline run.
type Runner struct {
	Config Config
	Logger Logger

	// Out receives dry-run output. Defaults to os.Stdout.
	Out io.Writer

	// Seams for tests: openRepo avoids real database connections,
	// loadDocument avoids file I/O. When nil, the production
	// implementations are used.
	openRepo     func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	loadDocument func(src Source) (any, error)
}

// Summary reports what one run produced.
type Summary struct {
	RunID  string             `json:"run_id"`
	Tables []TableSummary     `json:"tables"`
	Defs   []storage.TableDef `json:"-"`
}

// TableSummary is the per-table outcome, sorted by table name.
type TableSummary struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Run loads the source document, flattens it, and writes the derived
// tables. In dry-run mode it prints the derived definitions instead.
//
// Any insert worker error cancels the run; the first error wins.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	logf := r.logger()
	runID := uuid.NewString()
	logf("run=%s source=%s driver=%s", runID, r.Config.Source.Path, r.Config.Storage.Driver)

	opts, err := r.Config.FlattenOptions()
	if err != nil {
		return nil, err
	}

	loadStart := time.Now()
	doc, err := r.load(r.Config.Source)
	if err != nil {
		return nil, err
	}
	logf("stage=load ok duration=%s", durMS(loadStart))
	metrics.IncCounter("reltab_documents_total", 1, nil)
	metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(loadStart).Seconds(), metrics.Labels{"stage": "load", "status": "ok"})

	transformStart := time.Now()
	tables, err := flatten.Transform(doc, opts)
	if err != nil {
		metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(transformStart).Seconds(), metrics.Labels{"stage": "transform", "status": "error"})
		return nil, fmt.Errorf("pipeline: transform: %w", err)
	}
	logf("stage=transform ok duration=%s tables=%d", durMS(transformStart), len(tables))
	metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(transformStart).Seconds(), metrics.Labels{"stage": "transform", "status": "ok"})

	defs := storage.DeriveTableDefs(tables)
	if prefix := r.Config.Storage.TablePrefix; prefix != "" {
		for i := range defs {
			defs[i].Name = prefix + defs[i].Name
		}
		for i := range tables {
			tables[i].Name = prefix + tables[i].Name
		}
	}
	metrics.IncCounter("reltab_tables_total", float64(len(defs)), nil)

	summary := &Summary{RunID: runID, Defs: defs}

	if r.Config.Runtime.DryRun {
		if err := r.printDryRun(defs, tables); err != nil {
			return nil, err
		}
		summary.Tables = dryRunSummaries(defs, tables)
		return summary, nil
	}

	repo, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open storage: %w", err)
	}
	defer func() { _ = repo.Close() }()

	ddlStart := time.Now()
	if err := repo.EnsureTables(ctx, defs); err != nil {
		metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(ddlStart).Seconds(), metrics.Labels{"stage": "ddl", "status": "error"})
		return nil, fmt.Errorf("pipeline: ensure tables: %w", err)
	}
	logf("stage=ddl ok duration=%s", durMS(ddlStart))
	metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(ddlStart).Seconds(), metrics.Labels{"stage": "ddl", "status": "ok"})

	insertStart := time.Now()
	counts, err := r.insertAll(ctx, repo, defs, tables)
	if err != nil {
		metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(insertStart).Seconds(), metrics.Labels{"stage": "insert", "status": "error"})
		return nil, err
	}
	logf("stage=insert ok duration=%s", durMS(insertStart))
	metrics.ObserveHistogram("reltab_stage_duration_seconds", time.Since(insertStart).Seconds(), metrics.Labels{"stage": "insert", "status": "ok"})

	summary.Tables = counts
	for _, ts := range counts {
		logf("table=%s rows=%d", ts.Name, ts.Rows)
	}
	return summary, nil
}

// insertAll writes every flattened table through a bounded worker pool.
// Rows within a table keep their order because one table is always one job;
// across tables the pool is unordered but the returned summary is sorted.
func (r *Runner) insertAll(ctx context.Context, repo storage.Repository, defs []storage.TableDef, tables []flatten.Table) ([]TableSummary, error) {
	defByName := make(map[string]storage.TableDef, len(defs))
	for _, d := range defs {
		defByName[d.Name] = d
	}

	workers := r.Config.Runtime.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(tables) && len(tables) > 0 {
		workers = len(tables)
	}

	// Cancellation model: any worker error cancels the derived context
	// with a cause; the first error wins.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	errCh := make(chan error, 1)
	setErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
			cancel(err)
		default:
		}
	}

	jobCh := make(chan flatten.Table, workers*2)

	var mu sync.Mutex
	written := map[string]int64{}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for t := range jobCh {
				select {
				case <-ctx.Done():
					continue
				default:
				}

				def, ok := defByName[t.Name]
				if !ok {
					setErr(fmt.Errorf("pipeline: no definition for table %s", t.Name))
					continue
				}

				n, err := repo.InsertRows(ctx, def, t.Rows)
				mu.Lock()
				written[t.Name] += n
				mu.Unlock()
				if err != nil {
					setErr(fmt.Errorf("pipeline: insert %s: %w", t.Name, err))
					continue
				}
				metrics.IncCounter("reltab_rows_total", float64(n), metrics.Labels{"table": t.Name})
			}
		}()
	}

	for _, t := range tables {
		select {
		case jobCh <- t:
		case <-ctx.Done():
		}
	}
	close(jobCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	out := make([]TableSummary, 0, len(written))
	for name, n := range written {
		out = append(out, TableSummary{Name: name, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// printDryRun renders the derived definitions and per-table row counts as
// pretty JSON.
func (r *Runner) printDryRun(defs []storage.TableDef, tables []flatten.Table) error {
	type column struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type tableOut struct {
		Name    string   `json:"name"`
		Rows    int      `json:"rows"`
		Columns []column `json:"columns"`
	}

	rowCount := map[string]int{}
	for _, t := range tables {
		rowCount[t.Name] += len(t.Rows)
	}

	out := make([]tableOut, 0, len(defs))
	for _, d := range defs {
		to := tableOut{Name: d.Name, Rows: rowCount[d.Name]}
		for _, c := range d.Columns {
			to.Columns = append(to.Columns, column{Name: c.Name, Type: string(c.Type)})
		}
		out = append(out, to)
	}

	w := r.Out
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func dryRunSummaries(defs []storage.TableDef, tables []flatten.Table) []TableSummary {
	rowCount := map[string]int64{}
	for _, t := range tables {
		rowCount[t.Name] += int64(len(t.Rows))
	}
	out := make([]TableSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, TableSummary{Name: d.Name, Rows: rowCount[d.Name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Runner) open(ctx context.Context) (storage.Repository, error) {
	cfg := storage.Config{Driver: r.Config.Storage.Driver, DSN: r.Config.Storage.DSN}
	if r.openRepo != nil {
		return r.openRepo(ctx, cfg)
	}
	return storage.New(ctx, cfg)
}

func (r *Runner) load(src Source) (any, error) {
	if r.loadDocument != nil {
		return r.loadDocument(src)
	}
	if src.Format != "" {
		return document.LoadAs(src.Path, document.Format(src.Format))
	}
	return document.Load(src.Path)
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(io.Discard, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
