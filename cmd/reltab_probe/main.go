// Command reltab_probe inspects a document without writing anywhere: it
// flattens the input and prints the derived table definitions and row
// counts as JSON. Useful for checking what a run would produce before
// pointing it at a real database.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"reltab/internal/document"
	"reltab/internal/flatten"
	"reltab/internal/storage"
)

func main() {
	var (
		flagInput       = flag.String("input", "", "input document path (CSV, JSON, YAML, or HTML)")
		flagFormat      = flag.String("format", "", "input format override; default detects from extension")
		flagStrategy    = flag.String("strategy", "depth", "flatten strategy: depth or adaptive")
		flagMaxDepth    = flag.Int("max-depth", -1, "max promotion depth (default: engine default)")
		flagMinDictSize = flag.Int("min-dict-size", -1, "min map size for promotion (default: engine default)")
		flagPretty      = flag.Bool("pretty", true, "pretty-print JSON output")
	)
	flag.Parse()

	if strings.TrimSpace(*flagInput) == "" {
		fmt.Fprintln(os.Stderr, "missing -input")
		flag.Usage()
		os.Exit(2)
	}

	opts := flatten.DefaultOptions()
	opts.Strategy = flatten.Strategy(*flagStrategy)
	if *flagMaxDepth >= 0 {
		opts.MaxDepth = *flagMaxDepth
	}
	if *flagMinDictSize >= 0 {
		opts.MinDictSize = *flagMinDictSize
	}

	var (
		doc any
		err error
	)
	if *flagFormat != "" {
		doc, err = document.LoadAs(*flagInput, document.Format(*flagFormat))
	} else {
		doc, err = document.Load(*flagInput)
	}
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	tables, err := flatten.Transform(doc, opts)
	if err != nil {
		log.Fatalf("transform: %v", err)
	}

	out := buildReport(tables)

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

type columnReport struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type tableReport struct {
	Name    string         `json:"name"`
	Rows    int            `json:"rows"`
	Columns []columnReport `json:"columns"`
}

// buildReport derives definitions the same way the pipeline does and pairs
// them with per-table row counts.
func buildReport(tables []flatten.Table) []tableReport {
	defs := storage.DeriveTableDefs(tables)

	rowCount := map[string]int{}
	for _, t := range tables {
		rowCount[t.Name] += len(t.Rows)
	}

	out := make([]tableReport, 0, len(defs))
	for _, d := range defs {
		tr := tableReport{Name: d.Name, Rows: rowCount[d.Name]}
		for _, c := range d.Columns {
			tr.Columns = append(tr.Columns, columnReport{Name: c.Name, Type: string(c.Type)})
		}
		out = append(out, tr)
	}
	return out
}
