package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"reltab/internal/document"
	"reltab/internal/flatten"
)

// Config describes one pipeline run: where the document comes from, how it
// is flattened, and where the derived tables go.
type Config struct {
	Source    Source    `json:"source"`
	Transform Transform `json:"transform"`
	Storage   Storage   `json:"storage"`
	Runtime   Runtime   `json:"runtime"`
}

type Source struct {
	Path string `json:"path"`

	// Format overrides extension-based detection. One of "json", "yaml",
	// "csv", "html".
	Format string `json:"format,omitempty"`
}

type Transform struct {
	Strategy string `json:"strategy,omitempty"`

	// Pointers distinguish "absent" from an explicit zero.
	MaxDepth    *int `json:"max_depth,omitempty"`
	MinDictSize *int `json:"min_dict_size,omitempty"`
}

type Storage struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`

	// TablePrefix is prepended to every derived table name.
	TablePrefix string `json:"table_prefix,omitempty"`
}

// Runtime controls pipeline execution behavior.
type Runtime struct {
	// Workers is the insert worker pool size. Defaults to 4.
	Workers int `json:"workers,omitempty"`

	// DryRun derives and prints table definitions without touching the
	// database.
	DryRun bool `json:"dry_run,omitempty"`
}

// LoadConfig reads and validates a JSON config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pipeline: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("pipeline: parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Transform.Strategy == "" {
		c.Transform.Strategy = string(flatten.StrategyDepth)
	}
	if c.Runtime.Workers <= 0 {
		c.Runtime.Workers = 4
	}
}

// Validate checks everything that can be checked without I/O.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("pipeline: source.path is required")
	}
	if c.Source.Format != "" {
		switch document.Format(c.Source.Format) {
		case document.FormatJSON, document.FormatYAML, document.FormatCSV, document.FormatHTML:
		default:
			return fmt.Errorf("pipeline: unknown source.format %q", c.Source.Format)
		}
	}
	if !c.Runtime.DryRun {
		if c.Storage.Driver == "" {
			return fmt.Errorf("pipeline: storage.driver is required")
		}
		if c.Storage.DSN == "" {
			return fmt.Errorf("pipeline: storage.dsn is required")
		}
	}
	if _, err := c.FlattenOptions(); err != nil {
		return err
	}
	return nil
}

// FlattenOptions builds the engine options: defaults first, then explicit
// overrides.
func (c *Config) FlattenOptions() (flatten.Options, error) {
	opts := flatten.DefaultOptions()
	if c.Transform.Strategy != "" {
		opts.Strategy = flatten.Strategy(c.Transform.Strategy)
	}
	if c.Transform.MaxDepth != nil {
		opts.MaxDepth = *c.Transform.MaxDepth
	}
	if c.Transform.MinDictSize != nil {
		opts.MinDictSize = *c.Transform.MinDictSize
	}

	// Surface bad options at config time rather than mid-run.
	if err := opts.Validate(); err != nil {
		return flatten.Options{}, err
	}
	return opts, nil
}
