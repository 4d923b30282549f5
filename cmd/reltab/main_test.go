package main

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestBuildConfigFromFlags(t *testing.T) {
	cfg, err := buildConfig("", "orders.json", "", "sqlite", "file:test.db", "depth", -1, -1, 0, "raw_", false)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}

	if cfg.Source.Path != "orders.json" {
		t.Fatalf("source path = %q", cfg.Source.Path)
	}
	if cfg.Storage.TablePrefix != "raw_" {
		t.Fatalf("table prefix = %q", cfg.Storage.TablePrefix)
	}
	if cfg.Runtime.Workers != 4 {
		t.Fatalf("workers = %d, want default 4", cfg.Runtime.Workers)
	}
	if cfg.Transform.MaxDepth != nil {
		t.Fatalf("max depth should stay unset, got %v", *cfg.Transform.MaxDepth)
	}
}

func TestBuildConfigExplicitDepths(t *testing.T) {
	cfg, err := buildConfig("", "orders.json", "", "sqlite", "x", "depth", 0, 3, 2, "", false)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.Transform.MaxDepth == nil || *cfg.Transform.MaxDepth != 0 {
		t.Fatalf("max depth = %v, want explicit 0", cfg.Transform.MaxDepth)
	}
	if cfg.Transform.MinDictSize == nil || *cfg.Transform.MinDictSize != 3 {
		t.Fatalf("min dict size = %v, want 3", cfg.Transform.MinDictSize)
	}
}

func TestBuildConfigRequiresInput(t *testing.T) {
	if _, err := buildConfig("", "", "", "sqlite", "x", "depth", -1, -1, 0, "", false); err == nil {
		t.Fatal("expected an error when both -config and -input are missing")
	}
}

func TestBuildConfigDryRunNeedsNoDSN(t *testing.T) {
	cfg, err := buildConfig("", "orders.json", "", "", "", "depth", -1, -1, 0, "", true)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if !cfg.Runtime.DryRun {
		t.Fatal("dry run flag lost")
	}
}

type closeCounter struct {
	closed int
	err    error
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.err
}

func TestMetricsCleanupClosesBackend(t *testing.T) {
	c := &closeCounter{}
	cleanup := metricsCleanup(c, zap.NewNop().Sugar())

	cleanup()
	if c.closed != 1 {
		t.Fatalf("backend closed %d times, want 1", c.closed)
	}
}

func TestMetricsCleanupSwallowsCloseError(t *testing.T) {
	c := &closeCounter{err: errors.New("submit failed")}
	cleanup := metricsCleanup(c, zap.NewNop().Sugar())

	// Must log and return; a flush failure at shutdown is not fatal.
	cleanup()
	if c.closed != 1 {
		t.Fatalf("backend closed %d times, want 1", c.closed)
	}
}

func TestSetupMetricsDisabledReturnsSafeCleanup(t *testing.T) {
	t.Setenv("RELTAB_METRICS", "")

	for _, name := range []string{"none", "", "bogus"} {
		cleanup := setupMetrics(name, zap.NewNop().Sugar())
		if cleanup == nil {
			t.Fatalf("setupMetrics(%q) returned nil cleanup", name)
		}
		cleanup()
	}
}
