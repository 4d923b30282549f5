package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"reltab/internal/flatten"
)

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Driver must be non-empty and must match a registered backend.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Driver string
	DSN    string
}

// Repository is a backend-agnostic sink for derived tables.
//
// IMPORTANT: This interface is intentionally minimal. Each backend
// implements the semantics in its own idiomatic way (Postgres batch
// inserts, MSSQL parameter-limit chunking, etc).
type Repository interface {
	// EnsureTables creates the destination tables if they do not exist.
	// Calling it repeatedly with the same definitions is a no-op.
	EnsureTables(ctx context.Context, tables []TableDef) error

	// InsertRows appends rows to one table and reports how many were
	// written. Rows missing a column bind NULL for it.
	InsertRows(ctx context.Context, table TableDef, rows []flatten.Row) (int64, error)

	// Close releases backend resources. Call once at shutdown.
	Close() error
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a driver name (e.g.
// "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering
// the same driver twice panics to fail fast on ambiguous selection.
//
// Panics:
//   - If driver is empty.
//   - If f is nil.
//   - If driver is already registered.
func Register(driver string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("storage: Register called with empty driver")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("storage: factory already registered for driver=%q", driver))
	}

	factories[driver] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Driver is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("storage: missing driver")
	}

	mu.RLock()
	f := factories[cfg.Driver]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage driver=%s", cfg.Driver)
	}
	return f(ctx, cfg)
}

// Drivers returns the registered driver names, for error messages and CLI
// help output.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
