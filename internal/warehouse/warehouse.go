// Package warehouse is the boundary between the pipeline and the destination
// store. Backends (bigquery, postgres, sqlite) implement the small Backend
// contract and register a factory at init time; the Gateway layers the
// provisioning and load policy on top, so callers stay backend-agnostic.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tfletl/internal/config"
	"tfletl/internal/schema"
	"tfletl/pkg/records"
)

var (
	// ErrNotFound reports a dataset or table that does not exist.
	ErrNotFound = errors.New("warehouse: not found")

	// ErrAlreadyExists reports a create call on an existing dataset or table.
	ErrAlreadyExists = errors.New("warehouse: already exists")
)

// Config addresses one dataset in one warehouse.
type Config struct {
	Kind        string
	Project     string
	Dataset     string
	Location    string
	Credentials string
	DSN         string

	// Endpoint overrides the service endpoint (emulators, tests).
	Endpoint string
}

// ConfigFrom maps the pipeline's warehouse section onto a Config.
func ConfigFrom(w config.Warehouse) Config {
	return Config{
		Kind:        w.Kind,
		Project:     w.Project,
		Dataset:     w.Dataset,
		Location:    w.Location,
		Credentials: w.Credentials,
		DSN:         w.DSN,
	}
}

// Filter selects rows whose Column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Backend is the per-store primitive set. Existence checks return
// (false, nil) for absent objects; creates return ErrAlreadyExists when the
// object is already there. Table names are unqualified; the backend places
// them in its configured dataset.
type Backend interface {
	DatasetExists(ctx context.Context) (bool, error)
	CreateDataset(ctx context.Context) error

	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, tbl schema.Table) error

	// Load appends recs to tbl and returns the number of rows written.
	Load(ctx context.Context, tbl schema.Table, recs []records.Record) (int64, error)

	// Select reads rows of tbl, optionally filtered. limit <= 0 means all.
	Select(ctx context.Context, tbl schema.Table, f *Filter, limit int) ([]records.Record, error)

	Close() error
}

// Factory opens a Backend.
type Factory func(ctx context.Context, cfg Config) (Backend, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// Open returns a Backend of cfg.Kind.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadFailure reports a load that wrote nothing (or an unknown amount) to
// Table.
type LoadFailure struct {
	Table string
	Rows  int
	Err   error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load %d rows into %s: %v", e.Rows, e.Table, e.Err)
}

func (e *LoadFailure) Unwrap() error { return e.Err }
