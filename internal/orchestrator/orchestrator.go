// Package orchestrator sequences one load: clean the source, provision the
// dataset and main table, load the full dataset, then fan out one load per
// reporting period into its own table.
//
// The main load commits before any partition task starts. Partition tasks
// are independent: each reads its own rows and writes its own table, so a
// failing period does not stop the others. Their failures are combined and
// returned once every task has finished.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"tfletl/internal/config"
	"tfletl/internal/logging"
	"tfletl/internal/metrics"
	"tfletl/internal/prepare"
	"tfletl/internal/warehouse"
	"tfletl/pkg/records"
)

// Preparer produces the cleaned dataset.
type Preparer interface {
	Prepare(ctx context.Context) (*prepare.Dataset, error)
}

// PartitionResult is the outcome of one partition task.
type PartitionResult struct {
	Key     int64
	Table   string
	Rows    int64
	Skipped bool // no rows for Key; no table was created
	Err     error
}

// Report summarizes a run.
type Report struct {
	MainTable   string
	Cleaned     int
	MainLoaded  int64
	MainLoadErr error // swallowed main-load failure, if any
	Partitions  []PartitionResult
}

// Keys returns the partition keys that were attempted, ascending.
func (r *Report) Keys() []int64 {
	out := make([]int64, len(r.Partitions))
	for i, p := range r.Partitions {
		out[i] = p.Key
	}
	return out
}

// Orchestrator runs the load sequence against one Gateway.
type Orchestrator struct {
	cfg  config.Pipeline
	prep Preparer
	gw   *warehouse.Gateway
	log  *slog.Logger
}

// New returns an Orchestrator.
func New(cfg config.Pipeline, prep Preparer, gw *warehouse.Gateway, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:  cfg,
		prep: prep,
		gw:   gw,
		log:  logging.OrDiscard(log).With("component", "orchestrator"),
	}
}

// Run executes the load. The returned error is non-nil when the source
// cannot be read or provisioning fails (Report is nil then), or when one or
// more partition tasks failed (Report is set and the error is a
// *multierror.Error). A failed main load is logged, recorded in the Report
// and otherwise ignored.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	job := o.cfg.Job
	main := o.cfg.Warehouse.Table

	done := metrics.TimeStep(job, "prepare")
	ds, err := o.prep.Prepare(ctx)
	done(err)
	if err != nil {
		return nil, err
	}

	done = metrics.TimeStep(job, "provision")
	err = o.provision(ctx, main)
	done(err)
	if err != nil {
		return nil, err
	}

	rep := &Report{MainTable: main, Cleaned: ds.Len()}

	done = metrics.TimeStep(job, "load")
	n, err := o.gw.LoadRecords(ctx, ds.Records, main)
	done(err)
	rep.MainLoaded = n
	if err != nil {
		rep.MainLoadErr = err
		o.log.Warn("main load failed, continuing with partitions", "table", main, "err", err)
	}

	done = metrics.TimeStep(job, "partition")
	rep.Partitions, err = o.partition(ctx, ds)
	done(err)
	return rep, err
}

func (o *Orchestrator) provision(ctx context.Context, main string) error {
	if err := o.gw.EnsureDataset(ctx); err != nil {
		return err
	}
	ok, err := o.gw.TableExists(ctx, main)
	if err != nil {
		return err
	}
	if !ok {
		return o.gw.CreatePartitionedTable(ctx, main)
	}
	o.log.Info("main table present", "table", main)
	return nil
}

// keys resolves the partition keys: configured ones (deduplicated, sorted)
// or, when none are configured, every value present in ds.
func (o *Orchestrator) keys(ds *prepare.Dataset) []int64 {
	if len(o.cfg.Partition.Keys) == 0 {
		return ds.Keys(o.cfg.Partition.Column)
	}
	seen := make(map[int64]struct{}, len(o.cfg.Partition.Keys))
	out := make([]int64, 0, len(o.cfg.Partition.Keys))
	for _, k := range o.cfg.Partition.Keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o *Orchestrator) workers() int {
	if o.cfg.Partition.Workers > 0 {
		return o.cfg.Partition.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Orchestrator) partition(ctx context.Context, ds *prepare.Dataset) ([]PartitionResult, error) {
	keys := o.keys(ds)
	results := make([]PartitionResult, len(keys))

	var g errgroup.Group
	g.SetLimit(o.workers())
	for i, key := range keys {
		g.Go(func() error {
			results[i] = o.loadPartition(ctx, ds, key)
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("partition %d: %w", r.Key, r.Err))
		}
	}
	return results, errs.ErrorOrNil()
}

func (o *Orchestrator) loadPartition(ctx context.Context, ds *prepare.Dataset, key int64) PartitionResult {
	table := o.cfg.PartitionTable(key)
	res := PartitionResult{Key: key, Table: table}
	log := o.log.With("key", key, "table", table)

	var (
		rows []records.Record
		err  error
	)
	if o.cfg.Partition.Source == config.PartitionFromMemory {
		rows = ds.Partition(o.cfg.Partition.Column, key)
	} else {
		rows, err = o.gw.QueryPartition(ctx, o.cfg.Warehouse.Table, o.cfg.Partition.Column, key)
		if err != nil {
			log.Error("partition read failed", "err", err)
			res.Err = err
			return res
		}
	}

	if len(rows) == 0 {
		log.Info("no rows for partition, skipping")
		res.Skipped = true
		return res
	}

	res.Rows, res.Err = o.gw.LoadRecords(ctx, rows, table)
	return res
}
