// Package pipeline drives one end-to-end run: load, verify the main table,
// then preview every produced table.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"tfletl/internal/config"
	"tfletl/internal/logging"
	"tfletl/internal/metrics"
	"tfletl/internal/orchestrator"
	"tfletl/internal/warehouse"
)

// ErrMainTableMissing aborts a run whose main table is absent after the load.
var ErrMainTableMissing = errors.New("main table missing after load")

// State is the terminal state of a run.
type State string

const (
	Completed State = "completed"
	Aborted   State = "aborted"
)

// Runner performs the load; *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) (*orchestrator.Report, error)
}

// Result describes a finished run.
type Result struct {
	State  State
	Report *orchestrator.Report

	// PartitionErr holds partition failures of a completed run.
	PartitionErr error

	// Previewed and Missing list the tables that were (or could not be)
	// read back.
	Previewed []string
	Missing   []string
}

// Driver sequences a run.
type Driver struct {
	cfg config.Pipeline
	run Runner
	gw  *warehouse.Gateway
	log *slog.Logger
}

// NewDriver returns a Driver.
func NewDriver(cfg config.Pipeline, run Runner, gw *warehouse.Gateway, log *slog.Logger) *Driver {
	return &Driver{cfg: cfg, run: run, gw: gw, log: logging.OrDiscard(log).With("component", "pipeline")}
}

// Run loads, verifies and previews. It returns an error only when the run
// aborts: the source or provisioning failed, or the main table is missing.
// Partition failures leave the run completed and are reported in Result.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	d.log.Info("run started", "job", d.cfg.Job, "warehouse", d.cfg.Warehouse.Kind)

	rep, err := d.run.Run(ctx)
	if rep == nil {
		d.log.Error("run aborted", "err", err)
		return Result{State: Aborted}, err
	}
	res := Result{Report: rep, PartitionErr: err}
	if err != nil {
		d.log.Error("partition loads failed", "err", err)
	}

	main := d.cfg.Warehouse.Table
	ok, err := d.gw.TableExists(ctx, main)
	if err != nil {
		res.State = Aborted
		d.log.Error("run aborted, cannot verify main table", "table", main, "err", err)
		return res, err
	}
	if !ok {
		res.State = Aborted
		d.log.Error("run aborted, main table missing", "table", main)
		return res, ErrMainTableMissing
	}

	done := metrics.TimeStep(d.cfg.Job, "preview")
	tables := []string{main}
	for _, k := range rep.Keys() {
		tables = append(tables, d.cfg.PartitionTable(k))
	}
	previewed, missing := d.Preview(ctx, tables...)
	done(nil)
	res.Previewed, res.Missing = previewed, missing

	res.State = Completed
	d.log.Info("run completed",
		"rows", rep.Cleaned, "main_loaded", rep.MainLoaded,
		"partitions", len(rep.Partitions), "missing", len(missing))
	return res, nil
}

// Preview reads back each table. Missing tables and read errors are logged
// and collected in missing.
func (d *Driver) Preview(ctx context.Context, tables ...string) (previewed, missing []string) {
	for _, t := range tables {
		_, found, err := d.gw.PreviewTable(ctx, t)
		if err != nil {
			d.log.Error("preview failed", "table", t, "err", err)
			missing = append(missing, t)
			continue
		}
		if !found {
			missing = append(missing, t)
			continue
		}
		previewed = append(previewed, t)
	}
	return previewed, missing
}
