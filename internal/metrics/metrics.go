// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the ridership pipeline.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, and a pluggable process-wide backend that defaults to a no-op, so
// instrumentation is always safe to call even when no backend is configured.
// Concrete systems live in subpackages (prompush, datadog).
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	StepTotal           = "tfletl_step_total"
	StepDurationSeconds = "tfletl_step_duration_seconds"
	RecordsTotal        = "tfletl_records_total"
	TableRowsTotal      = "tfletl_table_rows_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep records latency and success/failure of one pipeline step
// (prepare, provision, load, partition, preview).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// TimeStep starts a step timer; call the returned func with the step's
// outcome to record it.
//
//	done := metrics.TimeStep(job, "load")
//	err := doLoad()
//	done(err)
func TimeStep(job, step string) func(error) {
	start := time.Now()
	return func(err error) {
		RecordStep(job, step, err, time.Since(start))
	}
}

// RecordRows increments a record-level counter for the given job and kind.
//
// Kinds used by the pipeline:
//   - "read"       rows parsed from the source file
//   - "duplicates" exact duplicates dropped
//   - "cleaned"    rows in the cleaned dataset
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordTableRows counts rows the warehouse reported as written to table.
func RecordTableRows(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(TableRowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}
