// Package config provides configuration models and helpers for the pipeline.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a resolved Pipeline and returns a list of
// issues (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "warehouse.kind",
// "partition.keys[2]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and log lines",
		})
	}
	if strings.TrimSpace(p.Source.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.path",
			Message:  "source path must not be empty",
		})
	}
	if c := []rune(p.Source.Comma); len(c) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.comma",
			Message:  fmt.Sprintf("delimiter must be a single character, got %q", p.Source.Comma),
		})
	}

	issues = append(issues, validatePrepare(p.Prepare)...)
	issues = append(issues, validateWarehouse(p.Warehouse)...)
	issues = append(issues, validatePartition(p.Partition)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	if p.Preview.Limit < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "preview.limit",
			Message:  "preview limit must be >= 0",
		})
	}

	switch strings.ToLower(p.Log.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "log.format",
			Message:  fmt.Sprintf("unknown log format %q; falling back to text", p.Log.Format),
		})
	}

	return issues
}

func validatePrepare(p Prepare) []Issue {
	var issues []Issue

	if len(p.DateColumns) > 0 && strings.TrimSpace(p.DateLayout) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "prepare.date_layout",
			Message:  "date columns are configured but date_layout is empty",
		})
	}

	// A column listed under two coercions would be converted twice.
	seen := map[string]string{}
	check := func(kind string, cols []string) {
		for i, c := range cols {
			path := fmt.Sprintf("prepare.%s[%d]", kind, i)
			if strings.TrimSpace(c) == "" {
				issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: "column name must not be empty"})
				continue
			}
			if prev, ok := seen[c]; ok && prev != kind {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("column %q is also listed in prepare.%s", c, prev),
				})
				continue
			}
			seen[c] = kind
		}
	}
	check("date_columns", p.DateColumns)
	check("float_columns", p.FloatColumns)
	check("int_columns", p.IntColumns)

	return issues
}

func validateWarehouse(w Warehouse) []Issue {
	var issues []Issue

	if strings.TrimSpace(w.Table) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "warehouse.table", Message: "table must not be empty"})
	}
	if strings.TrimSpace(w.Dataset) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "warehouse.dataset", Message: "dataset must not be empty"})
	}

	switch w.Kind {
	case "bigquery":
		if strings.TrimSpace(w.Project) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "warehouse.project",
				Message:  "bigquery requires a project id",
			})
		}
		if strings.TrimSpace(w.Credentials) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "warehouse.credentials",
				Message:  "no credentials file; application default credentials will be used",
			})
		}
	case "postgres":
		if strings.TrimSpace(w.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "warehouse.dsn",
				Message:  "postgres requires a DSN",
			})
		}
	case "sqlite":
		if strings.TrimSpace(w.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "warehouse.dsn",
				Message:  "no DSN; the sqlite backend will use tfletl.db in the working directory",
			})
		}
	case "":
		issues = append(issues, Issue{Severity: SeverityError, Path: "warehouse.kind", Message: "warehouse kind must not be empty"})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "warehouse.kind",
			Message:  fmt.Sprintf("unsupported warehouse kind %q (want bigquery, postgres or sqlite)", w.Kind),
		})
	}
	return issues
}

func validatePartition(p Partition) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Column) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "partition.column", Message: "partition column must not be empty"})
	}
	if p.Workers < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "partition.workers", Message: "workers must be >= 0"})
	}
	switch p.Source {
	case PartitionFromWarehouse, PartitionFromMemory:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "partition.source",
			Message:  fmt.Sprintf("partition source must be %q or %q, got %q", PartitionFromWarehouse, PartitionFromMemory, p.Source),
		})
	}
	if strings.TrimSpace(p.TableSuffix) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "partition.table_suffix",
			Message:  "table suffix must not be empty; per-period tables would collide with the main table",
		})
	}

	seen := map[int64]bool{}
	for i, k := range p.Keys {
		if seen[k] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("partition.keys[%d]", i),
				Message:  fmt.Sprintf("duplicate partition key %d is ignored", k),
			})
		}
		seen[k] = true
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "no pushgateway URL; http://localhost:9091 will be used",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "no DogStatsD address; 127.0.0.1:8125 will be used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend),
		})
	}
	return issues
}
