package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

/*
TestValidatePipeline_Cases runs one mutation of the default pipeline per case
and expects the named issue to be reported.
*/
func TestValidatePipeline_Cases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(p *Pipeline)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"empty job", func(p *Pipeline) { p.Job = " " }, SeverityError, "job", "must not be empty"},
		{"empty source", func(p *Pipeline) { p.Source.Path = "" }, SeverityError, "source.path", "must not be empty"},
		{"long delimiter", func(p *Pipeline) { p.Source.Comma = ";;" }, SeverityError, "source.comma", "single character"},
		{"missing layout", func(p *Pipeline) { p.Prepare.DateLayout = "" }, SeverityError, "prepare.date_layout", "date_layout is empty"},
		{"column in two coercions", func(p *Pipeline) {
			p.Prepare.IntColumns = append(p.Prepare.IntColumns, "bus_journeys_m")
		}, SeverityError, "prepare.int_columns[2]", "also listed in prepare.float_columns"},
		{"unknown warehouse", func(p *Pipeline) { p.Warehouse.Kind = "redshift" }, SeverityError, "warehouse.kind", "unsupported"},
		{"bigquery without project", func(p *Pipeline) { p.Warehouse.Project = "" }, SeverityError, "warehouse.project", "project id"},
		{"bigquery without credentials", func(p *Pipeline) { p.Warehouse.Credentials = "" }, SeverityWarning, "warehouse.credentials", "default credentials"},
		{"postgres without dsn", func(p *Pipeline) { p.Warehouse.Kind = "postgres" }, SeverityError, "warehouse.dsn", "requires a DSN"},
		{"sqlite without dsn", func(p *Pipeline) { p.Warehouse.Kind = "sqlite" }, SeverityWarning, "warehouse.dsn", "tfletl.db"},
		{"negative workers", func(p *Pipeline) { p.Partition.Workers = -1 }, SeverityError, "partition.workers", ">= 0"},
		{"bad partition source", func(p *Pipeline) { p.Partition.Source = "cache" }, SeverityError, "partition.source", "cache"},
		{"empty suffix", func(p *Pipeline) { p.Partition.TableSuffix = "" }, SeverityError, "partition.table_suffix", "collide"},
		{"duplicate key", func(p *Pipeline) { p.Partition.Keys = []int64{1, 2, 1} }, SeverityWarning, "partition.keys[2]", "duplicate"},
		{"unknown metrics", func(p *Pipeline) { p.Metrics.Backend = "statsd" }, SeverityWarning, "metrics.backend", "disabled"},
		{"negative preview", func(p *Pipeline) { p.Preview.Limit = -5 }, SeverityError, "preview.limit", ">= 0"},
		{"unknown log format", func(p *Pipeline) { p.Log.Format = "xml" }, SeverityWarning, "log.format", "text"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			p := Default()
			c.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, c.sev, c.path, c.msg) {
				t.Fatalf("expected %s at %s containing %q; got %+v", c.sev, c.path, c.msg, issues)
			}
		})
	}
}

func TestIssueError(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "warehouse.kind", Message: "boom"}
	if got, want := iss.Error(), "error at warehouse.kind: boom"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, iss}) {
		t.Fatalf("HasErrors should see the error issue")
	}
	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatalf("HasErrors should ignore warnings")
	}
}
