// Package prepare turns the raw ridership file into the cleaned dataset the
// loader writes: exact duplicates dropped, column names normalized, dates
// and numbers typed, the legacy label column removed.
package prepare

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"tfletl/internal/config"
	"tfletl/internal/datasource"
	"tfletl/internal/datasource/file"
	"tfletl/internal/logging"
	"tfletl/internal/metrics"
	"tfletl/internal/parser"
	pcsv "tfletl/internal/parser/csv"
	"tfletl/internal/transformer"
	"tfletl/internal/transformer/builtin"
	"tfletl/pkg/records"
)

// SourceReadError reports a source file that is missing or cannot be parsed.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string { return fmt.Sprintf("read source %s: %v", e.Path, e.Err) }
func (e *SourceReadError) Unwrap() error { return e.Err }

// Stats summarizes one preparation.
type Stats struct {
	RowsRead       int
	Duplicates     int
	ColumnsRenamed int
	ColumnsDropped int
}

// Dataset is the cleaned record set. Columns is ordered and unique; every
// record carries exactly those keys.
type Dataset struct {
	Columns []string
	Records []records.Record
	Stats   Stats
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Keys returns the distinct integer values of column, ascending. Records
// whose value is null or not an integer are ignored.
func (d *Dataset) Keys(column string) []int64 {
	seen := make(map[int64]struct{})
	for _, r := range d.Records {
		if k, ok := r.Int64(column); ok {
			seen[k] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Partition returns the records whose column equals key, in dataset order.
// The records are shared with d, not copied.
func (d *Dataset) Partition(column string, key int64) []records.Record {
	var out []records.Record
	for _, r := range d.Records {
		if k, ok := r.Int64(column); ok && k == key {
			out = append(out, r)
		}
	}
	return out
}

// Preparer runs the cleaning steps configured in config.Prepare against a
// source.
type Preparer struct {
	job    string
	src    datasource.Source
	parser parser.Parser
	opts   config.Prepare
	log    *slog.Logger
}

// New returns a Preparer reading cfg.Source.Path as CSV.
func New(cfg config.Pipeline, log *slog.Logger) *Preparer {
	return &Preparer{
		job:    cfg.Job,
		src:    file.NewLocal(cfg.Source.Path),
		parser: pcsv.NewParser(pcsv.Options{Comma: comma(cfg.Source.Comma)}),
		opts:   cfg.Prepare,
		log:    logging.OrDiscard(log).With("component", "prepare"),
	}
}

// WithSource replaces the configured file with src.
func (p *Preparer) WithSource(src datasource.Source) *Preparer {
	p.src = src
	return p
}

// Prepare reads and cleans the source. Failures to open or parse it are
// returned as *SourceReadError.
func (p *Preparer) Prepare(ctx context.Context) (*Dataset, error) {
	src := p.src
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, &SourceReadError{Path: src.Path(), Err: err}
	}
	defer rc.Close()

	headers, recs, err := p.parser.Parse(rc)
	if err != nil {
		return nil, &SourceReadError{Path: src.Path(), Err: err}
	}

	ds := &Dataset{}
	ds.Stats.RowsRead = len(recs)
	p.log.Info("source read", "path", src.Path(), "rows", len(recs), "columns", len(headers))

	frame := transformer.Frame{Columns: headers, Records: recs}

	frame = builtin.DeDup{}.Apply(frame)
	ds.Stats.Duplicates = ds.Stats.RowsRead - len(frame.Records)

	before := append([]string(nil), frame.Columns...)
	frame = builtin.RenameColumns{FoldAccents: p.opts.FoldAccents}.Apply(frame)
	for i := range before {
		if before[i] != frame.Columns[i] {
			ds.Stats.ColumnsRenamed++
		}
	}

	width := len(frame.Columns)
	frame = transformer.Chain{
		builtin.TrimValues{},
		builtin.Coerce{Types: p.coercions(), Layout: p.opts.DateLayout, Logger: p.log},
		builtin.Drop{Columns: p.opts.DropColumns, Logger: p.log},
	}.Apply(frame)
	ds.Stats.ColumnsDropped = width - len(frame.Columns)

	ds.Columns = frame.Columns
	ds.Records = frame.Records

	metrics.RecordRows(p.job, "read", int64(ds.Stats.RowsRead))
	metrics.RecordRows(p.job, "duplicates", int64(ds.Stats.Duplicates))
	metrics.RecordRows(p.job, "cleaned", int64(len(ds.Records)))

	p.log.Info("dataset cleaned",
		"rows", len(ds.Records),
		"duplicates", ds.Stats.Duplicates,
		"renamed", ds.Stats.ColumnsRenamed,
		"dropped", ds.Stats.ColumnsDropped,
	)
	return ds, nil
}

func (p *Preparer) coercions() map[string]string {
	types := make(map[string]string, len(p.opts.DateColumns)+len(p.opts.FloatColumns)+len(p.opts.IntColumns))
	for _, c := range p.opts.IntColumns {
		types[c] = builtin.KindInt
	}
	for _, c := range p.opts.FloatColumns {
		types[c] = builtin.KindFloat
	}
	for _, c := range p.opts.DateColumns {
		types[c] = builtin.KindDate
	}
	return types
}

func comma(s string) rune {
	if s == "" {
		return ','
	}
	if s == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
