package prepare

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"tfletl/internal/config"
	"tfletl/internal/schema"
)

func sampleConfig(path string) config.Pipeline {
	cfg := config.Default()
	cfg.Source.Path = path
	return cfg
}

func samplePath() string {
	return filepath.Join("..", "..", "testdata", "tfl-journeys-type.csv")
}

/*
TestPrepareSample runs the full cleaning over the checked-in sample: 12 rows
with 2 exact duplicates, one unparsable date and assorted empty metrics.
*/
func TestPrepareSample(t *testing.T) {
	ds, err := New(sampleConfig(samplePath()), nil).Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if ds.Stats.RowsRead != 12 || ds.Stats.Duplicates != 2 || ds.Len() != 10 {
		t.Fatalf("stats = %+v, len = %d; want 12 read, 2 duplicates, 10 rows", ds.Stats, ds.Len())
	}
	if ds.Stats.ColumnsDropped != 1 {
		t.Fatalf("ColumnsDropped = %d, want 1", ds.Stats.ColumnsDropped)
	}

	wantCols := []string{
		"reporting_period", "days_in_period", "period_beginning", "period_ending",
		"bus_journeys_m", "underground_journeys_m", "dlr_journeys_m", "tram_journeys_m",
		"overground_journeys_m", "london_cable_car_journeys_m", "tfl_rail_journeys_m",
	}
	if !reflect.DeepEqual(ds.Columns, wantCols) {
		t.Fatalf("columns = %v\nwant %v", ds.Columns, wantCols)
	}

	valid := regexp.MustCompile(`^[a-z0-9_]+$`)
	for _, c := range ds.Columns {
		if !valid.MatchString(c) {
			t.Errorf("column %q not normalized", c)
		}
	}

	first := ds.Records[0]
	if got, want := first[schema.PeriodBeginning], time.Date(2010, 4, 1, 0, 0, 0, 0, time.UTC); got != want {
		t.Fatalf("period_beginning = %v, want %v", got, want)
	}
	if first[schema.ReportingPeriod] != int64(1) || first[schema.DaysInPeriod] != int64(31) {
		t.Fatalf("int columns = %#v / %#v", first[schema.ReportingPeriod], first[schema.DaysInPeriod])
	}
	// Empty metric cells become 0, never nil.
	if first["overground_journeys_m"] != 0.0 || first["tfl_rail_journeys_m"] != 0.0 {
		t.Fatalf("empty metrics = %#v / %#v", first["overground_journeys_m"], first["tfl_rail_journeys_m"])
	}

	// "not-a-date" in period_ending becomes nil.
	var sawNilDate bool
	for _, r := range ds.Records {
		if r[schema.PeriodEnding] == nil {
			sawNilDate = true
		}
		if _, ok := r["period_and_financial_year"]; ok {
			t.Fatalf("legacy column still present: %#v", r)
		}
	}
	if !sawNilDate {
		t.Fatalf("expected one null period_ending")
	}

	last := ds.Records[8]
	if last["bus_journeys_m"] != 12.5 {
		t.Fatalf("bus_journeys_m = %#v, want 12.5", last["bus_journeys_m"])
	}
	if last[schema.PeriodEnding] != time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("period_ending = %#v", last[schema.PeriodEnding])
	}
	if last["tfl_rail_journeys_m"] != 0.0 {
		t.Fatalf("unparsable metric = %#v, want 0", last["tfl_rail_journeys_m"])
	}
}

func TestPrepareKeysAndPartition(t *testing.T) {
	ds, err := New(sampleConfig(samplePath()), nil).Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got, want := ds.Keys(schema.ReportingPeriod), []int64{1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}
	wantCounts := map[int64]int{1: 3, 2: 3, 3: 2, 4: 2, 5: 0}
	for k, n := range wantCounts {
		part := ds.Partition(schema.ReportingPeriod, k)
		if len(part) != n {
			t.Errorf("partition %d has %d rows, want %d", k, len(part), n)
		}
		for _, r := range part {
			if r[schema.ReportingPeriod] != k {
				t.Errorf("partition %d holds row with period %v", k, r[schema.ReportingPeriod])
			}
		}
	}
}

func TestPrepareMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.csv")
	_, err := New(sampleConfig(path), nil).Prepare(context.Background())

	var srcErr *SourceReadError
	if !errors.As(err, &srcErr) {
		t.Fatalf("err = %v, want *SourceReadError", err)
	}
	if srcErr.Path != path {
		t.Fatalf("Path = %q, want %q", srcErr.Path, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("errors.Is(err, os.ErrNotExist) = false for %v", err)
	}
}

func TestPrepareMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(sampleConfig(path), nil).Prepare(context.Background())
	var srcErr *SourceReadError
	if !errors.As(err, &srcErr) {
		t.Fatalf("err = %v, want *SourceReadError", err)
	}
}

/*
TestPrepareMissingDesignatedColumns: a file lacking the date and metric
columns still prepares; the missing columns are simply not present.
*/
func TestPrepareMissingDesignatedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thin.csv")
	if err := os.WriteFile(path, []byte("Reporting Period,Note\n1,x\n1,x\n2,y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := New(sampleConfig(path), nil).Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("len = %d, want 2", ds.Len())
	}
	if !reflect.DeepEqual(ds.Columns, []string{"reporting_period", "note"}) {
		t.Fatalf("columns = %v", ds.Columns)
	}
	if _, ok := ds.Records[0]["bus_journeys_m"]; ok {
		t.Fatalf("absent metric column must not be synthesized")
	}
}

type stringSource struct {
	name, body string
}

func (s stringSource) Path() string { return s.name }

func (s stringSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestPrepareWithSource(t *testing.T) {
	src := stringSource{
		name: "inline",
		body: "Reporting Period,Bus journeys (m)\n1,10.5\n2,\n1,10.5\n",
	}
	ds, err := New(config.Default(), nil).WithSource(src).Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if ds.Len() != 2 || ds.Stats.Duplicates != 1 {
		t.Fatalf("len = %d, duplicates = %d; want 2, 1", ds.Len(), ds.Stats.Duplicates)
	}
	if got := ds.Records[1]["bus_journeys_m"]; got != 0.0 {
		t.Fatalf("empty metric = %#v, want 0", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(config.Default(), nil).WithSource(src).Prepare(ctx)
	var srcErr *SourceReadError
	if !errors.As(err, &srcErr) || srcErr.Path != "inline" {
		t.Fatalf("err = %v, want *SourceReadError for inline", err)
	}
}

/*
TestPrepareRepeatedHeaderAndShortDay: a repeated header keeps both columns'
values, and a one-digit day in a date column still parses.
*/
func TestPrepareRepeatedHeaderAndShortDay(t *testing.T) {
	src := stringSource{
		name: "inline",
		body: "Reporting Period,Period beginning,Bus journeys (m),Bus journeys (m)\n" +
			"1,1-Apr-23,1.5,2.5\n",
	}
	ds, err := New(config.Default(), nil).WithSource(src).Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := []string{"reporting_period", "period_beginning", "bus_journeys_m", "bus_journeys_m1"}
	if !reflect.DeepEqual(ds.Columns, want) {
		t.Fatalf("columns = %v, want %v", ds.Columns, want)
	}
	r := ds.Records[0]
	if r["bus_journeys_m"] != 1.5 || r["bus_journeys_m1"] != "2.5" {
		t.Fatalf("bus columns = %#v / %#v", r["bus_journeys_m"], r["bus_journeys_m1"])
	}
	if got, want := r[schema.PeriodBeginning], time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC); got != want {
		t.Fatalf("period_beginning = %v, want %v", got, want)
	}
}

func TestComma(t *testing.T) {
	for in, want := range map[string]rune{"": ',', ";": ';', `\t`: '\t', "|": '|'} {
		if got := comma(in); got != want {
			t.Errorf("comma(%q) = %q, want %q", in, got, want)
		}
	}
}
