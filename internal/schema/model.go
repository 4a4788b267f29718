// Package schema holds the table descriptor used by every warehouse backend
// and the fixed journeys schema the pipeline writes.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tfletl/pkg/records"
)

// FieldType is the warehouse-neutral column type. Values match BigQuery's
// legacy type names so the BigQuery backend can use them directly.
type FieldType string

const (
	Integer   FieldType = "INTEGER"
	Float     FieldType = "FLOAT"
	Date      FieldType = "DATE"
	Timestamp FieldType = "TIMESTAMP"
	String    FieldType = "STRING"
)

// DateLayout is the canonical text form of a DATE value.
const DateLayout = "2006-01-02"

// Well-known column names.
const (
	ReportingPeriod = "reporting_period"
	DaysInPeriod    = "days_in_period"
	PeriodBeginning = "period_beginning"
	PeriodEnding    = "period_ending"
	TimestampColumn = "timestamp"
)

// MetricColumns are the ridership metrics, in millions of journeys.
var MetricColumns = []string{
	"bus_journeys_m",
	"underground_journeys_m",
	"dlr_journeys_m",
	"tram_journeys_m",
	"overground_journeys_m",
	"london_cable_car_journeys_m",
	"tfl_rail_journeys_m",
}

// Field is a single column of a Table.
type Field struct {
	Name string
	Type FieldType
}

// Table describes a warehouse table: its name, ordered fields, the day
// granularity partition column and the clustering columns.
type Table struct {
	Name           string
	Fields         []Field
	PartitionField string
	ClusterFields  []string
}

// Journeys returns the descriptor of a ridership table named name. The main
// table and every per-period table share it.
func Journeys(name string) Table {
	fields := []Field{
		{Name: ReportingPeriod, Type: Integer},
		{Name: DaysInPeriod, Type: Integer},
		{Name: PeriodBeginning, Type: Date},
		{Name: PeriodEnding, Type: Date},
	}
	for _, m := range MetricColumns {
		fields = append(fields, Field{Name: m, Type: Float})
	}
	fields = append(fields, Field{Name: TimestampColumn, Type: Timestamp})

	return Table{
		Name:           name,
		Fields:         fields,
		PartitionField: TimestampColumn,
		ClusterFields:  []string{ReportingPeriod},
	}
}

// WithName returns a copy of t renamed to name.
func (t Table) WithName(name string) Table {
	t.Name = name
	return t
}

// Columns returns the field names in schema order.
func (t Table) Columns() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (t Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Row projects r onto the table's columns, converting each value to its
// canonical Go type. Columns absent from r become nil; extra keys in r are
// ignored.
func (t Table) Row(r records.Record) ([]any, error) {
	row := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		v, err := Canonical(f.Type, r[f.Name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

// Record is the inverse of Row: it builds a record from values in schema
// order, canonicalizing whatever the backend driver returned.
func (t Table) Record(values []any) (records.Record, error) {
	if len(values) != len(t.Fields) {
		return nil, fmt.Errorf("schema: got %d values for %d fields", len(values), len(t.Fields))
	}
	out := make(records.Record, len(t.Fields))
	for i, f := range t.Fields {
		v, err := Canonical(f.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// Canonical converts v into the Go type used for ft in memory:
// int64 for INTEGER, float64 for FLOAT, time.Time (UTC) for DATE and
// TIMESTAMP, string for STRING. nil passes through.
func Canonical(ft FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch ft {
	case Integer:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("non-integral value %v", n)
			}
			return int64(n), nil
		case string:
			if strings.TrimSpace(n) == "" {
				return nil, nil
			}
			return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		}

	case Float:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		case string:
			if strings.TrimSpace(n) == "" {
				return nil, nil
			}
			return strconv.ParseFloat(strings.TrimSpace(n), 64)
		}

	case Date:
		switch d := v.(type) {
		case time.Time:
			y, m, day := d.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
		case string:
			if strings.TrimSpace(d) == "" {
				return nil, nil
			}
			s := strings.TrimSpace(d)
			if len(s) > len(DateLayout) {
				s = s[:len(DateLayout)]
			}
			return time.Parse(DateLayout, s)
		}

	case Timestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC(), nil
		case string:
			if strings.TrimSpace(ts) == "" {
				return nil, nil
			}
			return ParseTimestamp(ts)
		}

	case String:
		switch s := v.(type) {
		case string:
			return s, nil
		default:
			return fmt.Sprint(s), nil
		}
	}

	return nil, fmt.Errorf("cannot convert %T to %s", v, ft)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	DateLayout,
}

// ParseTimestamp accepts RFC 3339 and the common SQL text forms.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
