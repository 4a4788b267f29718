package schema

import (
	"reflect"
	"testing"
	"time"

	"tfletl/pkg/records"
)

// TestJourneysDescriptor checks the fixed twelve-column layout together with
// its partition and clustering columns.
func TestJourneysDescriptor(t *testing.T) {
	t.Parallel()

	tbl := Journeys("TFL_JOURNEYS_TYPE")
	want := []string{
		"reporting_period", "days_in_period", "period_beginning", "period_ending",
		"bus_journeys_m", "underground_journeys_m", "dlr_journeys_m", "tram_journeys_m",
		"overground_journeys_m", "london_cable_car_journeys_m", "tfl_rail_journeys_m",
		"timestamp",
	}
	if got := tbl.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
	if tbl.PartitionField != "timestamp" {
		t.Fatalf("PartitionField = %q", tbl.PartitionField)
	}
	if !reflect.DeepEqual(tbl.ClusterFields, []string{"reporting_period"}) {
		t.Fatalf("ClusterFields = %v", tbl.ClusterFields)
	}
	if f, ok := tbl.Field("period_ending"); !ok || f.Type != Date {
		t.Fatalf("Field(period_ending) = %#v, %v", f, ok)
	}
	if renamed := tbl.WithName("other"); renamed.Name != "other" || tbl.Name != "TFL_JOURNEYS_TYPE" {
		t.Fatalf("WithName mutated the original or did not rename: %q / %q", renamed.Name, tbl.Name)
	}
}

// TestCanonical covers the conversions backends rely on when they hand back
// driver-specific values.
func TestCanonical(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		name    string
		ft      FieldType
		in      any
		want    any
		wantErr bool
	}{
		{name: "nil_passthrough", ft: Integer, in: nil, want: nil},
		{name: "int_from_int", ft: Integer, in: 3, want: int64(3)},
		{name: "int_from_whole_float", ft: Integer, in: float64(4), want: int64(4)},
		{name: "int_from_fraction", ft: Integer, in: 4.5, wantErr: true},
		{name: "int_from_text", ft: Integer, in: " 12 ", want: int64(12)},
		{name: "int_from_bytes", ft: Integer, in: []byte("7"), want: int64(7)},
		{name: "float_from_int64", ft: Float, in: int64(2), want: float64(2)},
		{name: "float_from_text", ft: Float, in: "12.5", want: 12.5},
		{name: "empty_text_is_null", ft: Float, in: "", want: nil},
		{name: "date_truncates_clock", ft: Date, in: ts, want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "date_from_text", ft: Date, in: "2023-12-31", want: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{name: "date_from_sql_timestamp_text", ft: Date, in: "2023-12-31 00:00:00", want: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{name: "timestamp_from_rfc3339", ft: Timestamp, in: "2024-03-01T10:30:00Z", want: ts},
		{name: "timestamp_from_local", ft: Timestamp, in: ts.In(time.FixedZone("x", 3600)), want: ts},
		{name: "string_from_number", ft: String, in: int64(5), want: "5"},
		{name: "bool_is_rejected", ft: Float, in: true, wantErr: true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got, err := Canonical(c.ft, c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("Canonical(%s, %#v) expected error, got %#v", c.ft, c.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonical(%s, %#v) error: %v", c.ft, c.in, err)
			}
			if gt, ok := got.(time.Time); ok {
				wt, _ := c.want.(time.Time)
				if !gt.Equal(wt) {
					t.Fatalf("Canonical(%s) = %v, want %v", c.ft, gt, wt)
				}
				return
			}
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("Canonical(%s, %#v) = %#v, want %#v", c.ft, c.in, got, c.want)
			}
		})
	}
}

// TestRowRecordRoundTrip ensures Row projects onto schema order and Record
// rebuilds an equivalent record, dropping unknown keys.
func TestRowRecordRoundTrip(t *testing.T) {
	t.Parallel()

	tbl := Journeys("t")
	in := records.Record{
		"reporting_period": int64(2),
		"days_in_period":   "28",
		"bus_journeys_m":   12.5,
		"period_beginning": "2023-01-01",
		"unrelated":        "dropped",
	}
	row, err := tbl.Row(in)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if len(row) != len(tbl.Fields) {
		t.Fatalf("len(row) = %d, want %d", len(row), len(tbl.Fields))
	}
	if row[0] != int64(2) || row[1] != int64(28) {
		t.Fatalf("integer columns = %#v, %#v", row[0], row[1])
	}
	if row[len(row)-1] != nil {
		t.Fatalf("timestamp should be nil when absent, got %#v", row[len(row)-1])
	}

	back, err := tbl.Record(row)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, ok := back["unrelated"]; ok {
		t.Fatalf("Record kept a column outside the schema")
	}
	if back["bus_journeys_m"] != 12.5 {
		t.Fatalf("bus_journeys_m = %#v", back["bus_journeys_m"])
	}
	if _, err := tbl.Record(row[:3]); err == nil {
		t.Fatalf("Record with short row should fail")
	}
}
