package builtin

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"tfletl/internal/transformer"
	"tfletl/pkg/records"
)

const tflLayout = "2-Jan-06"

/*
TestCoerceApply_Scenarios pins the conversion rules a cleaned ridership row
relies on: dates parse or become nil, floats parse or become 0 (never nil),
ints parse or become nil.
*/
func TestCoerceApply_Scenarios(t *testing.T) {
	c := Coerce{
		Types: map[string]string{
			"period_beginning": KindDate,
			"bus":              KindFloat,
			"reporting_period": KindInt,
		},
		Layout: tflLayout,
	}

	tests := []struct {
		name string
		in   records.Record
		want records.Record
	}{
		{
			name: "valid_values",
			in:   records.Record{"period_beginning": "31-Dec-23", "bus": "12.5", "reporting_period": "4"},
			want: records.Record{
				"period_beginning": time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
				"bus":              12.5,
				"reporting_period": int64(4),
			},
		},
		{
			name: "single_digit_day",
			in:   records.Record{"period_beginning": "1-Apr-23", "bus": "0", "reporting_period": "1"},
			want: records.Record{
				"period_beginning": time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
				"bus":              0.0,
				"reporting_period": int64(1),
			},
		},
		{
			name: "zero_padded_day",
			in:   records.Record{"period_beginning": "01-Apr-10", "bus": "189.1", "reporting_period": "1"},
			want: records.Record{
				"period_beginning": time.Date(2010, 4, 1, 0, 0, 0, 0, time.UTC),
				"bus":              189.1,
				"reporting_period": int64(1),
			},
		},
		{
			name: "unparsable_values",
			in:   records.Record{"period_beginning": "not-a-date", "bus": "n/a", "reporting_period": "four"},
			want: records.Record{"period_beginning": nil, "bus": 0.0, "reporting_period": nil},
		},
		{
			name: "empty_values",
			in:   records.Record{"period_beginning": "", "bus": "", "reporting_period": ""},
			want: records.Record{"period_beginning": nil, "bus": 0.0, "reporting_period": nil},
		},
		{
			name: "nil_values",
			in:   records.Record{"period_beginning": nil, "bus": nil, "reporting_period": nil},
			want: records.Record{"period_beginning": nil, "bus": 0.0, "reporting_period": nil},
		},
		{
			name: "integral_float_text_is_int",
			in:   records.Record{"period_beginning": nil, "bus": " 7 ", "reporting_period": "28.0"},
			want: records.Record{"period_beginning": nil, "bus": 7.0, "reporting_period": int64(28)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := transformer.Frame{
				Columns: []string{"period_beginning", "bus", "reporting_period"},
				Records: []records.Record{tt.in},
			}
			got := c.Apply(f)
			if !reflect.DeepEqual(got.Records[0], tt.want) {
				t.Fatalf("got %#v want %#v", got.Records[0], tt.want)
			}
		})
	}
}

/*
TestCoerceApply_MissingColumnWarns verifies a designated column absent from
the frame is skipped (no key added to records) and reported at warn level.
*/
func TestCoerceApply_MissingColumnWarns(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	c := Coerce{Types: map[string]string{"tram": KindFloat}, Logger: log}
	f := transformer.Frame{Columns: []string{"bus"}, Records: []records.Record{{"bus": "1"}}}
	got := c.Apply(f)

	if _, ok := got.Records[0]["tram"]; ok {
		t.Fatalf("missing column must not be added: %#v", got.Records[0])
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "column=tram") {
		t.Fatalf("expected warn log for tram, got %q", buf.String())
	}
}

func TestCoerceApply_UnknownKindIgnored(t *testing.T) {
	c := Coerce{Types: map[string]string{"a": "bool"}}
	f := transformer.Frame{Columns: []string{"a"}, Records: []records.Record{{"a": "true"}}}
	if got := c.Apply(f); got.Records[0]["a"] != "true" {
		t.Fatalf("unknown kind changed value: %#v", got.Records[0])
	}
}

func TestDrop(t *testing.T) {
	f := transformer.Frame{
		Columns: []string{"period_and_financial_year", "reporting_period"},
		Records: []records.Record{{"period_and_financial_year": "01_10/11", "reporting_period": "1"}},
	}
	got := Drop{Columns: []string{"period_and_financial_year", "absent"}}.Apply(f)
	if !reflect.DeepEqual(got.Columns, []string{"reporting_period"}) {
		t.Fatalf("columns = %v", got.Columns)
	}
	if !reflect.DeepEqual(got.Records[0], records.Record{"reporting_period": "1"}) {
		t.Fatalf("record = %#v", got.Records[0])
	}
}

func BenchmarkCoerceFloat(b *testing.B) {
	c := Coerce{Types: map[string]string{"bus": KindFloat}}
	recs := make([]records.Record, 1000)
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for j := range recs {
			recs[j] = records.Record{"bus": "189.1"}
		}
		b.StartTimer()
		c.Apply(transformer.Frame{Columns: []string{"bus"}, Records: recs})
	}
}
