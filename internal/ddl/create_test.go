package ddl

import (
	"strings"
	"testing"

	"tfletl/internal/schema"
)

// TestBuildCreateTableSQL verifies that BuildCreateTableSQL generates the
// expected CREATE TABLE statements and surfaces appropriate errors for invalid
// inputs.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "public.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name: "nullable and not null columns",
			def: TableDef{
				FQN: "t",
				Columns: []ColumnDef{
					{Name: "id", SQLType: "BIGINT"},
					{Name: "note", SQLType: "TEXT", Nullable: true},
				},
			},
			wantSQL: "CREATE TABLE \"t\" (\n  \"id\" BIGINT NOT NULL,\n  \"note\" TEXT\n);",
		},
		{
			name: "schema qualified with partition clause",
			def: TableDef{
				FQN:         "LONDON_DATA.trips",
				Columns:     []ColumnDef{{Name: "timestamp", SQLType: "TIMESTAMPTZ", Nullable: true}},
				PartitionBy: `PARTITION BY RANGE ("timestamp")`,
			},
			wantSQL: "CREATE TABLE \"LONDON_DATA\".\"trips\" (\n  \"timestamp\" TIMESTAMPTZ\n) PARTITION BY RANGE (\"timestamp\");",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCreateTableSQL(tt.def, DoubleQuote)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want substring %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, tt.wantSQL)
			}
		})
	}
}

// TestFromSchemaIndexes checks that clustering and partition columns each
// get an index and that types go through the dialect mapper.
func TestFromSchemaIndexes(t *testing.T) {
	t.Parallel()

	tbl := schema.Journeys("TFL")
	td := FromSchema("DS.TFL", tbl, func(ft schema.FieldType) string { return "X_" + string(ft) }, "")

	if len(td.Columns) != len(tbl.Fields) {
		t.Fatalf("columns = %d, want %d", len(td.Columns), len(tbl.Fields))
	}
	if td.Columns[0].SQLType != "X_INTEGER" || !td.Columns[0].Nullable {
		t.Fatalf("first column = %#v", td.Columns[0])
	}

	stmts := BuildCreateIndexSQL(td, DoubleQuote)
	want := []string{
		`CREATE INDEX "TFL_reporting_period_idx" ON "DS"."TFL" ("reporting_period");`,
		`CREATE INDEX "TFL_timestamp_idx" ON "DS"."TFL" ("timestamp");`,
	}
	if len(stmts) != len(want) {
		t.Fatalf("index statements = %v", stmts)
	}
	for i := range want {
		if stmts[i] != want[i] {
			t.Fatalf("stmt[%d] = %q, want %q", i, stmts[i], want[i])
		}
	}
}

func TestDoubleQuoteEscapes(t *testing.T) {
	t.Parallel()
	if got := DoubleQuote(`a"b`); got != `"a""b"` {
		t.Fatalf("DoubleQuote = %s", got)
	}
	if got := QuoteFQN("a..b", DoubleQuote); got != `"a"."b"` {
		t.Fatalf("QuoteFQN = %s", got)
	}
}
