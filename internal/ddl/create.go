// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render CREATE TABLE / CREATE INDEX statements from that model.
//
// Identifiers are quoted through a dialect-supplied Quoter, so the same
// TableDef renders for Postgres and SQLite. Statements never carry
// IF NOT EXISTS: callers check for existence first so that "already exists"
// can be reported distinctly.
package ddl

import (
	"fmt"
	"strings"

	"tfletl/internal/schema"
)

// FromSchema builds a TableDef for tbl under fqn. typeOf maps the neutral
// field types onto the dialect; partitionBy is emitted verbatim. One index is
// declared per clustering column and one for the partition column.
func FromSchema(fqn string, tbl schema.Table, typeOf func(schema.FieldType) string, partitionBy string) TableDef {
	td := TableDef{FQN: fqn, PartitionBy: partitionBy}
	for _, f := range tbl.Fields {
		td.Columns = append(td.Columns, ColumnDef{
			Name:     f.Name,
			SQLType:  typeOf(f.Type),
			Nullable: true,
		})
	}

	base := strings.ReplaceAll(tbl.Name, ".", "_")
	for _, c := range tbl.ClusterFields {
		td.Indexes = append(td.Indexes, IndexDef{Name: base + "_" + c + "_idx", Columns: []string{c}})
	}
	if tbl.PartitionField != "" {
		td.Indexes = append(td.Indexes, IndexDef{
			Name:    base + "_" + tbl.PartitionField + "_idx",
			Columns: []string{tbl.PartitionField},
		})
	}
	return td
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty; each dotted segment is quoted with q.
//
//   - Each column must have a non-empty Name and SQLType and renders as
//
//     <Name> <SQLType> [NOT NULL]
//
//   - A non-empty PartitionBy is appended after the closing parenthesis.
func BuildCreateTableSQL(t TableDef, q Quoter) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", QuoteFQN(fqn, q), strings.Join(cols, ",\n  "))
	if p := strings.TrimSpace(t.PartitionBy); p != "" {
		stmt += " " + p
	}
	return stmt + ";", nil
}

// BuildCreateIndexSQL renders one CREATE INDEX statement per IndexDef. Index
// names are not schema-qualified; both Postgres and SQLite place the index
// next to its table.
func BuildCreateIndexSQL(t TableDef, q Quoter) []string {
	out := make([]string, 0, len(t.Indexes))
	for _, ix := range t.Indexes {
		cols := make([]string, len(ix.Columns))
		for i, c := range ix.Columns {
			cols[i] = q(c)
		}
		out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
			q(ix.Name), QuoteFQN(t.FQN, q), strings.Join(cols, ", ")))
	}
	return out
}

// QuoteFQN quotes every dotted segment of fqn with q.
func QuoteFQN(fqn string, q Quoter) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, q(p))
	}
	return strings.Join(out, ".")
}

// DoubleQuote is the ANSI identifier quoter shared by Postgres and SQLite.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
