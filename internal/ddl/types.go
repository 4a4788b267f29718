package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., BIGINT, DOUBLE PRECISION, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// IndexDef is a secondary index rendered after the table itself. Backends
// use it to express clustering and partition pruning where the dialect has
// no native equivalent.
type IndexDef struct {
	Name    string
	Columns []string
}

// TableDef holds the fully-qualified table name (FQN), an ordered list of
// columns, an optional raw partitioning clause appended after the column list
// (e.g., `PARTITION BY RANGE ("timestamp")`) and the indexes to create.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	PartitionBy string
	Indexes     []IndexDef
}

// Quoter renders one identifier segment for a dialect.
type Quoter func(ident string) string
