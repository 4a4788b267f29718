// Package sqlite implements an embedded warehouse on SQLite (modernc.org,
// no cgo). It backs local runs and the end-to-end tests.
//
// SQLite has no datasets or partitioning, so:
//
//   - datasets are rows of the etl_datasets catalog table;
//   - table T of dataset D is stored as "D__T";
//   - partitioning and clustering become plain indexes on timestamp and
//     reporting_period;
//   - DATE and TIMESTAMP are stored as TEXT (YYYY-MM-DD and RFC 3339).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tfletl/internal/ddl"
	"tfletl/internal/schema"
	"tfletl/internal/warehouse"
	"tfletl/pkg/records"

	_ "modernc.org/sqlite"
)

const catalogDDL = `CREATE TABLE IF NOT EXISTS etl_datasets (
  name TEXT PRIMARY KEY,
  location TEXT,
  created_at TEXT NOT NULL
);`

// Backend is a SQLite implementation of warehouse.Backend.
type Backend struct {
	db       *sql.DB
	dataset  string
	location string
}

var _ warehouse.Backend = (*Backend)(nil)

func init() {
	warehouse.Register("sqlite", func(ctx context.Context, cfg warehouse.Config) (warehouse.Backend, error) {
		return Open(ctx, cfg)
	})
}

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "tfletl.db"

// Open connects to cfg.DSN (DefaultDSN when empty; ":memory:" works too)
// and makes sure the dataset catalog exists.
func Open(ctx context.Context, cfg warehouse.Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Dataset) == "" {
		return nil, fmt.Errorf("sqlite: dataset must not be empty")
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: an in-memory database is private to its connection,
	// and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, catalogDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create catalog: %w", err)
	}
	return &Backend{db: db, dataset: cfg.Dataset, location: cfg.Location}, nil
}

// physical maps a table name onto its stored name.
func (b *Backend) physical(name string) string { return b.dataset + "__" + name }

func (b *Backend) DatasetExists(ctx context.Context) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM etl_datasets WHERE name = ?`, b.dataset).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: look up dataset: %w", err)
	}
	return n > 0, nil
}

func (b *Backend) CreateDataset(ctx context.Context) error {
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO etl_datasets (name, location, created_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		b.dataset, b.location, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: create dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return warehouse.ErrAlreadyExists
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, b.physical(name)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: look up table: %w", err)
	}
	return n > 0, nil
}

// CreateTable creates the table and its indexes in one transaction.
func (b *Backend) CreateTable(ctx context.Context, tbl schema.Table) error {
	ok, err := b.TableExists(ctx, tbl.Name)
	if err != nil {
		return err
	}
	if ok {
		return warehouse.ErrAlreadyExists
	}

	td := ddl.FromSchema(b.physical(tbl.Name), tbl.WithName(b.physical(tbl.Name)), sqlType, "")
	stmt, err := ddl.BuildCreateTableSQL(td, ddl.DoubleQuote)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range append([]string{stmt}, ddl.BuildCreateIndexSQL(td, ddl.DoubleQuote)...) {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				return warehouse.ErrAlreadyExists
			}
			return fmt.Errorf("sqlite: exec %q: %w", s, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Load inserts recs in a single transaction with a prepared statement. A
// failed row rolls back the whole load.
func (b *Backend) Load(ctx context.Context, tbl schema.Table, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	cols := tbl.Columns()
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ddl.DoubleQuote(c)
		marks[i] = "?"
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ddl.DoubleQuote(b.physical(tbl.Name)), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range recs {
		row, err := tbl.Row(r)
		if err != nil {
			return 0, fmt.Errorf("sqlite: row %d: %w", i, err)
		}
		for j, f := range tbl.Fields {
			row[j] = encode(f.Type, row[j])
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return int64(len(recs)), nil
}

// Select returns rows in insertion order.
func (b *Backend) Select(ctx context.Context, tbl schema.Table, f *warehouse.Filter, limit int) ([]records.Record, error) {
	ok, err := b.TableExists(ctx, tbl.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sqlite: table %s: %w", tbl.Name, warehouse.ErrNotFound)
	}

	cols := tbl.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ddl.DoubleQuote(c)
	}

	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(quoted, ", "), ddl.DoubleQuote(b.physical(tbl.Name)))
	if f != nil {
		fmt.Fprintf(&sb, " WHERE %s = ?", ddl.DoubleQuote(f.Column))
		args = append(args, f.Value)
	}
	sb.WriteString(" ORDER BY rowid")
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}

	rows, err := b.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select: %w", err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		rec, err := tbl.Record(vals)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

func (b *Backend) Close() error { return b.db.Close() }

func sqlType(ft schema.FieldType) string {
	switch ft {
	case schema.Integer:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// encode renders temporal values as text so they round-trip exactly.
func encode(ft schema.FieldType, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if ft == schema.Date {
		return t.Format(schema.DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}
