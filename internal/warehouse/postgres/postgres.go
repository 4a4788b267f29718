// Package postgres implements the warehouse on Postgres via pgx v5.
//
// The dataset is a schema. Tables are range-partitioned on "timestamp" with
// a DEFAULT partition catching every row, and reporting_period is indexed as
// the clustering equivalent. Loads use COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tfletl/internal/ddl"
	"tfletl/internal/schema"
	"tfletl/internal/warehouse"
	"tfletl/pkg/records"
)

// SQLSTATE codes for duplicate objects.
const (
	duplicateSchema = "42P06"
	duplicateTable  = "42P07"
)

// Backend is a Postgres implementation of warehouse.Backend.
type Backend struct {
	pool   *pgxpool.Pool
	schema string
}

var _ warehouse.Backend = (*Backend)(nil)

func init() {
	warehouse.Register("postgres", func(ctx context.Context, cfg warehouse.Config) (warehouse.Backend, error) {
		return Open(ctx, cfg)
	})
}

// Open connects to cfg.DSN; cfg.Dataset names the schema.
func Open(ctx context.Context, cfg warehouse.Config) (*Backend, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	if strings.TrimSpace(cfg.Dataset) == "" {
		return nil, fmt.Errorf("postgres: dataset must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Backend{pool: pool, schema: cfg.Dataset}, nil
}

func (b *Backend) fqn(name string) string { return b.schema + "." + name }

func (b *Backend) DatasetExists(ctx context.Context) (bool, error) {
	var ok bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, b.schema).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: look up schema: %w", err)
	}
	return ok, nil
}

func (b *Backend) CreateDataset(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, "CREATE SCHEMA "+ddl.DoubleQuote(b.schema))
	if isCode(err, duplicateSchema) {
		return warehouse.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		b.schema, name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: look up table: %w", err)
	}
	return ok, nil
}

// CreateTable creates the partitioned parent, its default partition and the
// indexes in one transaction.
func (b *Backend) CreateTable(ctx context.Context, tbl schema.Table) error {
	stmts, err := createStatements(b.schema, tbl)
	if err != nil {
		return err
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			if isCode(err, duplicateTable) {
				return warehouse.ErrAlreadyExists
			}
			return fmt.Errorf("postgres: exec %q: %w", s, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// createStatements renders the DDL for tbl inside schemaName.
func createStatements(schemaName string, tbl schema.Table) ([]string, error) {
	partitionBy := ""
	if tbl.PartitionField != "" {
		partitionBy = fmt.Sprintf("PARTITION BY RANGE (%s)", ddl.DoubleQuote(tbl.PartitionField))
	}
	td := ddl.FromSchema(schemaName+"."+tbl.Name, tbl, sqlType, partitionBy)

	create, err := ddl.BuildCreateTableSQL(td, ddl.DoubleQuote)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	stmts := []string{create}
	if partitionBy != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s PARTITION OF %s DEFAULT;",
			ddl.QuoteFQN(schemaName+"."+tbl.Name+"_default", ddl.DoubleQuote),
			ddl.QuoteFQN(td.FQN, ddl.DoubleQuote)))
	}
	return append(stmts, ddl.BuildCreateIndexSQL(td, ddl.DoubleQuote)...), nil
}

// Load streams recs with COPY FROM.
func (b *Backend) Load(ctx context.Context, tbl schema.Table, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(recs))
	for i, r := range recs {
		row, err := tbl.Row(r)
		if err != nil {
			return 0, fmt.Errorf("postgres: row %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	n, err := b.pool.CopyFrom(ctx, pgx.Identifier{b.schema, tbl.Name}, tbl.Columns(), pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("postgres: copy into %s: %s (%s): %w", b.fqn(tbl.Name), pgErr.Detail, pgErr.SQLState(), err)
		}
		return n, fmt.Errorf("postgres: copy into %s: %w", b.fqn(tbl.Name), err)
	}
	return n, nil
}

func (b *Backend) Select(ctx context.Context, tbl schema.Table, f *warehouse.Filter, limit int) ([]records.Record, error) {
	query, args := selectSQL(b.schema, tbl, f, limit)
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		if isCode(err, "42P01") {
			return nil, fmt.Errorf("postgres: table %s: %w", b.fqn(tbl.Name), warehouse.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: select: %w", err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: values: %w", err)
		}
		rec, err := tbl.Record(vals)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		if isCode(err, "42P01") {
			return nil, fmt.Errorf("postgres: table %s: %w", b.fqn(tbl.Name), warehouse.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// selectSQL renders the read query. Rows come back in timestamp order so
// previews are stable.
func selectSQL(schemaName string, tbl schema.Table, f *warehouse.Filter, limit int) (string, []any) {
	cols := tbl.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ddl.DoubleQuote(c)
	}

	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(quoted, ", "),
		ddl.QuoteFQN(schemaName+"."+tbl.Name, ddl.DoubleQuote))
	if f != nil {
		fmt.Fprintf(&sb, " WHERE %s = $1", ddl.DoubleQuote(f.Column))
		args = append(args, f.Value)
	}
	if tbl.PartitionField != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", ddl.DoubleQuote(tbl.PartitionField))
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String(), args
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func sqlType(ft schema.FieldType) string {
	switch ft {
	case schema.Integer:
		return "BIGINT"
	case schema.Float:
		return "DOUBLE PRECISION"
	case schema.Date:
		return "DATE"
	case schema.Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
