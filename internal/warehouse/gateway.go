package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"tfletl/internal/config"
	"tfletl/internal/logging"
	"tfletl/internal/metrics"
	"tfletl/internal/schema"
	"tfletl/pkg/records"
)

// Gateway owns the remote table lifecycle for one dataset: idempotent
// provisioning, existence checks, timestamp-backfilled loads and previews.
// It is safe for concurrent use when its Backend is.
type Gateway struct {
	be      Backend
	dataset string
	job     string
	limit   int
	log     *slog.Logger

	// now stamps rows that arrive without a timestamp.
	now func() time.Time
}

// NewGateway wraps be with the policy configured in cfg.
func NewGateway(be Backend, cfg config.Pipeline, log *slog.Logger) *Gateway {
	limit := cfg.Preview.Limit
	if limit <= 0 {
		limit = 10
	}
	return &Gateway{
		be:      be,
		dataset: cfg.Warehouse.Dataset,
		job:     cfg.Job,
		limit:   limit,
		log:     logging.OrDiscard(log).With("component", "warehouse", "dataset", cfg.Warehouse.Dataset),
		now:     time.Now,
	}
}

// Table returns the descriptor of the ridership table name.
func (g *Gateway) Table(name string) schema.Table { return schema.Journeys(name) }

// EnsureDataset creates the dataset when absent. An existing dataset,
// including one created concurrently between check and create, is a no-op.
func (g *Gateway) EnsureDataset(ctx context.Context) error {
	ok, err := g.be.DatasetExists(ctx)
	if err != nil {
		return fmt.Errorf("look up dataset %s: %w", g.dataset, err)
	}
	if ok {
		g.log.Info("dataset already exists")
		return nil
	}
	if err := g.be.CreateDataset(ctx); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			g.log.Warn("dataset already exists")
			return nil
		}
		return fmt.Errorf("create dataset %s: %w", g.dataset, err)
	}
	g.log.Info("dataset created")
	return nil
}

// TableExists reports whether name exists. Absence is (false, nil).
func (g *Gateway) TableExists(ctx context.Context, name string) (bool, error) {
	ok, err := g.be.TableExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("look up table %s: %w", name, err)
	}
	return ok, nil
}

// CreatePartitionedTable creates name with the ridership schema, day
// partitioning on timestamp and clustering on reporting_period. An existing
// table is logged as a warning and is not an error.
func (g *Gateway) CreatePartitionedTable(ctx context.Context, name string) error {
	tbl := g.Table(name)
	if err := g.be.CreateTable(ctx, tbl); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			g.log.Warn("table already exists", "table", name)
			return nil
		}
		return fmt.Errorf("create table %s: %w", name, err)
	}
	g.log.Info("table created",
		"table", name,
		"partition", tbl.PartitionField,
		"cluster", strings.Join(tbl.ClusterFields, ","),
	)
	return nil
}

// ensureTable creates name unless it exists.
func (g *Gateway) ensureTable(ctx context.Context, name string) error {
	ok, err := g.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return g.CreatePartitionedTable(ctx, name)
}

// LoadRecords appends recs to name, creating the table first if needed.
// Records without a timestamp are stamped with the load time (UTC); the
// caller's records are not modified. On failure the error is logged and
// returned as *LoadFailure; whether to continue is the caller's decision.
func (g *Gateway) LoadRecords(ctx context.Context, recs []records.Record, name string) (int64, error) {
	if err := g.ensureTable(ctx, name); err != nil {
		g.log.Error("load aborted, table unavailable", "table", name, "err", err)
		return 0, &LoadFailure{Table: name, Rows: len(recs), Err: err}
	}
	if len(recs) == 0 {
		g.log.Info("nothing to load", "table", name)
		return 0, nil
	}

	stamped := g.backfillTimestamp(recs)

	n, err := g.be.Load(ctx, g.Table(name), stamped)
	if err != nil {
		g.log.Error("load failed", "table", name, "rows", len(recs), "err", err)
		return n, &LoadFailure{Table: name, Rows: len(recs), Err: err}
	}

	metrics.RecordTableRows(g.job, name, n)
	g.log.Info("rows loaded", "table", name, "rows", n)
	return n, nil
}

func (g *Gateway) backfillTimestamp(recs []records.Record) []records.Record {
	ts := g.now().UTC()
	out := make([]records.Record, len(recs))
	for i, r := range recs {
		if v, ok := r[schema.TimestampColumn]; ok && v != nil {
			out[i] = r
			continue
		}
		c := r.Clone()
		c[schema.TimestampColumn] = ts
		out[i] = c
	}
	return out
}

// QueryPartition reads every row of table whose column equals key.
func (g *Gateway) QueryPartition(ctx context.Context, table, column string, key int64) ([]records.Record, error) {
	recs, err := g.be.Select(ctx, g.Table(table), &Filter{Column: column, Value: key}, 0)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s=%d: %w", table, column, key, err)
	}
	return recs, nil
}

// PreviewTable logs up to the configured number of rows of name and
// returns them. found is false when the table does not exist; that case is
// logged as a warning and is not an error.
func (g *Gateway) PreviewTable(ctx context.Context, name string) (recs []records.Record, found bool, err error) {
	ok, err := g.TableExists(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		g.log.Warn("table not found, skipping preview", "table", name)
		return nil, false, nil
	}

	tbl := g.Table(name)
	recs, err = g.be.Select(ctx, tbl, nil, g.limit)
	if err != nil {
		return nil, true, fmt.Errorf("preview %s: %w", name, err)
	}

	g.log.Info("preview", "table", name, "rows", len(recs))
	for _, line := range renderRows(tbl.Columns(), recs) {
		g.log.Info(line, "table", name)
	}
	return recs, true, nil
}

// PartitionKeys returns the distinct integer values of column in table,
// ascending. A missing table yields no keys.
func (g *Gateway) PartitionKeys(ctx context.Context, table, column string) ([]int64, error) {
	ok, err := g.TableExists(ctx, table)
	if err != nil || !ok {
		return nil, err
	}
	recs, err := g.be.Select(ctx, g.Table(table), nil, 0)
	if err != nil {
		return nil, fmt.Errorf("read keys of %s: %w", table, err)
	}
	seen := make(map[int64]struct{})
	var keys []int64
	for _, r := range recs {
		k, ok := r.Int64(column)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// renderRows lays recs out as aligned text lines, header first.
func renderRows(cols []string, recs []records.Record) []string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, r := range recs {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(r[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(schema.DateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
