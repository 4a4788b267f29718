// Package bigquery implements the warehouse on Google BigQuery.
//
// Tables are day-partitioned on "timestamp" and clustered on
// reporting_period. Loads run as load jobs over newline-delimited JSON with
// WRITE_APPEND; reads are parameterized queries. HTTP 404 maps to "absent"
// and 409 to warehouse.ErrAlreadyExists.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"tfletl/internal/schema"
	"tfletl/internal/warehouse"
	"tfletl/pkg/records"
)

// Backend is a BigQuery implementation of warehouse.Backend.
type Backend struct {
	client   *bigquery.Client
	project  string
	dataset  string
	location string
}

var _ warehouse.Backend = (*Backend)(nil)

func init() {
	warehouse.Register("bigquery", func(ctx context.Context, cfg warehouse.Config) (warehouse.Backend, error) {
		return Open(ctx, cfg)
	})
}

// Open creates a client for cfg.Project. Credentials, when set, name a
// service-account key file; otherwise Application Default Credentials apply.
func Open(ctx context.Context, cfg warehouse.Config, extra ...option.ClientOption) (*Backend, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, fmt.Errorf("bigquery: project must not be empty")
	}
	if strings.TrimSpace(cfg.Dataset) == "" {
		return nil, fmt.Errorf("bigquery: dataset must not be empty")
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}
	return &Backend{client: client, project: cfg.Project, dataset: cfg.Dataset, location: cfg.Location}, nil
}

func (b *Backend) DatasetExists(ctx context.Context) (bool, error) {
	_, err := b.client.Dataset(b.dataset).Metadata(ctx)
	if isStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bigquery: dataset metadata: %w", err)
	}
	return true, nil
}

func (b *Backend) CreateDataset(ctx context.Context) error {
	err := b.client.Dataset(b.dataset).Create(ctx, &bigquery.DatasetMetadata{Location: b.location})
	if isStatus(err, http.StatusConflict) {
		return warehouse.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("bigquery: create dataset: %w", err)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.Dataset(b.dataset).Table(name).Metadata(ctx)
	if isStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bigquery: table metadata: %w", err)
	}
	return true, nil
}

func (b *Backend) CreateTable(ctx context.Context, tbl schema.Table) error {
	err := b.client.Dataset(b.dataset).Table(tbl.Name).Create(ctx, tableMetadata(tbl))
	if isStatus(err, http.StatusConflict) {
		return warehouse.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("bigquery: create table: %w", err)
	}
	return nil
}

func tableMetadata(tbl schema.Table) *bigquery.TableMetadata {
	md := &bigquery.TableMetadata{Schema: bqSchema(tbl)}
	if tbl.PartitionField != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: tbl.PartitionField,
		}
	}
	if len(tbl.ClusterFields) > 0 {
		md.Clustering = &bigquery.Clustering{Fields: tbl.ClusterFields}
	}
	return md
}

func bqSchema(tbl schema.Table) bigquery.Schema {
	out := make(bigquery.Schema, len(tbl.Fields))
	for i, f := range tbl.Fields {
		out[i] = &bigquery.FieldSchema{Name: f.Name, Type: bigquery.FieldType(f.Type)}
	}
	return out
}

// Load runs one append load job and waits for it.
func (b *Backend) Load(ctx context.Context, tbl schema.Table, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	body, err := encodeNDJSON(tbl, recs)
	if err != nil {
		return 0, err
	}

	src := bigquery.NewReaderSource(bytes.NewReader(body))
	src.SourceFormat = bigquery.JSON
	src.Schema = bqSchema(tbl)

	loader := b.client.Dataset(b.dataset).Table(tbl.Name).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery: start load: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("bigquery: wait load %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("bigquery: load %s: %w", job.ID(), err)
	}

	if status.Statistics != nil {
		if ls, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			return ls.OutputRows, nil
		}
	}
	return int64(len(recs)), nil
}

// encodeNDJSON renders recs as one JSON object per line, projected onto
// tbl's columns with BigQuery's canonical DATE and TIMESTAMP text.
func encodeNDJSON(tbl schema.Table, recs []records.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range recs {
		row, err := tbl.Row(r)
		if err != nil {
			return nil, fmt.Errorf("bigquery: row %d: %w", i, err)
		}
		obj := make(map[string]any, len(row))
		for j, f := range tbl.Fields {
			obj[f.Name] = jsonValue(f.Type, row[j])
		}
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("bigquery: encode row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func jsonValue(ft schema.FieldType, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if ft == schema.Date {
		return civil.DateOf(t).String()
	}
	return t.UTC().Format("2006-01-02 15:04:05.999999") + " UTC"
}

func (b *Backend) Select(ctx context.Context, tbl schema.Table, f *warehouse.Filter, limit int) ([]records.Record, error) {
	q := b.client.Query(selectSQL(b.project, b.dataset, tbl, f, limit))
	if f != nil {
		q.Parameters = []bigquery.QueryParameter{{Name: "key", Value: f.Value}}
	}
	if b.location != "" {
		q.Location = b.location
	}

	it, err := q.Read(ctx)
	if isStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("bigquery: table %s: %w", tbl.Name, warehouse.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("bigquery: query: %w", err)
	}

	var out []records.Record
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: read row: %w", err)
		}
		rec, err := tbl.Record(fromBigQuery(row))
		if err != nil {
			return nil, fmt.Errorf("bigquery: decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func selectSQL(project, dataset string, tbl schema.Table, f *warehouse.Filter, limit int) string {
	cols := tbl.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "`" + c + "`"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM `%s.%s.%s`", strings.Join(quoted, ", "), project, dataset, tbl.Name)
	if f != nil {
		fmt.Fprintf(&sb, " WHERE `%s` = @key", f.Column)
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String()
}

// fromBigQuery converts client values to what schema.Canonical accepts.
func fromBigQuery(row []bigquery.Value) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if d, ok := v.(civil.Date); ok {
			out[i] = d.In(time.UTC)
			continue
		}
		out[i] = v
	}
	return out
}

func (b *Backend) Close() error { return b.client.Close() }

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
