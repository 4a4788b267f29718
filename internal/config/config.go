// Package config defines the pipeline configuration model and its loader.
//
// A Pipeline is resolved exactly once at process start and then passed by
// value to every component; nothing in the program reads the environment
// after Load returns.
//
// Resolution order (later wins):
//
//  1. Defaults (Default()).
//  2. An optional YAML file (JSON is accepted too, being a YAML subset).
//  3. A .env file in the working directory, loaded into the environment.
//  4. Environment variables.
//
// Example file (trimmed):
//
//	job: tfl_ridership
//	source:
//	  path: data/tfl-journeys-type.csv
//	warehouse:
//	  kind: bigquery
//	  project: london-transport-453517
//	  dataset: LONDON_DATA
//	  table: TFL_JOURNEYS_TYPE
//	partition:
//	  keys: [1, 2, 3, 4]
//	  workers: 4
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Pipeline is the complete, immutable configuration of one run.
type Pipeline struct {
	// Job names the run for metrics labels and log lines.
	Job string `yaml:"job" json:"job"`

	Source    Source    `yaml:"source" json:"source"`
	Prepare   Prepare   `yaml:"prepare" json:"prepare"`
	Warehouse Warehouse `yaml:"warehouse" json:"warehouse"`
	Partition Partition `yaml:"partition" json:"partition"`
	Preview   Preview   `yaml:"preview" json:"preview"`
	Metrics   Metrics   `yaml:"metrics" json:"metrics"`
	Log       Log       `yaml:"log" json:"log"`
}

// Source locates the raw CSV file.
type Source struct {
	Path string `yaml:"path" json:"path"`

	// Comma is the field delimiter; empty means ",".
	Comma string `yaml:"comma" json:"comma"`
}

// Prepare configures the cleaning steps.
type Prepare struct {
	// DateColumns are parsed with DateLayout; failures become null.
	DateColumns []string `yaml:"date_columns" json:"date_columns"`
	DateLayout  string   `yaml:"date_layout" json:"date_layout"`

	// FloatColumns are parsed as float64; failures become 0.
	FloatColumns []string `yaml:"float_columns" json:"float_columns"`

	// IntColumns are parsed as int64; failures become null.
	IntColumns []string `yaml:"int_columns" json:"int_columns"`

	// DropColumns are removed when present.
	DropColumns []string `yaml:"drop_columns" json:"drop_columns"`

	// FoldAccents transliterates accented letters to ASCII before column
	// names are stripped of non-identifier characters.
	FoldAccents bool `yaml:"fold_accents" json:"fold_accents"`
}

// Warehouse selects and addresses the destination store.
type Warehouse struct {
	// Kind selects the backend: "bigquery", "postgres" or "sqlite".
	Kind string `yaml:"kind" json:"kind"`

	Project     string `yaml:"project" json:"project"`
	Dataset     string `yaml:"dataset" json:"dataset"`
	Table       string `yaml:"table" json:"table"`
	Location    string `yaml:"location" json:"location"`
	Credentials string `yaml:"credentials" json:"credentials"`

	// DSN is the connection string for the SQL backends.
	DSN string `yaml:"dsn" json:"dsn"`
}

// Partition source modes.
const (
	PartitionFromWarehouse = "warehouse"
	PartitionFromMemory    = "memory"
)

// Partition configures the per-period fan-out.
type Partition struct {
	// Column is the integer key the dataset is split on.
	Column string `yaml:"column" json:"column"`

	// Keys lists the partition keys to materialize. Empty means every
	// distinct value present in the cleaned dataset.
	Keys []int64 `yaml:"keys" json:"keys"`

	// Workers bounds the fan-out; 0 means runtime.GOMAXPROCS(0).
	Workers int `yaml:"workers" json:"workers"`

	// Source is "warehouse" (re-read the main table) or "memory" (slice the
	// cleaned dataset).
	Source string `yaml:"source" json:"source"`

	// TableSuffix is inserted between the main table name and the key.
	TableSuffix string `yaml:"table_suffix" json:"table_suffix"`
}

// Preview configures read-back of produced tables.
type Preview struct {
	Limit int `yaml:"limit" json:"limit"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `yaml:"backend" json:"backend"`
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
	DatadogAddr    string `yaml:"datadog_addr" json:"datadog_addr"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Pipeline {
	return Pipeline{
		Job:    "tfl_ridership",
		Source: Source{Path: "tfl-journeys-type.csv", Comma: ","},
		Prepare: Prepare{
			DateColumns: []string{"period_beginning", "period_ending"},
			DateLayout:  "2-Jan-06",
			FloatColumns: []string{
				"bus_journeys_m", "underground_journeys_m", "dlr_journeys_m",
				"tram_journeys_m", "overground_journeys_m",
				"london_cable_car_journeys_m", "tfl_rail_journeys_m",
			},
			IntColumns:  []string{"reporting_period", "days_in_period"},
			DropColumns: []string{"period_and_financial_year"},
		},
		Warehouse: Warehouse{
			Kind:        "bigquery",
			Project:     "london-transport-453517",
			Dataset:     "LONDON_DATA",
			Table:       "TFL_JOURNEYS_TYPE",
			Credentials: "london-transport-453517-5a7bb63f5525.json",
		},
		Partition: Partition{
			Column:      "reporting_period",
			Keys:        []int64{1, 2, 3, 4},
			Source:      PartitionFromWarehouse,
			TableSuffix: "_REPORTING_PERIOD_",
		},
		Preview: Preview{Limit: 10},
		Metrics: Metrics{Backend: "none"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load resolves the pipeline configuration. path may be empty, in which case
// only defaults, .env and the environment are consulted. A missing .env is
// not an error; a missing explicit config file is.
func Load(path string) (Pipeline, error) {
	p := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Pipeline{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Pipeline{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&p, os.LookupEnv); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// lookupFn matches os.LookupEnv; tests inject a map-backed variant.
type lookupFn func(string) (string, bool)

// applyEnv overlays environment variables onto p. Variable names follow the
// ones the deployment already uses (PROJECT_ID, DATASET_ID, ...).
func applyEnv(p *Pipeline, lookup lookupFn) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("JOB_NAME", &p.Job)
	str("CSV_FILE_PATH", &p.Source.Path)
	str("WAREHOUSE_KIND", &p.Warehouse.Kind)
	str("PROJECT_ID", &p.Warehouse.Project)
	str("DATASET_ID", &p.Warehouse.Dataset)
	str("TABLE_ID", &p.Warehouse.Table)
	str("WAREHOUSE_LOCATION", &p.Warehouse.Location)
	str("GOOGLE_APPLICATION_CREDENTIALS", &p.Warehouse.Credentials)
	str("WAREHOUSE_DSN", &p.Warehouse.DSN)
	str("PARTITION_SOURCE", &p.Partition.Source)
	str("LOG_LEVEL", &p.Log.Level)
	str("LOG_FORMAT", &p.Log.Format)
	str("METRICS_BACKEND", &p.Metrics.Backend)
	str("PUSHGATEWAY_URL", &p.Metrics.PushgatewayURL)
	str("DD_AGENT_ADDR", &p.Metrics.DatadogAddr)

	if v, ok := lookup("PARTITION_WORKERS"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PARTITION_WORKERS=%q: %w", v, err)
		}
		p.Partition.Workers = n
	}
	if v, ok := lookup("PARTITION_KEYS"); ok {
		keys, err := ParseKeys(v)
		if err != nil {
			return fmt.Errorf("PARTITION_KEYS=%q: %w", v, err)
		}
		p.Partition.Keys = keys
	}
	return nil
}

// ParseKeys parses a comma-separated list of integer partition keys. An
// empty string yields an empty list (discover keys from the data).
func ParseKeys(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// PartitionTable returns the derived table name for key, following the
// <TABLE_ID><suffix><key> convention.
func (p Pipeline) PartitionTable(key int64) string {
	return p.Warehouse.Table + p.Partition.TableSuffix + strconv.FormatInt(key, 10)
}
