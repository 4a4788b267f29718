// Package csv reads a delimited source file into raw records. Values are
// left as strings (empty cells become nil); typing is the cleaning steps'
// job.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tfletl/pkg/records"
)

// Options configures the parser. The zero value reads comma-separated input
// without trimming.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but not from several goroutines at once.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("csv: missing header row")

// RowError reports a data row that could not be read. Line is 1-based and
// counts the header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// Parse reads the header row and every data row from r. Header cells are
// returned as written (minus a leading BOM); blank header cells become
// "col_<index>" and a repeated header gets a ".1", ".2", ... suffix so every
// column keeps its own values. Rows shorter than the header are padded with
// nil; rows longer than the header are an error, as is malformed quoting.
func (p *Parser) Parse(r io.Reader) ([]string, []records.Record, error) {
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	h, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := StripHeaderBOM(append([]string(nil), h...))
	for i, col := range headers {
		if strings.TrimSpace(col) == "" {
			headers[i] = fmt.Sprintf("col_%d", i)
		}
	}
	headers = uniqueHeaders(headers)

	var out []records.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &RowError{Line: line, Err: err}
		}
		if len(row) > len(headers) {
			return nil, nil, &RowError{
				Line: line,
				Err:  fmt.Errorf("expected at most %d fields, got %d", len(headers), len(row)),
			}
		}

		rec := make(records.Record, len(headers))
		for i, key := range headers {
			if i >= len(row) {
				rec[key] = nil
				continue
			}
			val := row[i]
			if p.opt.TrimSpace {
				val = strings.TrimSpace(val)
			}
			rec[key] = emptyToNil(val)
		}
		out = append(out, rec)
	}

	return headers, out, nil
}

// uniqueHeaders suffixes repeated names in place: "x", "x" becomes "x",
// "x.1". Records are maps keyed by header, so a repeat would otherwise
// overwrite the earlier column.
func uniqueHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	taken := make(map[string]bool, len(headers))
	for i, h := range headers {
		if !taken[h] {
			taken[h] = true
			continue
		}
		name := h
		for n := seen[h] + 1; ; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
			if !taken[name] {
				seen[h] = n
				break
			}
		}
		taken[name] = true
		headers[i] = name
	}
	return headers
}

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
