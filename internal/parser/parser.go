package parser

import (
	"io"

	"tfletl/pkg/records"
)

// Parser decodes a delimited stream into its header and one record per
// data row, keyed by header.
type Parser interface {
	Parse(r io.Reader) (headers []string, recs []records.Record, err error)
}
