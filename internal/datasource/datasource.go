// Package datasource abstracts where the raw ridership bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens the raw input. Path names the input in logs and errors.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Path() string
}
