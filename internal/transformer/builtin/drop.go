package builtin

import (
	"log/slog"

	"tfletl/internal/logging"
	"tfletl/internal/transformer"
)

// Drop removes the named columns when present. Absent columns are only
// noted at debug level.
type Drop struct {
	Columns []string
	Logger  *slog.Logger
}

func (d Drop) Apply(in transformer.Frame) transformer.Frame {
	if len(d.Columns) == 0 {
		return in
	}
	log := logging.OrDiscard(d.Logger)

	drop := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		if !in.HasColumn(c) {
			log.Debug("column to drop not present", "column", c)
			continue
		}
		drop[c] = struct{}{}
	}
	if len(drop) == 0 {
		return in
	}

	cols := make([]string, 0, len(in.Columns))
	for _, c := range in.Columns {
		if _, ok := drop[c]; !ok {
			cols = append(cols, c)
		}
	}
	for _, r := range in.Records {
		for c := range drop {
			delete(r, c)
		}
	}
	in.Columns = cols
	return in
}
