package builtin

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tfletl/internal/logging"
	"tfletl/internal/transformer"
)

// Coercion kinds understood by Coerce.
const (
	KindInt   = "int"
	KindFloat = "float"
	KindDate  = "date"
)

// Coerce converts raw cells into typed values:
//
//   - "int"   -> int64; unparsable values become nil
//   - "float" -> float64; unparsable or empty values become 0
//   - "date"  -> time.Time (UTC midnight) parsed with Layout; unparsable
//     values become nil
//
// Columns absent from the frame are logged at warn level and skipped.
type Coerce struct {
	Types  map[string]string // field -> kind
	Layout string            // date layout
	Logger *slog.Logger
}

func (c Coerce) Apply(in transformer.Frame) transformer.Frame {
	if len(c.Types) == 0 {
		return in
	}
	log := logging.OrDiscard(c.Logger)

	fields := make([]string, 0, len(c.Types))
	for f := range c.Types {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		kind := c.Types[field]
		if !in.HasColumn(field) {
			log.Warn("column missing, skipping coercion", "column", field, "kind", kind)
			continue
		}

		var conv func(any) (any, bool)
		switch kind {
		case KindInt:
			conv = toInt
		case KindFloat:
			conv = toFloat
		case KindDate:
			conv = func(v any) (any, bool) { return toDate(v, c.Layout) }
		default:
			log.Warn("unknown coercion kind", "column", field, "kind", kind)
			continue
		}

		failed := 0
		for _, r := range in.Records {
			v, ok := conv(r[field])
			if !ok {
				failed++
			}
			r[field] = v
		}
		if failed > 0 {
			log.Debug("coercion fell back to default", "column", field, "kind", kind, "rows", failed)
		}
	}
	return in
}

// toInt reports ok=false only for a present value that could not be parsed.
func toInt(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
		return nil, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, true
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return nil, false
}

func toFloat(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return 0.0, true
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0.0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0.0, false
}

func toDate(v any, layout string) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case time.Time:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, true
		}
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC(), true
		}
	}
	return nil, false
}
