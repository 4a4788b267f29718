// Package records defines the generic row representation shared by the
// parser, the cleaning transformers and every warehouse backend.
package records

// Record is a single row keyed by column name. Values are nil, string (raw
// source cells), int64, float64 or time.Time once cleaned.
type Record map[string]any

// Clone returns a shallow copy of r. Values are immutable scalars, so a
// shallow copy is enough to let callers add or replace fields safely.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Int64 returns the value at key as an int64 when it holds an integer type.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	}
	return 0, false
}
