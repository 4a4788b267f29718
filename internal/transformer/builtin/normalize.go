package builtin

import (
	"fmt"
	"strings"
	"unicode"

	"tfletl/internal/transformer"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TrimValues trims surrounding whitespace from string cells and replaces
// the mis-decoded NBSP ("Â ") that spreadsheet exports leave behind.
// Whitespace-only cells become nil.
type TrimValues struct{}

func (TrimValues) Apply(in transformer.Frame) transformer.Frame {
	for _, r := range in.Records {
		for k, v := range r {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(strings.ReplaceAll(s, "Â ", " "))
			if s == "" {
				r[k] = nil
				continue
			}
			r[k] = s
		}
	}
	return in
}

// RenameColumns rewrites every column name with NormalizeColumnName. Names
// that normalize to nothing become "col_<index>"; a name already taken gets
// a "_2", "_3", ... suffix.
type RenameColumns struct {
	FoldAccents bool
}

func (rc RenameColumns) Apply(in transformer.Frame) transformer.Frame {
	names := make([]string, len(in.Columns))
	seen := make(map[string]int, len(in.Columns))
	changed := false
	for i, col := range in.Columns {
		name := NormalizeColumnName(col, rc.FoldAccents)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		if n := seen[name]; n > 0 {
			base := name
			for {
				n++
				name = fmt.Sprintf("%s_%d", base, n)
				if seen[name] == 0 {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 1
		names[i] = name
		if name != col {
			changed = true
		}
	}
	if !changed {
		return in
	}

	for j, r := range in.Records {
		out := make(map[string]any, len(r))
		for i, col := range in.Columns {
			if v, ok := r[col]; ok {
				out[names[i]] = v
			}
		}
		in.Records[j] = out
	}
	in.Columns = names
	return in
}

// NormalizeColumnName maps a source header onto an identifier matching
// ^[a-z0-9_]*$: every space (leading and trailing ones included) becomes an
// underscore, every other character outside [A-Za-z0-9_] is dropped, and the
// result is lowercased. With fold set, accented letters are first reduced to
// their base letter ("é" -> "e") instead of being dropped.
func NormalizeColumnName(s string, fold bool) string {
	if fold {
		if folded, _, err := transform.String(accentFolder(), s); err == nil {
			s = folded
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '_', r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// accentFolder decomposes, drops combining marks and recomposes. A chain
// carries state, so a fresh one is built per call.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
