// Package builtin contains the cleaning steps used by the preparer.
//
// DeDup collapses duplicate records and chooses a winner according to a
// policy:
//
//   - "keep-first"   : keep the earliest occurrence (default)
//   - "keep-last"    : keep the latest occurrence
//   - "most-complete": keep the record with the most non-empty fields;
//     ties break by "keep-last"
//
// With no Keys the whole row, in frame column order, is the key, so only
// exact duplicates collapse. Rows are fingerprinted with 128-bit xxh3 over
// a length-prefixed encoding of the key values.
package builtin

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"tfletl/internal/transformer"
	"tfletl/pkg/records"

	"github.com/zeebo/xxh3"
)

// DeDup implements a configurable, in-memory de-duplication policy.
type DeDup struct {
	// Keys are the fields forming the business key. Empty means every column.
	Keys []string

	// Policy selects the winner among duplicates.
	Policy string
}

// Apply returns a frame holding only the winning record of each key, in
// ascending order of the winners' original positions.
func (d DeDup) Apply(in transformer.Frame) transformer.Frame {
	if len(in.Records) == 0 {
		return in
	}
	keys := d.Keys
	if len(keys) == 0 {
		keys = in.Columns
	}
	if len(keys) == 0 {
		return in
	}

	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = "keep-first"
	}

	type slot struct {
		index int
		score int
	}
	winners := make(map[xxh3.Uint128]slot, len(in.Records))

	h := xxh3.New()
	var buf []byte
	for i, r := range in.Records {
		h.Reset()
		for _, k := range keys {
			buf = appendValue(buf[:0], r[k])
			_, _ = h.Write(buf)
		}
		sum := h.Sum128()

		switch policy {
		case "keep-last":
			winners[sum] = slot{index: i}
		case "most-complete":
			s := slot{index: i, score: completeness(r)}
			if prev, ok := winners[sum]; !ok || s.score >= prev.score {
				winners[sum] = s
			}
		default:
			if _, ok := winners[sum]; !ok {
				winners[sum] = slot{index: i}
			}
		}
	}

	if len(winners) == len(in.Records) {
		return in
	}

	idx := make([]int, 0, len(winners))
	for _, s := range winners {
		idx = append(idx, s.index)
	}
	sort.Ints(idx)

	out := make([]records.Record, len(idx))
	for i, j := range idx {
		out[i] = in.Records[j]
	}
	in.Records = out
	return in
}

// appendValue writes a type tag, a length and the textual value, so that
// ("ab","c") and ("a","bc") or nil and "" never collide.
func appendValue(b []byte, v any) []byte {
	var s string
	tag := byte('s')
	switch t := v.(type) {
	case nil:
		return append(b, 0)
	case string:
		s = t
	default:
		tag = 'v'
		s = fmt.Sprint(t)
	}
	b = append(b, tag)
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func completeness(r records.Record) int {
	n := 0
	for _, v := range r {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		n++
	}
	return n
}
