// Package transformer defines the cleaning-step abstraction. A step receives
// a Frame (ordered column names plus records) and returns the frame for the
// next step; steps may mutate records in place.
package transformer

import "tfletl/pkg/records"

// Frame is a tabular batch. Columns fixes the column order, which records
// (maps) cannot carry themselves.
type Frame struct {
	Columns []string
	Records []records.Record
}

// HasColumn reports whether name is one of f's columns.
func (f Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

type Transformer interface{ Apply(Frame) Frame }

// Func adapts an ordinary function to Transformer.
type Func func(Frame) Frame

func (fn Func) Apply(f Frame) Frame { return fn(f) }

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in Frame) Frame {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
