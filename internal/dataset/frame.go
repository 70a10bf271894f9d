package dataset

import (
	"fmt"
	"time"
)

// Kind is the inferred type of a column. The names follow the dtype
// vocabulary the frontend already understands.
type Kind string

const (
	KindInt    Kind = "int64"
	KindFloat  Kind = "float64"
	KindBool   Kind = "bool"
	KindTime   Kind = "datetime64"
	KindString Kind = "object"
)

// Column holds one column of values. A nil entry is a missing value.
// Values are normalized per kind: int64, float64, bool, time.Time, string.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// IsNumeric reports whether the column participates in numeric analyses.
func (c *Column) IsNumeric() bool {
	return c.Kind == KindInt || c.Kind == KindFloat
}

// Float64s returns the non-missing values converted to float64.
func (c *Column) Float64s() []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		switch x := v.(type) {
		case int64:
			out = append(out, float64(x))
		case float64:
			out = append(out, x)
		}
	}
	return out
}

// MissingCount returns the number of nil entries.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// Frame is an immutable in-memory table. Mutating methods are deliberately
// absent; the sandbox and analysis code receive read-only views.
type Frame struct {
	cols   []Column
	byName map[string]int
	rows   int
}

// NewFrame builds a frame from columns of equal length.
func NewFrame(cols []Column) (*Frame, error) {
	f := &Frame{cols: cols, byName: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			f.rows = len(c.Values)
		} else if len(c.Values) != f.rows {
			return nil, fmt.Errorf("dataset: column %q has %d values, want %d", c.Name, len(c.Values), f.rows)
		}
		if _, dup := f.byName[c.Name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", c.Name)
		}
		f.byName[c.Name] = i
	}
	return f, nil
}

func (f *Frame) RowCount() int    { return f.rows }
func (f *Frame) ColumnCount() int { return len(f.cols) }

func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return &f.cols[i], true
}

func (f *Frame) Columns() []Column { return f.cols }

// NumericColumnNames returns int/float columns in declaration order.
func (f *Frame) NumericColumnNames() []string {
	var names []string
	for i := range f.cols {
		if f.cols[i].IsNumeric() {
			names = append(names, f.cols[i].Name)
		}
	}
	return names
}

// CategoricalColumnNames returns string/bool columns in declaration order.
func (f *Frame) CategoricalColumnNames() []string {
	var names []string
	for i := range f.cols {
		if f.cols[i].Kind == KindString || f.cols[i].Kind == KindBool {
			names = append(names, f.cols[i].Name)
		}
	}
	return names
}

// Rows returns up to limit rows starting at start as JSON-friendly maps.
// time.Time values are rendered as RFC 3339 strings.
func (f *Frame) Rows(start, limit int) []map[string]any {
	if start < 0 {
		start = 0
	}
	if start >= f.rows || limit <= 0 {
		return []map[string]any{}
	}
	end := start + limit
	if end > f.rows {
		end = f.rows
	}
	out := make([]map[string]any, 0, end-start)
	for r := start; r < end; r++ {
		row := make(map[string]any, len(f.cols))
		for i := range f.cols {
			v := f.cols[i].Values[r]
			if t, ok := v.(time.Time); ok {
				v = t.Format(time.RFC3339)
			}
			row[f.cols[i].Name] = v
		}
		out = append(out, row)
	}
	return out
}

// Select returns a frame restricted to the named columns. Unknown names
// are ignored; an empty selection returns the frame unchanged.
func (f *Frame) Select(names []string) *Frame {
	if len(names) == 0 {
		return f
	}
	var cols []Column
	for _, n := range names {
		if i, ok := f.byName[n]; ok {
			cols = append(cols, f.cols[i])
		}
	}
	if len(cols) == 0 {
		return f
	}
	out, _ := NewFrame(cols)
	return out
}

// FilterRows returns a frame keeping only rows where keep[i] is true.
func (f *Frame) FilterRows(keep []bool) *Frame {
	cols := make([]Column, len(f.cols))
	for i := range f.cols {
		nc := Column{Name: f.cols[i].Name, Kind: f.cols[i].Kind}
		for r, v := range f.cols[i].Values {
			if r < len(keep) && keep[r] {
				nc.Values = append(nc.Values, v)
			}
		}
		cols[i] = nc
	}
	out, _ := NewFrame(cols)
	return out
}
