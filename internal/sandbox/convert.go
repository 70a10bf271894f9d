package sandbox

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/bioviz/bioviz/internal/dataset"
)

// toStarlark converts a frame cell into a Starlark value.
func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	case time.Time:
		return starlark.String(x.Format(time.RFC3339))
	case string:
		return starlark.String(x)
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

// fromStarlark converts a Starlark value into a JSON-friendly Go value.
func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case *starlark.List:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			out = append(out, fromStarlark(x.Index(i)))
		}
		return out
	case starlark.Tuple:
		out := make([]any, 0, len(x))
		for _, e := range x {
			out = append(out, fromStarlark(e))
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			val, _, _ := x.Get(k)
			out[fmt.Sprint(fromStarlark(k))] = fromStarlark(val)
		}
		return out
	default:
		return v.String()
	}
}

// floatSlice extracts numbers from a Starlark sequence, skipping None.
func floatSlice(v starlark.Value) ([]float64, error) {
	seq, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("want a list of numbers, got %s", v.Type())
	}
	var out []float64
	it := seq.Iterate()
	defer it.Done()
	var e starlark.Value
	for it.Next(&e) {
		switch x := e.(type) {
		case starlark.NoneType:
			continue
		case starlark.Int:
			n, _ := x.Int64()
			out = append(out, float64(n))
		case starlark.Float:
			out = append(out, float64(x))
		default:
			return nil, fmt.Errorf("want a number, got %s", e.Type())
		}
	}
	return out, nil
}

// datasetModule exposes a read-only view of the frame to generated code.
// All member values are frozen, so snippets cannot mutate the caller's
// copy of the dataset.
func datasetModule(f *dataset.Frame) *starlarkstruct.Module {
	colNames := starlark.NewList(nil)
	for _, n := range f.ColumnNames() {
		_ = colNames.Append(starlark.String(n))
	}

	columnFn := starlark.NewBuiltin("column", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		col, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		list := starlark.NewList(nil)
		for _, v := range col.Values {
			_ = list.Append(toStarlark(v))
		}
		list.Freeze()
		return list, nil
	})

	headFn := starlark.NewBuiltin("head", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		n := 10
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
			return nil, err
		}
		rows := starlark.NewList(nil)
		for _, row := range f.Rows(0, n) {
			d := starlark.NewDict(len(row))
			for _, name := range f.ColumnNames() {
				_ = d.SetKey(starlark.String(name), toStarlark(row[name]))
			}
			_ = rows.Append(d)
		}
		rows.Freeze()
		return rows, nil
	})

	mod := &starlarkstruct.Module{
		Name: "dataset",
		Members: starlark.StringDict{
			"columns":  colNames,
			"num_rows": starlark.MakeInt(f.RowCount()),
			"column":   columnFn,
			"head":     headFn,
		},
	}
	for _, v := range mod.Members {
		v.Freeze()
	}
	return mod
}
