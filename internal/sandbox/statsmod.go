package sandbox

import (
	"github.com/montanaflynn/stats"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// statsModule exposes a small numeric toolkit to generated code. Each
// function takes a list of numbers (None entries are skipped, matching
// how missing cells surface from dataset.column).
func statsModule() *starlarkstruct.Module {
	unary := func(name string, fn func(stats.Float64Data) (float64, error)) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &v); err != nil {
				return nil, err
			}
			data, err := floatSlice(v)
			if err != nil {
				return nil, err
			}
			out, err := fn(data)
			if err != nil {
				return nil, err
			}
			return starlark.Float(out), nil
		})
	}

	correlation := starlark.NewBuiltin("correlation", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var xv, yv starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &xv, "y", &yv); err != nil {
			return nil, err
		}
		x, err := floatSlice(xv)
		if err != nil {
			return nil, err
		}
		y, err := floatSlice(yv)
		if err != nil {
			return nil, err
		}
		r, err := stats.Pearson(x, y)
		if err != nil {
			return nil, err
		}
		return starlark.Float(r), nil
	})

	mod := &starlarkstruct.Module{
		Name: "stats",
		Members: starlark.StringDict{
			"mean":        unary("mean", stats.Mean),
			"median":      unary("median", stats.Median),
			"stdev":       unary("stdev", stats.StandardDeviationSample),
			"variance":    unary("variance", stats.SampleVariance),
			"min":         unary("min", stats.Min),
			"max":         unary("max", stats.Max),
			"sum":         unary("sum", stats.Sum),
			"correlation": correlation,
		},
	}
	for _, v := range mod.Members {
		v.Freeze()
	}
	return mod
}
