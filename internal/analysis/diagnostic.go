package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/viz"
)

// Diagnostic ranks pairwise relationships between numeric variables to
// point at candidate drivers worth investigating.
type Diagnostic struct{}

func (d *Diagnostic) Config() MethodConfig {
	return MethodConfig{
		Name:        "Diagnostic Analysis",
		Description: "Ranks variable relationships by correlation strength",
		Parameters: map[string]map[string]any{
			"correlation_method": {
				"type":        "string",
				"description": "Method for calculating correlations",
				"options":     []string{"pearson", "spearman"},
				"default":     "pearson",
			},
			"min_strength": {
				"type":        "number",
				"description": "Minimum absolute correlation to report",
				"min":         0,
				"max":         1,
				"default":     0.1,
			},
		},
		SupportsCategorical:   false,
		SupportsNumerical:     true,
		DefaultVisualizations: []string{"bar"},
	}
}

func (d *Diagnostic) Metadata() map[string]any {
	return map[string]any{
		"name":        "Diagnostic Analysis",
		"description": "Finds and ranks the strongest pairwise relationships between numeric variables",
		"use_cases": []string{
			"Identifying candidate drivers of an outcome",
			"Screening variables before modelling",
		},
		"visualizations": []map[string]string{
			{"name": "Bar Chart", "description": "Relationships ranked by absolute correlation"},
		},
		"limitations": []string{
			"Only shows associations, not causation",
			"Linear (or monotonic) relationships only",
		},
	}
}

func (d *Diagnostic) Run(f *dataset.Frame, params map[string]any) (*Result, error) {
	method := paramString(params, "correlation_method", "pearson")
	minStrength := paramFloat(params, "min_strength", 0.1)

	names := f.NumericColumnNames()

	type pair struct {
		a, b string
		r    float64
	}
	var pairs []pair
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, _ := f.Column(names[i])
			b, _ := f.Column(names[j])
			x, y := pairedFloats(a, b)
			if len(x) < 2 {
				continue
			}
			if method == "spearman" {
				x, y = rankTransform(x), rankTransform(y)
			}
			r, err := stats.Pearson(x, y)
			if err != nil || math.IsNaN(r) {
				continue
			}
			if math.Abs(r) >= minStrength {
				pairs = append(pairs, pair{names[i], names[j], round2(r)})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].r) > math.Abs(pairs[j].r)
	})

	res := &Result{
		Summary: map[string]any{
			"relationship_count": len(pairs),
			"method":             method,
		},
		Metadata: map[string]any{
			"analyzed_columns": names,
			"parameters":       params,
		},
	}

	t := viz.Table{
		Name:    "relationships",
		Title:   "Variable Relationships",
		Columns: []string{"variable_a", "variable_b", "correlation", "strength"},
	}
	var labels []string
	var values []float64
	for _, p := range pairs {
		t.Rows = append(t.Rows, map[string]any{
			"variable_a":  p.a,
			"variable_b":  p.b,
			"correlation": p.r,
			"strength":    strengthLabel(p.r),
		})
		labels = append(labels, p.a+" / "+p.b)
		values = append(values, p.r)
	}
	t.TotalRows = len(t.Rows)
	res.Tables = append(res.Tables, t)

	if len(pairs) > 0 {
		v := viz.NewVisualization("bar")
		v.Data["labels"] = labels
		v.Data["values"] = values
		v.Layout["title"] = "Relationships by Correlation"
		v.Config = map[string]any{"responsive": true}
		res.Visualizations = append(res.Visualizations, v)
	}

	return res, nil
}

func strengthLabel(r float64) string {
	switch abs := math.Abs(r); {
	case abs >= 0.7:
		return "strong"
	case abs >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
