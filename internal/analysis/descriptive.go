package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/viz"
)

const maxDistributionColumns = 5

// Descriptive produces summary statistics, distributions and a
// correlation matrix for a dataset.
type Descriptive struct{}

func (d *Descriptive) Config() MethodConfig {
	return MethodConfig{
		Name:        "Descriptive Analysis",
		Description: "Basic statistics and distributions of variables",
		Parameters: map[string]map[string]any{
			"include_outliers": {
				"type":        "boolean",
				"description": "Include outliers in boxplots and histograms",
				"default":     true,
			},
			"correlation_method": {
				"type":        "string",
				"description": "Method for calculating correlations",
				"options":     []string{"pearson", "spearman"},
				"default":     "pearson",
			},
			"bins": {
				"type":        "integer",
				"description": "Number of bins for histograms",
				"min":         5,
				"max":         100,
				"default":     20,
			},
		},
		SupportsCategorical:   true,
		SupportsNumerical:     true,
		DefaultVisualizations: []string{"histogram", "boxplot", "correlation"},
	}
}

func (d *Descriptive) Metadata() map[string]any {
	return map[string]any{
		"name":        "Descriptive Analysis",
		"description": "Provides summary statistics and distributions of variables in the dataset",
		"use_cases": []string{
			"Understanding data distributions",
			"Identifying outliers",
			"Examining relationships between variables",
			"Getting basic insights about the dataset",
		},
		"visualizations": []map[string]string{
			{"name": "Histogram", "description": "Distribution of numeric variables"},
			{"name": "Boxplot", "description": "Five-number summary with outliers"},
			{"name": "Correlation Matrix", "description": "Correlation between numeric variables"},
			{"name": "Bar Chart", "description": "Distribution of categorical variables"},
		},
		"limitations": []string{
			"Only shows associations, not causation",
			"Limited for time-series analysis",
		},
	}
}

func (d *Descriptive) Run(f *dataset.Frame, params map[string]any) (*Result, error) {
	includeOutliers := paramBool(params, "include_outliers", true)
	corrMethod := paramString(params, "correlation_method", "pearson")
	bins := paramInt(params, "bins", 20)
	if bins < 5 {
		bins = 5
	}
	if bins > 100 {
		bins = 100
	}

	numericCols := f.NumericColumnNames()
	categoricalCols := f.CategoricalColumnNames()

	res := &Result{
		Summary: map[string]any{},
		Metadata: map[string]any{
			"analyzed_columns":    f.ColumnNames(),
			"numeric_columns":     numericCols,
			"categorical_columns": categoricalCols,
			"parameters":          params,
		},
	}

	if len(numericCols) > 0 {
		res.Summary["numeric_stats"] = describeNumeric(f, numericCols)

		limit := len(numericCols)
		if limit > maxDistributionColumns {
			limit = maxDistributionColumns
		}
		for _, name := range numericCols[:limit] {
			col, _ := f.Column(name)
			if v, ok := histogram(col, bins); ok {
				res.Visualizations = append(res.Visualizations, v)
			}
		}

		res.Visualizations = append(res.Visualizations, boxplot(f, numericCols[:limit], includeOutliers))

		if len(numericCols) >= 2 {
			matrix := correlationMatrix(f, numericCols, corrMethod)
			res.Visualizations = append(res.Visualizations, correlationHeatmap(numericCols, matrix))
			res.Tables = append(res.Tables, correlationTable(numericCols, matrix))
		}
	}

	if len(categoricalCols) > 0 {
		catSummary := map[string]any{}
		for _, name := range categoricalCols {
			col, _ := f.Column(name)
			counts := valueCounts(col, f.RowCount())
			catSummary[name] = counts
			if len(counts) <= 20 {
				res.Visualizations = append(res.Visualizations, categoricalBar(name, counts))
			}
		}
		res.Summary["categorical_stats"] = catSummary
	}

	if missing := missingSummary(f); len(missing) > 0 {
		res.Summary["missing_data"] = missing
		res.Visualizations = append(res.Visualizations, missingBar(missing))
	}

	res.Summary["dataset_info"] = map[string]any{
		"row_count":           f.RowCount(),
		"column_count":        f.ColumnCount(),
		"numeric_columns":     len(numericCols),
		"categorical_columns": len(categoricalCols),
	}

	return res, nil
}

// describeNumeric returns one row per numeric column with count, mean,
// std, min, quartiles and max.
func describeNumeric(f *dataset.Frame, names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		col, _ := f.Column(name)
		vals := col.Float64s()
		row := map[string]any{"variable": name, "count": len(vals)}
		if len(vals) > 0 {
			mean, _ := stats.Mean(vals)
			std, _ := stats.StandardDeviationSample(vals)
			min, _ := stats.Min(vals)
			max, _ := stats.Max(vals)
			q1, _ := stats.Percentile(vals, 25)
			q2, _ := stats.Percentile(vals, 50)
			q3, _ := stats.Percentile(vals, 75)
			row["mean"] = round2(mean)
			row["std"] = round2(std)
			row["min"] = round2(min)
			row["25%"] = round2(q1)
			row["50%"] = round2(q2)
			row["75%"] = round2(q3)
			row["max"] = round2(max)
		}
		out = append(out, row)
	}
	return out
}

// histogram bins the column into equal-width intervals. Returns false
// for columns with no non-missing values.
func histogram(col *dataset.Column, bins int) (viz.Visualization, bool) {
	vals := col.Float64s()
	if len(vals) == 0 {
		return viz.Visualization{}, false
	}
	min, _ := stats.Min(vals)
	max, _ := stats.Max(vals)
	width := (max - min) / float64(bins)
	if width == 0 {
		width = 1
		bins = 1
	}

	counts := make([]int, bins)
	for _, v := range vals {
		i := int((v - min) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}

	labels := make([]string, bins)
	for i := 0; i < bins; i++ {
		labels[i] = fmt.Sprintf("%.4g to %.4g", min+float64(i)*width, min+float64(i+1)*width)
	}

	v := viz.NewVisualization("histogram")
	v.Data["x"] = labels
	v.Data["y"] = counts
	v.Layout["title"] = fmt.Sprintf("Distribution of %s", col.Name)
	v.Layout["xaxis"] = map[string]any{"title": col.Name}
	v.Layout["yaxis"] = map[string]any{"title": "count"}
	v.Config = map[string]any{"responsive": true}
	return v, true
}

// boxplot carries the five-number summary per column so the frontend
// can render boxes without the raw values.
func boxplot(f *dataset.Frame, names []string, includeOutliers bool) viz.Visualization {
	var series []map[string]any
	for _, name := range names {
		col, _ := f.Column(name)
		vals := col.Float64s()
		if len(vals) == 0 {
			continue
		}
		min, _ := stats.Min(vals)
		max, _ := stats.Max(vals)
		q1, _ := stats.Percentile(vals, 25)
		q2, _ := stats.Percentile(vals, 50)
		q3, _ := stats.Percentile(vals, 75)
		entry := map[string]any{
			"variable": name,
			"min":      round2(min),
			"q1":       round2(q1),
			"median":   round2(q2),
			"q3":       round2(q3),
			"max":      round2(max),
		}
		if includeOutliers {
			iqr := q3 - q1
			lo, hi := q1-1.5*iqr, q3+1.5*iqr
			var outliers []float64
			for _, x := range vals {
				if x < lo || x > hi {
					outliers = append(outliers, round2(x))
				}
			}
			entry["outliers"] = outliers
		}
		series = append(series, entry)
	}

	v := viz.NewVisualization("boxplot")
	v.Data["series"] = series
	v.Layout["title"] = "Boxplots of Numeric Variables"
	v.Config = map[string]any{"responsive": true}
	return v
}

// correlationMatrix computes pairwise correlations over rows where both
// columns are present. Method is "pearson" or "spearman"; unknown
// methods fall back to pearson.
func correlationMatrix(f *dataset.Frame, names []string, method string) [][]float64 {
	matrix := make([][]float64, len(names))
	for i := range names {
		matrix[i] = make([]float64, len(names))
		matrix[i][i] = 1
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, _ := f.Column(names[i])
			b, _ := f.Column(names[j])
			x, y := pairedFloats(a, b)
			r := 0.0
			if len(x) >= 2 {
				if method == "spearman" {
					x, y = rankTransform(x), rankTransform(y)
				}
				if p, err := stats.Pearson(x, y); err == nil && !math.IsNaN(p) {
					r = p
				}
			}
			matrix[i][j] = round2(r)
			matrix[j][i] = matrix[i][j]
		}
	}
	return matrix
}

func correlationHeatmap(names []string, matrix [][]float64) viz.Visualization {
	v := viz.NewVisualization("heatmap")
	v.Data["x"] = names
	v.Data["y"] = names
	v.Data["z"] = matrix
	v.Layout["title"] = "Correlation Matrix"
	v.Config = map[string]any{"responsive": true}
	return v
}

func correlationTable(names []string, matrix [][]float64) viz.Table {
	t := viz.Table{
		Name:    "correlation_matrix",
		Title:   "Correlation Matrix",
		Columns: append([]string{"variable"}, names...),
	}
	for i, name := range names {
		row := map[string]any{"variable": name}
		for j, other := range names {
			row[other] = matrix[i][j]
		}
		t.Rows = append(t.Rows, row)
	}
	t.TotalRows = len(t.Rows)
	return t
}

// valueCounts returns distinct values with counts and percentages,
// most frequent first.
func valueCounts(col *dataset.Column, total int) []map[string]any {
	counts := map[string]int{}
	var order []string
	for _, v := range col.Values {
		if v == nil {
			continue
		}
		s := asString(v)
		if _, seen := counts[s]; !seen {
			order = append(order, s)
		}
		counts[s]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	out := make([]map[string]any, 0, len(order))
	for _, s := range order {
		pct := 0.0
		if total > 0 {
			pct = round2(float64(counts[s]) / float64(total) * 100)
		}
		out = append(out, map[string]any{"value": s, "count": counts[s], "percentage": pct})
	}
	return out
}

func categoricalBar(name string, counts []map[string]any) viz.Visualization {
	limit := len(counts)
	if limit > 10 {
		limit = 10
	}
	labels := make([]string, 0, limit)
	values := make([]int, 0, limit)
	for _, c := range counts[:limit] {
		labels = append(labels, c["value"].(string))
		values = append(values, c["count"].(int))
	}

	v := viz.NewVisualization("bar")
	v.Data["labels"] = labels
	v.Data["values"] = values
	v.Layout["title"] = fmt.Sprintf("Distribution of %s", name)
	v.Config = map[string]any{"responsive": true}
	return v
}

// missingSummary lists columns with at least one missing value.
func missingSummary(f *dataset.Frame) []map[string]any {
	var out []map[string]any
	for _, col := range f.Columns() {
		n := col.MissingCount()
		if n == 0 {
			continue
		}
		pct := 0.0
		if f.RowCount() > 0 {
			pct = round2(float64(n) / float64(f.RowCount()) * 100)
		}
		out = append(out, map[string]any{
			"column":             col.Name,
			"missing_count":      n,
			"missing_percentage": pct,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["missing_count"].(int) > out[j]["missing_count"].(int)
	})
	return out
}

func missingBar(missing []map[string]any) viz.Visualization {
	labels := make([]string, 0, len(missing))
	values := make([]float64, 0, len(missing))
	for _, m := range missing {
		labels = append(labels, m["column"].(string))
		values = append(values, m["missing_percentage"].(float64))
	}

	v := viz.NewVisualization("bar")
	v.Data["labels"] = labels
	v.Data["values"] = values
	v.Layout["title"] = "Missing Values (%)"
	v.Config = map[string]any{"responsive": true}
	return v
}

// pairedFloats returns aligned numeric pairs, dropping rows where either
// side is missing.
func pairedFloats(a, b *dataset.Column) ([]float64, []float64) {
	n := len(a.Values)
	if len(b.Values) < n {
		n = len(b.Values)
	}
	var x, y []float64
	for i := 0; i < n; i++ {
		av, aok := asFloat(a.Values[i])
		bv, bok := asFloat(b.Values[i])
		if aok && bok {
			x = append(x, av)
			y = append(y, bv)
		}
	}
	return x, y
}

// rankTransform replaces values with their ranks, averaging ties.
func rankTransform(vals []float64) []float64 {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return vals[idx[i]] < vals[idx[j]] })

	ranks := make([]float64, len(vals))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
