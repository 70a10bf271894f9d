package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/viz"
)

// TimeSeries aggregates a numeric column over time buckets and renders
// the trend as a line chart.
type TimeSeries struct{}

func (t *TimeSeries) Config() MethodConfig {
	return MethodConfig{
		Name:        "Time Series Analysis",
		Description: "Aggregates a value over time periods and shows the trend",
		Parameters: map[string]map[string]any{
			"time_column": {
				"type":        "string",
				"description": "Datetime column to bucket by; defaults to the first datetime column",
				"default":     "",
			},
			"value_column": {
				"type":        "string",
				"description": "Numeric column to aggregate; defaults to the first numeric column",
				"default":     "",
			},
			"period": {
				"type":        "string",
				"description": "Bucket size",
				"options":     []string{"day", "week", "month", "year"},
				"default":     "month",
			},
			"aggregation": {
				"type":        "string",
				"description": "How to combine values within a bucket",
				"options":     []string{"mean", "sum", "count", "min", "max"},
				"default":     "mean",
			},
		},
		SupportsCategorical:   false,
		SupportsNumerical:     true,
		DefaultVisualizations: []string{"line"},
	}
}

func (t *TimeSeries) Metadata() map[string]any {
	return map[string]any{
		"name":        "Time Series Analysis",
		"description": "Buckets a numeric variable by a datetime column and aggregates per period",
		"use_cases": []string{
			"Spotting trends and seasonality",
			"Summarizing measurements over time",
		},
		"visualizations": []map[string]string{
			{"name": "Line Chart", "description": "Aggregated value per time period"},
		},
		"limitations": []string{
			"Requires a datetime column",
			"No decomposition or forecasting",
		},
	}
}

func (t *TimeSeries) Run(f *dataset.Frame, params map[string]any) (*Result, error) {
	timeCol := paramString(params, "time_column", firstColumnOfKind(f, dataset.KindTime))
	valueCol := paramString(params, "value_column", firstNumeric(f))
	period := paramString(params, "period", "month")
	agg := paramString(params, "aggregation", "mean")

	if timeCol == "" {
		return nil, fmt.Errorf("time series analysis requires a datetime column")
	}
	tc, ok := f.Column(timeCol)
	if !ok || tc.Kind != dataset.KindTime {
		return nil, fmt.Errorf("column %q is not a datetime column", timeCol)
	}
	if valueCol == "" {
		return nil, fmt.Errorf("time series analysis requires a numeric column")
	}
	vc, ok := f.Column(valueCol)
	if !ok || !vc.IsNumeric() {
		return nil, fmt.Errorf("column %q is not a numeric column", valueCol)
	}

	buckets := map[string][]float64{}
	for i := 0; i < f.RowCount(); i++ {
		ts, tok := tc.Values[i].(time.Time)
		v, vok := asFloat(vc.Values[i])
		if !tok || !vok {
			continue
		}
		buckets[bucketKey(ts, period)] = append(buckets[bucketKey(ts, period)], v)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]float64, 0, len(keys))
	tab := viz.Table{
		Name:    "time_series",
		Title:   fmt.Sprintf("%s of %s per %s", agg, valueCol, period),
		Columns: []string{"period", "value", "observations"},
	}
	for _, k := range keys {
		v := aggregate(buckets[k], agg)
		values = append(values, v)
		tab.Rows = append(tab.Rows, map[string]any{
			"period":       k,
			"value":        v,
			"observations": len(buckets[k]),
		})
	}
	tab.TotalRows = len(tab.Rows)

	line := viz.NewVisualization("line")
	line.Data["x"] = keys
	line.Data["y"] = values
	line.Layout["title"] = fmt.Sprintf("%s of %s over time", agg, valueCol)
	line.Layout["xaxis"] = map[string]any{"title": period}
	line.Layout["yaxis"] = map[string]any{"title": valueCol}
	line.Config = map[string]any{"responsive": true}

	return &Result{
		Summary: map[string]any{
			"periods":      len(keys),
			"time_column":  timeCol,
			"value_column": valueCol,
			"aggregation":  agg,
		},
		Visualizations: []viz.Visualization{line},
		Tables:         []viz.Table{tab},
		Metadata: map[string]any{
			"analyzed_columns": []string{timeCol, valueCol},
			"parameters":       params,
		},
	}, nil
}

func bucketKey(ts time.Time, period string) string {
	switch period {
	case "day":
		return ts.Format("2006-01-02")
	case "week":
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case "year":
		return ts.Format("2006")
	default: // month
		return ts.Format("2006-01")
	}
}

func aggregate(vals []float64, agg string) float64 {
	if len(vals) == 0 {
		return 0
	}
	var out float64
	switch agg {
	case "sum":
		out, _ = stats.Sum(vals)
	case "count":
		out = float64(len(vals))
	case "min":
		out, _ = stats.Min(vals)
	case "max":
		out, _ = stats.Max(vals)
	default: // mean
		out, _ = stats.Mean(vals)
	}
	return round2(out)
}

func firstColumnOfKind(f *dataset.Frame, kind dataset.Kind) string {
	for _, c := range f.Columns() {
		if c.Kind == kind {
			return c.Name
		}
	}
	return ""
}

func firstNumeric(f *dataset.Frame) string {
	names := f.NumericColumnNames()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
