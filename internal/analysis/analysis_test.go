package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/bioviz/bioviz/internal/dataset"
)

type stubLoader struct {
	frame *dataset.Frame
	err   error
}

func (s *stubLoader) Load(context.Context, string) (*dataset.Frame, error) {
	return s.frame, s.err
}

func sampleFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	day := func(d int) time.Time {
		return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
	}
	f, err := dataset.NewFrame([]dataset.Column{
		{Name: "age", Kind: dataset.KindInt, Values: []any{int64(20), int64(30), int64(40), int64(50), nil}},
		{Name: "weight", Kind: dataset.KindFloat, Values: []any{50.0, 60.0, 70.0, 80.0, 90.0}},
		{Name: "group", Kind: dataset.KindString, Values: []any{"a", "a", "b", "b", "b"}},
		{Name: "visit", Kind: dataset.KindTime, Values: []any{day(1), day(2), day(15), time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), day(20)}},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func TestServiceAvailable(t *testing.T) {
	s := NewService(&stubLoader{})
	got := s.Available()
	for _, m := range []Method{MethodDescriptive, MethodDiagnostic, MethodTimeSeries} {
		cfg, ok := got[m]
		if !ok {
			t.Fatalf("method %s missing", m)
		}
		if cfg.Name == "" || cfg.Description == "" {
			t.Errorf("method %s has empty config: %+v", m, cfg)
		}
	}
}

func TestServiceUnknownMethod(t *testing.T) {
	s := NewService(&stubLoader{frame: sampleFrame(t)})
	if _, err := s.Run(context.Background(), Request{FileID: "x", Method: "predictive"}); err == nil {
		t.Fatal("want error for unknown method")
	}
	if _, err := s.Metadata("nope"); err == nil {
		t.Fatal("want error for unknown method metadata")
	}
}

func TestDescriptiveRun(t *testing.T) {
	s := NewService(&stubLoader{frame: sampleFrame(t)})
	resp, err := s.Run(context.Background(), Request{
		FileID: "f1",
		Method: MethodDescriptive,
		Params: map[string]any{"bins": float64(10)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := resp.Result

	rows, ok := res.Summary["numeric_stats"].([]map[string]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("numeric_stats = %#v", res.Summary["numeric_stats"])
	}
	if rows[0]["variable"] != "age" || rows[0]["mean"] != 35.0 {
		t.Errorf("age stats = %v", rows[0])
	}

	if _, ok := res.Summary["missing_data"]; !ok {
		t.Error("missing_data summary absent despite a nil cell")
	}
	if _, ok := res.Summary["categorical_stats"]; !ok {
		t.Error("categorical_stats absent")
	}

	var kinds []string
	for _, v := range res.Visualizations {
		kinds = append(kinds, v.Type)
	}
	want := map[string]bool{"histogram": false, "boxplot": false, "heatmap": false, "bar": false}
	for _, k := range kinds {
		want[k] = true
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("no %s visualization produced (got %v)", k, kinds)
		}
	}

	if len(res.Tables) != 1 || res.Tables[0].Name != "correlation_matrix" {
		t.Fatalf("tables = %+v", res.Tables)
	}
	// age and weight rise together in the sample.
	if got := res.Tables[0].Rows[0]["weight"]; got != 1.0 {
		t.Errorf("corr(age, weight) = %v, want 1", got)
	}
	if resp.ExecutionTime < 0 {
		t.Errorf("execution time = %v", resp.ExecutionTime)
	}
}

func TestDiagnosticRun(t *testing.T) {
	s := NewService(&stubLoader{frame: sampleFrame(t)})
	resp, err := s.Run(context.Background(), Request{FileID: "f1", Method: MethodDiagnostic})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tab := resp.Result.Tables[0]
	if tab.TotalRows != 1 {
		t.Fatalf("want 1 relationship, got %d", tab.TotalRows)
	}
	row := tab.Rows[0]
	if row["correlation"] != 1.0 || row["strength"] != "strong" {
		t.Errorf("relationship row = %v", row)
	}
}

func TestTimeSeriesRun(t *testing.T) {
	s := NewService(&stubLoader{frame: sampleFrame(t)})
	resp, err := s.Run(context.Background(), Request{
		FileID: "f1",
		Method: MethodTimeSeries,
		Params: map[string]any{"value_column": "weight", "period": "month", "aggregation": "count"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	tab := resp.Result.Tables[0]
	if tab.TotalRows != 2 {
		t.Fatalf("want 2 periods, got %d: %+v", tab.TotalRows, tab.Rows)
	}
	if tab.Rows[0]["period"] != "2024-01" || tab.Rows[0]["value"] != 4.0 {
		t.Errorf("first period = %v", tab.Rows[0])
	}
	if tab.Rows[1]["period"] != "2024-02" || tab.Rows[1]["value"] != 1.0 {
		t.Errorf("second period = %v", tab.Rows[1])
	}
}

func TestTimeSeriesRequiresDatetime(t *testing.T) {
	f, _ := dataset.NewFrame([]dataset.Column{
		{Name: "x", Kind: dataset.KindFloat, Values: []any{1.0, 2.0}},
	})
	s := NewService(&stubLoader{frame: f})
	if _, err := s.Run(context.Background(), Request{FileID: "f1", Method: MethodTimeSeries}); err == nil {
		t.Fatal("want error when no datetime column exists")
	}
}

func TestApplyFilters(t *testing.T) {
	f := sampleFrame(t)

	cases := []struct {
		name    string
		filters map[string]Filter
		rows    int
	}{
		{"equals", map[string]Filter{"group": {Operator: "==", Value: "a"}}, 2},
		{"not equals", map[string]Filter{"group": {Operator: "!=", Value: "a"}}, 3},
		{"greater", map[string]Filter{"weight": {Operator: ">", Value: 65.0}}, 3},
		{"between", map[string]Filter{"weight": {Operator: "between", Value: []any{55.0, 75.0}}}, 2},
		{"in", map[string]Filter{"group": {Operator: "in", Value: []any{"b"}}}, 3},
		{"not in", map[string]Filter{"group": {Operator: "not in", Value: []any{"b"}}}, 2},
		{"contains", map[string]Filter{"group": {Operator: "contains", Value: "a"}}, 2},
		{"is null", map[string]Filter{"age": {Operator: "is null"}}, 1},
		{"is not null", map[string]Filter{"age": {Operator: "is not null"}}, 4},
		{"unknown column skipped", map[string]Filter{"nope": {Operator: "==", Value: 1}}, 5},
		{"int value against int64 column", map[string]Filter{"age": {Operator: ">=", Value: float64(30)}}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := applyFilters(f, tc.filters)
			if got.RowCount() != tc.rows {
				t.Errorf("rows = %d, want %d", got.RowCount(), tc.rows)
			}
		})
	}
}

func TestFiltersViaService(t *testing.T) {
	s := NewService(&stubLoader{frame: sampleFrame(t)})
	resp, err := s.Run(context.Background(), Request{
		FileID:  "f1",
		Method:  MethodDescriptive,
		Filters: map[string]Filter{"group": {Operator: "==", Value: "b"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	info := resp.Result.Summary["dataset_info"].(map[string]any)
	if info["row_count"] != 3 {
		t.Errorf("filtered row_count = %v, want 3", info["row_count"])
	}
}

func TestRankTransform(t *testing.T) {
	got := rankTransform([]float64{10, 30, 20, 30})
	want := []float64{1, 3.5, 2, 3.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranks = %v, want %v", got, want)
		}
	}
}
