package dataset

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

const sampleCSV = `age,weight,active,visit,name
20,50.5,true,2024-01-01,alice
30,60.0,false,2024-01-02,bob
,70.5,true,2024-02-01,carol
50,80.0,false,2024-02-15,
`

func TestParseCSVInference(t *testing.T) {
	f, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if f.RowCount() != 4 || f.ColumnCount() != 5 {
		t.Fatalf("got %d rows %d cols, want 4 rows 5 cols", f.RowCount(), f.ColumnCount())
	}

	wantKinds := map[string]Kind{
		"age":    KindInt,
		"weight": KindFloat,
		"active": KindBool,
		"visit":  KindTime,
		"name":   KindString,
	}
	for name, want := range wantKinds {
		c, ok := f.Column(name)
		if !ok {
			t.Fatalf("column %q missing", name)
		}
		if c.Kind != want {
			t.Errorf("column %q kind = %s, want %s", name, c.Kind, want)
		}
	}

	age, _ := f.Column("age")
	if age.Values[0] != int64(20) {
		t.Errorf("age[0] = %v (%T), want int64 20", age.Values[0], age.Values[0])
	}
	if age.Values[2] != nil {
		t.Errorf("age[2] = %v, want nil for empty cell", age.Values[2])
	}
	if age.MissingCount() != 1 {
		t.Errorf("age missing = %d, want 1", age.MissingCount())
	}

	visit, _ := f.Column("visit")
	ts, ok := visit.Values[0].(time.Time)
	if !ok || ts.Year() != 2024 || ts.Month() != time.January {
		t.Errorf("visit[0] = %v, want January 2024 time", visit.Values[0])
	}
}

func TestParseCSVBlankHeader(t *testing.T) {
	f, err := ParseCSV(strings.NewReader("a,,c\n1,2,3\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if _, ok := f.Column("column_2"); !ok {
		t.Errorf("blank header not renamed, columns = %v", f.ColumnNames())
	}
}

func TestParseCSVRaggedRows(t *testing.T) {
	f, err := ParseCSV(strings.NewReader("a,b\n1,2\n3\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	b, _ := f.Column("b")
	if b.Values[1] != nil {
		t.Errorf("short row cell = %v, want nil", b.Values[1])
	}
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	rows := [][]any{
		{"id", "score", "label"},
		{1, 9.5, "x"},
		{2, 8.25, "y"},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := wb.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	f, err := ParseXLSX(path)
	if err != nil {
		t.Fatalf("ParseXLSX: %v", err)
	}
	if f.RowCount() != 2 {
		t.Fatalf("rows = %d, want 2", f.RowCount())
	}
	id, _ := f.Column("id")
	if id.Kind != KindInt {
		t.Errorf("id kind = %s, want %s", id.Kind, KindInt)
	}
	score, _ := f.Column("score")
	if score.Kind != KindFloat {
		t.Errorf("score kind = %s, want %s", score.Kind, KindFloat)
	}
}

func TestParseFileUnsupported(t *testing.T) {
	if _, err := ParseFile("data.txt"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}

func TestFrameDuplicateColumn(t *testing.T) {
	_, err := NewFrame([]Column{
		{Name: "a", Kind: KindInt, Values: []any{int64(1)}},
		{Name: "a", Kind: KindInt, Values: []any{int64(2)}},
	})
	if err == nil {
		t.Fatal("want error for duplicate column")
	}
}

func TestFrameSelectAndFilter(t *testing.T) {
	f, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	sel := f.Select([]string{"age", "nope"})
	if sel.ColumnCount() != 1 {
		t.Fatalf("select cols = %d, want 1", sel.ColumnCount())
	}
	if all := f.Select(nil); all.ColumnCount() != 5 {
		t.Errorf("empty selection cols = %d, want 5", all.ColumnCount())
	}

	kept := f.FilterRows([]bool{true, false, false, true})
	if kept.RowCount() != 2 {
		t.Fatalf("filtered rows = %d, want 2", kept.RowCount())
	}
	name, _ := kept.Column("name")
	if name.Values[0] != "alice" {
		t.Errorf("name[0] = %v, want alice", name.Values[0])
	}
}

func TestSummarize(t *testing.T) {
	f, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	info := Summarize(f, "csv")
	if info.RowCount != 4 || info.FileType != "csv" {
		t.Fatalf("info = %+v", info)
	}

	byName := make(map[string]ColumnInfo)
	for _, ci := range info.Columns {
		byName[ci.Name] = ci
	}

	age := byName["age"]
	if !age.Nullable || age.MissingCount != 1 {
		t.Errorf("age nullable=%v missing=%d, want true/1", age.Nullable, age.MissingCount)
	}
	if age.MissingPercentage != 25 {
		t.Errorf("age missing pct = %v, want 25", age.MissingPercentage)
	}
	if age.MinValue == nil || *age.MinValue != 20 || age.MaxValue == nil || *age.MaxValue != 50 {
		t.Errorf("age min/max = %v/%v, want 20/50", age.MinValue, age.MaxValue)
	}
	if age.UniqueValues != 3 {
		t.Errorf("age unique = %d, want 3", age.UniqueValues)
	}

	name := byName["name"]
	if name.MinValue != nil {
		t.Errorf("string column got min value %v", *name.MinValue)
	}
	if len(name.SampleValues) == 0 {
		t.Error("string column has no sample values")
	}
}

func TestPreviewFrame(t *testing.T) {
	f, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}

	p := PreviewFrame(f, 0, 2)
	if p.DisplayedRows != 2 || p.TotalRows != 4 || !p.HasMore {
		t.Fatalf("preview = %+v", p)
	}

	p = PreviewFrame(f, 2, 100)
	if p.DisplayedRows != 2 || p.HasMore {
		t.Fatalf("tail preview = %+v", p)
	}
	if p.StartIndex != 2 {
		t.Errorf("start = %d, want 2", p.StartIndex)
	}

	p = PreviewFrame(f, 10, 2)
	if p.DisplayedRows != 0 {
		t.Errorf("out-of-range preview rows = %d, want 0", p.DisplayedRows)
	}
}
