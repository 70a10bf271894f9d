package dataset

import "time"

type ColumnInfo struct {
	Name              string   `json:"name"`
	DType             string   `json:"dtype"`
	Nullable          bool     `json:"nullable"`
	UniqueValues      int      `json:"unique_values"`
	MinValue          *float64 `json:"min_value,omitempty"`
	MaxValue          *float64 `json:"max_value,omitempty"`
	SampleValues      []any    `json:"sample_values"`
	MissingCount      int      `json:"missing_count"`
	MissingPercentage float64  `json:"missing_percentage"`
}

type SchemaInfo struct {
	Columns  []ColumnInfo `json:"columns"`
	RowCount int          `json:"row_count"`
	FileType string       `json:"file_type"`
}

type Preview struct {
	Data          []map[string]any `json:"data"`
	TotalRows     int              `json:"total_rows"`
	DisplayedRows int              `json:"displayed_rows"`
	StartIndex    int              `json:"start_index"`
	HasMore       bool             `json:"has_more"`
}

const maxSampleValues = 5

// Summarize computes per-column schema metadata for a frame.
func Summarize(f *Frame, fileType string) SchemaInfo {
	info := SchemaInfo{RowCount: f.RowCount(), FileType: fileType}
	for _, c := range f.Columns() {
		ci := ColumnInfo{
			Name:         c.Name,
			DType:        string(c.Kind),
			MissingCount: c.MissingCount(),
			SampleValues: []any{},
		}
		ci.Nullable = ci.MissingCount > 0
		if f.RowCount() > 0 {
			ci.MissingPercentage = float64(ci.MissingCount) / float64(f.RowCount()) * 100
		}

		seen := make(map[any]struct{})
		for _, v := range c.Values {
			if v == nil {
				continue
			}
			key := v
			if t, ok := v.(time.Time); ok {
				key = t.Format(time.RFC3339)
			}
			if _, dup := seen[key]; !dup && len(seen) < 1000 {
				seen[key] = struct{}{}
			}
			if len(ci.SampleValues) < maxSampleValues {
				ci.SampleValues = append(ci.SampleValues, key)
			}
		}
		ci.UniqueValues = len(seen)

		if c.IsNumeric() {
			if vals := c.Float64s(); len(vals) > 0 {
				mn, mx := vals[0], vals[0]
				for _, v := range vals[1:] {
					if v < mn {
						mn = v
					}
					if v > mx {
						mx = v
					}
				}
				ci.MinValue, ci.MaxValue = &mn, &mx
			}
		}
		info.Columns = append(info.Columns, ci)
	}
	return info
}

// PreviewFrame slices rows with pagination metadata.
func PreviewFrame(f *Frame, start, limit int) Preview {
	if start < 0 {
		start = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	data := f.Rows(start, limit)
	return Preview{
		Data:          data,
		TotalRows:     f.RowCount(),
		DisplayedRows: len(data),
		StartIndex:    start,
		HasMore:       start+limit < f.RowCount(),
	}
}
