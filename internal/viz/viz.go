package viz

// Visualization is a transport-neutral chart descriptor. It carries series
// data and layout hints in a plotly-compatible shape; the frontend chart
// library decides how to render it.
type Visualization struct {
	Type   string         `json:"type"`
	Data   map[string]any `json:"data"`
	Layout map[string]any `json:"layout"`
	Config map[string]any `json:"config,omitempty"`
}

// Table is a transport-neutral tabular result.
type Table struct {
	Name      string           `json:"name"`
	Title     string           `json:"title,omitempty"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"data"`
	TotalRows int              `json:"total_rows"`
}

// NewVisualization builds a descriptor with non-nil maps so handlers can
// add hints without nil checks.
func NewVisualization(typ string) Visualization {
	return Visualization{
		Type:   typ,
		Data:   map[string]any{},
		Layout: map[string]any{},
	}
}
