// Package analysis implements the canned statistical analyses that run
// against an uploaded dataset. Each method is a Module registered with
// the Service; methods share a parameter-schema and result shape so the
// frontend can render any of them generically.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/viz"
)

type Method string

const (
	MethodDescriptive Method = "descriptive"
	MethodDiagnostic  Method = "diagnostic"
	MethodTimeSeries  Method = "time_series"
)

// MethodConfig describes a method and its tunable parameters.
type MethodConfig struct {
	Name                  string                    `json:"name"`
	Description           string                    `json:"description"`
	Parameters            map[string]map[string]any `json:"parameters"`
	SupportsCategorical   bool                      `json:"supports_categorical"`
	SupportsNumerical     bool                      `json:"supports_numerical"`
	DefaultVisualizations []string                  `json:"default_visualizations"`
}

// Result is the output of one analysis run.
type Result struct {
	Summary        map[string]any      `json:"summary"`
	Visualizations []viz.Visualization `json:"visualizations"`
	Tables         []viz.Table         `json:"tables"`
	Metadata       map[string]any      `json:"metadata"`
}

// Request echoes back what was asked for alongside the result.
type Request struct {
	FileID        string            `json:"file_id"`
	Method        Method            `json:"method"`
	Params        map[string]any    `json:"params"`
	TargetColumns []string          `json:"target_columns,omitempty"`
	Filters       map[string]Filter `json:"filter_conditions,omitempty"`
}

type Response struct {
	Request       Request `json:"request"`
	Result        *Result `json:"result"`
	ExecutionTime float64 `json:"execution_time"`
}

// Module is one analysis method.
type Module interface {
	Config() MethodConfig
	Metadata() map[string]any
	Run(f *dataset.Frame, params map[string]any) (*Result, error)
}

// frameLoader is the slice of the dataset registry the service needs.
type frameLoader interface {
	Load(ctx context.Context, fileID string) (*dataset.Frame, error)
}

type Service struct {
	datasets frameLoader
	modules  map[Method]Module
}

func NewService(datasets frameLoader) *Service {
	return &Service{
		datasets: datasets,
		modules: map[Method]Module{
			MethodDescriptive: &Descriptive{},
			MethodDiagnostic:  &Diagnostic{},
			MethodTimeSeries:  &TimeSeries{},
		},
	}
}

// Available returns every registered method keyed by its identifier.
func (s *Service) Available() map[Method]MethodConfig {
	out := make(map[Method]MethodConfig, len(s.modules))
	for m, mod := range s.modules {
		out[m] = mod.Config()
	}
	return out
}

func (s *Service) Metadata(method Method) (map[string]any, error) {
	mod, ok := s.modules[method]
	if !ok {
		return nil, fmt.Errorf("unknown analysis method: %s", method)
	}
	return mod.Metadata(), nil
}

// Run loads the dataset, applies filters and column selection, and
// dispatches to the method module.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	mod, ok := s.modules[req.Method]
	if !ok {
		return nil, fmt.Errorf("unknown analysis method: %s", req.Method)
	}

	f, err := s.datasets.Load(ctx, req.FileID)
	if err != nil {
		return nil, err
	}

	if len(req.Filters) > 0 {
		f = applyFilters(f, req.Filters)
	}
	f = f.Select(req.TargetColumns)

	start := time.Now()
	result, err := mod.Run(f, req.Params)
	if err != nil {
		return nil, err
	}

	return &Response{
		Request:       req,
		Result:        result,
		ExecutionTime: time.Since(start).Seconds(),
	}, nil
}

// paramBool, paramString and paramInt read a parameter with a default,
// tolerating the types JSON decoding produces.
func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
