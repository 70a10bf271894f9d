package sandbox

import (
	"fmt"

	"github.com/bioviz/bioviz/internal/viz"
)

// ErrorKind distinguishes the three ways generated code can fail.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindRuntime    ErrorKind = "runtime_error"
	KindDisallowed ErrorKind = "disallowed_operation"
)

type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("sandbox %s: %s", e.Kind, e.Message)
}

// Result is the immutable outcome of one sandbox invocation.
// ExecutionTime is in seconds, wall clock.
type Result struct {
	Output         string              `json:"output"`
	Tables         []viz.Table         `json:"tables"`
	Visualizations []viz.Visualization `json:"visualizations"`
	Err            *Error              `json:"error,omitempty"`
	ExecutionTime  float64             `json:"execution_time"`
}

// Failed reports whether the invocation ended in a terminal failure state.
func (r *Result) Failed() bool { return r.Err != nil }
