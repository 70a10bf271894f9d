// Package sandbox executes model-generated analysis snippets against an
// in-memory dataset. Snippets run in a Starlark interpreter with an
// explicit allow-list of injected names: there is no filesystem, network,
// or process access to restrict because the language has none, and the
// primitives a model is likely to reach for anyway (open, exec, ...) are
// predeclared as traps that fail with a distinct error kind.
package sandbox

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/viz"
)

// forbiddenNames are predeclared so an attempted call yields a
// disallowed-operation error instead of an undefined-name error.
var forbiddenNames = []string{
	"open", "read", "write", "exec", "eval",
	"os", "sys", "subprocess", "request", "fetch",
}

type Runner struct {
	timeout  time.Duration
	maxSteps uint64
}

func NewRunner(timeout time.Duration, maxSteps uint64) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{timeout: timeout, maxSteps: maxSteps}
}

// capture accumulates everything a snippet produces during one invocation.
type capture struct {
	output         strings.Builder
	tables         []viz.Table
	visualizations []viz.Visualization
	disallowed     string
}

func (c *capture) println(msg string) {
	c.output.WriteString(msg)
	c.output.WriteByte('\n')
}

// plot(type, title="", x=None, y=None, labels=None, values=None,
// x_title="", y_title="") records a chart descriptor.
func (c *capture) plotBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("plot", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			typ, title, xTitle, yTitle string
			x, y, labels, values       starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"type", &typ,
			"title?", &title,
			"x?", &x,
			"y?", &y,
			"labels?", &labels,
			"values?", &values,
			"x_title?", &xTitle,
			"y_title?", &yTitle,
		); err != nil {
			return nil, err
		}
		v := viz.NewVisualization(typ)
		if x != nil {
			v.Data["x"] = fromStarlark(x)
		}
		if y != nil {
			v.Data["y"] = fromStarlark(y)
		}
		if labels != nil {
			v.Data["labels"] = fromStarlark(labels)
		}
		if values != nil {
			v.Data["values"] = fromStarlark(values)
		}
		if title != "" {
			v.Layout["title"] = title
		}
		if xTitle != "" {
			v.Layout["xaxis"] = map[string]any{"title": xTitle}
		}
		if yTitle != "" {
			v.Layout["yaxis"] = map[string]any{"title": yTitle}
		}
		v.Config = map[string]any{"responsive": true}
		c.visualizations = append(c.visualizations, v)
		return starlark.None, nil
	})
}

// emit_table(name, columns, rows, title="") records a tabular result.
// rows is a list of dicts keyed by column name.
func (c *capture) tableBuiltin() *starlark.Builtin {
	return starlark.NewBuiltin("emit_table", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name, title   string
			columns, rows starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"name", &name,
			"columns", &columns,
			"rows", &rows,
			"title?", &title,
		); err != nil {
			return nil, err
		}
		t := viz.Table{Name: name, Title: title}
		if cols, ok := fromStarlark(columns).([]any); ok {
			for _, cv := range cols {
				if s, ok := cv.(string); ok {
					t.Columns = append(t.Columns, s)
				}
			}
		}
		if rs, ok := fromStarlark(rows).([]any); ok {
			for _, rv := range rs {
				if m, ok := rv.(map[string]any); ok {
					t.Rows = append(t.Rows, m)
				}
			}
		}
		t.TotalRows = len(t.Rows)
		c.tables = append(c.tables, t)
		return starlark.None, nil
	})
}

func (c *capture) trap(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		c.disallowed = b.Name()
		return nil, &Error{Kind: KindDisallowed, Message: "operation not permitted: " + b.Name()}
	})
}

// Run executes one snippet against the frame. Sandbox failures (runtime
// errors, timeouts, disallowed operations) are captured in the result,
// not returned; the error return is non-nil only when the caller's
// context was cancelled, in which case no result exists.
func (r *Runner) Run(ctx context.Context, code string, frame *dataset.Frame) (*Result, error) {
	start := time.Now()

	cap := &capture{}
	predeclared := starlark.StringDict{
		"dataset":    datasetModule(frame),
		"plot":       cap.plotBuiltin(),
		"emit_table": cap.tableBuiltin(),
		"stats":      statsModule(),
	}
	for _, name := range forbiddenNames {
		predeclared[name] = cap.trap(name)
	}

	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, msg string) {
			cap.println(msg)
		},
	}
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(r.maxSteps)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(r.timeout, func() {
		timedOut.Store(true)
		thread.Cancel("timeout")
	})
	defer timer.Stop()

	stopCancel := context.AfterFunc(ctx, func() {
		thread.Cancel("cancelled")
	})
	defer stopCancel()

	// Model snippets read like loose Python; allow the statement forms
	// Starlark keeps behind options.
	opts := &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}

	body, finalExpr := splitFinalExpr(opts, code)
	globals, err := starlark.ExecFileOptions(opts, thread, "snippet.star", body, predeclared)

	// A trailing expression statement is evaluated REPL style and its
	// value rendered into the output.
	if err == nil && finalExpr != nil {
		env := make(starlark.StringDict, len(predeclared)+len(globals))
		for k, v := range predeclared {
			env[k] = v
		}
		for k, v := range globals {
			env[k] = v
		}
		var v starlark.Value
		v, err = starlark.EvalExprOptions(opts, thread, finalExpr, env)
		if err == nil && v != starlark.None {
			cap.println(v.String())
		}
	}

	elapsed := time.Since(start)

	if ctx.Err() != nil && !timedOut.Load() {
		return nil, ctx.Err()
	}

	res := &Result{
		Output:         cap.output.String(),
		Tables:         cap.tables,
		Visualizations: cap.visualizations,
		ExecutionTime:  elapsed.Seconds(),
	}

	if err != nil {
		res.Err = classifyEvalError(err, cap, timedOut.Load())
		// No partial results are promised on failure.
		res.Tables = nil
		res.Visualizations = nil
	}
	return res, nil
}

// splitFinalExpr separates a trailing top-level expression statement
// from the snippet so its value can be evaluated and rendered. The
// statement must start at column 1 (no `x = 1; x` one-liners); anything
// else leaves the snippet untouched. Parse errors are left for the
// executor to report.
func splitFinalExpr(opts *syntax.FileOptions, code string) (string, syntax.Expr) {
	f, err := opts.Parse("snippet.star", code, 0)
	if err != nil || len(f.Stmts) == 0 {
		return code, nil
	}
	last, ok := f.Stmts[len(f.Stmts)-1].(*syntax.ExprStmt)
	if !ok {
		return code, nil
	}
	start, _ := last.Span()
	if start.Col != 1 || int(start.Line) < 1 {
		return code, nil
	}
	lines := strings.Split(code, "\n")
	if int(start.Line) > len(lines) {
		return code, nil
	}
	return strings.Join(lines[:start.Line-1], "\n"), last.X
}

func classifyEvalError(err error, cap *capture, timedOut bool) *Error {
	msg := err.Error()
	if evalErr, ok := err.(*starlark.EvalError); ok {
		msg = evalErr.Msg
	}
	switch {
	case timedOut:
		return &Error{Kind: KindTimeout, Message: "execution timed out"}
	case strings.Contains(msg, "too many steps"):
		return &Error{Kind: KindTimeout, Message: "execution exceeded step budget"}
	case cap.disallowed != "":
		return &Error{Kind: KindDisallowed, Message: "operation not permitted: " + cap.disallowed}
	default:
		return &Error{Kind: KindRuntime, Message: msg}
	}
}
