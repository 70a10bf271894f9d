package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bioviz/bioviz/internal/dataset"
)

// charsPerToken is the rough byte budget per model token used to derive
// a character budget from the configured context window.
const charsPerToken = 3

const promptHeader = `You are a data analysis assistant that helps analyze datasets and create visualizations.
Given the dataset information below, answer the user's question with a short explanation and one executable code snippet.

The snippet runs in a restricted interpreter. Only these names are available:
- dataset.columns, dataset.num_rows, dataset.column("name"), dataset.head(n)
- stats.mean(xs), stats.median(xs), stats.stdev(xs), stats.variance(xs), stats.min(xs), stats.max(xs), stats.sum(xs), stats.correlation(xs, ys)
- plot(type, x=..., y=..., labels=..., values=..., title=...)
- emit_table(name, columns, rows, title=...)
- print(...)
There is no file, network, or process access. Do not use import statements.

Enclose the code in a single fenced block:

` + "```python" + `
# your code here
` + "```" + `
`

// Builder assembles model prompts. It is stateless; every input arrives
// as an argument and the output is deterministic.
type Builder struct {
	contextWindow int
}

func NewBuilder(contextWindow int) *Builder {
	if contextWindow <= 0 {
		contextWindow = 8192
	}
	return &Builder{contextWindow: contextWindow}
}

// Build produces the full prompt: preamble with schema and sample rows,
// prior turns oldest first, then the current query. When the character
// budget would be exceeded, the oldest turns are dropped first; the
// preamble and the current query always survive.
func (b *Builder) Build(query string, schema *dataset.SchemaInfo, sample []map[string]any, history []ChatMessage) string {
	preamble := b.preamble(schema, sample)
	tail := fmt.Sprintf("\nUSER QUESTION: %s\n\nKeep the explanation concise and make sure the code runs against the dataset described above.\n", query)

	budget := b.contextWindow * charsPerToken
	remaining := budget - len(preamble) - len(tail)

	rendered := renderHistory(history, remaining)

	var sb strings.Builder
	sb.WriteString(preamble)
	sb.WriteString(rendered)
	sb.WriteString(tail)
	return sb.String()
}

func (b *Builder) preamble(schema *dataset.SchemaInfo, sample []map[string]any) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)

	sb.WriteString("\nDATASET SCHEMA:\n```json\n")
	if schema != nil {
		if raw, err := json.MarshalIndent(schema, "", "  "); err == nil {
			sb.Write(raw)
		}
	}
	sb.WriteString("\n```\n")

	if len(sample) > 0 {
		sb.WriteString("\nDATA SAMPLE:\n```json\n")
		if raw, err := json.MarshalIndent(sample, "", "  "); err == nil {
			sb.Write(raw)
		}
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// renderHistory fits as many of the newest turns as the budget allows,
// rendered oldest first.
func renderHistory(history []ChatMessage, budget int) string {
	if len(history) == 0 || budget <= 0 {
		return ""
	}

	const header = "\nPrevious conversation:\n"
	budget -= len(header)

	lines := make([]string, 0, len(history))
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		line := fmt.Sprintf("\n%s: %s\n", displayRole(history[i].Role), history[i].Content)
		if used+len(line) > budget {
			break
		}
		lines = append(lines, line)
		used += len(line)
	}
	if len(lines) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(header)
	for i := len(lines) - 1; i >= 0; i-- {
		sb.WriteString(lines[i])
	}
	return sb.String()
}

func displayRole(role string) string {
	switch role {
	case RoleUser:
		return "User"
	case RoleSystem:
		return "System"
	default:
		return "Assistant"
	}
}
