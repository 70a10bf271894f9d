package llm

import (
	"strings"
	"testing"

	"github.com/bioviz/bioviz/internal/dataset"
)

func testSchema() *dataset.SchemaInfo {
	return &dataset.SchemaInfo{
		RowCount: 3,
		FileType: "csv",
		Columns: []dataset.ColumnInfo{
			{Name: "age", DType: "int64", SampleValues: []any{30, 40}},
			{Name: "weight", DType: "float64", SampleValues: []any{60.5}},
		},
	}
}

func TestBuildContainsSchemaAndQuery(t *testing.T) {
	b := NewBuilder(8192)
	sample := []map[string]any{{"age": 30, "weight": 60.5}}
	prompt := b.Build("What is the mean age?", testSchema(), sample, nil)

	for _, want := range []string{"age", "weight", "USER QUESTION: What is the mean age?", "DATASET SCHEMA", "DATA SAMPLE"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildIncludesHistoryInOrder(t *testing.T) {
	b := NewBuilder(8192)
	history := []ChatMessage{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
	}
	prompt := b.Build("followup", testSchema(), nil, history)

	i := strings.Index(prompt, "first question")
	j := strings.Index(prompt, "first answer")
	k := strings.Index(prompt, "USER QUESTION: followup")
	if i == -1 || j == -1 || k == -1 {
		t.Fatalf("prompt missing history or query:\n%s", prompt)
	}
	if !(i < j && j < k) {
		t.Errorf("history out of order: user=%d assistant=%d query=%d", i, j, k)
	}
}

func TestBuildDropsOldestTurnsFirst(t *testing.T) {
	// Small window so only part of the history fits.
	b := NewBuilder(700)
	var history []ChatMessage
	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, ChatMessage{
			Role:    role,
			Content: strings.Repeat("x", 100) + string(rune('a'+i)),
		})
	}
	prompt := b.Build("current query", testSchema(), nil, history)

	if !strings.Contains(prompt, "USER QUESTION: current query") {
		t.Fatal("current query must always survive truncation")
	}
	if !strings.Contains(prompt, "DATASET SCHEMA") {
		t.Fatal("preamble must always survive truncation")
	}

	newest := history[len(history)-1].Content
	oldest := history[0].Content
	if strings.Contains(prompt, oldest) && !strings.Contains(prompt, newest) {
		t.Error("oldest turn kept while newest dropped")
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(4096)
	history := []ChatMessage{{Role: RoleUser, Content: "q1"}, {Role: RoleAssistant, Content: "a1"}}
	p1 := b.Build("q", testSchema(), nil, history)
	p2 := b.Build("q", testSchema(), nil, history)
	if p1 != p2 {
		t.Error("Build is not deterministic")
	}
}

func TestTranscriptAppendOnly(t *testing.T) {
	tr := NewTranscript()
	tr.Append(ChatMessage{Role: RoleUser, Content: "a"})
	tr.Append(ChatMessage{Role: RoleAssistant, Content: "b"})

	h := tr.History()
	if len(h) != 2 || h[0].Content != "a" || h[1].Content != "b" {
		t.Fatalf("history = %+v", h)
	}

	// Mutating the copy must not affect the transcript.
	h[0].Content = "mutated"
	if tr.History()[0].Content != "a" {
		t.Error("History returned a live reference")
	}
	if tr.History()[0].Timestamp.IsZero() {
		t.Error("Append did not stamp the message")
	}
}
