package llm

import (
	"strings"
	"testing"
)

func TestParseNoCode(t *testing.T) {
	in := "The dataset has three columns.\nNo code is needed here."
	got := Parse(in)
	if got.HasCode() {
		t.Fatalf("unexpected code: %q", got.Code)
	}
	if got.Explanation != in {
		t.Errorf("explanation = %q, want input unchanged", got.Explanation)
	}
}

func TestParseSingleBlock(t *testing.T) {
	in := "Here is the approach.\n```python\nprint(dataset.num_rows)\n```\nThat prints the row count."
	got := Parse(in)
	if got.Code != "print(dataset.num_rows)" {
		t.Errorf("code = %q", got.Code)
	}
	if strings.Contains(got.Explanation, "print(") {
		t.Errorf("explanation leaks code: %q", got.Explanation)
	}
	if !strings.Contains(got.Explanation, "Here is the approach.") ||
		!strings.Contains(got.Explanation, "That prints the row count.") {
		t.Errorf("explanation lost prose: %q", got.Explanation)
	}
}

func TestParseFirstOfMultipleBlocks(t *testing.T) {
	in := "First:\n```python\na = 1\n```\nSecond (unused):\n```\nb = 2\n```\nDone."
	got := Parse(in)
	if got.Code != "a = 1" {
		t.Errorf("code = %q, want first block", got.Code)
	}
	for _, leaked := range []string{"a = 1", "b = 2"} {
		if strings.Contains(got.Explanation, leaked) {
			t.Errorf("explanation contains %q: %q", leaked, got.Explanation)
		}
	}
}

func TestParseEmptyFirstBlockMeansNoCode(t *testing.T) {
	in := "intro\n```python\n```\nmore\n```python\nprint(1)\n```\ntail"
	got := Parse(in)
	if got.HasCode() {
		t.Fatalf("code = %q, want none: the empty first block wins", got.Code)
	}
	if strings.Contains(got.Explanation, "print(1)") {
		t.Errorf("explanation leaks second block: %q", got.Explanation)
	}
	for _, want := range []string{"intro", "more", "tail"} {
		if !strings.Contains(got.Explanation, want) {
			t.Errorf("explanation lost %q: %q", want, got.Explanation)
		}
	}
}

func TestParseUnterminatedFenceIsProse(t *testing.T) {
	in := "Some text\n```python\nx = 1\nnever closed"
	got := Parse(in)
	if got.HasCode() {
		t.Fatalf("unexpected code from unterminated fence: %q", got.Code)
	}
	if !strings.Contains(got.Explanation, "x = 1") {
		t.Errorf("unterminated block dropped from prose: %q", got.Explanation)
	}
}

func TestParseLanguageTagDropped(t *testing.T) {
	got := Parse("```python\nprint(1)\n```")
	if got.Code != "print(1)" {
		t.Errorf("code = %q", got.Code)
	}
	if got.Explanation != "" {
		t.Errorf("explanation = %q, want empty", got.Explanation)
	}
}

func TestParseIndentedFence(t *testing.T) {
	got := Parse("Intro\n  ```\ncode_here()\n  ```\nOutro")
	if got.Code != "code_here()" {
		t.Errorf("code = %q", got.Code)
	}
}

func TestParseIdempotent(t *testing.T) {
	in := "Text\n```python\nprint(1)\n```\nMore\n```\nprint(2)\n```"
	a := Parse(in)
	b := Parse(in)
	if a != b {
		t.Errorf("Parse not deterministic: %+v vs %+v", a, b)
	}
}

func TestParseEmptyInput(t *testing.T) {
	got := Parse("")
	if got.HasCode() || got.Explanation != "" {
		t.Errorf("got %+v", got)
	}
}
