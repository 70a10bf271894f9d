package llm

import "strings"

// ModelResponse is the parsed form of a raw completion. Code is empty
// when the completion contained no complete fenced block.
type ModelResponse struct {
	Explanation string `json:"explanation"`
	Code        string `json:"code,omitempty"`
}

func (r ModelResponse) HasCode() bool { return r.Code != "" }

// Parse splits a raw completion into prose and code. The first complete
// fenced block (language tag dropped, trimmed) becomes Code; every
// complete block is removed from the explanation so prose referring to
// a second block does not leak its source. An unterminated fence is
// treated as prose. Parse never fails.
func Parse(text string) ModelResponse {
	lines := strings.Split(text, "\n")

	var prose []string
	var code string
	seenBlock := false

	i := 0
	for i < len(lines) {
		if !isFence(lines[i]) {
			prose = append(prose, lines[i])
			i++
			continue
		}

		// Find the closing fence.
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if isFence(lines[j]) {
				end = j
				break
			}
		}
		if end == -1 {
			// Unterminated fence: everything from here on is prose.
			prose = append(prose, lines[i:]...)
			break
		}

		// First block wins, even when it is empty.
		if !seenBlock {
			code = strings.TrimSpace(strings.Join(lines[i+1:end], "\n"))
			seenBlock = true
		}
		i = end + 1
	}

	return ModelResponse{
		Explanation: strings.TrimSpace(strings.Join(prose, "\n")),
		Code:        code,
	}
}

// isFence reports whether the line opens or closes a fenced block. A
// fence line starts with three backticks, optionally followed by a
// language tag.
func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}
