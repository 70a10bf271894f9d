// Package llm implements the natural-language-to-code pipeline: prompt
// construction, model call, code extraction, sandboxed execution, and
// the session transcript that records each turn.
package llm

import (
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one immutable turn of a conversation. role=system is
// reserved for pipeline-generated error notices, distinguishing them
// from model output.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is an append-only ordered sequence of messages. Append is
// the only mutator; appends are serialized so the host may share one
// transcript across goroutines.
type Transcript struct {
	mu   sync.Mutex
	msgs []ChatMessage
}

func NewTranscript() *Transcript { return &Transcript{} }

func (t *Transcript) Append(m ChatMessage) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	t.mu.Lock()
	t.msgs = append(t.msgs, m)
	t.mu.Unlock()
}

// History returns a copy of the messages in append order.
func (t *Transcript) History() []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}
