package ai

import (
	"context"
	"errors"
)

// Message is one turn sent to a model backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a local LLM backend: submit messages, get text back.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Options are generation knobs shared by all backends.
type Options struct {
	MaxTokens   int
	Temperature float64
}

var (
	// ErrUnavailable: the backend could not be reached or rejected the call.
	ErrUnavailable = errors.New("model unavailable")
	// ErrTimeout: the caller's deadline elapsed before a completion arrived.
	ErrTimeout = errors.New("model timeout")
)

// classify maps transport errors onto the two caller-visible kinds.
// The pipeline does not retry either of them.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	if ctx.Err() != nil {
		// caller cancelled; propagate untouched so no message is appended
		return ctx.Err()
	}
	return errors.Join(ErrUnavailable, err)
}
