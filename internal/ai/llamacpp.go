package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LlamaCppProvider talks to any OpenAI-compatible chat-completions server
// (llama.cpp's llama-server, vLLM, LocalAI, ...). The API key is optional
// for local deployments.
type LlamaCppProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Opts    Options
	Client  *http.Client
}

type oaiMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatReq struct {
	Model       string   `json:"model,omitempty"`
	Messages    []oaiMsg `json:"messages"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stream      bool     `json:"stream"`
}

type oaiChatResp struct {
	Choices []struct {
		Message oaiMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type oaiStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewLlamaCppProvider(baseURL, apiKey, model string, opts Options) *LlamaCppProvider {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &LlamaCppProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Opts:    opts,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *LlamaCppProvider) request(messages []Message, stream bool) oaiChatReq {
	return oaiChatReq{
		Model:       strings.TrimSpace(p.Model),
		MaxTokens:   p.Opts.MaxTokens,
		Temperature: p.Opts.Temperature,
		Stream:      stream,
		Messages: func() []oaiMsg {
			out := make([]oaiMsg, 0, len(messages))
			for _, m := range messages {
				out = append(out, oaiMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}
}

func (p *LlamaCppProvider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	return req, nil
}

func (p *LlamaCppProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", errors.New("llamacpp: http client is nil")
	}

	b, err := json.Marshal(p.request(messages, false))
	if err != nil {
		return "", err
	}
	req, err := p.newHTTPRequest(ctx, b)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", classify(ctx, fmt.Errorf("llamacpp: %s", msg))
	}

	var decoded oaiChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", classify(ctx, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", classify(ctx, errors.New(decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return "", classify(ctx, errors.New("llamacpp: empty response"))
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks via SSE.
func (p *LlamaCppProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("llamacpp: http client is nil")
			return
		}

		b, err := json.Marshal(p.request(messages, true))
		if err != nil {
			errs <- err
			return
		}
		req, err := p.newHTTPRequest(ctx, b)
		if err != nil {
			errs <- err
			return
		}

		// Streaming can outlive the default client timeout; ctx controls it.
		client := *p.Client
		client.Timeout = 0

		resp, err := client.Do(req)
		if err != nil {
			errs <- classify(ctx, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- classify(ctx, fmt.Errorf("llamacpp: %s", msg))
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded oaiStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			delta := decoded.Choices[0].Delta.Content
			if delta != "" {
				select {
				case chunks <- delta:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- classify(ctx, err)
			return
		}
	}()

	return chunks, errs
}
