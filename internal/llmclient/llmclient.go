// Package llmclient implements domain.LLMClient against an
// OpenAI-compatible HTTP gateway, the same gateway the surrounding proxy
// forwards chat-completion calls to. Outbound calls share a bounded
// concurrency semaphore.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relaymesh/skillengine/internal/domain"
)

// EmbedTimeout and JudgeTimeout are the default per-call-kind deadlines:
// Embed always wraps its context in EmbedTimeout, while Judge applies
// JudgeTimeout only when the caller's context carries no deadline. They alias
// the domain package's shared constants so other components (e.g.
// internal/reflect, which needs the distinct ReflectTimeout) can depend
// on domain instead of this concrete client.
const (
	EmbedTimeout       = domain.EmbedTimeout
	JudgeTimeout       = domain.JudgeTimeout
	defaultMaxInFlight = 16
)

// Client is an HTTP-backed domain.LLMClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sem        chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithMaxConcurrency overrides the default bounded-pool size.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithHTTPClient overrides the default http.Client (for tests: point at
// an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client targeting an OpenAI-compatible base URL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		sem:        make(chan struct{}, defaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.LLMClient = (*Client)(nil)

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed implements domain.LLMClient.Embed against POST /v1/embeddings.
func (c *Client) Embed(ctx context.Context, text string, model string) ([]float64, error) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var resp embeddingResponse
	if err := c.post(ctx, "/v1/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"json_schema,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Judge implements domain.LLMClient.Judge against POST
// /v1/chat/completions, the same wire shape the gateway itself exposes to
// its own clients.
//
// If ctx already carries a deadline, that deadline governs unmodified;
// callers with a call-kind-specific budget other than JudgeTimeout (e.g.
// the reflection engine's 60s prompt-rewrite budget) set their
// own context.WithTimeout before calling Judge. Only a bare context
// (no deadline) gets the default JudgeTimeout applied here.
func (c *Client) Judge(ctx context.Context, prompt string, jsonSchema map[string]any) (string, error) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, JudgeTimeout)
		defer cancel()
	}

	req := chatCompletionRequest{
		Model:    "judge-default",
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if jsonSchema != nil {
		req.ResponseFormat = &responseFormat{Type: "json_schema", Schema: jsonSchema}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal judge request: %w", err)
	}

	var resp chatCompletionResponse
	if err := c.post(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("judge response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
