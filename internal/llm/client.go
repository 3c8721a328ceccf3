package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// Defaults target a local OpenAI-compatible server (LM Studio, llama.cpp).
var (
	DefaultEndpoint  = "http://127.0.0.1:1234/v1"
	DefaultModel     = "local-model"
	DefaultMaxTokens = 4096
	DefaultClient    = &http.Client{Timeout: 300 * time.Second}
)

// Result is the outcome of a single completion call.
type Result struct {
	Text      string
	Model     string
	LatencyMs int64
}

// Model describes one model advertised by the backing server.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Invoker is the completion contract the node executor depends on.
type Invoker interface {
	Invoke(ctx context.Context, model, systemPrompt, userMessage string) (*Result, error)
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint sets the base URL of the OpenAI-compatible server.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithAPIKey sets the bearer token. Local servers usually ignore it.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel sets the model used when a node does not name one.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a Client with the given options applied over the defaults.
func New(opts ...Option) *Client {
	c := &Client{
		client:    DefaultClient,
		endpoint:  DefaultEndpoint,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Invoke sends one chat completion request and returns the generated text.
// Transport failures (dial, timeout, aborted request) return an
// LLM_TRANSPORT_ERROR; non-2xx responses and malformed bodies return an
// LLM_PROVIDER_ERROR. The call is never retried.
func (c *Client) Invoke(ctx context.Context, model, systemPrompt, userMessage string) (*Result, error) {
	if model == "" {
		model = c.model
	}

	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userMessage})

	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider, "marshal completion request: %v", err).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "create completion request: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "completion request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "read completion response: %v", err).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider,
			"completion request returned status %d: %s", resp.StatusCode, truncate(string(raw), 512)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider, "decode completion response: %v", err).WithCause(err)
	}
	if parsed.Error != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider, "provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, schema.NewError(schema.ErrCodeLLMProvider, "completion response has no choices")
	}

	return &Result{
		Text:      parsed.Choices[0].Message.Content,
		Model:     model,
		LatencyMs: time.Since(started).Milliseconds(),
	}, nil
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels queries the server's /models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models", nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "create models request: %v", err).WithCause(err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "models request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMTransport, "read models response: %v", err).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider,
			"models request returned status %d: %s", resp.StatusCode, truncate(string(raw), 512)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var parsed modelsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLLMProvider, "decode models response: %v", err).WithCause(err)
	}

	return parsed.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes total)", s[:n], len(s))
}

var _ Invoker = (*Client)(nil)
