package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/teslashibe/go-pupper/internal/httpc"
)

// Client is the HTTP inference provider for OpenAI-compatible servers.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

// Chat sends one non-streaming completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	resp, err := c.post(ctx, c.config.ChatEndpoint, c.request(req))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(c.baseURL, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, WrapError(c.baseURL, errors.New("response has no choices"))
	}

	first := out.Choices[0]
	return &ChatResponse{
		Message: Message{
			Role:      RoleAssistant,
			Content:   first.Message.Content,
			ToolCalls: fromWireToolCalls(first.Message.ToolCalls),
		},
		FinishReason: first.FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Model:     out.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks that the server answers and lists the configured model
// under data[].id or data[].name.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, c.config.ModelsEndpoint)
	if err != nil {
		return WrapError(c.baseURL, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}

	var list wireModels
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return WrapError(c.baseURL, fmt.Errorf("decode models: %w", err))
	}
	for _, m := range list.Data {
		if m.ID == c.config.Model || m.Name == c.config.Model {
			return nil
		}
	}
	c.logger.Warn("model not listed by server", "model", c.config.Model, "available", len(list.Data))
	return WrapError(c.baseURL, fmt.Errorf("%w: %s", ErrModelNotFound, c.config.Model))
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// request fills the per-request sampling settings from the client
// defaults. Zero means "use the default"; a zero default is left out.
func (c *Client) request(req *ChatRequest) wireRequest {
	orDefault := func(v, def float64) float64 {
		if v == 0 {
			return def
		}
		return v
	}

	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	return wireRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   max(maxTokens, 0),
		Temperature: max(orDefault(req.Temperature, c.config.Temperature), 0),
		TopP:        max(orDefault(req.TopP, c.config.TopP), 0),
	}
}

// post makes a POST request.
func (c *Client) post(ctx context.Context, path string, payload wireRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(c.baseURL, fmt.Errorf("marshal payload: %w", err))
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(c.baseURL, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.doWithRetry(ctx, req, body)
}

// get makes a GET request.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, WrapError(c.baseURL, fmt.Errorf("create request: %w", err))
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.http.Do(req)
}

// doWithRetry sends req, retrying transport failures, 429 and 5xx with a
// linearly growing delay.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	op := func() error {
		if attempt > 0 {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		attempt++

		r, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return WrapError(c.baseURL, err)
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			defer r.Body.Close()
			return c.parseError(r)
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: c.config.RetryDelay}, uint64(max(c.config.MaxRetries, 0))),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.logger.Warn("retrying request", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// linearBackOff waits step, 2*step, 3*step...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

// parseError turns a non-2xx response into an *APIError, preferring the
// OpenAI error envelope over the raw body.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		Endpoint:   c.baseURL,
	}
	var env wireError
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Code = env.Error.Code
	}
	return apiErr
}

var _ Provider = (*Client)(nil)
