package inference

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // Server root, e.g. http://localhost:3000
	APIKey  string // Bearer token (optional for local servers)

	// Endpoints, relative to BaseURL
	ChatEndpoint   string
	ModelsEndpoint string

	// Model is the chat model id or name.
	Model string

	// Request defaults
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// Retry configuration for 429 and 5xx responses
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the server root URL.
// Examples: "http://localhost:3000", "http://localhost:11434"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithEndpoints overrides the chat and models paths. Empty values keep
// the current setting.
func WithEndpoints(chat, models string) Option {
	return func(c *Config) {
		if chat != "" {
			c.ChatEndpoint = chat
		}
		if models != "" {
			c.ModelsEndpoint = models
		}
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for a local OpenWebUI server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:3000",
		ChatEndpoint:   "/api/chat/completions",
		ModelsEndpoint: "/api/models",
		MaxTokens:      4096,
		Temperature:    0.7,
		TopP:           1,
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RetryDelay:     500 * time.Millisecond,
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
