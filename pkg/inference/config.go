package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds provider configuration shared by Client and OpenAI.
type Config struct {
	BaseURL    string
	APIKey     string // optional for local servers
	HTTPClient *http.Client

	Model       string
	MaxTokens   int     // 0 leaves the server default
	Temperature float64 // 0 leaves the server default
	Timeout     time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL, for example "http://localhost:11434/v1".
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the HTTP client built from Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig targets the public OpenAI endpoint.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks option values.
func (c *Config) Validate() error {
	switch {
	case c.Model == "":
		return &ConfigError{Field: "Model", Message: "cannot be empty"}
	case c.MaxTokens < 0:
		return &ConfigError{Field: "MaxTokens", Message: "must not be negative"}
	case c.Temperature < 0 || c.Temperature > 2:
		return &ConfigError{Field: "Temperature", Message: "must be between 0 and 2"}
	}
	return nil
}

// ConfigError indicates an invalid option value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "inference: invalid config " + e.Field + ": " + e.Message
}
