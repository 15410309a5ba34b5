package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-jarvis/internal/httpc"
)

const providerClient = "client"

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// Client calls an OpenAI-compatible /chat/completions endpoint over plain HTTP.
type Client struct {
	endpoint string
	cfg      *Config
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates an HTTP inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/"),
		cfg:      cfg,
		http:     hc,
		logger:   cfg.Logger.With("component", "inference.client"),
	}, nil
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Send posts the history once and returns the trimmed reply text.
func (c *Client) Send(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()

	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", WrapError(providerClient, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", WrapError(providerClient, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out completionResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", WrapError(providerClient, ErrNoChoices)
	}

	c.logger.Debug("completion received",
		"model", out.Model,
		"finish", out.Choices[0].FinishReason,
		"tokens", out.Usage.TotalTokens,
		"latency", time.Since(start),
	)
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Health lists models, which fails fast on a bad key or unreachable host.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models", nil)
	if err != nil {
		return WrapError(providerClient, err)
	}
	return c.do(req, nil)
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends req and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(providerClient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp, providerClient)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// readAPIError turns a non-2xx response into an APIError, preferring the
// OpenAI error envelope when the body carries one.
func readAPIError(resp *http.Response, provider string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
		Provider:   provider,
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		if envelope.Error.Code != nil {
			apiErr.Code = fmt.Sprint(envelope.Error.Code)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

var _ Provider = (*Client)(nil)
