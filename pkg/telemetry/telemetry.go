// Package telemetry reads lab environment sensors.
//
// HTTPClient talks to the lab server (GET /data, POST /pump). Poller reads
// it on an interval, persists every reading and raises one alert per
// transition into a gas alarm.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-jarvis/internal/httpc"
)

// ErrNotConfigured is returned when no lab server URL is set.
var ErrNotConfigured = errors.New("telemetry: lab server not configured")

// Reading is one snapshot of the lab sensors.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pump        bool      `json:"pump"`
	GasAlert    bool      `json:"gas_alert"`
	At          time.Time `json:"at,omitempty"`
}

// Reader returns the current sensor values.
type Reader interface {
	ReadCurrent(ctx context.Context) (Reading, error)
}

// PumpController switches the lab pump.
type PumpController interface {
	SetPump(ctx context.Context, on bool) error
}

// StatusError reports a non-200 response from the lab server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry: lab server returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClient reads the lab server over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient creates a client for the lab server at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("telemetry: invalid lab server URL: %w", err)
	}

	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(5 * time.Second),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "telemetry.http")
	return h, nil
}

// ReadCurrent fetches /data.
func (h *HTTPClient) ReadCurrent(ctx context.Context) (Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/data", nil)
	if err != nil {
		return Reading{}, fmt.Errorf("telemetry: create request: %w", err)
	}

	var r Reading
	if err := h.do(req, &r); err != nil {
		return Reading{}, err
	}
	r.At = h.now()
	return r, nil
}

// SetPump posts /pump?state=on|off.
func (h *HTTPClient) SetPump(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/pump?state="+state, nil)
	if err != nil {
		return fmt.Errorf("telemetry: create request: %w", err)
	}

	var resp struct {
		Pump bool `json:"pump"`
	}
	if err := h.do(req, &resp); err != nil {
		return err
	}
	if resp.Pump != on {
		return fmt.Errorf("telemetry: pump reported %v after setting %s", resp.Pump, state)
	}
	h.logger.Info("pump switched", "state", state)
	return nil
}

func (h *HTTPClient) do(req *http.Request, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("telemetry: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

var (
	_ Reader         = (*HTTPClient)(nil)
	_ PumpController = (*HTTPClient)(nil)
)
