package tts

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds provider configuration.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID string
	ModelID string
	Format  Encoding

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice. Empty keeps the current one.
func WithVoice(voice string) Option {
	return func(c *Config) {
		if voice != "" {
			c.VoiceID = voice
		}
	}
}

// WithModel sets the model. Empty keeps the current one.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.ModelID = model
		}
	}
}

// WithFormat selects PCM16 (playable) or MP3 output.
func WithFormat(e Encoding) Option {
	return func(c *Config) { c.Format = e }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig speaks with OpenAI's onyx voice as 24 kHz PCM.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.openai.com/v1",
		ModelID: ModelTTS1,
		VoiceID: VoiceOnyx,
		Format:  EncodingPCM16,
		Timeout: 30 * time.Second,
		Logger:  slog.Default(),
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

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return ErrNoAPIKey
	case c.VoiceID == "":
		return ErrNoVoiceID
	case c.Format != EncodingPCM16 && c.Format != EncodingMP3:
		return ErrUnsupportedFormat
	}
	return nil
}
