package tts

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

const providerOpenAI = "openai"

// OpenAI voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI speech models.
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI synthesizes speech with the /audio/speech endpoint.
// Each Synthesize is one request; AudioSpeaker prints the reply on failure.
type OpenAI struct {
	cfg      *Config
	http     *http.Client
	endpoint string
	logger   *slog.Logger
}

// NewOpenAI creates an OpenAI speech provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	return &OpenAI{
		cfg:      cfg,
		http:     hc,
		endpoint: strings.TrimRight(cfg.BaseURL, "/"),
		logger:   cfg.Logger.With("component", "tts.openai"),
	}, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns the whole utterance as one clip.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*Clip, error) {
	start := time.Now()

	clip := &Clip{Encoding: o.cfg.Format, Channels: 1}
	format := "pcm"
	if clip.Encoding == EncodingMP3 {
		format = "mp3"
	} else {
		clip.SampleRate = OpenAISampleRate
	}

	body, err := json.Marshal(speechRequest{
		Model:          o.cfg.ModelID,
		Voice:          o.cfg.VoiceID,
		Input:          text,
		ResponseFormat: format,
	})
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if clip.Audio, err = io.ReadAll(resp.Body); err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read audio: %w", err))
	}

	o.logger.Debug("synthesized",
		"chars", len(text),
		"bytes", len(clip.Audio),
		"voice", o.cfg.VoiceID,
		"latency", time.Since(start),
	)
	return clip, nil
}

// Health lists models to check the key.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/models", nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	resp, err := o.do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Close drops idle connections.
func (o *OpenAI) Close() error {
	o.http.CloseIdleConnections()
	return nil
}

// Voice returns the configured voice.
func (o *OpenAI) Voice() string {
	return o.cfg.VoiceID
}

// do authorizes and sends req. Non-2xx responses become APIError and the
// body is closed; otherwise the caller owns the body.
func (o *OpenAI) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw)), Provider: providerOpenAI}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message, apiErr.Code = envelope.Error.Message, envelope.Error.Code
	}
	return nil, apiErr
}

var _ Provider = (*OpenAI)(nil)
