package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Whisper recognizes speech with the OpenAI transcription endpoint.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger

	baseURL    string
	httpClient *http.Client
}

// WhisperOption configures a Whisper recognizer.
type WhisperOption func(*Whisper)

// WithWhisperModel sets the transcription model (default "whisper-1").
func WithWhisperModel(model string) WhisperOption {
	return func(w *Whisper) {
		if model != "" {
			w.model = model
		}
	}
}

// WithLanguage sets the ISO-639-1 language hint.
func WithLanguage(lang string) WhisperOption {
	return func(w *Whisper) { w.language = lang }
}

// WithWhisperBaseURL points the recognizer at an OpenAI-compatible server.
func WithWhisperBaseURL(url string) WhisperOption {
	return func(w *Whisper) { w.baseURL = url }
}

// WithWhisperHTTPClient sets the HTTP client.
func WithWhisperHTTPClient(c *http.Client) WhisperOption {
	return func(w *Whisper) { w.httpClient = c }
}

// WithWhisperLogger sets the logger.
func WithWhisperLogger(l *slog.Logger) WhisperOption {
	return func(w *Whisper) { w.logger = l }
}

// NewWhisper creates a Whisper recognizer.
func NewWhisper(apiKey string, opts ...WhisperOption) (*Whisper, error) {
	if apiKey == "" {
		return nil, errors.New("speech: whisper requires an API key")
	}

	w := &Whisper{
		model:    string(openai.AudioModelWhisper1),
		language: "en",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "speech.whisper")

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if w.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(w.baseURL))
	}
	if w.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(w.httpClient))
	}
	client := openai.NewClient(reqOpts...)
	w.client = &client
	return w, nil
}

// Name returns "whisper".
func (w *Whisper) Name() string {
	return "whisper"
}

// Recognize uploads the utterance as a WAV file and returns the transcript.
func (w *Whisper) Recognize(ctx context.Context, u *Utterance) (string, error) {
	if u == nil || len(u.Samples) == 0 {
		return "", &RecognitionError{Engine: w.Name(), Err: ErrEmptyTranscript}
	}

	start := time.Now()
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(EncodeWAV(u.Samples, u.SampleRate)), "utterance.wav", "audio/wav"),
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", &RecognitionError{Engine: w.Name(), Err: err}
	}

	w.logger.Debug("transcribed", "audio", u.Duration, "latency", time.Since(start))
	return resp.Text, nil
}

// EncodeWAV wraps mono PCM16 samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

var _ Recognizer = (*Whisper)(nil)
