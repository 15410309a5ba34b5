package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
)

// Console prints replies instead of speaking them.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewConsole creates a Console writing "Jarvis: <text>" lines to w.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w, prefix: "Jarvis: "}
}

// Speak prints text.
func (c *Console) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s%s\n", c.prefix, text)
	return err
}

// AudioSpeaker synthesizes replies and plays them on a sink.
// Playback finishes before Speak returns, so the microphone never hears
// the assistant.
type AudioSpeaker struct {
	provider Provider
	sink     audioio.Sink
	fallback *Console
	logger   *slog.Logger
}

// SpeakerOption configures an AudioSpeaker.
type SpeakerOption func(*AudioSpeaker)

// WithFallback sets where text goes when audio fails (default stdout).
func WithFallback(w io.Writer) SpeakerOption {
	return func(s *AudioSpeaker) { s.fallback = NewConsole(w) }
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *AudioSpeaker) { s.logger = l }
}

// NewSpeaker creates an AudioSpeaker.
func NewSpeaker(p Provider, sink audioio.Sink, opts ...SpeakerOption) *AudioSpeaker {
	s := &AudioSpeaker{
		provider: p,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fallback == nil {
		s.fallback = NewConsole(os.Stdout)
	}
	s.logger = s.logger.With("component", "tts.speaker")
	return s
}

// Speak synthesizes and plays text. Synthesis or playback failures are
// logged and the text is printed instead; only cancellation is returned.
func (s *AudioSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	err := s.play(ctx, text)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		s.sink.Clear()
		return ctx.Err()
	}

	s.logger.Warn("speech unavailable, printing reply", "error", err)
	return s.fallback.Speak(ctx, text)
}

func (s *AudioSpeaker) play(ctx context.Context, text string) error {
	if s.provider == nil || s.sink == nil {
		return ErrProviderUnavailable
	}

	clip, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if !clip.Playable() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, clip.Encoding)
	}

	channels := clip.Channels
	if channels == 0 {
		channels = 1
	}
	var chunk audioio.AudioChunk
	chunk.FromBytes(clip.Audio, clip.SampleRate, channels)

	if err := s.sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}
	if err := s.sink.Write(ctx, chunk); err != nil {
		return fmt.Errorf("write sink: %w", err)
	}
	if err := s.sink.Flush(ctx); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	s.logger.Debug("spoke", "chars", len(text), "duration", chunk.Duration())
	return nil
}

var (
	_ Synthesizer = (*Console)(nil)
	_ Synthesizer = (*AudioSpeaker)(nil)
)
