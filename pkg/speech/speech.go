// Package speech turns captured audio into text.
//
// A Capturer produces one Utterance per call and a Recognizer transcribes
// it. Listener composes the two into the single Listen call the session
// loop and the auth gate use.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
)

// Utterance is one captured unit of speech awaiting recognition.
type Utterance struct {
	// Samples holds mono PCM16 audio. Empty for text-backed capturers.
	Samples    []int16
	SampleRate int

	// Transcript is set by capturers that already receive text.
	Transcript string

	Duration   time.Duration
	CapturedAt time.Time
}

// Bytes returns the utterance audio as little-endian PCM16.
func (u *Utterance) Bytes() []byte {
	return audioio.SamplesToBytes(u.Samples)
}

// Capturer records a single utterance.
type Capturer interface {
	// CaptureUtterance blocks until speech has been recorded, timeout
	// elapses without speech onset, or ctx is done.
	CaptureUtterance(ctx context.Context, timeout time.Duration) (*Utterance, error)
}

// Recognizer converts an utterance to text.
type Recognizer interface {
	Recognize(ctx context.Context, u *Utterance) (string, error)

	// Name returns the engine name (for logging).
	Name() string
}

// Listener composes a Capturer and a Recognizer.
type Listener struct {
	capturer   Capturer
	recognizer Recognizer
	logger     *slog.Logger
}

// NewListener creates a Listener.
func NewListener(c Capturer, r Recognizer, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		capturer:   c,
		recognizer: r,
		logger:     logger.With("component", "speech.listener"),
	}
}

// Listen captures one utterance and returns its trimmed transcript.
//
// Errors are *CaptureError or *RecognitionError, or ctx.Err() once the
// context is done.
func (l *Listener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	u, err := l.capturer.CaptureUtterance(ctx, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var ce *CaptureError
		if !errors.As(err, &ce) {
			err = &CaptureError{Err: err}
		}
		return "", err
	}

	start := time.Now()
	text, err := l.recognizer.Recognize(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var re *RecognitionError
		if !errors.As(err, &re) {
			err = &RecognitionError{Engine: l.recognizer.Name(), Err: err}
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &RecognitionError{Engine: l.recognizer.Name(), Err: ErrEmptyTranscript}
	}

	l.logger.Debug("recognized",
		"engine", l.recognizer.Name(),
		"audio", u.Duration,
		"latency", time.Since(start),
		"chars", len(text),
	)
	return text, nil
}
