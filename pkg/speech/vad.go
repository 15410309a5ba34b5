package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/audioio"
)

// VADConfig tunes the energy gate.
type VADConfig struct {
	// SilenceThreshold is the RMS level (int16 scale) separating speech
	// from background noise.
	SilenceThreshold float64

	// SilenceDuration of quiet after speech ends the utterance.
	SilenceDuration time.Duration

	// MaxUtterance caps the recorded length.
	MaxUtterance time.Duration
}

// DefaultVADConfig returns thresholds that suit a quiet room.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SilenceThreshold: 500,
		SilenceDuration:  800 * time.Millisecond,
		MaxUtterance:     15 * time.Second,
	}
}

// Validate checks the configuration.
func (c VADConfig) Validate() error {
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("speech: silence threshold must be positive, got %v", c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("speech: silence duration must be positive, got %v", c.SilenceDuration)
	}
	if c.MaxUtterance < c.SilenceDuration {
		return fmt.Errorf("speech: max utterance %v shorter than silence duration %v", c.MaxUtterance, c.SilenceDuration)
	}
	return nil
}

// VADCapturer records utterances from an audio source using a simple
// energy gate. The source runs only while an utterance is being captured,
// so the microphone is closed while replies are spoken.
type VADCapturer struct {
	src    audioio.Source
	cfg    VADConfig
	logger *slog.Logger
}

// NewVADCapturer creates a capturer over src.
func NewVADCapturer(src audioio.Source, cfg VADConfig, logger *slog.Logger) (*VADCapturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VADCapturer{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "speech.vad"),
	}, nil
}

// CaptureUtterance waits up to timeout for speech onset, then records
// until SilenceDuration of quiet or MaxUtterance of audio.
// A timeout of zero waits for onset indefinitely.
func (c *VADCapturer) CaptureUtterance(ctx context.Context, timeout time.Duration) (*Utterance, error) {
	if err := c.src.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, audioio.ErrDeviceUnavailable) {
			return nil, deviceGone(err)
		}
		return nil, &CaptureError{Err: err}
	}
	defer c.src.Stop()

	onsetCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		onsetCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	var (
		samples  []int16
		speaking bool
		total    time.Duration
		quiet    time.Duration
		started  time.Time
	)

	readCtx := onsetCtx
	for {
		chunk, err := c.src.Read(readCtx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case !speaking && errors.Is(err, context.DeadlineExceeded):
				return nil, &CaptureError{Err: ErrNoSpeech}
			case errors.Is(err, audioio.ErrDeviceUnavailable):
				return nil, deviceGone(err)
			case speaking && errors.Is(err, io.EOF):
				c.logger.Debug("source ended mid-utterance", "recorded", total)
			default:
				return nil, &CaptureError{Err: err}
			}
			break
		}

		mono := chunk.Samples
		if chunk.Channels == 2 {
			mono = audioio.StereoToMono(mono)
		}
		loud := audioio.RMS(mono) >= c.cfg.SilenceThreshold

		if !speaking {
			if !loud {
				continue
			}
			speaking = true
			started = time.Now()
			readCtx = ctx
			c.logger.Debug("speech onset", "rms", audioio.RMS(mono))
		}

		samples = append(samples, mono...)
		d := chunk.Duration()
		total += d
		if loud {
			quiet = 0
		} else {
			quiet += d
		}
		if quiet >= c.cfg.SilenceDuration || total >= c.cfg.MaxUtterance {
			break
		}
	}

	if len(samples) == 0 {
		return nil, &CaptureError{Err: ErrNoSpeech}
	}

	rate := c.src.Config().SampleRate
	c.logger.Debug("utterance captured", "duration", total, "samples", len(samples))
	return &Utterance{
		Samples:    samples,
		SampleRate: rate,
		Duration:   total,
		CapturedAt: started,
	}, nil
}

var _ Capturer = (*VADCapturer)(nil)
