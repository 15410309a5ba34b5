// Package audioio provides audio capture and playback for the voice loop.
//
// Backends:
//   - exec: pipes raw PCM16 through arecord/aplay (Linux) or sox (macOS)
//   - mock: synthetic or scripted audio for tests and CI
//
// BackendAuto picks exec when the capture tool is on PATH and falls back to
// mock otherwise.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendExec Backend = "exec"
	BackendMock Backend = "mock"
)

// Sentinel errors for the audioio package.
var (
	// ErrDeviceUnavailable means the capture or playback device cannot be
	// opened or has gone away. It is not worth retrying.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")

	// ErrClosed is returned when using a closed source or sink.
	ErrClosed = errors.New("audioio: closed")
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (what speech recognition expects)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 30ms (480 samples at 16kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is passed to the capture/playback tool, e.g. "plughw:1,0".
	// Empty uses the system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 30 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
