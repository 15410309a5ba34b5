package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start prepares the sink for writes.
	Start(ctx context.Context) error

	// Write queues an audio chunk for playback.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush plays everything queued and returns once playback finished
	// or ctx is done.
	Flush(ctx context.Context) error

	// Clear discards queued audio without playing it.
	Clear() error

	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("exec", "mock").
	Name() string

	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}
