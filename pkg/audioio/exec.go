package audioio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// captureCommand returns the tool and arguments that write raw PCM16 to stdout.
func captureCommand(cfg Config) (string, []string) {
	rate := strconv.Itoa(cfg.SampleRate)
	ch := strconv.Itoa(cfg.Channels)
	if runtime.GOOS == "darwin" {
		return "sox", []string{"-q", "-d", "-t", "raw", "-r", rate, "-e", "signed", "-b", "16", "-c", ch, "-"}
	}
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return "arecord", args
}

// playbackCommand returns the tool and arguments that play raw PCM16 from stdin.
func playbackCommand(cfg Config) (string, []string) {
	rate := strconv.Itoa(cfg.SampleRate)
	ch := strconv.Itoa(cfg.Channels)
	if runtime.GOOS == "darwin" {
		return "sox", []string{"-q", "-t", "raw", "-r", rate, "-e", "signed", "-b", "16", "-c", ch, "-", "-d"}
	}
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", ch}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return "aplay", args
}

// execAvailable reports whether the capture tool is installed.
func execAvailable() bool {
	name, _ := captureCommand(DefaultConfig())
	_, err := exec.LookPath(name)
	return err == nil
}

// ExecSource captures audio by reading the stdout of arecord (or sox).
type ExecSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cancel   context.CancelFunc
	streamCh chan AudioChunk
	readErr  error

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newExecSource(cfg Config, logger *slog.Logger) *ExecSource {
	return &ExecSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.exec_source"),
	}
}

// Start launches the capture process.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	name, args := captureCommand(s.cfg)
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrDeviceUnavailable, name, err)
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, name, err)
	}

	s.cancel = cancel
	s.running = true
	s.readErr = nil
	s.streamCh = make(chan AudioChunk, 32)

	go s.readLoop(procCtx, cmd, bufio.NewReader(stdout), &stderr, s.streamCh)

	s.logger.Info("capture started",
		"tool", name,
		"device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

func (s *ExecSource) readLoop(ctx context.Context, cmd *exec.Cmd, r io.Reader, stderr *bytes.Buffer, out chan AudioChunk) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			waitErr := cmd.Wait()
			if ctx.Err() == nil {
				// The process ended on its own: the device is gone.
				s.mu.Lock()
				s.readErr = fmt.Errorf("%w: capture exited: %v %s", ErrDeviceUnavailable, errors.Join(err, waitErr), stderr.String())
				s.mu.Unlock()
				s.logger.Error("capture process exited", "error", waitErr, "stderr", stderr.String())
			}
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Read returns the next captured chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			s.mu.Lock()
			err := s.readErr
			s.mu.Unlock()
			if err != nil {
				return AudioChunk{}, err
			}
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stop kills the capture process.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	s.logger.Info("capture stopped")
	return nil
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSource) Name() string {
	return string(BackendExec)
}

// Close stops capture and marks the source unusable.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns source statistics.
func (s *ExecSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     s.Name(),
	}
}

// ExecSink plays audio by piping queued PCM into aplay (or sox) on Flush.
type ExecSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	buf     bytes.Buffer

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

func newExecSink(cfg Config, logger *slog.Logger) *ExecSink {
	return &ExecSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.exec_sink"),
	}
}

// Start checks that the playback tool exists.
func (s *ExecSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	name, _ := playbackCommand(s.cfg)
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrDeviceUnavailable, name, err)
	}
	s.running = true
	return nil
}

// Write queues a chunk, resampling it to the sink rate if needed.
func (s *ExecSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return ErrClosed
	}

	samples := chunk.Samples
	if chunk.Channels == 2 && s.cfg.Channels == 1 {
		samples = StereoToMono(samples)
	}
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}
	s.buf.Write(SamplesToBytes(samples))

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Flush plays the queued audio and waits for the player to exit.
func (s *ExecSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.buf.Len() == 0 {
		s.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	s.mu.Unlock()

	name, args := playbackCommand(s.cfg)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v %s", ErrDeviceUnavailable, name, err, stderr.String())
	}
	return nil
}

// Clear drops queued audio.
func (s *ExecSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	return nil
}

// Stop halts playback acceptance.
func (s *ExecSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.buf.Reset()
	return nil
}

// Config returns the audio configuration.
func (s *ExecSink) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSink) Name() string {
	return string(BackendExec)
}

// Close marks the sink unusable.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns sink statistics.
func (s *ExecSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Running:         s.running,
		Backend:         s.Name(),
		BufferedSamples: int64(s.buf.Len() / 2),
	}
}

var (
	_ Source = (*ExecSource)(nil)
	_ Sink   = (*ExecSink)(nil)
)
