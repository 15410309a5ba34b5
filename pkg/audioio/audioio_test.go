package audioio

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.BufferDuration = 10 * time.Millisecond
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("Starts() = %d, want 1", src.Starts())
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := testConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(chunk.Samples) != cfg.BufferSize()*cfg.Channels {
		t.Errorf("Expected %d samples, got %d", cfg.BufferSize(), len(chunk.Samples))
	}
	if chunk.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, chunk.SampleRate)
	}
	if chunk.RMS() != 0 {
		t.Errorf("default mock should be silent, RMS = %f", chunk.RMS())
	}
}

func TestMockSource_Script(t *testing.T) {
	cfg := testConfig()
	loud := Tone(cfg, 3000, 20*time.Millisecond)
	src := NewMockSource(cfg, nil, WithScript(loud, loud))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Start(ctx)

	for i := 0; i < 2; i++ {
		chunk, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if math.Abs(chunk.RMS()-3000) > 1 {
			t.Errorf("scripted chunk RMS = %f, want 3000", chunk.RMS())
		}
	}

	chunk, _ := src.Read(ctx)
	if chunk.RMS() != 0 {
		t.Error("expected silence after script")
	}
}

func TestMockSource_ReadError(t *testing.T) {
	boom := errors.New("unplugged")
	src := NewMockSource(testConfig(), nil, WithReadError(boom))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Start(ctx)

	if _, err := src.Read(ctx); !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestMockSource_StartError(t *testing.T) {
	src := NewMockSource(testConfig(), nil, WithStartError(ErrDeviceUnavailable))
	if err := src.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	ctx := context.Background()
	src.Start(ctx)
	src.Stop()

	deadline, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	for {
		_, err := src.Read(deadline)
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	}
}

func TestMockSource_Closed(t *testing.T) {
	src := NewMockSource(testConfig(), nil)
	src.Close()
	if err := src.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMockSink_WriteFlushClear(t *testing.T) {
	cfg := testConfig()
	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	chunk := Tone(cfg, 100, 10*time.Millisecond)
	sink.Write(ctx, chunk)
	sink.Write(ctx, chunk)

	if got := sink.Stats().BufferedSamples; got != int64(2*len(chunk.Samples)) {
		t.Errorf("BufferedSamples = %d", got)
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(sink.Played()) != 2 || sink.Flushes() != 1 {
		t.Errorf("played %d chunks over %d flushes", len(sink.Played()), sink.Flushes())
	}

	sink.Write(ctx, chunk)
	sink.Clear()
	sink.Flush(ctx)
	if len(sink.Played()) != 2 {
		t.Error("cleared audio should not be played")
	}
}

func TestMockSink_NotRunning(t *testing.T) {
	sink := NewMockSink(testConfig(), nil)
	if err := sink.Write(context.Background(), AudioChunk{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFactoryMock(t *testing.T) {
	src, err := NewSource(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("Name() = %s", src.Name())
	}

	sink, err := NewSink(testConfig(), nil)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if sink.Name() != "mock" {
		t.Errorf("Name() = %s", sink.Name())
	}

	bad := testConfig()
	bad.SampleRate = 0
	if _, err := NewSource(bad, nil); err == nil {
		t.Error("expected validation error")
	}
	bad = testConfig()
	bad.Backend = "coreaudio"
	if _, err := NewSink(bad, nil); err == nil {
		t.Error("expected unsupported backend error")
	}
}

func TestAudioChunk_Bytes(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0x0102, -2}}
	b := chunk.Bytes()
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("Bytes() = %v, want %v", b, want)
		}
	}

	var back AudioChunk
	back.FromBytes(b, 16000, 1)
	if back.Samples[0] != 0x0102 || back.Samples[1] != -2 {
		t.Errorf("FromBytes() = %v", back.Samples)
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	chunk := AudioChunk{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}
	if chunk.Duration() != 100*time.Millisecond {
		t.Errorf("Duration() = %v", chunk.Duration())
	}
	if (&AudioChunk{}).Duration() != 0 {
		t.Error("zero chunk should have zero duration")
	}
}

func TestResample(t *testing.T) {
	same := []int16{1, 2, 3}
	if got := Resample(same, 16000, 16000); len(got) != 3 {
		t.Errorf("same rate changed length: %d", len(got))
	}

	down := make([]int16, 960)
	if got := Resample(down, 48000, 24000); len(got) != 480 {
		t.Errorf("downsample length = %d, want 480", len(got))
	}

	up := make([]int16, 320)
	if got := Resample(up, 16000, 24000); len(got) != 480 {
		t.Errorf("upsample length = %d, want 480", len(got))
	}

	if got := Resample(nil, 16000, 24000); len(got) != 0 {
		t.Error("empty input should stay empty")
	}
}

func TestStereoToMono(t *testing.T) {
	got := StereoToMono([]int16{100, 200, -100, -300})
	if len(got) != 2 || got[0] != 150 || got[1] != -200 {
		t.Errorf("StereoToMono() = %v", got)
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
	if got := RMS([]int16{1000, -1000, 1000, -1000}); got != 1000 {
		t.Errorf("RMS() = %f, want 1000", got)
	}
}
