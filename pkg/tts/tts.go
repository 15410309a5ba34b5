// Package tts turns replies into speech.
//
// A Provider synthesizes text into a Clip. A Synthesizer delivers a reply
// end to end: AudioSpeaker plays provider output on an audioio.Sink and
// prints the text when synthesis or playback fails, Console only prints.
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice(tts.VoiceOnyx),
//	)
//	speaker := tts.NewSpeaker(provider, sink)
//	_ = speaker.Speak(ctx, "How may I assist you?")
package tts

import (
	"context"
	"time"
)

// Provider synthesizes text in one request.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*Clip, error)
	Health(ctx context.Context) error
	Close() error
}

// Synthesizer speaks a reply and returns once it has been delivered.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Encoding names the byte layout of a Clip.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16" // little-endian signed 16-bit
	EncodingMP3   Encoding = "mp3"
)

// OpenAISampleRate is the rate of OpenAI "pcm" speech output.
const OpenAISampleRate = 24000

// Clip is a complete synthesized utterance.
type Clip struct {
	Audio      []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Playable reports whether a PCM sink can play the clip as is.
func (c *Clip) Playable() bool {
	return c.Encoding == EncodingPCM16 && c.SampleRate > 0
}

// Duration estimates playback time. Non-PCM clips report zero.
func (c *Clip) Duration() time.Duration {
	if !c.Playable() {
		return 0
	}
	ch := c.Channels
	if ch == 0 {
		ch = 1
	}
	frames := len(c.Audio) / (2 * ch)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
