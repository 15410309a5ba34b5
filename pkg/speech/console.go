package speech

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ConsoleCapturer treats each typed line as an utterance. It stands in for
// a microphone when running without audio hardware.
type ConsoleCapturer struct {
	r      io.Reader
	prompt io.Writer

	once  sync.Once
	lines chan string
	err   error
}

// NewConsoleCapturer reads lines from r. If prompt is non-nil a "> "
// marker is written before each wait.
func NewConsoleCapturer(r io.Reader, prompt io.Writer) *ConsoleCapturer {
	return &ConsoleCapturer{r: r, prompt: prompt, lines: make(chan string)}
}

func (c *ConsoleCapturer) scan() {
	defer close(c.lines)
	sc := bufio.NewScanner(c.r)
	for sc.Scan() {
		c.lines <- sc.Text()
	}
	c.err = sc.Err()
}

// CaptureUtterance waits for the next line. End of input is fatal.
func (c *ConsoleCapturer) CaptureUtterance(ctx context.Context, timeout time.Duration) (*Utterance, error) {
	c.once.Do(func() { go c.scan() })

	if c.prompt != nil {
		io.WriteString(c.prompt, "> ")
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, &CaptureError{Err: ErrNoSpeech}
	case line, ok := <-c.lines:
		if !ok {
			err := c.err
			if err == nil {
				err = io.EOF
			}
			return nil, deviceGone(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, &CaptureError{Err: ErrBlankInput}
		}
		return &Utterance{Transcript: line, CapturedAt: time.Now()}, nil
	}
}

// TranscriptRecognizer returns the transcript a text capturer attached.
type TranscriptRecognizer struct{}

// Name returns "text".
func (TranscriptRecognizer) Name() string {
	return "text"
}

// Recognize returns u.Transcript.
func (TranscriptRecognizer) Recognize(ctx context.Context, u *Utterance) (string, error) {
	if u == nil || u.Transcript == "" {
		return "", errors.New("utterance carries no transcript")
	}
	return u.Transcript, nil
}

var (
	_ Capturer   = (*ConsoleCapturer)(nil)
	_ Recognizer = TranscriptRecognizer{}
)
