package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSpeech is returned when no speech started before the listen timeout.
	ErrNoSpeech = errors.New("speech: no speech detected")

	// ErrBlankInput is returned when an utterance was captured but held nothing.
	ErrBlankInput = errors.New("speech: blank input")

	// ErrEmptyTranscript is returned when recognition produced no text.
	ErrEmptyTranscript = errors.New("speech: empty transcript")

	// ErrDeviceUnavailable means the capture device is permanently gone.
	ErrDeviceUnavailable = errors.New("speech: capture device unavailable")
)

// CaptureError reports a failure to record an utterance.
// Fatal capture errors end the listening session.
type CaptureError struct {
	Err   error
	Fatal bool
}

func (e *CaptureError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("speech: capture failed (fatal): %v", e.Err)
	}
	return fmt.Sprintf("speech: capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// RecognitionError reports a failure to transcribe an utterance.
type RecognitionError struct {
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech: %s recognition failed: %v", e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a capture error that should end the session.
func IsFatal(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Fatal
}

// IsNoSpeech reports whether err means nothing was said.
func IsNoSpeech(err error) bool {
	return errors.Is(err, ErrNoSpeech)
}

// IsBlankInput reports whether err means an empty utterance was captured.
func IsBlankInput(err error) bool {
	return errors.Is(err, ErrBlankInput)
}

// IsCaptureError reports whether err is a capture failure.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}

// IsRecognitionError reports whether err is a recognition failure.
func IsRecognitionError(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re)
}

func deviceGone(err error) *CaptureError {
	return &CaptureError{Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, err), Fatal: true}
}
