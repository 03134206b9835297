// Package speech wraps the speech-to-text and text-to-speech collaborators.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"voice-agent/internal/metrics"
)

var (
	ErrNoAudio       = errors.New("speech: recording missing or empty")
	ErrAudioTooShort = errors.New("speech: synthesized audio too small")
)

// Transcriber turns a recorded wav file into text. An empty string with a nil
// error means nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Synthesizer renders text to a wav file at outPath and returns its size.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) (int64, error)
}

func observe(op string, start time.Time, err error) {
	metrics.CollaboratorLatency.WithLabelValues(op, metrics.Status(err)).Observe(time.Since(start).Seconds())
}

// checkOutput verifies a synthesized file exists and is at least minBytes.
// Undersized output is removed.
func checkOutput(path string, minBytes int64) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("speech: stat output: %w", err)
	}
	if fi.Size() < minBytes {
		_ = os.Remove(path)
		return fi.Size(), fmt.Errorf("%w: %d bytes", ErrAudioTooShort, fi.Size())
	}
	return fi.Size(), nil
}
