package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// PiperSynthesizer runs the local piper binary: text on stdin, wav to
// --output_file.
type PiperSynthesizer struct {
	binary   string
	model    string
	minBytes int64
}

func NewPiperSynthesizer(binary, model string, minBytes int64) *PiperSynthesizer {
	if binary == "" {
		binary = "piper"
	}
	return &PiperSynthesizer{binary: binary, model: model, minBytes: minBytes}
}

func (p *PiperSynthesizer) Synthesize(ctx context.Context, text, outPath string) (n int64, err error) {
	start := time.Now()
	defer func() { observe("tts", start, err) }()

	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("speech: empty text")
	}
	cmd := exec.CommandContext(ctx, p.binary, "--model", p.model, "--output_file", outPath)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("speech: piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return checkOutput(outPath, p.minBytes)
}
