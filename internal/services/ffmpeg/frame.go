package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

const (
	defaultBinary  = "ffmpeg"
	defaultTimeout = 30 * time.Second
	defaultSeek    = "1.0"
)

// Option configures the Extractor.
type Option func(*Extractor)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(e *Extractor) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithTimeout overrides the per-extraction timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// Extractor runs ffmpeg to pull PNG frames out of video data.
type Extractor struct {
	binary  string
	timeout time.Duration
	tempDir string
}

// NewExtractor constructs an Extractor. Temporary inputs are written to
// tempDir, or the system default when empty.
func NewExtractor(tempDir string, opts ...Option) *Extractor {
	e := &Extractor{binary: defaultBinary, timeout: defaultTimeout, tempDir: tempDir}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FirstFrame returns a PNG-encoded frame from data.
func (e *Extractor) FirstFrame(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("ffmpeg frame: empty input")
	}
	input, err := os.CreateTemp(e.tempDir, "memecat-frame-*")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame: create temp input: %w", err)
	}
	defer os.Remove(input.Name())
	if _, err := input.Write(data); err != nil {
		input.Close()
		return nil, fmt.Errorf("ffmpeg frame: write temp input: %w", err)
	}
	if err := input.Close(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame: close temp input: %w", err)
	}

	frame, err := e.extract(ctx, input.Name(), defaultSeek)
	if err == nil && len(frame) > 0 {
		return frame, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	// Clips shorter than the seek offset produce no output.
	frame, err = e.extract(ctx, input.Name(), "")
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, errors.New("ffmpeg frame: no video frame decoded")
	}
	return frame, nil
}

func (e *Extractor) extract(ctx context.Context, source, seek string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{"-hide_banner", "-loglevel", "error"}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	args = append(args,
		"-i", source,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg frame: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg frame: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
