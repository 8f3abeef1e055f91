package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

const (
	// ConvertSampleRate is the rate ffmpeg transcodes unknown containers to.
	ConvertSampleRate = 48000
	// ConvertChannels is the channel count ffmpeg transcodes unknown containers to.
	ConvertChannels = 2
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg is not installed.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")
	// ErrConversionFailed is returned when ffmpeg conversion fails.
	ErrConversionFailed = errors.New("audio conversion failed")
)

// Converter transcodes audio containers beep cannot read.
type Converter struct {
	ffmpegPath string
}

// NewConverter creates a new audio converter.
func NewConverter() (*Converter, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	return &Converter{ffmpegPath: path}, nil
}

// NewConverterWithPath creates a converter with a specific ffmpeg path.
func NewConverterWithPath(path string) *Converter {
	return &Converter{ffmpegPath: path}
}

// ConvertToPCM converts any ffmpeg-readable audio to raw PCM.
// Output: 48kHz, stereo, 16-bit signed little-endian.
func (c *Converter) ConvertToPCM(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input data")
	}

	// -i pipe:0: read from stdin, let ffmpeg probe the container
	// -vn: drop any video stream (exported videos carry one)
	// -f s16le: raw 16-bit signed little-endian on stdout
	args := []string{
		"-i", "pipe:0",
		"-vn",
		"-ar", fmt.Sprintf("%d", ConvertSampleRate),
		"-ac", fmt.Sprintf("%d", ConvertChannels),
		"-f", "s16le",
		"-loglevel", "error",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, stderr.String())
	}

	return stdout.Bytes(), nil
}
