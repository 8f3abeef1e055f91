// Package render drives real-time capture and encode of narrated videos.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/dgnsrekt/storyreel/internal/audiograph"
	"github.com/dgnsrekt/storyreel/internal/media"
)

var (
	// ErrRender is returned when the image, surface or recorder cannot be
	// acquired, or encoding fails.
	ErrRender = errors.New("render failed")

	// ErrBusy is returned when a render is already running on a Pipeline.
	ErrBusy = errors.New("render already in progress")

	// ErrUnsupportedType is returned when no container format is available.
	ErrUnsupportedType = errors.New("no supported video format")
)

// PreferredTypes lists container formats in order of preference.
var PreferredTypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

// A FrameSink is a drawable surface whose pixels can be captured as frames.
type FrameSink interface {
	Surface() draw.Image
	// CaptureFrame records the current surface as the frame shown at the
	// given time since the start of the recording.
	CaptureFrame(at time.Duration) error
	Close() error
}

// RecordOptions configures a recording.
type RecordOptions struct {
	MIMEType   string
	Bitrate    int
	FPS        int
	SampleRate int
}

// A Recorder encodes captured frames and the samples written to it.
type Recorder interface {
	audiograph.Destination
	// Stop finalizes the encoding and returns the container bytes. The
	// recorder cannot be used afterwards.
	Stop() (*media.Blob, error)
}

// A Backend provides surfaces and recorders.
type Backend interface {
	OpenFrameSink(width, height int) (FrameSink, error)
	IsTypeSupported(mimeType string) bool
	StartRecording(ctx context.Context, sink FrameSink, opts RecordOptions) (Recorder, error)
}

// ChooseType returns requested if the backend supports it, or the first
// supported entry of PreferredTypes when requested is empty.
func ChooseType(b Backend, requested string) (string, error) {
	if requested != "" {
		if b.IsTypeSupported(requested) {
			return requested, nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, requested)
	}
	for _, t := range PreferredTypes {
		if b.IsTypeSupported(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrUnsupportedType, strings.Join(PreferredTypes, ", "))
}

// normalizeType lowercases a MIME type and strips spaces so that
// "video/webm; codecs=vp9, opus" matches its canonical form.
func normalizeType(mimeType string) string {
	return strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
}
