package render

import (
	"time"
)

// Output defaults for vertical social video.
const (
	DefaultWidth   = 1080
	DefaultHeight  = 1920
	DefaultFPS     = 30
	DefaultBitrate = 5_000_000

	// TrailingBuffer is how long the draw loop may run past the audio so the
	// last frame is not cut off.
	TrailingBuffer = 500 * time.Millisecond
)

// Options configures a render.
type Options struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int
	// Subtitles is the narration text. Empty disables captions.
	Subtitles string
	// MIMEType requests a container. Empty picks the best supported one.
	MIMEType string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.Bitrate <= 0 {
		o.Bitrate = DefaultBitrate
	}
	return o
}

// FrameInterval returns the time between frames.
func (o Options) FrameInterval() time.Duration {
	return time.Second / time.Duration(o.withDefaults().FPS)
}
