// Package tts produces narration audio from text.
package tts

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/dgnsrekt/storyreel/internal/audio"
)

// SynthesizeRequest contains parameters for speech synthesis.
type SynthesizeRequest struct {
	Text  string
	Voice string
}

// AudioResult is synthesized speech as raw signed 16-bit little-endian PCM
// without a header.
type AudioResult struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Base64 returns the PCM payload in the speech API's wire encoding.
func (a *AudioResult) Base64() string {
	return base64.StdEncoding.EncodeToString(a.PCM)
}

// Buffer decodes the PCM into a sample buffer.
func (a *AudioResult) Buffer() (*audio.SampleBuffer, error) {
	return audio.DecodePCMBytes(a.PCM, a.SampleRate, a.Channels)
}

// Duration returns the playing time of the PCM payload.
func (a *AudioResult) Duration() time.Duration {
	rate, channels := a.SampleRate, a.Channels
	if rate <= 0 {
		rate = audio.TTSSampleRate
	}
	if channels <= 0 {
		channels = audio.TTSChannels
	}
	frames := len(a.PCM) / (audio.BytesPerSample * channels)
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// Engine is the interface for text-to-speech synthesis.
type Engine interface {
	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error)
	// Name returns the engine identifier.
	Name() string
}
