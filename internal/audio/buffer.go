// Package audio decodes narration audio into sample buffers.
package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gopxl/beep"
)

const (
	// TTSSampleRate is the fixed rate of the speech API's raw PCM output.
	TTSSampleRate = 24000
	// TTSChannels is the fixed channel count of the speech API's output (mono).
	TTSChannels = 1
	// BytesPerSample is the width of one 16-bit PCM sample.
	BytesPerSample = 2
)

// ErrDecode is returned when an audio payload is malformed or truncated.
var ErrDecode = errors.New("audio decode failed")

// SampleBuffer is an immutable block of float samples in [-1, 1].
// All channels have the same length.
type SampleBuffer struct {
	sampleRate int
	channels   [][]float32
}

// NewSampleBuffer builds a buffer from per-channel samples. The slices are
// owned by the buffer afterwards and must not be modified by the caller.
func NewSampleBuffer(sampleRate int, channels ...[]float32) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	n := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != n {
			return nil, fmt.Errorf("channel %d has %d samples, want %d", i+1, len(ch), n)
		}
	}
	return &SampleBuffer{sampleRate: sampleRate, channels: channels}, nil
}

// SampleRate returns samples per second.
func (b *SampleBuffer) SampleRate() int { return b.sampleRate }

// NumChannels returns the channel count.
func (b *SampleBuffer) NumChannels() int { return len(b.channels) }

// Len returns the number of samples per channel.
func (b *SampleBuffer) Len() int { return len(b.channels[0]) }

// Seconds returns the buffer duration in seconds.
func (b *SampleBuffer) Seconds() float64 {
	return float64(b.Len()) / float64(b.sampleRate)
}

// Duration returns the buffer duration.
func (b *SampleBuffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// At returns sample i of channel ch.
func (b *SampleBuffer) At(ch, i int) float32 {
	return b.channels[ch][i]
}

// Channel returns a copy of one channel's samples.
func (b *SampleBuffer) Channel(ch int) []float32 {
	out := make([]float32, len(b.channels[ch]))
	copy(out, b.channels[ch])
	return out
}

// Format describes the buffer in beep terms.
func (b *SampleBuffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(b.sampleRate),
		NumChannels: len(b.channels),
		Precision:   BytesPerSample,
	}
}

// Streamer returns a new read cursor over the buffer. Mono buffers are
// duplicated onto both beep channels; only the first two channels of wider
// buffers are streamed.
func (b *SampleBuffer) Streamer() beep.StreamSeeker {
	return &bufferStreamer{buf: b}
}

type bufferStreamer struct {
	buf *SampleBuffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	total := s.buf.Len()
	if s.pos >= total {
		return 0, false
	}
	left := s.buf.channels[0]
	right := left
	if len(s.buf.channels) > 1 {
		right = s.buf.channels[1]
	}
	for n < len(samples) && s.pos < total {
		samples[n][0] = float64(left[s.pos])
		samples[n][1] = float64(right[s.pos])
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error { return nil }

func (s *bufferStreamer) Len() int { return s.buf.Len() }

func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > s.buf.Len() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.buf.Len())
	}
	s.pos = p
	return nil
}
