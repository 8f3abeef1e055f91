package render

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"slices"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/dgnsrekt/storyreel/internal/media"
)

// ErrRecorderStopped is returned when a stopped recorder is used.
var ErrRecorderStopped = errors.New("recorder stopped")

// RecordingStats describes a finished in-memory recording.
type RecordingStats struct {
	MIMEType string
	Bitrate  int
	Width    int
	Height   int
	Frames   int
	Samples  int
	// Last is the capture time of the final frame.
	Last time.Duration
}

// MemoryBackend counts frames and samples instead of encoding them, and
// produces a small synthetic container. It is used by tests and dry runs.
type MemoryBackend struct {
	supported []string

	mu   sync.Mutex
	last *RecordingStats
}

// NewMemoryBackend creates a backend supporting the given types, or all of
// PreferredTypes when none are given.
func NewMemoryBackend(supported ...string) *MemoryBackend {
	if len(supported) == 0 {
		supported = PreferredTypes
	}
	norm := make([]string, len(supported))
	for i, t := range supported {
		norm[i] = normalizeType(t)
	}
	return &MemoryBackend{supported: norm}
}

// IsTypeSupported implements Backend.
func (b *MemoryBackend) IsTypeSupported(mimeType string) bool {
	return slices.Contains(b.supported, normalizeType(mimeType))
}

// OpenFrameSink implements Backend.
func (b *MemoryBackend) OpenFrameSink(width, height int) (FrameSink, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid surface size")
	}
	return &memorySink{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

// StartRecording implements Backend.
func (b *MemoryBackend) StartRecording(ctx context.Context, sink FrameSink, opts RecordOptions) (Recorder, error) {
	ms, ok := sink.(*memorySink)
	if !ok {
		return nil, errors.New("sink was not opened by this backend")
	}
	if !b.IsTypeSupported(opts.MIMEType) {
		return nil, ErrUnsupportedType
	}

	ms.mu.Lock()
	ms.frames = 0
	ms.recording = true
	ms.mu.Unlock()

	return &memoryRecorder{backend: b, sink: ms, opts: opts}, nil
}

// LastRecording returns the stats of the most recently stopped recording.
func (b *MemoryBackend) LastRecording() (RecordingStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return RecordingStats{}, false
	}
	return *b.last, true
}

type memorySink struct {
	img *image.RGBA

	mu        sync.Mutex
	recording bool
	frames    int
	last      time.Duration
	checksum  uint32
	closed    bool
}

func (s *memorySink) Surface() draw.Image { return s.img }

func (s *memorySink) CaptureFrame(at time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("surface closed")
	}
	if !s.recording {
		return nil
	}
	s.frames++
	s.last = at
	// Sample the centre pixel so the synthetic output depends on content.
	c := s.img.RGBAAt(s.img.Rect.Dx()/2, s.img.Rect.Dy()/2)
	s.checksum = s.checksum*31 + uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryRecorder struct {
	backend *MemoryBackend
	sink    *memorySink
	opts    RecordOptions

	mu      sync.Mutex
	samples int
	stopped bool
}

func (r *memoryRecorder) WriteSamples(samples [][2]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRecorderStopped
	}
	r.samples += len(samples)
	return nil
}

func (r *memoryRecorder) Stop() (*media.Blob, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrRecorderStopped
	}
	r.stopped = true
	samples := r.samples
	r.mu.Unlock()

	r.sink.mu.Lock()
	r.sink.recording = false
	stats := RecordingStats{
		MIMEType: r.opts.MIMEType,
		Bitrate:  r.opts.Bitrate,
		Width:    r.sink.img.Rect.Dx(),
		Height:   r.sink.img.Rect.Dy(),
		Frames:   r.sink.frames,
		Samples:  samples,
		Last:     r.sink.last,
	}
	checksum := r.sink.checksum
	r.sink.mu.Unlock()

	r.backend.mu.Lock()
	r.backend.last = &stats
	r.backend.mu.Unlock()

	data := make([]byte, 0, 16)
	data = append(data, "SRMB"...)
	data = binary.LittleEndian.AppendUint32(data, uint32(stats.Frames))
	data = binary.LittleEndian.AppendUint32(data, uint32(stats.Samples))
	data = binary.LittleEndian.AppendUint32(data, checksum)

	return &media.Blob{Data: data, MIMEType: r.opts.MIMEType}, nil
}
