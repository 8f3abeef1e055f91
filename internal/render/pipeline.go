package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dgnsrekt/storyreel/internal/audio"
	"github.com/dgnsrekt/storyreel/internal/audiograph"
	"github.com/dgnsrekt/storyreel/internal/compositor"
	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/subtitle"
)

// Pipeline renders one video at a time through a Backend.
type Pipeline struct {
	backend Backend
	logger  *slog.Logger
	clock   clock.Clock
	client  *http.Client

	running sync.Mutex
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock sets the clock for the draw loop and the audio graph.
func WithClock(clk clock.Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clk
	}
}

// WithHTTPClient sets the client used to fetch image URLs.
func WithHTTPClient(c *http.Client) PipelineOption {
	return func(p *Pipeline) {
		p.client = c
	}
}

// New creates a pipeline.
func New(backend Backend, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		backend: backend,
		logger:  logger,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render loads imageRef (data URI, URL or path) and renders it with buf.
func (p *Pipeline) Render(ctx context.Context, imageRef string, buf *audio.SampleBuffer, opts Options) (*media.Blob, error) {
	img, err := compositor.LoadImage(ctx, imageRef, p.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return p.RenderImage(ctx, img, buf, opts)
}

// RenderImage plays buf in real time while drawing frames of img and the
// active caption, and returns the encoded container. It returns ErrBusy if
// another render is running on p.
func (p *Pipeline) RenderImage(ctx context.Context, img image.Image, buf *audio.SampleBuffer, opts Options) (*media.Blob, error) {
	if !p.running.TryLock() {
		return nil, ErrBusy
	}
	defer p.running.Unlock()

	if buf == nil || buf.Len() == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrRender)
	}
	opts = opts.withDefaults()

	var chunks []subtitle.Chunk
	if opts.Subtitles != "" {
		chunks = subtitle.ComputeTimings(opts.Subtitles, buf.Seconds())
	}

	mimeType, err := ChooseType(p.backend, opts.MIMEType)
	if err != nil {
		return nil, errors.Join(ErrRender, err)
	}

	sink, err := p.backend.OpenFrameSink(opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open surface: %v", ErrRender, err)
	}
	defer sink.Close()

	comp, err := compositor.New(opts.Width, opts.Height, img, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	defer comp.Close()

	graph := audiograph.Open(audiograph.WithClock(p.clock))
	defer graph.Close()

	rec, err := p.backend.StartRecording(ctx, sink, RecordOptions{
		MIMEType:   mimeType,
		Bitrate:    opts.Bitrate,
		FPS:        opts.FPS,
		SampleRate: buf.SampleRate(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start recorder: %v", ErrRender, err)
	}
	recording := true
	defer func() {
		if recording {
			graph.Close()
			_, _ = rec.Stop()
		}
	}()

	src, err := graph.NewSource(buf, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	p.logger.Info("render started",
		"width", opts.Width,
		"height", opts.Height,
		"fps", opts.FPS,
		"mime_type", mimeType,
		"duration", buf.Duration(),
		"captions", len(chunks),
	)

	ticker := p.clock.Ticker(opts.FrameInterval())
	defer ticker.Stop()

	if err := src.Start(0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	start := p.clock.Now()
	limit := buf.Duration() + TrailingBuffer
	frames := 0

	frame := func(at time.Duration) error {
		comp.DrawFrame(sink.Surface(), at.Seconds())
		if err := sink.CaptureFrame(at); err != nil {
			return fmt.Errorf("%w: frame capture failed: %v", ErrRender, err)
		}
		frames++
		return nil
	}

	if err := frame(0); err != nil {
		return nil, err
	}

loop:
	for {
		select {
		case <-ctx.Done():
			src.Stop()
			p.logger.Info("render cancelled", "frames", frames)
			return nil, ctx.Err()
		case <-src.Done():
			if err := src.Err(); err != nil {
				return nil, fmt.Errorf("%w: audio: %v", ErrRender, err)
			}
			break loop
		case <-ticker.C:
			elapsed := p.clock.Since(start)
			if elapsed > limit {
				break loop
			}
			if err := frame(elapsed); err != nil {
				return nil, err
			}
		}
	}

	if err := frame(min(p.clock.Since(start), limit)); err != nil {
		return nil, err
	}
	src.Stop()

	recording = false
	blob, err := rec.Stop()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	p.logger.Info("render complete",
		"frames", frames,
		"bytes", blob.Size(),
		"mime_type", blob.MIMEType,
		"elapsed", p.clock.Since(start),
	)
	return blob, nil
}
