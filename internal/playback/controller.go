// Package playback previews narration audio and produces it from text.
package playback

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dgnsrekt/storyreel/internal/audio"
	"github.com/dgnsrekt/storyreel/internal/audiograph"
)

var (
	// ErrNotPlaying is returned by Pause when nothing is playing.
	ErrNotPlaying = errors.New("playback is not playing")
	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("playback controller closed")
)

// State is the transport state of a Controller.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Controller is a play/pause/resume transport over one decoded buffer. It
// owns a private audio context, so it never shares a source or timeline
// with an encode.
type Controller struct {
	buf    *audio.SampleBuffer
	dest   audiograph.Destination
	graph  *audiograph.Context
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	offset    float64 // seconds into buf where the next Play starts
	startedAt float64 // graph time of the current Play
	source    *audiograph.Source
	onEnd     func()
	closed    bool
}

// NewController creates a stopped controller playing buf into dest.
func NewController(buf *audio.SampleBuffer, dest audiograph.Destination, logger *slog.Logger, opts ...audiograph.Option) *Controller {
	return &Controller{
		buf:    buf,
		dest:   dest,
		graph:  audiograph.Open(opts...),
		logger: logger,
	}
}

// OnEnd registers fn to run when playback reaches the end of the buffer.
func (c *Controller) OnEnd(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnd = fn
}

// Play starts playback from the stored offset. Playing is a no-op. An
// offset at or past the end restarts from zero.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == Playing {
		return nil
	}
	if c.offset >= c.buf.Seconds() {
		c.offset = 0
	}

	src, err := c.graph.NewSource(c.buf, c.dest)
	if err != nil {
		return err
	}
	if err := src.Start(c.offset); err != nil {
		return err
	}

	c.source = src
	c.startedAt = c.graph.CurrentTime()
	c.state = Playing
	go c.watch(src)

	c.logger.Debug("playback started", "offset", c.offset)
	return nil
}

// Pause stops the current source and records how far it got.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return ErrNotPlaying
	}

	src := c.source
	c.offset = c.position()
	c.source = nil
	c.state = Paused
	offset := c.offset
	c.mu.Unlock()

	src.Stop()
	c.logger.Debug("playback paused", "offset", offset)
	return nil
}

// Stop halts playback and rewinds to the start.
func (c *Controller) Stop() {
	c.mu.Lock()
	src := c.source
	c.source = nil
	c.state = Stopped
	c.offset = 0
	c.mu.Unlock()

	if src != nil {
		src.Stop()
	}
}

// Close stops playback and releases the audio context.
func (c *Controller) Close() error {
	c.Stop()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	return c.graph.Close()
}

// State returns the transport state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Offset returns the playback position in seconds.
func (c *Controller) Offset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Playing {
		return c.position()
	}
	return c.offset
}

// Duration returns the buffer length in seconds.
func (c *Controller) Duration() float64 {
	return c.buf.Seconds()
}

// position must be called with mu held while playing.
func (c *Controller) position() float64 {
	pos := c.offset + c.graph.CurrentTime() - c.startedAt
	return min(pos, c.buf.Seconds())
}

func (c *Controller) watch(src *audiograph.Source) {
	<-src.Done()
	select {
	case <-src.Ended():
	default:
		if err := src.Err(); err != nil {
			c.logger.Error("playback failed", "error", err)
			c.mu.Lock()
			if c.source == src {
				c.source = nil
				c.state = Stopped
			}
			c.mu.Unlock()
		}
		return
	}

	c.mu.Lock()
	if c.source != src {
		c.mu.Unlock()
		return
	}
	c.source = nil
	c.state = Stopped
	c.offset = 0
	onEnd := c.onEnd
	c.mu.Unlock()

	c.logger.Debug("playback finished")
	if onEnd != nil {
		onEnd()
	}
}
