// Package audiograph plays sample buffers in real time into destinations.
//
// A Context is a scoped audio timeline: open one per operation and close it
// on every exit path. Closing a context stops every source it created.
package audiograph

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dgnsrekt/storyreel/internal/audio"
)

// DefaultTick is how often a playing source pushes samples downstream.
const DefaultTick = 20 * time.Millisecond

var (
	// ErrContextClosed is returned when a closed context is used.
	ErrContextClosed = errors.New("audio context closed")

	// ErrSourceUsed is returned when a source is started a second time.
	ErrSourceUsed = errors.New("audio source already used")
)

// Destination receives stereo samples as they are played.
type Destination interface {
	WriteSamples(samples [][2]float64) error
}

type discard struct{}

func (discard) WriteSamples([][2]float64) error { return nil }

// Discard is a destination that drops everything written to it.
var Discard Destination = discard{}

// Option configures a Context.
type Option func(*Context)

// WithClock sets the clock driving the timeline.
func WithClock(clk clock.Clock) Option {
	return func(c *Context) {
		c.clock = clk
	}
}

// WithTick sets the sample push interval.
func WithTick(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.tick = d
		}
	}
}

// Context is an audio timeline that starts at zero when opened.
type Context struct {
	clock  clock.Clock
	tick   time.Duration
	origin time.Time

	mu      sync.Mutex
	sources map[*Source]struct{}
	closed  bool
}

// Open creates a new context whose clock starts now.
func Open(opts ...Option) *Context {
	c := &Context{
		clock:   clock.New(),
		tick:    DefaultTick,
		sources: make(map[*Source]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.origin = c.clock.Now()
	return c
}

// Clock returns the clock driving the context.
func (c *Context) Clock() clock.Clock {
	return c.clock
}

// CurrentTime returns seconds elapsed on the context timeline.
func (c *Context) CurrentTime() float64 {
	return c.clock.Since(c.origin).Seconds()
}

// NewSource creates a single-use source that plays buf into dest.
// A nil dest discards samples.
func (c *Context) NewSource(buf *audio.SampleBuffer, dest Destination) (*Source, error) {
	if buf == nil {
		return nil, errors.New("nil sample buffer")
	}
	if dest == nil {
		dest = Discard
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}

	s := &Source{
		graph: c,
		buf:   buf,
		dest:  dest,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		ended: make(chan struct{}),
	}
	c.sources[s] = struct{}{}
	return s, nil
}

// Close stops all sources and waits for them to finish. It is safe to call
// more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sources := make([]*Source, 0, len(c.sources))
	for s := range c.sources {
		sources = append(sources, s)
	}
	c.mu.Unlock()

	for _, s := range sources {
		s.Stop()
	}
	return nil
}

// Active returns the number of sources that have not finished.
func (c *Context) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *Context) remove(s *Source) {
	c.mu.Lock()
	delete(c.sources, s)
	c.mu.Unlock()
}
