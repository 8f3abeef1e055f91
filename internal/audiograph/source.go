package audiograph

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gopxl/beep"

	"github.com/dgnsrekt/storyreel/internal/audio"
)

const pushChunk = 512

// Source plays one buffer once. It cannot be restarted: create a new source
// for every playback.
type Source struct {
	graph *Context
	buf   *audio.SampleBuffer
	dest  Destination

	mu      sync.Mutex
	started bool
	err     error

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	ended    chan struct{}
}

// Start begins playback at offset seconds into the buffer. Offsets past the
// end finish immediately.
func (s *Source) Start(offset float64) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSourceUsed
	}
	s.started = true
	s.mu.Unlock()

	s.graph.mu.Lock()
	closed := s.graph.closed
	s.graph.mu.Unlock()
	if closed {
		s.finish()
		return ErrContextClosed
	}

	rate := float64(s.buf.SampleRate())
	pos := int(max(offset, 0) * rate)
	remaining := s.buf.Len() - pos
	if remaining <= 0 {
		close(s.ended)
		s.finish()
		return nil
	}

	st := s.buf.Streamer()
	if err := st.Seek(pos); err != nil {
		s.finish()
		return err
	}

	// Timers are created before the pump goroutine so a mock clock advanced
	// right after Start still fires them.
	clk := s.graph.clock
	startedAt := clk.Now()
	ticker := clk.Ticker(s.graph.tick)
	timer := clk.Timer(time.Duration(float64(remaining) / rate * float64(time.Second)))

	go s.pump(st, clk, startedAt, rate, remaining, ticker, timer)
	return nil
}

// Stop halts playback and waits for the pump to exit. A source stopped
// before its natural end never reports Ended. Stop is idempotent.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.started = true
	s.mu.Unlock()

	if !started {
		s.finish()
	}
	<-s.done
}

// Ended is closed when the buffer has played to its end.
func (s *Source) Ended() <-chan struct{} {
	return s.ended
}

// Done is closed when the source has stopped for any reason.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err returns the destination error that stopped playback, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Duration returns the length of the underlying buffer.
func (s *Source) Duration() time.Duration {
	return s.buf.Duration()
}

func (s *Source) finish() {
	s.graph.remove(s)
	close(s.done)
}

func (s *Source) pump(st beep.Streamer, clk clock.Clock, startedAt time.Time, rate float64, remaining int, ticker *clock.Ticker, timer *clock.Timer) {
	defer s.finish()
	defer ticker.Stop()
	defer timer.Stop()

	chunk := make([][2]float64, pushChunk)
	pushed := 0

	push := func(target int) bool {
		for pushed < target {
			n, ok := st.Stream(chunk[:min(len(chunk), target-pushed)])
			if !ok || n == 0 {
				return true
			}
			if err := s.dest.WriteSamples(chunk[:n]); err != nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				return false
			}
			pushed += n
		}
		return true
	}

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			target := min(int(clk.Since(startedAt).Seconds()*rate), remaining)
			if !push(target) {
				return
			}
		case <-timer.C:
			if push(remaining) {
				close(s.ended)
			}
			return
		}
	}
}
