package audiograph

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

// ErrFFPlayNotFound is returned when ffplay is not in PATH.
var ErrFFPlayNotFound = errors.New("ffplay not found in PATH")

// Speaker is a destination that plays samples through an ffplay process
// reading 16-bit stereo PCM on stdin.
type Speaker struct {
	path       string
	sampleRate int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	buf   []byte
}

// NewSpeaker creates a speaker using ffplay from PATH.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	path, err := exec.LookPath("ffplay")
	if err != nil {
		return nil, ErrFFPlayNotFound
	}
	return NewSpeakerWithPath(path, sampleRate), nil
}

// NewSpeakerWithPath creates a speaker using the ffplay binary at path.
func NewSpeakerWithPath(path string, sampleRate int) *Speaker {
	return &Speaker{path: path, sampleRate: sampleRate}
}

// Start launches ffplay. It is a no-op if already running.
func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-f", "s16le",
		"-ch_layout", "stereo",
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.path, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	return nil
}

// WriteSamples converts samples to s16le and writes them to ffplay.
func (s *Speaker) WriteSamples(samples [][2]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return errors.New("ffplay is not running")
	}

	s.buf = appendS16LE(s.buf[:0], samples)
	_, err := s.stdin.Write(s.buf)
	return err
}

// Close stops ffplay.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdin = nil
	return nil
}

func appendS16LE(dst []byte, samples [][2]float64) []byte {
	for _, frame := range samples {
		for _, v := range frame {
			v = math.Max(-1, math.Min(1, v))
			var q int16
			if v < 0 {
				q = int16(v * 32768)
			} else {
				q = int16(v * 32767)
			}
			dst = append(dst, byte(q), byte(uint16(q)>>8))
		}
	}
	return dst
}
