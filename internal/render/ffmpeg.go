package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/storyreel/internal/media"
)

// ErrFFmpegNotFound is returned when ffmpeg is not installed.
var ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

// codecSet names the ffmpeg muxer and encoders for a container type.
type codecSet struct {
	format string
	video  string
	audio  string
}

// codecsFor maps a MIME type to ffmpeg encoders.
func codecsFor(mimeType string) (codecSet, bool) {
	base, params := media.SplitType(mimeType)
	codecs := strings.ReplaceAll(strings.ToLower(params["codecs"]), " ", "")

	switch base {
	case "video/webm":
		switch codecs {
		case "vp9,opus":
			return codecSet{format: "webm", video: "libvpx-vp9", audio: "libopus"}, true
		case "vp8,opus", "":
			return codecSet{format: "webm", video: "libvpx", audio: "libopus"}, true
		}
	case "video/mp4":
		if codecs == "" {
			return codecSet{format: "mp4", video: "libx264", audio: "aac"}, true
		}
	}
	return codecSet{}, false
}

// FFmpegBackend encodes with an ffmpeg child process. Raw RGBA frames are
// written to fd 3 and float32 stereo samples to fd 4.
type FFmpegBackend struct {
	path    string
	tempDir string
	logger  *slog.Logger

	probe    singleflight.Group
	mu       sync.Mutex
	encoders map[string]bool
}

// NewFFmpegBackend creates a backend using ffmpeg from PATH. An empty
// tempDir uses the system default.
func NewFFmpegBackend(tempDir string, logger *slog.Logger) (*FFmpegBackend, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	return NewFFmpegBackendWithPath(path, tempDir, logger), nil
}

// NewFFmpegBackendWithPath creates a backend with a specific ffmpeg path.
func NewFFmpegBackendWithPath(path, tempDir string, logger *slog.Logger) *FFmpegBackend {
	return &FFmpegBackend{path: path, tempDir: tempDir, logger: logger}
}

// IsTypeSupported reports whether ffmpeg has the encoders for mimeType.
// The encoder list is probed once.
func (b *FFmpegBackend) IsTypeSupported(mimeType string) bool {
	set, ok := codecsFor(mimeType)
	if !ok {
		return false
	}
	encoders, err := b.availableEncoders()
	if err != nil {
		b.logger.Warn("ffmpeg encoder probe failed", "error", err)
		return false
	}
	return encoders[set.video] && encoders[set.audio]
}

func (b *FFmpegBackend) availableEncoders() (map[string]bool, error) {
	b.mu.Lock()
	cached := b.encoders
	b.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := b.probe.Do("encoders", func() (any, error) {
		out, err := exec.Command(b.path, "-hide_banner", "-encoders").Output()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg -encoders: %w", err)
		}
		encoders := parseEncoders(out)
		b.mu.Lock()
		b.encoders = encoders
		b.mu.Unlock()
		return encoders, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]bool), nil
}

// parseEncoders reads the encoder names from `ffmpeg -encoders` output.
// Lines look like " V....D libvpx-vp9           libvpx VP9".
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// OpenFrameSink implements Backend.
func (b *FFmpegBackend) OpenFrameSink(width, height int) (FrameSink, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("surface size %dx%d must be positive and even", width, height)
	}
	return &pipeSink{img: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

// StartRecording implements Backend.
func (b *FFmpegBackend) StartRecording(ctx context.Context, sink FrameSink, opts RecordOptions) (Recorder, error) {
	ps, ok := sink.(*pipeSink)
	if !ok {
		return nil, errors.New("sink was not opened by this backend")
	}
	set, ok := codecsFor(opts.MIMEType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, opts.MIMEType)
	}

	out, err := os.CreateTemp(b.tempDir, "storyreel-*"+media.Extension(opts.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	outPath := out.Name()
	out.Close()

	videoR, videoW, err := os.Pipe()
	if err != nil {
		os.Remove(outPath)
		return nil, err
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		videoR.Close()
		videoW.Close()
		os.Remove(outPath)
		return nil, err
	}

	bounds := ps.img.Bounds()
	args := encodeArgs(set, bounds.Dx(), bounds.Dy(), opts, outPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.path, args...)
	cmd.ExtraFiles = []*os.File{videoR, audioR}
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	b.logger.Debug("starting ffmpeg encoder", "args", strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		videoR.Close()
		videoW.Close()
		audioR.Close()
		audioW.Close()
		os.Remove(outPath)
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	// The child holds its own copies of the read ends.
	videoR.Close()
	audioR.Close()

	ps.attach(videoW, opts.FPS)

	return &pipeRecorder{
		cmd:      cmd,
		stderr:   &stderr,
		sink:     ps,
		audio:    audioW,
		outPath:  outPath,
		mimeType: opts.MIMEType,
	}, nil
}

// encodeArgs builds the ffmpeg command line for a recording.
func encodeArgs(set codecSet, width, height int, opts RecordOptions, outPath string) []string {
	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	bitrate := opts.Bitrate
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-thread_queue_size", "512",
		"-i", "pipe:3",
		"-f", "f32le",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", "2",
		"-thread_queue_size", "512",
		"-i", "pipe:4",
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", set.video,
		"-b:v", strconv.Itoa(bitrate),
		"-pix_fmt", "yuv420p",
		"-c:a", set.audio,
		"-b:a", "128k",
	}
	switch set.format {
	case "webm":
		args = append(args, "-ar", "48000", "-deadline", "realtime", "-cpu-used", "8")
	case "mp4":
		args = append(args, "-preset", "veryfast", "-movflags", "+faststart")
	}
	return append(args, "-f", set.format, outPath)
}

// pipeSink writes each captured frame to ffmpeg as raw RGBA, repeating the
// surface so the output keeps a constant frame rate.
type pipeSink struct {
	img *image.RGBA

	mu      sync.Mutex
	w       io.WriteCloser
	fps     int
	written int
}

func (s *pipeSink) attach(w io.WriteCloser, fps int) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	s.mu.Lock()
	s.w, s.fps, s.written = w, fps, 0
	s.mu.Unlock()
}

func (s *pipeSink) Surface() draw.Image { return s.img }

func (s *pipeSink) CaptureFrame(at time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	target := int(at.Seconds()*float64(s.fps)) + 1
	for s.written < target {
		if _, err := s.w.Write(s.img.Pix); err != nil {
			return err
		}
		s.written++
	}
	return nil
}

// detach closes the video pipe, signalling end of stream.
func (s *pipeSink) detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

func (s *pipeSink) Close() error {
	return s.detach()
}

type pipeRecorder struct {
	cmd      *exec.Cmd
	stderr   *bytes.Buffer
	sink     *pipeSink
	outPath  string
	mimeType string

	mu      sync.Mutex
	audio   *os.File
	buf     []byte
	stopped bool
}

func (r *pipeRecorder) WriteSamples(samples [][2]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRecorderStopped
	}

	r.buf = r.buf[:0]
	for _, frame := range samples {
		r.buf = binary.LittleEndian.AppendUint32(r.buf, math.Float32bits(float32(frame[0])))
		r.buf = binary.LittleEndian.AppendUint32(r.buf, math.Float32bits(float32(frame[1])))
	}
	_, err := r.audio.Write(r.buf)
	return err
}

func (r *pipeRecorder) Stop() (*media.Blob, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, ErrRecorderStopped
	}
	r.stopped = true
	r.audio.Close()
	r.mu.Unlock()

	r.sink.detach()
	defer os.Remove(r.outPath)

	if err := r.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode failed: %v: %s", err, strings.TrimSpace(r.stderr.String()))
	}

	data, err := os.ReadFile(r.outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded output: %w", err)
	}
	return &media.Blob{Data: data, MIMEType: r.mimeType}, nil
}
