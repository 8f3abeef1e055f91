// Package encoder runs server-side video encodes: a still cover image looped
// under the narration audio, with optional burned-in SRT captions.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/storyreel/internal/media"
)

const (
	// OutputMIMEType is the container Encode produces.
	OutputMIMEType = "video/mp4"

	// DefaultCleanupDelay is how long a job directory outlives its encode.
	DefaultCleanupDelay = 10 * time.Second

	jobDirPrefix = "render-"
	audioFile    = "audio.wav"
	subsFile     = "subs.srt"
	outputFile   = "output.mp4"

	subtitleStyle = "FontName=Arial,FontSize=14,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000," +
		"BorderStyle=1,Outline=2,Shadow=1,Alignment=2,MarginV=60"
)

var (
	// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be located.
	ErrFFmpegNotFound = errors.New("ffmpeg not found")
	// ErrEncodeFailed is returned when ffmpeg exits with an error.
	ErrEncodeFailed = errors.New("video encode failed")
	// ErrInvalidJob is returned when a job is missing its image or audio.
	ErrInvalidJob = errors.New("invalid job")
)

// Job is one encode request.
type Job struct {
	Image *media.Blob
	Audio *media.Blob
	// SRT is the caption document to burn in; empty means no captions.
	SRT string
}

// Config controls the encoder.
type Config struct {
	FFmpegPath   string // empty: look up "ffmpeg" on PATH
	TempDir      string // empty: os.TempDir()
	Width        int
	Height       int
	CleanupDelay time.Duration
}

// Encoder turns jobs into MP4 files using ffmpeg.
type Encoder struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	pending map[string]*clock.Timer
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithClock sets the clock used for cleanup timers and sweep ages.
func WithClock(clk clock.Clock) Option {
	return func(e *Encoder) {
		e.clock = clk
	}
}

// New creates an encoder. ffmpeg is resolved on each Encode so the service
// can start, and report the problem per job, without it.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Encoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Width <= 0 {
		cfg.Width = 1080
	}
	if cfg.Height <= 0 {
		cfg.Height = 1920
	}
	if cfg.CleanupDelay < 0 {
		cfg.CleanupDelay = 0
	}

	e := &Encoder{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.New(),
		pending: make(map[string]*clock.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode writes the job's inputs to a fresh directory, runs ffmpeg and
// returns the MP4. The directory is removed CleanupDelay after Encode
// returns, whether it succeeded or not.
func (e *Encoder) Encode(ctx context.Context, job Job) (*media.Blob, error) {
	if job.Image == nil || job.Image.Size() == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidJob)
	}
	if job.Audio == nil || job.Audio.Size() == 0 {
		return nil, fmt.Errorf("%w: audio is empty", ErrInvalidJob)
	}

	ffmpeg, err := exec.LookPath(e.cfg.FFmpegPath)
	if err != nil {
		return nil, ErrFFmpegNotFound
	}

	id := uuid.NewString()
	dir := filepath.Join(e.cfg.TempDir, jobDirPrefix+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	defer e.scheduleCleanup(dir)

	logger := e.logger.With("job_id", id)
	imageName := "image" + imageExtension(job.Image.MIMEType)
	withSubs := strings.TrimSpace(job.SRT) != ""

	g, gctx := errgroup.WithContext(ctx)
	write := func(name string, data []byte) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			return nil
		})
	}
	write(imageName, job.Image.Data)
	write(audioFile, job.Audio.Data)
	if withSubs {
		write(subsFile, []byte(job.SRT))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	args := e.args(imageName, withSubs)
	logger.Debug("running ffmpeg", "args", strings.Join(args, " "))

	start := e.clock.Now()
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := tail(stderr.String(), 5)
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrEncodeFailed, msg)
	}

	data, err := os.ReadFile(filepath.Join(dir, outputFile))
	if err != nil {
		return nil, fmt.Errorf("%w: output missing: %v", ErrEncodeFailed, err)
	}

	logger.Info("encode complete",
		"bytes", len(data),
		"subtitles", withSubs,
		"duration", e.clock.Since(start),
	)
	return &media.Blob{Data: data, MIMEType: OutputMIMEType}, nil
}

// args builds the ffmpeg command line. Paths are relative to the job
// directory so the subtitles filter needs no escaping.
func (e *Encoder) args(imageName string, withSubs bool) []string {
	w, h := strconv.Itoa(e.cfg.Width), strconv.Itoa(e.cfg.Height)
	filter := "scale=" + w + ":" + h + ":force_original_aspect_ratio=increase,crop=" + w + ":" + h
	if withSubs {
		filter += ",subtitles=" + subsFile + ":force_style='" + subtitleStyle + "'"
	}

	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-loop", "1",
		"-i", imageName,
		"-i", audioFile,
		"-vf", filter,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-movflags", "+faststart",
		outputFile,
	}
}

func (e *Encoder) scheduleCleanup(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending[dir] = e.clock.AfterFunc(e.cfg.CleanupDelay, func() {
		e.mu.Lock()
		delete(e.pending, dir)
		e.mu.Unlock()
		e.remove(dir)
	})
}

func (e *Encoder) remove(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("failed to remove job directory", "dir", dir, "error", err)
		return
	}
	e.logger.Debug("removed job directory", "dir", dir)
}

// Pending returns the number of job directories awaiting cleanup.
func (e *Encoder) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Sweep removes job directories older than maxAge, including ones left
// behind by a previous process. It returns how many were removed.
func (e *Encoder) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(e.cfg.TempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := e.clock.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), jobDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(e.cfg.TempDir, entry.Name())
		e.mu.Lock()
		if t, ok := e.pending[dir]; ok {
			t.Stop()
			delete(e.pending, dir)
		}
		e.mu.Unlock()

		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("failed to sweep job directory", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Close removes every directory still awaiting its cleanup delay.
func (e *Encoder) Close() {
	e.mu.Lock()
	dirs := make([]string, 0, len(e.pending))
	for dir, t := range e.pending {
		t.Stop()
		dirs = append(dirs, dir)
	}
	clear(e.pending)
	e.mu.Unlock()

	for _, dir := range dirs {
		e.remove(dir)
	}
}

// imageExtension picks a file extension ffmpeg's image demuxers accept.
func imageExtension(mimeType string) string {
	switch ext := media.Extension(mimeType); ext {
	case ".png", ".jpg", ".gif", ".webp":
		return ext
	default:
		return ".png"
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
