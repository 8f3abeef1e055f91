package encoder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/wav"
)

const fakeFFmpeg = `#!/bin/sh
printf '%s\n' "$@" > args.txt
for last; do :; done
printf 'fake-mp4' > "$last"
`

const failingFFmpeg = `#!/bin/sh
echo "Unknown encoder 'libx264'" >&2
exit 1
`

const testSRT = "1\n00:00:00,000 --> 00:00:01,000\nHello.\n\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func testJob(srt string) Job {
	return Job{
		Image: &media.Blob{Data: []byte("\x89PNG\r\n\x1a\n"), MIMEType: "image/png"},
		Audio: &media.Blob{Data: wav.CreateMinimalTTS(240), MIMEType: wav.MIMEType},
		SRT:   srt,
	}
}

func jobDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), jobDirPrefix) {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs
}

func TestEncode_Success(t *testing.T) {
	tmp := t.TempDir()
	mock := clock.NewMock()
	enc := New(Config{
		FFmpegPath:   writeScript(t, fakeFFmpeg),
		TempDir:      tmp,
		CleanupDelay: 10 * time.Second,
	}, quietLogger(), WithClock(mock))

	blob, err := enc.Encode(context.Background(), testJob(testSRT))
	require.NoError(t, err)
	assert.Equal(t, OutputMIMEType, blob.MIMEType)
	assert.Equal(t, []byte("fake-mp4"), blob.Data)

	dirs := jobDirs(t, tmp)
	require.Len(t, dirs, 1)
	dir := dirs[0]

	for _, name := range []string{"image.png", audioFile, subsFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	srt, err := os.ReadFile(filepath.Join(dir, subsFile))
	require.NoError(t, err)
	assert.Equal(t, testSRT, string(srt))

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, enc.args("image.png", true), strings.Split(strings.TrimSuffix(string(args), "\n"), "\n"))

	// The directory outlives the response until the cleanup delay passes.
	assert.Equal(t, 1, enc.Pending())
	mock.Add(9 * time.Second)
	assert.DirExists(t, dir)

	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err) && enc.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEncode_WithoutSubtitles(t *testing.T) {
	tmp := t.TempDir()
	enc := New(Config{
		FFmpegPath:   writeScript(t, fakeFFmpeg),
		TempDir:      tmp,
		CleanupDelay: time.Hour,
	}, quietLogger())
	defer enc.Close()

	job := testJob("  \n")
	job.Image.MIMEType = "image/jpeg"
	_, err := enc.Encode(context.Background(), job)
	require.NoError(t, err)

	dirs := jobDirs(t, tmp)
	require.Len(t, dirs, 1)
	assert.FileExists(t, filepath.Join(dirs[0], "image.jpg"))
	assert.NoFileExists(t, filepath.Join(dirs[0], subsFile))

	args, err := os.ReadFile(filepath.Join(dirs[0], "args.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(args), "subtitles=")
}

func TestEncode_FFmpegNotFound(t *testing.T) {
	tmp := t.TempDir()
	enc := New(Config{
		FFmpegPath: filepath.Join(tmp, "missing", "ffmpeg"),
		TempDir:    tmp,
	}, quietLogger())

	_, err := enc.Encode(context.Background(), testJob(""))
	require.ErrorIs(t, err, ErrFFmpegNotFound)
	assert.Equal(t, "ffmpeg not found", err.Error())
	assert.Empty(t, jobDirs(t, tmp))
}

func TestEncode_Failure(t *testing.T) {
	tmp := t.TempDir()
	mock := clock.NewMock()
	enc := New(Config{
		FFmpegPath:   writeScript(t, failingFFmpeg),
		TempDir:      tmp,
		CleanupDelay: 10 * time.Second,
	}, quietLogger(), WithClock(mock))

	_, err := enc.Encode(context.Background(), testJob(testSRT))
	require.ErrorIs(t, err, ErrEncodeFailed)
	assert.Contains(t, err.Error(), "Unknown encoder 'libx264'")

	// Failed jobs are cleaned up on the same delay.
	require.Len(t, jobDirs(t, tmp), 1)
	assert.Equal(t, 1, enc.Pending())
	mock.Add(10 * time.Second)
	require.Eventually(t, func() bool {
		return len(jobDirs(t, tmp)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEncode_InvalidJob(t *testing.T) {
	enc := New(Config{TempDir: t.TempDir()}, quietLogger())

	tests := []struct {
		name string
		job  Job
	}{
		{"no image", Job{Audio: &media.Blob{Data: []byte{1}}}},
		{"empty image", Job{Image: &media.Blob{}, Audio: &media.Blob{Data: []byte{1}}}},
		{"no audio", Job{Image: &media.Blob{Data: []byte{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(context.Background(), tt.job)
			assert.ErrorIs(t, err, ErrInvalidJob)
		})
	}
}

func TestEncoder_Args(t *testing.T) {
	enc := New(Config{Width: 720, Height: 1280}, quietLogger())

	args := enc.args("image.webp", true)
	assert.Equal(t, []string{"-loop", "1", "-i", "image.webp", "-i", audioFile}, args[4:10])
	assert.Equal(t, outputFile, args[len(args)-1])
	assert.Contains(t, args, "-shortest")
	assert.Contains(t, args, "libx264")
	assert.Contains(t, args, "aac")

	var filter string
	for i, a := range args {
		if a == "-vf" {
			filter = args[i+1]
		}
	}
	assert.True(t, strings.HasPrefix(filter,
		"scale=720:1280:force_original_aspect_ratio=increase,crop=720:1280,subtitles=subs.srt:force_style='"), filter)

	plain := enc.args("image.png", false)
	assert.NotContains(t, strings.Join(plain, " "), "subtitles")
}

func TestImageExtension(t *testing.T) {
	tests := map[string]string{
		"image/png":                ".png",
		"image/jpeg":               ".jpg",
		"image/webp":               ".webp",
		"application/octet-stream": ".png",
		"":                         ".png",
	}
	for in, want := range tests {
		assert.Equal(t, want, imageExtension(in), in)
	}
}

func TestSweep(t *testing.T) {
	tmp := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	stale := filepath.Join(tmp, jobDirPrefix+"stale")
	fresh := filepath.Join(tmp, jobDirPrefix+"fresh")
	other := filepath.Join(tmp, "unrelated")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.Mkdir(dir, 0o700))
	}
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	enc := New(Config{TempDir: tmp}, quietLogger())
	removed, err := enc.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestSweep_MissingDir(t *testing.T) {
	enc := New(Config{TempDir: filepath.Join(t.TempDir(), "gone")}, quietLogger())
	_, err := enc.Sweep(time.Hour)
	assert.Error(t, err)
}

func TestClose_RemovesPending(t *testing.T) {
	tmp := t.TempDir()
	enc := New(Config{
		FFmpegPath:   writeScript(t, fakeFFmpeg),
		TempDir:      tmp,
		CleanupDelay: time.Hour,
	}, quietLogger())

	_, err := enc.Encode(context.Background(), testJob(""))
	require.NoError(t, err)
	require.Len(t, jobDirs(t, tmp), 1)

	enc.Close()
	assert.Empty(t, jobDirs(t, tmp))
	assert.Zero(t, enc.Pending())
}

func TestEncode_Cancelled(t *testing.T) {
	enc := New(Config{
		FFmpegPath: writeScript(t, fakeFFmpeg),
		TempDir:    t.TempDir(),
	}, quietLogger())
	defer enc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enc.Encode(ctx, testJob(testSRT))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
