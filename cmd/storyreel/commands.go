package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgnsrekt/storyreel/internal/audiograph"
	"github.com/dgnsrekt/storyreel/internal/media"
	"github.com/dgnsrekt/storyreel/internal/playback"
	"github.com/dgnsrekt/storyreel/internal/remote"
	"github.com/dgnsrekt/storyreel/internal/render"
	"github.com/dgnsrekt/storyreel/internal/subtitle"
	"github.com/dgnsrekt/storyreel/internal/wav"
)

func (a *app) runRender(ctx context.Context, args []string) error {
	fs := a.newFlagSet("render")
	var n narrationFlags
	n.register(fs)
	imageRef := fs.String("image", "", "cover image: file path, URL or data URI (required)")
	out := fs.String("out", "", "output file (default story.<ext>)")
	mimeType := fs.String("type", "", "container MIME type (default: best supported)")
	width := fs.Int("width", a.cfg.VideoWidth, "frame width")
	height := fs.Int("height", a.cfg.VideoHeight, "frame height")
	fps := fs.Int("fps", a.cfg.VideoFPS, "frames per second")
	bitrate := fs.Int("bitrate", a.cfg.VideoBitrate, "video bitrate in bits per second")
	noSubs := fs.Bool("no-subtitles", false, "do not burn in captions")
	dryRun := fs.Bool("dry-run", false, "run the draw loop without encoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imageRef == "" {
		return errors.New("-image is required")
	}

	text, err := n.storyText()
	if err != nil {
		return err
	}
	buf, err := a.loadNarration(ctx, &n)
	if err != nil {
		return err
	}

	var backend render.Backend
	var memory *render.MemoryBackend
	if *dryRun {
		memory = render.NewMemoryBackend()
		backend = memory
	} else {
		ff, err := a.ffmpegBackend()
		if err != nil {
			return err
		}
		backend = ff
	}

	opts := render.Options{
		Width:    *width,
		Height:   *height,
		FPS:      *fps,
		Bitrate:  *bitrate,
		MIMEType: *mimeType,
	}
	if !*noSubs {
		opts.Subtitles = text
	}

	fmt.Fprintf(a.stdout, "rendering %.1fs of narration at %dx%d, this takes as long as the audio\n",
		buf.Seconds(), *width, *height)

	blob, err := render.New(backend, a.logger).Render(ctx, *imageRef, buf, opts)
	if err != nil {
		return err
	}

	if memory != nil {
		stats, _ := memory.LastRecording()
		fmt.Fprintf(a.stdout, "dry run: %d frames, %d samples, %s\n", stats.Frames, stats.Samples, stats.MIMEType)
		return nil
	}
	return a.writeBlob(*out, "story", blob)
}

func (a *app) ffmpegBackend() (*render.FFmpegBackend, error) {
	if a.cfg.FFmpegPath != "" && a.cfg.FFmpegPath != "ffmpeg" {
		return render.NewFFmpegBackendWithPath(a.cfg.FFmpegPath, a.cfg.TempDir, a.logger), nil
	}
	return render.NewFFmpegBackend(a.cfg.TempDir, a.logger)
}

func (a *app) runRemote(ctx context.Context, args []string) error {
	fs := a.newFlagSet("remote")
	var n narrationFlags
	n.register(fs)
	imageRef := fs.String("image", "", "cover image: file path, URL or data URI (required)")
	out := fs.String("out", "", "output file (default story.mp4)")
	endpoint := fs.String("endpoint", a.cfg.RemoteEncoderURL, "encoder service URL")
	noSubs := fs.Bool("no-subtitles", false, "do not burn in captions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imageRef == "" {
		return errors.New("-image is required")
	}

	text, err := n.storyText()
	if err != nil {
		return err
	}
	buf, err := a.loadNarration(ctx, &n)
	if err != nil {
		return err
	}
	if *noSubs {
		text = ""
	}

	blob, err := remote.NewClient(*endpoint, a.logger).RenderRemote(ctx, *imageRef, buf, text)
	if err != nil {
		return err
	}
	return a.writeBlob(*out, "story", blob)
}

func (a *app) runWAV(ctx context.Context, args []string) error {
	fs := a.newFlagSet("wav")
	var n narrationFlags
	n.register(fs)
	out := fs.String("out", "narration.wav", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	buf, err := a.loadNarration(ctx, &n)
	if err != nil {
		return err
	}
	return a.writeBlob(*out, "narration", &media.Blob{Data: wav.Encode(buf), MIMEType: wav.MIMEType})
}

func (a *app) runSRT(ctx context.Context, args []string) error {
	fs := a.newFlagSet("srt")
	var n narrationFlags
	n.register(fs)
	duration := fs.Float64("duration", 0, "narration length in seconds (default: length of the narration audio)")
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := n.storyText()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("-text or -text-file is required")
	}

	seconds := *duration
	if seconds <= 0 {
		buf, err := a.loadNarration(ctx, &n)
		if err != nil {
			return err
		}
		seconds = buf.Seconds()
	}

	doc := subtitle.FormatSRT(subtitle.ComputeTimings(text, seconds))
	if *out == "" {
		_, err := io.WriteString(a.stdout, doc)
		return err
	}
	return a.writeBlob(*out, "captions", &media.Blob{Data: []byte(doc), MIMEType: "application/x-subrip"})
}

func (a *app) runPlay(ctx context.Context, args []string) error {
	fs := a.newFlagSet("play")
	var n narrationFlags
	n.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	buf, err := a.loadNarration(ctx, &n)
	if err != nil {
		return err
	}

	speaker, err := audiograph.NewSpeaker(buf.SampleRate())
	if err != nil {
		return err
	}
	if err := speaker.Start(); err != nil {
		return err
	}
	defer speaker.Close()

	ctrl := playback.NewController(buf, speaker, a.logger)
	defer ctrl.Close()

	ended := make(chan struct{}, 1)
	ctrl.OnEnd(func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	})

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
		close(commands)
	}()

	fmt.Fprintf(a.stdout, "playing %.1fs; enter toggles pause, s stops, q quits\n", ctrl.Duration())
	if err := ctrl.Play(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			fmt.Fprintln(a.stdout, "finished; enter plays again, q quits")
		case cmd, ok := <-commands:
			if !ok || cmd == "q" {
				return nil
			}
			if err := a.playCommand(ctrl, cmd); err != nil {
				return err
			}
		}
	}
}

// playCommand applies one line of transport input.
func (a *app) playCommand(ctrl *playback.Controller, cmd string) error {
	switch cmd {
	case "s":
		ctrl.Stop()
	case "", "p":
		if ctrl.State() == playback.Playing {
			if err := ctrl.Pause(); err != nil && !errors.Is(err, playback.ErrNotPlaying) {
				return err
			}
		} else if err := ctrl.Play(); err != nil {
			return err
		}
	default:
		fmt.Fprintf(a.stdout, "unknown command %q\n", cmd)
		return nil
	}
	fmt.Fprintf(a.stdout, "%s at %.1fs\n", ctrl.State(), ctrl.Offset())
	return nil
}

// writeBlob saves blob to path, or to base plus the type's extension.
func (a *app) writeBlob(path, base string, blob *media.Blob) error {
	if path == "" {
		path = base + media.Extension(blob.MIMEType)
	}
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(a.stdout, "wrote %s (%s, %d bytes)\n", path, blob.MIMEType, blob.Size())
	return nil
}
