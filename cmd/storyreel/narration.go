package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dgnsrekt/storyreel/internal/audio"
	"github.com/dgnsrekt/storyreel/internal/playback"
	"github.com/dgnsrekt/storyreel/internal/tts"
)

// errNoNarration is returned when no audio source was given and no speech
// engine is configured.
var errNoNarration = errors.New("no narration audio: pass -audio or -pcm, or set PIPER_MODEL to synthesize -text")

// narrationFlags selects where a command's narration audio and story text
// come from.
type narrationFlags struct {
	audioPath string
	pcmPath   string
	rate      int
	channels  int
	text      string
	textFile  string
	voice     string
	engine    string
}

func (n *narrationFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&n.audioPath, "audio", "", "narration audio file (wav, mp3, ogg, flac, or anything ffmpeg reads)")
	fs.StringVar(&n.pcmPath, "pcm", "", "file holding a base64 raw 16-bit PCM payload")
	fs.IntVar(&n.rate, "rate", audio.TTSSampleRate, "sample rate of -pcm")
	fs.IntVar(&n.channels, "channels", audio.TTSChannels, "channel count of -pcm")
	fs.StringVar(&n.text, "text", "", "story text")
	fs.StringVar(&n.textFile, "text-file", "", "file holding the story text")
	fs.StringVar(&n.voice, "voice", "", "speech voice when synthesizing")
	fs.StringVar(&n.engine, "engine", "", "speech engine when synthesizing (default engine if empty)")
}

// storyText returns the story text from -text or -text-file.
func (n *narrationFlags) storyText() (string, error) {
	if n.textFile == "" {
		return n.text, nil
	}
	data, err := os.ReadFile(n.textFile)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

// hasAudio reports whether narration comes from a file rather than speech
// synthesis.
func (n *narrationFlags) hasAudio() bool {
	return n.audioPath != "" || n.pcmPath != ""
}

// loadNarration decodes -audio or -pcm, or synthesizes the story text.
func (a *app) loadNarration(ctx context.Context, n *narrationFlags) (*audio.SampleBuffer, error) {
	switch {
	case n.audioPath != "":
		f, err := os.Open(n.audioPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio: %w", err)
		}
		defer f.Close()
		return audio.NewContainerDecoder(a.converter()).Decode(ctx, f)

	case n.pcmPath != "":
		data, err := os.ReadFile(n.pcmPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read PCM payload: %w", err)
		}
		return audio.DecodePCM(strings.TrimSpace(string(data)), n.rate, n.channels)
	}

	text, err := n.storyText()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errNoNarration
	}

	registry, err := a.speechEngines()
	if err != nil {
		return nil, err
	}
	voice := n.voice
	if voice == "" {
		voice = a.cfg.DefaultVoice
	}
	return playback.NewNarrator(registry, a.logger).Narrate(ctx, n.engine, text, voice)
}

// converter returns an ffmpeg converter, or nil when ffmpeg is missing.
func (a *app) converter() *audio.Converter {
	if a.cfg.FFmpegPath != "" && a.cfg.FFmpegPath != "ffmpeg" {
		return audio.NewConverterWithPath(a.cfg.FFmpegPath)
	}
	conv, err := audio.NewConverter()
	if err != nil {
		a.logger.Debug("ffmpeg not available, only wav/mp3/ogg/flac can be decoded", "error", err)
		return nil
	}
	return conv
}

// speechEngines builds the registry of configured speech engines.
func (a *app) speechEngines() (*tts.Registry, error) {
	if a.cfg.PiperModel == "" {
		return nil, errNoNarration
	}

	engine, err := tts.NewPiperEngine(tts.PiperConfig{
		BinaryPath:   a.cfg.PiperPath,
		ModelPath:    a.cfg.PiperModel,
		DefaultVoice: a.cfg.DefaultVoice,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Piper TTS: %w", err)
	}

	registry := tts.NewRegistry()
	if err := registry.Register(engine); err != nil {
		return nil, err
	}
	return registry, nil
}
