package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dgnsrekt/storyreel/internal/audio"
)

// Piper writes raw 16-bit PCM at this rate and channel count.
const (
	PiperSampleRate = 22050
	PiperChannels   = 1
)

var (
	// ErrPiperNotFound is returned when the piper binary is not found.
	ErrPiperNotFound = errors.New("piper binary not found")
	// ErrNoModelSpecified is returned when no model is configured.
	ErrNoModelSpecified = errors.New("no piper model specified")
	// ErrSynthesisFailed is returned when speech synthesis fails.
	ErrSynthesisFailed = errors.New("TTS synthesis failed")
)

// PiperConfig holds configuration for the Piper TTS engine.
type PiperConfig struct {
	// BinaryPath is the path to the piper executable.
	BinaryPath string
	// ModelPath is the path to the ONNX model file.
	ModelPath string
	// DefaultVoice is the default voice/speaker to use.
	DefaultVoice string
	// LengthScale slows (>1) or speeds up (<1) speech. Zero keeps the
	// model default.
	LengthScale float64
	// SentenceSilence is the pause inserted after each sentence, in seconds.
	SentenceSilence float64
}

// PiperEngine implements Engine with a local Piper binary, so narration can
// be produced without network access.
type PiperEngine struct {
	config PiperConfig
	logger *slog.Logger
}

// NewPiperEngine creates a new Piper TTS engine.
func NewPiperEngine(cfg PiperConfig, logger *slog.Logger) (*PiperEngine, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "piper"
	}

	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPiperNotFound, cfg.BinaryPath)
	}
	cfg.BinaryPath = path

	if cfg.ModelPath == "" {
		return nil, ErrNoModelSpecified
	}

	return &PiperEngine{
		config: cfg,
		logger: logger,
	}, nil
}

// Name returns the engine identifier.
func (p *PiperEngine) Name() string {
	return "piper"
}

// Synthesize converts text to audio using Piper.
func (p *PiperEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("empty text")
	}

	args := []string{
		"--model", p.config.ModelPath,
		"--output-raw",
	}
	if p.config.LengthScale > 0 {
		args = append(args, "--length_scale", strconv.FormatFloat(p.config.LengthScale, 'f', -1, 64))
	}
	if p.config.SentenceSilence > 0 {
		args = append(args, "--sentence_silence", strconv.FormatFloat(p.config.SentenceSilence, 'f', -1, 64))
	}

	// Add voice/speaker if specified
	voice := req.Voice
	if voice == "" || voice == "default" {
		voice = p.config.DefaultVoice
	}
	if voice != "" && voice != "default" {
		args = append(args, "--speaker", voice)
	}

	p.logger.Debug("running piper",
		"binary", p.config.BinaryPath,
		"model", p.config.ModelPath,
		"voice", voice,
		"text_length", len(req.Text),
	)

	cmd := exec.CommandContext(ctx, p.config.BinaryPath, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Error("piper failed",
			"error", err,
			"stderr", stderr.String(),
		)
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	rawAudio := stdout.Bytes()
	if len(rawAudio) == 0 {
		return nil, fmt.Errorf("%w: no audio output", ErrSynthesisFailed)
	}

	if len(rawAudio)%(audio.BytesPerSample*PiperChannels) != 0 {
		return nil, fmt.Errorf("%w: truncated sample in piper output", ErrSynthesisFailed)
	}

	p.logger.Debug("piper synthesis complete",
		"output_bytes", len(rawAudio),
		"sample_rate", PiperSampleRate,
	)

	return &AudioResult{
		PCM:        rawAudio,
		SampleRate: PiperSampleRate,
		Channels:   PiperChannels,
	}, nil
}
