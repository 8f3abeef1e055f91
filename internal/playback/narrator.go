package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgnsrekt/storyreel/internal/audio"
	"github.com/dgnsrekt/storyreel/internal/tts"
)

var (
	// ErrNoTTSEngine is returned when no TTS engine is available.
	ErrNoTTSEngine = errors.New("no TTS engine available")
	// ErrSynthesisFailed is returned when speech synthesis fails during narration.
	ErrSynthesisFailed = errors.New("TTS synthesis failed")
)

// Narrator turns story text into a decoded sample buffer.
type Narrator struct {
	registry *tts.Registry
	logger   *slog.Logger
}

// NewNarrator creates a narrator backed by the registry's engines.
func NewNarrator(registry *tts.Registry, logger *slog.Logger) *Narrator {
	return &Narrator{
		registry: registry,
		logger:   logger,
	}
}

// Narrate synthesizes text with the named engine (empty for the default)
// and decodes the PCM result.
func (n *Narrator) Narrate(ctx context.Context, engineName, text, voice string) (*audio.SampleBuffer, error) {
	engine, err := n.registry.Resolve(engineName)
	if err != nil {
		return nil, errors.Join(ErrNoTTSEngine, err)
	}

	n.logger.Info("synthesizing narration",
		"engine", engine.Name(),
		"text_length", len(text),
		"voice", voice,
	)

	result, err := engine.Synthesize(ctx, tts.SynthesizeRequest{
		Text:  text,
		Voice: voice,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		n.logger.Error("TTS synthesis failed", "engine", engine.Name(), "error", err)
		return nil, errors.Join(ErrSynthesisFailed, err)
	}

	buf, err := result.Buffer()
	if err != nil {
		n.logger.Error("narration decode failed", "engine", engine.Name(), "error", err)
		return nil, err
	}

	n.logger.Debug("narration ready",
		"engine", engine.Name(),
		"sample_rate", buf.SampleRate(),
		"duration", buf.Duration(),
	)
	return buf, nil
}
