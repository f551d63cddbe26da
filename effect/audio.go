package effect

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/pipeline"
)

func init() {
	Register(Definition{
		Name:          "audio",
		Description:   "flash a random color on every peak of the microphone level",
		AudioDefaults: microphoneDefaults,
		New:           newAudio,
	})
	Register(Definition{
		Name:          "audio-loopback",
		Description:   "flash the color of the dominant band of the system audio output",
		AudioDefaults: loopbackDefaults,
		New:           newAudio,
	})
}

func microphoneDefaults() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Mode = pipeline.ModeMicrophone
	cfg.ColorMode = pipeline.RandomColorMode
	return cfg
}

func loopbackDefaults() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.PeakThreshold = 0.03
	cfg.PeakDuration = 150 * time.Millisecond
	cfg.FadeDuration = 400 * time.Millisecond
	cfg.Mode = pipeline.ModeLoopback
	cfg.ColorMode = pipeline.BandColorMode
	return cfg
}

// Audio is an effect driven by an audio pipeline.
type Audio struct {
	pipeline *pipeline.Pipeline
}

// NewAudio wraps a pipeline into an effect.
func NewAudio(p *pipeline.Pipeline) *Audio {
	return &Audio{pipeline: p}
}

func newAudio(params Params) (Effect, error) {
	if params.Backend == nil {
		return nil, errors.New("audio effect requires an audio backend")
	}

	p, err := pipeline.New(params.Audio, params.Backend, pipeline.WithLogger(params.logger()))
	if err != nil {
		return nil, err
	}

	return NewAudio(p), nil
}

// Pipeline returns the underlying pipeline.
func (a *Audio) Pipeline() *pipeline.Pipeline { return a.pipeline }

func (a *Audio) Start(ctx context.Context) error { return a.pipeline.Start(ctx) }

func (a *Audio) Color() led.RGBColor { return a.pipeline.PollCurrentColor() }

func (a *Audio) Stop() error { return a.pipeline.Stop() }

func (a *Audio) KeepsColor() bool { return false }

// Err implements Failing. It reports a lost audio stream.
func (a *Audio) Err() <-chan error { return a.pipeline.Err() }
