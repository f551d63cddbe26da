// Package pipeline turns live audio into a color signal. A capture callback
// measures each block, detects peaks, picks a color and fades it out, while a
// render loop polls the current color without ever blocking the callback.
package pipeline

import (
	"fmt"
	"time"

	"libdb.so/beatglow/internal/validate"
)

// Mode selects how the input device is chosen when none is given explicitly.
type Mode string

const (
	// ModeAuto prefers a loopback device and falls back to the microphone
	// rules.
	ModeAuto Mode = "auto"
	// ModeMicrophone uses the default input device.
	ModeMicrophone Mode = "microphone"
	// ModeLoopback looks for a monitor of the system audio output.
	ModeLoopback Mode = "loopback"
)

// ClassifierKind selects the band classification strategy.
type ClassifierKind string

const (
	// HeuristicClassifierKind estimates the band from sample-to-sample
	// variation. It is cheap and not frequency-accurate.
	HeuristicClassifierKind ClassifierKind = "heuristic"
	// SpectralClassifierKind computes power per frequency band with an FFT.
	SpectralClassifierKind ClassifierKind = "spectral"
)

// ColorMode selects how a peak is turned into a color.
type ColorMode string

const (
	// BandColorMode maps the classified band to a palette color.
	BandColorMode ColorMode = "bands"
	// RandomColorMode flashes a random color on every peak.
	RandomColorMode ColorMode = "random"
)

// DefaultFrequencyBands are the default band boundaries in Hz.
var DefaultFrequencyBands = []float64{60, 250, 500, 2000, 4000, 8000}

// Config is the configuration of a pipeline.
type Config struct {
	// SampleRate is the capture sample rate in Hz.
	SampleRate float64 `validate:"gt=0"`
	// ChunkSize is the number of frames per block.
	ChunkSize int `validate:"gt=0"`
	// PeakThreshold is the RMS level above which a block counts as a peak.
	PeakThreshold float64 `validate:"gte=0,lte=1"`
	// PeakDuration is how long a peak is held before it starts fading. It is
	// also the minimum time between two peaks.
	PeakDuration time.Duration `validate:"gt=0"`
	// FadeDuration is how long a peak takes to fade to black.
	FadeDuration time.Duration `validate:"gt=0"`
	// Device is the backend index of the input device. If nil, a device is
	// picked according to Mode.
	Device *int `validate:"omitempty,gte=0"`
	// Mode is the device selection mode.
	Mode Mode `validate:"oneof=auto microphone loopback"`
	// Classifier is the band classification strategy. It is only used in
	// BandColorMode.
	Classifier ClassifierKind `validate:"oneof=heuristic spectral"`
	// ColorMode selects between band colors and random colors.
	ColorMode ColorMode `validate:"oneof=bands random"`
	// FrequencyBands are the lower boundaries of each frequency band in Hz.
	// They are only used by the spectral classifier.
	FrequencyBands []float64 `validate:"dive,gte=0"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:     44100,
		ChunkSize:      1024,
		PeakThreshold:  0.05,
		PeakDuration:   100 * time.Millisecond,
		FadeDuration:   200 * time.Millisecond,
		Mode:           ModeAuto,
		Classifier:     HeuristicClassifierKind,
		ColorMode:      BandColorMode,
		FrequencyBands: append([]float64(nil), DefaultFrequencyBands...),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	verr := &validate.Error{}

	for i := 1; i < len(c.FrequencyBands); i++ {
		if c.FrequencyBands[i] <= c.FrequencyBands[i-1] {
			verr.Add(
				fmt.Sprintf("FrequencyBands[%d]", i),
				"band boundaries must be strictly increasing",
				c.FrequencyBands[i])
			break
		}
	}

	if c.ColorMode == BandColorMode && c.Classifier == SpectralClassifierKind && len(c.FrequencyBands) == 0 {
		verr.Add("FrequencyBands", "is required by the spectral classifier", c.FrequencyBands)
	}

	return verr.Err()
}
