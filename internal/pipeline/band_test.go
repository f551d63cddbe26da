package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/beatglow/capture"
)

func monoBlock(samples ...float64) capture.Block {
	return capture.Block{Samples: samples, Channels: 1, SampleRate: 44100}
}

func constBlock(v float64, n int) capture.Block {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = v
	}
	return monoBlock(samples...)
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(constBlock(0, 1024)))
	assert.Equal(t, 0.0, RMS(capture.Block{}))
	assert.InDelta(t, 0.3, RMS(constBlock(-0.3, 512)), 1e-12)
	assert.InDelta(t, 1.0, RMS(constBlock(1, 7)), 1e-12)

	t.Run("first channel only", func(t *testing.T) {
		block := capture.Block{
			Samples:  []float64{0.5, 1, 0.5, -1, 0.5, 1},
			Channels: 2,
		}
		assert.InDelta(t, 0.5, RMS(block), 1e-12)
	})
}

func TestHeuristicClassifier(t *testing.T) {
	var c HeuristicClassifier

	assert.Equal(t, 0, c.Classify(constBlock(0.4, 256)), "constant block")
	assert.Equal(t, 0, c.Classify(monoBlock(1)), "single frame")
	assert.Equal(t, 0, c.Classify(capture.Block{}), "empty block")

	alternating := make([]float64, 256)
	for i := range alternating {
		alternating[i] = 1
		if i%2 == 1 {
			alternating[i] = -1
		}
	}
	assert.Equal(t, HeuristicBands-1, c.Classify(monoBlock(alternating...)), "alternating block")

	tests := []struct {
		step float64
		band int
	}{
		{0.005, 0},
		{0.015, 1},
		{0.025, 2},
		{0.035, 3},
		{0.045, 4},
		{0.055, 5},
	}

	for _, test := range tests {
		ramp := make([]float64, 16)
		for i := range ramp {
			ramp[i] = float64(i) * test.step
		}
		assert.Equal(t, test.band, c.Classify(monoBlock(ramp...)), "step %v", test.step)
	}
}

func TestMeanAbsDeltaMultichannel(t *testing.T) {
	block := capture.Block{
		Samples:  []float64{0, 9, 0.5, -9, 1, 9},
		Channels: 2,
	}
	assert.InDelta(t, 0.5, MeanAbsDelta(block), 1e-12)
}

func sineBlock(freq, rate float64, n int) capture.Block {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return capture.Block{Samples: samples, Channels: 1, SampleRate: rate}
}

func TestSpectralClassifier(t *testing.T) {
	c, err := NewSpectralClassifier(DefaultFrequencyBands)
	require.NoError(t, err)

	// 32 Hz per bin, so every tone falls exactly on a bin.
	const rate = 32768
	const n = 1024

	tests := []struct {
		freq float64
		band int
	}{
		{128, 0},
		{320, 1},
		{1024, 2},
		{3072, 3},
		{6144, 4},
		{12288, 5},
	}

	for _, test := range tests {
		assert.Equal(t, test.band, c.Classify(sineBlock(test.freq, rate, n)), "%v Hz", test.freq)
	}

	// Changing the block size replans the FFT.
	assert.Equal(t, 2, c.Classify(sineBlock(1024, rate, 512)))

	assert.Equal(t, 0, c.Classify(constBlock(0, n)), "silence")
	assert.Equal(t, 0, c.Classify(monoBlock(0.5)), "single frame")
}

func TestSpectralClassifierBandPower(t *testing.T) {
	c, err := NewSpectralClassifier([]float64{100, 1000})
	require.NoError(t, err)

	// Below the first band, so it is ignored.
	power := c.BandPower(sineBlock(32, 32768, 1024))
	require.Len(t, power, 2)
	assert.InDelta(t, 0, power[0], 1e-6)
	assert.InDelta(t, 0, power[1], 1e-6)

	power = c.BandPower(sineBlock(2048, 32768, 1024))
	assert.InDelta(t, 0, power[0], 1e-6)
	assert.Greater(t, power[1], 1.0)
}

func TestNewSpectralClassifierInvalid(t *testing.T) {
	_, err := NewSpectralClassifier(nil)
	assert.Error(t, err)

	_, err = NewSpectralClassifier([]float64{60, 250, 250})
	assert.ErrorContains(t, err, "strictly increasing")
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(HeuristicClassifierKind, nil)
	require.NoError(t, err)
	assert.IsType(t, HeuristicClassifier{}, c)

	c, err = NewClassifier(SpectralClassifierKind, DefaultFrequencyBands)
	require.NoError(t, err)
	assert.IsType(t, &SpectralClassifier{}, c)

	_, err = NewClassifier("wavelet", nil)
	assert.Error(t, err)
}
