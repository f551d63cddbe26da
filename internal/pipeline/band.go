package pipeline

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"libdb.so/beatglow/capture"
)

// BandClassifier derives a coarse band index from a block.
type BandClassifier interface {
	Classify(block capture.Block) int
}

// NewClassifier creates the classifier of the given kind.
func NewClassifier(kind ClassifierKind, bands []float64) (BandClassifier, error) {
	switch kind {
	case HeuristicClassifierKind, "":
		return HeuristicClassifier{}, nil
	case SpectralClassifierKind:
		return NewSpectralClassifier(bands)
	default:
		return nil, errors.Errorf("unknown classifier %q", kind)
	}
}

// heuristicBreakpoints are the upper bounds of the mean sample-to-sample
// change for bands 0 to 4. Anything above the last one is band 5. The values
// are tuned by ear.
var heuristicBreakpoints = [...]float64{0.01, 0.02, 0.03, 0.04, 0.05}

// HeuristicBands is the number of bands the heuristic classifier returns.
const HeuristicBands = len(heuristicBreakpoints) + 1

// HeuristicClassifier estimates the band from the mean absolute difference
// between consecutive samples: fast-changing signals tend to carry more high
// frequency content. This is an approximation. It reacts to amplitude as much
// as to frequency and must not be taken as a spectral measurement.
type HeuristicClassifier struct{}

// Classify implements BandClassifier.
func (HeuristicClassifier) Classify(block capture.Block) int {
	if block.Frames() < 2 {
		return 0
	}

	delta := MeanAbsDelta(block)
	for band, limit := range heuristicBreakpoints {
		if delta < limit {
			return band
		}
	}
	return len(heuristicBreakpoints)
}

// MeanAbsDelta returns the mean of |x[i] - x[i-1]| over the first channel.
func MeanAbsDelta(block capture.Block) float64 {
	stride := max(block.Channels, 1)
	n := block.Frames()
	if n < 2 {
		return 0
	}

	var sum float64
	prev := block.Samples[0]
	for i := 1; i < n; i++ {
		x := block.Samples[i*stride]
		sum += math.Abs(x - prev)
		prev = x
	}

	return sum / float64(n-1)
}

// SpectralClassifier picks the frequency band with the most power. Band i
// spans [bands[i], bands[i+1]) Hz and the last band extends to the Nyquist
// frequency. Content below the first boundary is ignored.
//
// The FFT plan and scratch buffers are reused across calls, so the classifier
// does not allocate once the block size has settled.
type SpectralClassifier struct {
	bands []float64

	mu     sync.Mutex
	fft    *fourier.FFT
	seq    []float64
	coeffs []complex128
	power  []float64
}

// NewSpectralClassifier creates a spectral classifier for the given band
// boundaries, which must be strictly increasing.
func NewSpectralClassifier(bands []float64) (*SpectralClassifier, error) {
	if len(bands) == 0 {
		return nil, errors.New("no frequency bands given")
	}
	for i := 1; i < len(bands); i++ {
		if bands[i] <= bands[i-1] {
			return nil, errors.Errorf("frequency bands are not strictly increasing at %v Hz", bands[i])
		}
	}

	return &SpectralClassifier{
		bands: append([]float64(nil), bands...),
		power: make([]float64, len(bands)),
	}, nil
}

// Classify implements BandClassifier. Ties go to the lowest band, so a silent
// block is band 0.
func (c *SpectralClassifier) Classify(block capture.Block) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.computePower(block)

	best := 0
	for i, p := range c.power {
		if p > c.power[best] {
			best = i
		}
	}
	return best
}

// BandPower returns the total squared magnitude per band.
func (c *SpectralClassifier) BandPower(block capture.Block) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.computePower(block)
	return append([]float64(nil), c.power...)
}

func (c *SpectralClassifier) computePower(block capture.Block) {
	for i := range c.power {
		c.power[i] = 0
	}

	n := block.Frames()
	if n < 2 || block.SampleRate <= 0 {
		return
	}

	if c.fft == nil || c.fft.Len() != n {
		c.fft = fourier.NewFFT(n)
		c.coeffs = make([]complex128, n/2+1)
	}

	c.seq = block.Channel(c.seq, 0)
	c.coeffs = c.fft.Coefficients(c.coeffs, c.seq)

	// Bin frequencies are increasing, so the band only ever moves forward.
	band := -1
	for i, coeff := range c.coeffs {
		freq := c.fft.Freq(i) * block.SampleRate
		for band+1 < len(c.bands) && c.bands[band+1] <= freq {
			band++
		}
		if band < 0 {
			continue
		}

		re, im := real(coeff), imag(coeff)
		c.power[band] += re*re + im*im
	}
}
