package pipeline

import (
	"math"

	"libdb.so/beatglow/capture"
)

// RMS returns the root-mean-square level of the block. Only the first channel
// is measured, the other channels are ignored. An empty block has a level of
// zero.
func RMS(block capture.Block) float64 {
	stride := max(block.Channels, 1)
	n := block.Frames()
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		x := block.Samples[i*stride]
		sum += x * x
	}

	return math.Sqrt(sum / float64(n))
}
