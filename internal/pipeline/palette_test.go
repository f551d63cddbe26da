package pipeline

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"libdb.so/beatglow/internal/led"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestBandPalette(t *testing.T) {
	p := BandPalette{Colors: DefaultPalette(), Rand: newRand()}

	for band, want := range []led.RGBColor{led.Red, led.Orange, led.Yellow, led.Green, led.Blue, led.Violet} {
		assert.Equal(t, want, p.Map(band), "band %d", band)
	}

	want := led.Unpack(newRand().Uint32() & 0xFFFFFF)
	assert.Equal(t, want, p.Map(6), "out of range bands are random")
}

func TestBandPaletteNegative(t *testing.T) {
	p := BandPalette{Colors: DefaultPalette(), Rand: newRand()}
	assert.Equal(t, led.Unpack(newRand().Uint32()&0xFFFFFF), p.Map(-1))
}

func TestRandomColorsIgnoresBand(t *testing.T) {
	a := RandomColors{Rand: newRand()}
	b := RandomColors{Rand: newRand()}

	for i := 0; i < 8; i++ {
		assert.Equal(t, a.Map(0), b.Map(i))
	}
}

func TestRandomColorsGlobal(t *testing.T) {
	var r RandomColors
	seen := map[led.RGBColor]bool{}
	for i := 0; i < 16; i++ {
		seen[r.Map(0)] = true
	}
	assert.Greater(t, len(seen), 1)
}
