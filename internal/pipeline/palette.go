package pipeline

import (
	"math/rand/v2"

	"libdb.so/beatglow/internal/led"
)

// ColorMapper maps a band index to a color.
type ColorMapper interface {
	Map(band int) led.RGBColor
}

// DefaultPalette returns the default band colors, from bass to treble.
func DefaultPalette() []led.RGBColor {
	return []led.RGBColor{
		led.Red,    // bass
		led.Orange, // low-mid
		led.Yellow, // mid
		led.Green,  // high-mid
		led.Blue,   // high
		led.Violet, // very high
	}
}

// BandPalette maps band i to Colors[i]. Bands outside the palette get a
// random color.
type BandPalette struct {
	Colors []led.RGBColor
	// Rand is the random source for out-of-range bands. If nil, the global
	// source is used.
	Rand *rand.Rand
}

// Map implements ColorMapper.
func (p BandPalette) Map(band int) led.RGBColor {
	if band >= 0 && band < len(p.Colors) {
		return p.Colors[band]
	}
	return randomColor(p.Rand)
}

// RandomColors maps every band to a uniformly random color.
type RandomColors struct {
	// Rand is the random source. If nil, the global source is used.
	Rand *rand.Rand
}

// Map implements ColorMapper.
func (r RandomColors) Map(int) led.RGBColor {
	return randomColor(r.Rand)
}

func randomColor(r *rand.Rand) led.RGBColor {
	var v uint32
	if r != nil {
		v = r.Uint32()
	} else {
		v = rand.Uint32()
	}
	return led.Unpack(v & 0xFFFFFF)
}
