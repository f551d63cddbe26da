// Package led contains the color and LED strip primitives shared by the
// pipeline and the output sinks.
package led

import (
	"encoding"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RGBColor is a color with three 8-bit channels in red, green, blue order.
// The layout matches what the LED controllers expect on the wire.
type RGBColor [3]uint8

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = RGBColor{}
)

// RGB creates a color from its channels.
func RGB(r, g, b uint8) RGBColor {
	return RGBColor{r, g, b}
}

// Black is the color of an LED that is off.
var Black = RGBColor{}

// Named colors. These are the colors accepted by ParseColor by name.
var (
	Red       = RGB(255, 0, 0)
	Orange    = RGB(255, 127, 0)
	Yellow    = RGB(255, 255, 0)
	Green     = RGB(0, 255, 0)
	Blue      = RGB(0, 0, 255)
	Indigo    = RGB(75, 0, 130)
	Violet    = RGB(148, 0, 211)
	White     = RGB(255, 255, 255)
	Cyan      = RGB(0, 255, 255)
	Magenta   = RGB(255, 0, 255)
	Pink      = RGB(255, 192, 203)
	Brown     = RGB(165, 42, 42)
	Gray      = RGB(128, 128, 128)
	LightGray = RGB(211, 211, 211)
	DarkGray  = RGB(169, 169, 169)
	LightBlue = RGB(173, 216, 230)
)

var namedColors = map[string]RGBColor{
	"red":        Red,
	"orange":     Orange,
	"yellow":     Yellow,
	"green":      Green,
	"blue":       Blue,
	"indigo":     Indigo,
	"violet":     Violet,
	"white":      White,
	"black":      Black,
	"cyan":       Cyan,
	"magenta":    Magenta,
	"pink":       Pink,
	"brown":      Brown,
	"gray":       Gray,
	"light_gray": LightGray,
	"dark_gray":  DarkGray,
	"light_blue": LightBlue,
}

// Colors are the named colors other than black, in a fixed order.
var Colors = []RGBColor{
	Red, Orange, Yellow, Green, Blue, Indigo, Violet, White,
	Cyan, Magenta, Pink, Brown, Gray, LightGray, DarkGray, LightBlue,
}

// Rainbow is the rainbow color sequence.
var Rainbow = []RGBColor{Red, Orange, Yellow, Green, Blue, Indigo, Violet}

// R returns the red channel.
func (c RGBColor) R() uint8 { return c[0] }

// G returns the green channel.
func (c RGBColor) G() uint8 { return c[1] }

// B returns the blue channel.
func (c RGBColor) B() uint8 { return c[2] }

// IsBlack returns true if all channels are zero.
func (c RGBColor) IsBlack() bool { return c == Black }

// Hex returns the color as #rrggbb.
func (c RGBColor) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// String implements fmt.Stringer.
func (c RGBColor) String() string {
	return c.Hex()
}

// Lerp linearly interpolates from c to other. t is clamped to [0, 1].
// Channels are truncated toward zero, so Lerp(c, Black, t) never rounds a
// channel up.
func (c RGBColor) Lerp(other RGBColor, t float64) RGBColor {
	t = clamp01(t)
	var out RGBColor
	for i := range c {
		from := float64(c[i])
		to := float64(other[i])
		out[i] = clampChannel(from + (to-from)*t)
	}
	return out
}

// Scale multiplies every channel by factor and clamps the result.
func (c RGBColor) Scale(factor float64) RGBColor {
	if factor < 0 {
		factor = 0
	}
	var out RGBColor
	for i := range c {
		out[i] = clampChannel(float64(c[i]) * factor)
	}
	return out
}

// Pack packs the color into the lower 24 bits of a uint32.
func (c RGBColor) Pack() uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// Unpack is the inverse of Pack.
func Unpack(v uint32) RGBColor {
	return RGBColor{uint8(v >> 16), uint8(v >> 8), uint8(v)}
}

// ParseColor parses a color name ("red", "light_blue"), a comma-separated
// triple ("255,0,0") or a hex string ("#ff0000").
func ParseColor(s string) (RGBColor, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if c, ok := namedColors[strings.ReplaceAll(s, " ", "_")]; ok {
		return c, nil
	}

	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) != 6 {
			return Black, fmt.Errorf("invalid hex color %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return Black, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		return Unpack(uint32(v)), nil
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return Black, fmt.Errorf("invalid color triple %q", s)
		}
		var c RGBColor
		for i, part := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Black, fmt.Errorf("invalid color triple %q: %w", s, err)
			}
			c[i] = clampChannel(float64(v))
		}
		return c, nil
	}

	return Black, fmt.Errorf("unknown color %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RGBColor) UnmarshalText(text []byte) error {
	v, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func clamp01(t float64) float64 {
	switch {
	case math.IsNaN(t), t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

func clampChannel(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
