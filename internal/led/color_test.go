package led

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want RGBColor
	}{
		{"red", Red},
		{"  Violet ", Violet},
		{"light blue", LightBlue},
		{"light_gray", LightGray},
		{"255,127,0", Orange},
		{" 1, 2 ,3", RGB(1, 2, 3)},
		{"300,-4,7", RGB(255, 0, 7)},
		{"#ff8000", RGB(255, 128, 0)},
		{"#FFFFFF", White},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := ParseColor(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestParseColorInvalid(t *testing.T) {
	for _, in := range []string{"", "chartreuse", "#fff", "#gg0000", "1,2", "a,b,c"} {
		_, err := ParseColor(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestRGBColorText(t *testing.T) {
	var c RGBColor
	require.NoError(t, c.UnmarshalText([]byte("#0a0b0c")))
	assert.Equal(t, RGB(10, 11, 12), c)

	text, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "#0a0b0c", string(text))
}

func TestLerp(t *testing.T) {
	c := RGB(200, 100, 50)

	assert.Equal(t, c, c.Lerp(Black, 0))
	assert.Equal(t, Black, c.Lerp(Black, 1))
	assert.Equal(t, RGB(100, 50, 25), c.Lerp(Black, 0.5))
	assert.Equal(t, c, c.Lerp(Black, -3), "t is clamped")
	assert.Equal(t, Black, c.Lerp(Black, 7), "t is clamped")
	assert.Equal(t, RGB(227, 177, 152), c.Lerp(White, 0.5))
}

func TestScale(t *testing.T) {
	c := RGB(200, 100, 51)
	assert.Equal(t, RGB(100, 50, 25), c.Scale(0.5))
	assert.Equal(t, RGB(255, 200, 102), c.Scale(2))
	assert.Equal(t, Black, c.Scale(-1))
}

func TestPack(t *testing.T) {
	for _, c := range []RGBColor{Black, White, Orange, RGB(1, 2, 3)} {
		assert.Equal(t, c, Unpack(c.Pack()))
	}
	assert.Equal(t, uint32(0xff7f00), Orange.Pack())
}

func TestLEDs(t *testing.T) {
	leds := NewLEDs(4)
	assert.Equal(t, []uint8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, leds.AsPixels())

	leds.Fill(RGB(1, 2, 3))
	assert.Equal(t, []uint8{1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3}, leds.AsPixels())

	leds[3] = Red
	assert.Equal(t, []uint8{255, 0, 0}, leds.AsPixels()[9:])

	assert.Nil(t, NewLEDs(0).AsPixels())
}
