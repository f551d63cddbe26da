package effect

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/beatglow/internal/led"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

var testEpoch = time.Unix(1000, 0)

func newTestClock() *testClock { return &testClock{now: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = testEpoch.Add(d)
}

func newRand() *rand.Rand { return rand.New(rand.NewPCG(3, 4)) }

// startEffect creates and starts the named effect at time zero of clock.
func startEffect(t *testing.T, name string, clock *testClock, params Params) Effect {
	t.Helper()

	def, err := Lookup(name)
	require.NoError(t, err)

	params.Now = clock.Now
	params.Logger = testLogger

	e, err := def.New(params)
	require.NoError(t, err)

	clock.Set(0)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, e.Stop()) })

	return e
}

func assertGray(t *testing.T, want uint8, c led.RGBColor, at time.Duration) {
	t.Helper()
	for i := range c {
		assert.InDelta(t, want, c[i], 1, "channel %d at %v", i, at)
	}
}

func TestBreathing(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "breathing", clock, Params{})
	assert.True(t, e.KeepsColor())

	tests := []struct {
		at   time.Duration
		want uint8
	}{
		{0, 140},
		{125 * time.Millisecond, 255},
		{250 * time.Millisecond, 140},
		{375 * time.Millisecond, 25},
		{500 * time.Millisecond, 140},
	}

	for _, test := range tests {
		clock.Set(test.at)
		assertGray(t, test.want, e.Color(), test.at)
	}
}

func TestBreathingRandomColor(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "breathing", clock, Params{
		Breathing: BreathingOptions{Color: RandomColor, Speed: 1, MinBrightness: 1},
		Rand:      newRand(),
	})

	want := led.Colors[newRand().IntN(len(led.Colors))]
	assert.Equal(t, want, e.Color())
}

func TestRainbowSmooth(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "rainbow", clock, Params{
		Rainbow: RainbowOptions{
			Smooth:        true,
			StepsPerColor: 10,
			Step:          10 * time.Millisecond,
			Interval:      time.Second,
		},
	})
	assert.False(t, e.KeepsColor())

	tests := []struct {
		at   time.Duration
		want led.RGBColor
	}{
		{0, led.Red},
		{50 * time.Millisecond, led.RGB(255, 63, 0)},
		{100 * time.Millisecond, led.Orange},
		{650 * time.Millisecond, led.RGB(201, 0, 105)},
		{700 * time.Millisecond, led.Red},
	}

	for _, test := range tests {
		clock.Set(test.at)
		assert.Equal(t, test.want, e.Color(), "at %v", test.at)
	}
}

func TestRainbowDiscrete(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "rainbow", clock, Params{
		Rainbow: RainbowOptions{
			StepsPerColor: 1,
			Step:          time.Millisecond,
			Interval:      200 * time.Millisecond,
		},
	})

	for at, want := range map[time.Duration]led.RGBColor{
		0:                       led.Red,
		450 * time.Millisecond:  led.Yellow,
		1200 * time.Millisecond: led.Violet,
		1400 * time.Millisecond: led.Red,
	} {
		clock.Set(at)
		assert.Equal(t, want, e.Color(), "at %v", at)
	}
}

func TestRandomColors(t *testing.T) {
	colors := []led.RGBColor{led.Red, led.Green, led.Blue}

	clock := newTestClock()
	e := startEffect(t, "random-colors", clock, Params{
		RandomColors: RandomColorsOptions{
			Interval: 500 * time.Millisecond,
			Colors:   colors,
		},
		Rand: newRand(),
	})
	assert.False(t, e.KeepsColor())

	expect := newRand()

	first := colors[expect.IntN(len(colors))]
	assert.Equal(t, first, e.Color())

	clock.Set(499 * time.Millisecond)
	assert.Equal(t, first, e.Color(), "color changed within an interval")

	clock.Set(500 * time.Millisecond)
	second := colors[expect.IntN(len(colors))]
	assert.Equal(t, second, e.Color())

	clock.Set(2 * time.Second)
	assert.Equal(t, colors[expect.IntN(len(colors))], e.Color())
}

func TestRandomColorsDefaultPalette(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "random-colors", clock, Params{})

	for i := range 20 {
		clock.Set(time.Duration(i) * time.Second)
		assert.Contains(t, led.Colors, e.Color())
	}
}

func TestPoliceLights(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "police-lights", clock, Params{})
	assert.False(t, e.KeepsColor())

	tests := []struct {
		at   time.Duration
		want led.RGBColor
	}{
		{0, led.Blue},
		{99 * time.Millisecond, led.Blue},
		{100 * time.Millisecond, led.Black},
		{150 * time.Millisecond, led.Blue},
		{250 * time.Millisecond, led.Black},
		{300 * time.Millisecond, led.Black},
		{799 * time.Millisecond, led.Black},
		{800 * time.Millisecond, led.Red},
		{950 * time.Millisecond, led.Red},
		{1100 * time.Millisecond, led.Black},
		{1600 * time.Millisecond, led.Blue},
	}

	for _, test := range tests {
		clock.Set(test.at)
		assert.Equal(t, test.want, e.Color(), "at %v", test.at)
	}
}

func TestLightning(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "lightning", clock, Params{
		Lightning: LightningOptions{
			Color:    "white",
			Flash:    50 * time.Millisecond,
			FadeMin:  100 * time.Millisecond,
			FadeMax:  100 * time.Millisecond,
			Interval: 500 * time.Millisecond,
		},
	})
	assert.False(t, e.KeepsColor())

	tests := []struct {
		at   time.Duration
		want led.RGBColor
	}{
		{0, led.White},
		{40 * time.Millisecond, led.White},
		{100 * time.Millisecond, led.RGB(127, 127, 127)},
		{150 * time.Millisecond, led.Black},
		{649 * time.Millisecond, led.Black},
		{650 * time.Millisecond, led.White},
		{700 * time.Millisecond, led.White},
	}

	for _, test := range tests {
		clock.Set(test.at)
		assert.Equal(t, test.want, e.Color(), "at %v", test.at)
	}
}

func TestLightningRandomStrikes(t *testing.T) {
	clock := newTestClock()
	e := startEffect(t, "lightning", clock, Params{
		Lightning: LightningOptions{
			Color:    RandomColor,
			Flash:    50 * time.Millisecond,
			FadeMin:  100 * time.Millisecond,
			FadeMax:  300 * time.Millisecond,
			Interval: 500 * time.Millisecond,
		},
		Rand: newRand(),
	})

	l := e.(*Lightning)
	for i := range 20 {
		clock.Set(time.Duration(i) * time.Second)
		c := e.Color()

		assert.Contains(t, led.Colors, c)
		assert.GreaterOrEqual(t, l.fade, 100*time.Millisecond)
		assert.LessOrEqual(t, l.fade, 300*time.Millisecond)
	}
}

func TestTimedEffectOptions(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"breathing", Params{Breathing: BreathingOptions{Speed: -1}}},
		{"breathing", Params{Breathing: BreathingOptions{Speed: 1, MinBrightness: 2}}},
		{"rainbow", Params{Rainbow: RainbowOptions{Smooth: true}}},
		{"random-colors", Params{RandomColors: RandomColorsOptions{Interval: -time.Second}}},
		{"police-lights", Params{PoliceLights: PoliceLightsOptions{Flash: time.Second}}},
		{"lightning", Params{Lightning: LightningOptions{
			Flash:    time.Millisecond,
			FadeMin:  200 * time.Millisecond,
			FadeMax:  100 * time.Millisecond,
			Interval: time.Second,
		}}},
	}

	for _, test := range tests {
		def, err := Lookup(test.name)
		require.NoError(t, err)

		_, err = def.New(test.params)
		assert.Error(t, err, "%s with %+v", test.name, test.params)
	}

	for _, name := range []string{"breathing", "rainbow", "random-colors", "police-lights", "lightning"} {
		def, err := Lookup(name)
		require.NoError(t, err)
		assert.False(t, def.UsesAudio())

		_, err = def.New(Params{})
		assert.NoError(t, err, name)
	}
}
