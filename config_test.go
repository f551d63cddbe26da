package beatglow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/beatglow/effect"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/pipeline"
	"libdb.so/beatglow/output"
)

const exampleConfig = `
effect = "audio-loopback"

[render]
interval = "50ms"
max_brightness = 0.8

[audio]
backend = "synth"
sample_rate = 48000
peak_threshold = 0.04
fade_duration = "1s"
device = 3
classifier = "spectral"
frequency_bands = [40.0, 200.0, 1000.0]

[static]
color = "#ff8800"

[[output]]
kind = "serial"
device = "/dev/ttyUSB0"
leds = 60

[[output]]
kind = "websocket"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(exampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "audio-loopback", cfg.Effect)
	assert.Equal(t, TOMLDuration(50*time.Millisecond), cfg.Render.Interval)
	assert.Equal(t, 0.8, cfg.Render.Brightness())
	assert.Equal(t, "#ff8800", cfg.Static.Color)

	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, output.Config{
		Kind:   output.SerialKind,
		Device: "/dev/ttyUSB0",
		Baud:   115200,
		LEDs:   60,
	}, cfg.Outputs[0])
	assert.Equal(t, "127.0.0.1:8765", cfg.Outputs[1].Listen)

	def, err := effect.Lookup(cfg.Effect)
	require.NoError(t, err)

	audio := cfg.PipelineConfig(def)
	assert.Equal(t, 48000.0, audio.SampleRate)
	assert.Equal(t, 1024, audio.ChunkSize)
	assert.Equal(t, 0.04, audio.PeakThreshold)
	assert.Equal(t, 150*time.Millisecond, audio.PeakDuration, "effect default")
	assert.Equal(t, time.Second, audio.FadeDuration)
	require.NotNil(t, audio.Device)
	assert.Equal(t, 3, *audio.Device)
	assert.Equal(t, pipeline.ModeLoopback, audio.Mode)
	assert.Equal(t, pipeline.SpectralClassifierKind, audio.Classifier)
	assert.Equal(t, []float64{40, 200, 1000}, audio.FrequencyBands)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, DefaultEffect, cfg.Effect)
	assert.Equal(t, "pulse", cfg.Audio.Backend)
	assert.Equal(t, TOMLDuration(20*time.Millisecond), cfg.Render.Interval)
	assert.Equal(t, 1.0, cfg.Render.Brightness())
}

func TestParseConfigZeroValues(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
effect = "audio"

[render]
max_brightness = 0.0

[audio]
peak_threshold = 0.0

[breathing]
min_brightness = 0.0

[rainbow]
smooth = false
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Render.MaxBrightness)
	assert.Equal(t, 0.0, cfg.Render.Brightness())

	def, err := effect.Lookup(cfg.Effect)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.PipelineConfig(def).PeakThreshold)

	params, err := cfg.EffectParams(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, params.Breathing.MinBrightness)
	assert.False(t, params.Rainbow.Smooth)
}

func TestEffectParams(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
effect = "lightning"

[static]
color = "red"

[breathing]
color = "blue"
speed = 0.5

[rainbow]
steps_per_color = 10
interval = "1s"

[random_colors]
interval = "2s"
colors = ["red", "0,0,255"]

[police_lights]
pause = "1s"

[lightning]
color = "random"
fade_min = "200ms"
fade_max = "800ms"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	params, err := cfg.EffectParams(testLogger)
	require.NoError(t, err)
	assert.Equal(t, "red", params.Color)
	assert.Same(t, testLogger, params.Logger)

	assert.Equal(t, effect.BreathingOptions{
		Color:         "blue",
		Speed:         0.5,
		MinBrightness: effect.DefaultBreathingOptions().MinBrightness,
	}, params.Breathing)

	rainbow := effect.DefaultRainbowOptions()
	rainbow.StepsPerColor = 10
	rainbow.Interval = time.Second
	assert.Equal(t, rainbow, params.Rainbow)

	assert.Equal(t, effect.RandomColorsOptions{
		Interval: 2 * time.Second,
		Colors:   []led.RGBColor{led.Red, led.Blue},
	}, params.RandomColors)

	police := effect.DefaultPoliceLightsOptions()
	police.Pause = time.Second
	assert.Equal(t, police, params.PoliceLights)

	lightning := effect.DefaultLightningOptions()
	lightning.Color = effect.RandomColor
	lightning.FadeMin = 200 * time.Millisecond
	lightning.FadeMax = 800 * time.Millisecond
	assert.Equal(t, lightning, params.Lightning)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`[render]
interval = "soon"`))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   string
	}{
		{"brightness", "[render]\nmax_brightness = 1.5", "render.max_brightness"},
		{"mode", "[audio]\nmode = \"speaker\"", "audio.mode"},
		{"threshold", "[audio]\npeak_threshold = 2.0", "audio.peak_threshold"},
		{"bands", "[audio]\nfrequency_bands = [500.0, 100.0]", "FrequencyBands[1]"},
		{"output kind", "[[output]]\nkind = \"dmx\"", "output[0].kind"},
		{"serial device", "[[output]]\nkind = \"serial\"", "output[0].device"},
		{"effect", "effect = \"desktop\"", "unknown effect"},
		{"random colors", "[random_colors]\ncolors = [\"plaid\"]", "random_colors.colors[0]"},
		{"breathing", "effect = \"breathing\"\n[breathing]\nmin_brightness = 1.5", "breathing.min_brightness"},
		{"lightning fade", "effect = \"lightning\"\n[lightning]\nfade_min = \"1s\"", "invalid lightning options"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := ParseConfig(strings.NewReader(test.config))
			require.NoError(t, err)
			assert.ErrorContains(t, cfg.Validate(), test.want)
		})
	}
}

func TestTOMLDuration(t *testing.T) {
	var d TOMLDuration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, TOMLDuration(90*time.Second), d)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("fast")))
}
