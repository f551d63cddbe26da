package beatglow

import (
	"encoding"
	"io"
	"log/slog"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/beatglow/effect"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/pipeline"
	"libdb.so/beatglow/internal/validate"
	"libdb.so/beatglow/output"
)

// DefaultEffect is the effect used when none is configured.
const DefaultEffect = "audio-loopback"

// Config is the configuration for the beatglow daemon.
type Config struct {
	// Effect is the name of the effect to run.
	Effect string `toml:"effect"`
	// Render configures the render loop.
	Render RenderConfig `toml:"render"`
	// Audio configures audio capture. Unset fields take the defaults of the
	// effect.
	Audio AudioConfig `toml:"audio"`
	// Static configures the static effect.
	Static StaticConfig `toml:"static"`
	// Breathing configures the breathing effect.
	Breathing BreathingConfig `toml:"breathing"`
	// Rainbow configures the rainbow effect.
	Rainbow RainbowConfig `toml:"rainbow"`
	// RandomColors configures the random-colors effect.
	RandomColors RandomColorsConfig `toml:"random_colors"`
	// PoliceLights configures the police-lights effect.
	PoliceLights PoliceLightsConfig `toml:"police_lights"`
	// Lightning configures the lightning effect.
	Lightning LightningConfig `toml:"lightning"`
	// Outputs is the list of outputs to drive. If empty, colors are only
	// logged.
	Outputs []output.Config `toml:"output" validate:"dive"`
}

// RenderConfig is the configuration for the render loop.
type RenderConfig struct {
	// Interval is the time between two polls of the effect.
	Interval TOMLDuration `toml:"interval" validate:"gt=0"`
	// MaxBrightness scales every color sent to the outputs. 0 keeps the
	// outputs dark.
	MaxBrightness *float64 `toml:"max_brightness" validate:"omitempty,gte=0,lte=1"`
}

// Brightness returns MaxBrightness or its default if unset.
func (r RenderConfig) Brightness() float64 {
	if r.MaxBrightness == nil {
		return defaultMaxBrightness
	}
	return *r.MaxBrightness
}

// AudioConfig is the configuration for audio capture.
type AudioConfig struct {
	// Backend is the name of the capture backend.
	Backend string `toml:"backend"`
	// SampleRate is the capture sample rate in Hz.
	SampleRate int `toml:"sample_rate" validate:"gte=0"`
	// ChunkSize is the number of frames per block.
	ChunkSize int `toml:"chunk_size" validate:"gte=0"`
	// PeakThreshold is the RMS level that counts as a peak. 0 makes every
	// block a peak.
	PeakThreshold *float64 `toml:"peak_threshold" validate:"omitempty,gte=0,lte=1"`
	// PeakDuration is how long a peak is held.
	PeakDuration TOMLDuration `toml:"peak_duration" validate:"gte=0"`
	// FadeDuration is how long a peak takes to fade out.
	FadeDuration TOMLDuration `toml:"fade_duration" validate:"gte=0"`
	// Device is the index of the input device. See --list-devices.
	Device *int `toml:"device" validate:"omitempty,gte=0"`
	// Mode is one of auto, microphone or loopback.
	Mode pipeline.Mode `toml:"mode" validate:"omitempty,oneof=auto microphone loopback"`
	// Classifier is one of heuristic or spectral.
	Classifier pipeline.ClassifierKind `toml:"classifier" validate:"omitempty,oneof=heuristic spectral"`
	// ColorMode is one of bands or random.
	ColorMode pipeline.ColorMode `toml:"color_mode" validate:"omitempty,oneof=bands random"`
	// FrequencyBands are the lower band boundaries in Hz. They must be
	// written as floats, e.g. 60.0.
	FrequencyBands []float64 `toml:"frequency_bands"`
}

// StaticConfig is the configuration for the static effect.
type StaticConfig struct {
	// Color is a color name, "r,g,b" or "#rrggbb".
	Color string `toml:"color"`
}

// BreathingConfig is the configuration for the breathing effect. Zero
// durations and speeds take the effect defaults.
type BreathingConfig struct {
	Color         string   `toml:"color"`
	Speed         float64  `toml:"speed" validate:"gte=0"`
	MinBrightness *float64 `toml:"min_brightness" validate:"omitempty,gte=0,lte=1"`
}

// RainbowConfig is the configuration for the rainbow effect.
type RainbowConfig struct {
	Smooth        *bool        `toml:"smooth"`
	StepsPerColor int          `toml:"steps_per_color" validate:"gte=0"`
	Step          TOMLDuration `toml:"step" validate:"gte=0"`
	Interval      TOMLDuration `toml:"interval" validate:"gte=0"`
}

// RandomColorsConfig is the configuration for the random-colors effect.
type RandomColorsConfig struct {
	Interval TOMLDuration `toml:"interval" validate:"gte=0"`
	// Colors limits the picked colors. Every entry is parsed like
	// static.color.
	Colors []string `toml:"colors"`
}

// PoliceLightsConfig is the configuration for the police-lights effect.
type PoliceLightsConfig struct {
	Flash TOMLDuration `toml:"flash" validate:"gte=0"`
	Gap   TOMLDuration `toml:"gap" validate:"gte=0"`
	Pause TOMLDuration `toml:"pause" validate:"gte=0"`
}

// LightningConfig is the configuration for the lightning effect.
type LightningConfig struct {
	Color    string       `toml:"color"`
	Flash    TOMLDuration `toml:"flash" validate:"gte=0"`
	FadeMin  TOMLDuration `toml:"fade_min" validate:"gte=0"`
	FadeMax  TOMLDuration `toml:"fade_max" validate:"gte=0"`
	Interval TOMLDuration `toml:"interval" validate:"gte=0"`
}

const (
	defaultBackend       = "pulse"
	defaultInterval      = 20 * time.Millisecond
	defaultMaxBrightness = 1.0
)

// DefaultConfig returns a configuration with every default set.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in unset fields.
func (c *Config) SetDefaults() {
	if c.Effect == "" {
		c.Effect = DefaultEffect
	}
	if c.Render.Interval == 0 {
		c.Render.Interval = TOMLDuration(defaultInterval)
	}
	if c.Render.MaxBrightness == nil {
		brightness := defaultMaxBrightness
		c.Render.MaxBrightness = &brightness
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = defaultBackend
	}
	for i := range c.Outputs {
		c.Outputs[i].SetDefaults()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	def, err := effect.Lookup(c.Effect)
	if err != nil {
		return err
	}

	if def.UsesAudio() {
		audio := c.PipelineConfig(def)
		if err := audio.Validate(); err != nil {
			return errors.Wrap(err, "audio")
		}
		return nil
	}

	params, err := c.EffectParams(nil)
	if err != nil {
		return err
	}

	// Effects without audio have no side effects until started.
	if _, err := def.New(params); err != nil {
		return errors.Wrap(err, def.Name)
	}

	return nil
}

// EffectParams converts the effect sections into effect parameters. Unset
// fields take the effect defaults. The audio parameters are not filled in.
func (c *Config) EffectParams(logger *slog.Logger) (effect.Params, error) {
	params := effect.Params{
		Color:        c.Static.Color,
		Breathing:    effect.DefaultBreathingOptions(),
		Rainbow:      effect.DefaultRainbowOptions(),
		RandomColors: effect.DefaultRandomColorsOptions(),
		PoliceLights: effect.DefaultPoliceLightsOptions(),
		Lightning:    effect.DefaultLightningOptions(),
		Logger:       logger,
	}

	b := c.Breathing
	if b.Color != "" {
		params.Breathing.Color = b.Color
	}
	if b.Speed != 0 {
		params.Breathing.Speed = b.Speed
	}
	if b.MinBrightness != nil {
		params.Breathing.MinBrightness = *b.MinBrightness
	}

	r := c.Rainbow
	if r.Smooth != nil {
		params.Rainbow.Smooth = *r.Smooth
	}
	if r.StepsPerColor != 0 {
		params.Rainbow.StepsPerColor = r.StepsPerColor
	}
	setDuration(&params.Rainbow.Step, r.Step)
	setDuration(&params.Rainbow.Interval, r.Interval)

	setDuration(&params.RandomColors.Interval, c.RandomColors.Interval)
	for i, s := range c.RandomColors.Colors {
		color, err := led.ParseColor(s)
		if err != nil {
			return effect.Params{}, errors.Wrapf(err, "random_colors.colors[%d]", i)
		}
		params.RandomColors.Colors = append(params.RandomColors.Colors, color)
	}

	p := c.PoliceLights
	setDuration(&params.PoliceLights.Flash, p.Flash)
	setDuration(&params.PoliceLights.Gap, p.Gap)
	setDuration(&params.PoliceLights.Pause, p.Pause)

	l := c.Lightning
	if l.Color != "" {
		params.Lightning.Color = l.Color
	}
	setDuration(&params.Lightning.Flash, l.Flash)
	setDuration(&params.Lightning.FadeMin, l.FadeMin)
	setDuration(&params.Lightning.FadeMax, l.FadeMax)
	setDuration(&params.Lightning.Interval, l.Interval)

	return params, nil
}

func setDuration(dst *time.Duration, d TOMLDuration) {
	if d != 0 {
		*dst = time.Duration(d)
	}
}

// PipelineConfig merges the audio section into the audio defaults of the
// given effect.
func (c *Config) PipelineConfig(def effect.Definition) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if def.AudioDefaults != nil {
		cfg = def.AudioDefaults()
	}

	a := c.Audio
	if a.SampleRate != 0 {
		cfg.SampleRate = float64(a.SampleRate)
	}
	if a.ChunkSize != 0 {
		cfg.ChunkSize = a.ChunkSize
	}
	if a.PeakThreshold != nil {
		cfg.PeakThreshold = *a.PeakThreshold
	}
	if a.PeakDuration != 0 {
		cfg.PeakDuration = time.Duration(a.PeakDuration)
	}
	if a.FadeDuration != 0 {
		cfg.FadeDuration = time.Duration(a.FadeDuration)
	}
	if a.Device != nil {
		device := *a.Device
		cfg.Device = &device
	}
	if a.Mode != "" {
		cfg.Mode = a.Mode
	}
	if a.Classifier != "" {
		cfg.Classifier = a.Classifier
	}
	if a.ColorMode != "" {
		cfg.ColorMode = a.ColorMode
	}
	if a.FrequencyBands != nil {
		cfg.FrequencyBands = append([]float64(nil), a.FrequencyBands...)
	}

	return cfg
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader and sets its defaults.
// The returned configuration is not validated.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	config.SetDefaults()
	return &config, nil
}
