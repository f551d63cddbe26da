// Package effect holds the registry of lighting effects. Effects register
// themselves in init and are looked up by name at startup.
package effect

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/capture"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/pipeline"
)

// Effect produces the color shown on the outputs. The render loop calls
// Color periodically between Start and Stop.
type Effect interface {
	Start(ctx context.Context) error
	// Color returns the current color. It must not block.
	Color() led.RGBColor
	Stop() error
	// KeepsColor returns true if the outputs should keep the last color
	// after the effect stops instead of being turned off.
	KeepsColor() bool
}

// Failing is implemented by effects that can stop on their own, such as
// when their audio stream dies. Err returns a channel that receives the
// error.
type Failing interface {
	Err() <-chan error
}

// Params are the parameters passed to an effect constructor. Zero option
// structs are replaced by the defaults of their effect.
type Params struct {
	// Audio is the audio configuration with the effect defaults applied.
	Audio pipeline.Config
	// Backend is the audio backend. It is nil for effects that do not
	// capture audio.
	Backend capture.Backend
	// Color is the raw color setting of the static effect.
	Color string

	Breathing    BreathingOptions
	Rainbow      RainbowOptions
	RandomColors RandomColorsOptions
	PoliceLights PoliceLightsOptions
	Lightning    LightningOptions

	Logger *slog.Logger
	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time
	// Rand is used by effects that pick random colors. It defaults to a
	// randomly seeded source.
	Rand *rand.Rand
}

func (p Params) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p Params) now() func() time.Time {
	if p.Now == nil {
		return time.Now
	}
	return p.Now
}

func (p Params) random() *rand.Rand {
	if p.Rand == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p.Rand
}

// Definition describes a registered effect.
type Definition struct {
	Name        string
	Description string
	// AudioDefaults returns the default audio configuration of the effect.
	// It is nil for effects that do not capture audio.
	AudioDefaults func() pipeline.Config
	// New creates the effect.
	New func(Params) (Effect, error)
}

// UsesAudio returns true if the effect captures audio.
func (d Definition) UsesAudio() bool { return d.AudioDefaults != nil }

var (
	registryMu sync.RWMutex
	registry   = map[string]Definition{}
)

// Register registers an effect. It panics if the name is already taken.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[def.Name]; ok {
		panic("effect: " + def.Name + " registered twice")
	}
	registry[def.Name] = def
}

// Lookup returns the effect registered under name.
func Lookup(name string) (Definition, error) {
	registryMu.RLock()
	def, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return Definition{}, errors.Errorf("unknown effect %q (available: %v)", name, Names())
	}
	return def, nil
}

// All returns every registered effect sorted by name.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	defs := make([]Definition, 0, len(registry))
	for _, def := range registry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered effects.
func Names() []string {
	defs := All()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RandomColor is the color setting that picks a random named color.
const RandomColor = "random"

// pickColor resolves a color setting. An invalid color is logged and
// replaced with white.
func pickColor(setting string, r *rand.Rand, logger *slog.Logger) led.RGBColor {
	switch setting {
	case "":
		return led.White
	case RandomColor:
		return led.Colors[r.IntN(len(led.Colors))]
	}

	c, err := led.ParseColor(setting)
	if err != nil {
		logger.Warn(
			"invalid color, using white",
			"color", setting,
			"error", err)
		return led.White
	}
	return c
}

// clock measures the time since the effect started.
type clock struct {
	now   func() time.Time
	start time.Time
}

func (c *clock) reset() { c.start = c.now() }

func (c *clock) elapsed() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	return c.now().Sub(c.start)
}
