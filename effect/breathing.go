package effect

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

func init() {
	Register(Definition{
		Name:        "breathing",
		Description: "fade a color in and out like breathing",
		New:         newBreathing,
	})
}

// BreathingOptions configures the breathing effect.
type BreathingOptions struct {
	// Color is the color to breathe, or "random" for a random named color
	// on every start.
	Color string
	// Speed is the number of breaths per second.
	Speed float64 `validate:"gt=0"`
	// MinBrightness is the brightness at the bottom of a breath.
	MinBrightness float64 `validate:"gte=0,lte=1"`
}

// DefaultBreathingOptions returns the default breathing options.
func DefaultBreathingOptions() BreathingOptions {
	return BreathingOptions{
		Color:         "white",
		Speed:         2,
		MinBrightness: 0.1,
	}
}

// Breathing scales a color along a sine wave between MinBrightness and full
// brightness. The last color stays on the outputs after the effect stops.
type Breathing struct {
	opts   BreathingOptions
	rand   *rand.Rand
	logger *slog.Logger

	mu    sync.Mutex
	clock clock
	base  led.RGBColor
}

func newBreathing(params Params) (Effect, error) {
	opts := params.Breathing
	if opts == (BreathingOptions{}) {
		opts = DefaultBreathingOptions()
	}
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid breathing options")
	}

	return &Breathing{
		opts:   opts,
		rand:   params.random(),
		logger: params.logger(),
		clock:  clock{now: params.now()},
	}, nil
}

func (b *Breathing) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.base = pickColor(b.opts.Color, b.rand, b.logger)
	b.clock.reset()
	return nil
}

func (b *Breathing) Color() led.RGBColor {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.clock.elapsed().Seconds()
	wave := (math.Sin(2*math.Pi*b.opts.Speed*t) + 1) / 2
	return b.base.Scale(b.opts.MinBrightness + (1-b.opts.MinBrightness)*wave)
}

func (b *Breathing) Stop() error { return nil }

func (b *Breathing) KeepsColor() bool { return true }
