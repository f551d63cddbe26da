package effect

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

func init() {
	Register(Definition{
		Name:        "random-colors",
		Description: "show a new random color at a fixed interval",
		New:         newRandomColors,
	})
}

// RandomColorsOptions configures the random colors effect.
type RandomColorsOptions struct {
	// Interval is how long each color is shown.
	Interval time.Duration `validate:"gt=0"`
	// Colors are the colors to pick from. If empty, every named color but
	// black is used.
	Colors []led.RGBColor
}

// DefaultRandomColorsOptions returns the default random colors options.
func DefaultRandomColorsOptions() RandomColorsOptions {
	return RandomColorsOptions{Interval: 500 * time.Millisecond}
}

// RandomColors picks a random color every interval. A color may be picked
// twice in a row.
type RandomColors struct {
	interval time.Duration
	colors   []led.RGBColor
	rand     *rand.Rand

	mu     sync.Mutex
	clock  clock
	period int64
	color  led.RGBColor
	picked bool
}

func newRandomColors(params Params) (Effect, error) {
	opts := params.RandomColors
	if opts.Interval == 0 {
		opts.Interval = DefaultRandomColorsOptions().Interval
	}
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid random colors options")
	}

	colors := opts.Colors
	if len(colors) == 0 {
		colors = led.Colors
	}

	return &RandomColors{
		interval: opts.Interval,
		colors:   append([]led.RGBColor(nil), colors...),
		rand:     params.random(),
		clock:    clock{now: params.now()},
	}, nil
}

func (r *RandomColors) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock.reset()
	r.picked = false
	return nil
}

func (r *RandomColors) Color() led.RGBColor {
	r.mu.Lock()
	defer r.mu.Unlock()

	period := int64(r.clock.elapsed() / r.interval)
	if !r.picked || period != r.period {
		r.color = r.colors[r.rand.IntN(len(r.colors))]
		r.period = period
		r.picked = true
	}
	return r.color
}

func (r *RandomColors) Stop() error { return nil }

func (r *RandomColors) KeepsColor() bool { return false }
