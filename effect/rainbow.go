package effect

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

func init() {
	Register(Definition{
		Name:        "rainbow",
		Description: "cycle through the colors of the rainbow",
		New:         newRainbow,
	})
}

// RainbowOptions configures the rainbow effect.
type RainbowOptions struct {
	// Smooth fades between neighboring colors instead of jumping.
	Smooth bool
	// StepsPerColor is the number of fade steps from one color to the next.
	StepsPerColor int `validate:"gt=0"`
	// Step is the duration of one fade step.
	Step time.Duration `validate:"gt=0"`
	// Interval is how long each color is shown when not fading.
	Interval time.Duration `validate:"gt=0"`
}

// DefaultRainbowOptions returns the default rainbow options.
func DefaultRainbowOptions() RainbowOptions {
	return RainbowOptions{
		Smooth:        true,
		StepsPerColor: 30,
		Step:          30 * time.Millisecond,
		Interval:      200 * time.Millisecond,
	}
}

// Rainbow cycles through led.Rainbow.
type Rainbow struct {
	opts RainbowOptions

	mu    sync.Mutex
	clock clock
}

func newRainbow(params Params) (Effect, error) {
	opts := params.Rainbow
	if opts == (RainbowOptions{}) {
		opts = DefaultRainbowOptions()
	}
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid rainbow options")
	}

	return &Rainbow{opts: opts, clock: clock{now: params.now()}}, nil
}

func (r *Rainbow) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock.reset()
	return nil
}

func (r *Rainbow) Color() led.RGBColor {
	r.mu.Lock()
	elapsed := r.clock.elapsed()
	r.mu.Unlock()

	n := len(led.Rainbow)

	if !r.opts.Smooth {
		return led.Rainbow[int(elapsed/r.opts.Interval)%n]
	}

	step := int(elapsed / r.opts.Step)
	i := (step / r.opts.StepsPerColor) % n
	t := float64(step%r.opts.StepsPerColor) / float64(r.opts.StepsPerColor)
	return led.Rainbow[i].Lerp(led.Rainbow[(i+1)%n], t)
}

func (r *Rainbow) Stop() error { return nil }

func (r *Rainbow) KeepsColor() bool { return false }
