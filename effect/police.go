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
		Name:        "police-lights",
		Description: "flash blue twice, then red twice",
		New:         newPoliceLights,
	})
}

// PoliceLightsOptions configures the police lights effect.
type PoliceLightsOptions struct {
	// Flash is how long each flash lasts.
	Flash time.Duration `validate:"gt=0"`
	// Gap is the dark time after each flash.
	Gap time.Duration `validate:"gt=0"`
	// Pause is the dark time after each pair of flashes.
	Pause time.Duration `validate:"gt=0"`
}

// DefaultPoliceLightsOptions returns the default police lights options.
func DefaultPoliceLightsOptions() PoliceLightsOptions {
	return PoliceLightsOptions{
		Flash: 100 * time.Millisecond,
		Gap:   50 * time.Millisecond,
		Pause: 500 * time.Millisecond,
	}
}

// PoliceLights flashes blue twice, pauses, flashes red twice and pauses
// again.
type PoliceLights struct {
	opts PoliceLightsOptions

	mu    sync.Mutex
	clock clock
}

func newPoliceLights(params Params) (Effect, error) {
	opts := params.PoliceLights
	if opts == (PoliceLightsOptions{}) {
		opts = DefaultPoliceLightsOptions()
	}
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid police lights options")
	}

	return &PoliceLights{opts: opts, clock: clock{now: params.now()}}, nil
}

func (p *PoliceLights) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clock.reset()
	return nil
}

func (p *PoliceLights) Color() led.RGBColor {
	p.mu.Lock()
	elapsed := p.clock.elapsed()
	p.mu.Unlock()

	half := 2*(p.opts.Flash+p.opts.Gap) + p.opts.Pause

	pos := elapsed % (2 * half)
	color := led.Blue
	if pos >= half {
		pos -= half
		color = led.Red
	}

	for range 2 {
		if pos < p.opts.Flash {
			return color
		}
		pos -= p.opts.Flash + p.opts.Gap
		if pos < 0 {
			return led.Black
		}
	}
	return led.Black
}

func (p *PoliceLights) Stop() error { return nil }

func (p *PoliceLights) KeepsColor() bool { return false }
