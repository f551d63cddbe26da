package effect

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

func init() {
	Register(Definition{
		Name:        "lightning",
		Description: "strike bright flashes that fade out over a random time",
		New:         newLightning,
	})
}

// LightningOptions configures the lightning effect.
type LightningOptions struct {
	// Color is the flash color, or "random" for a random named color on
	// every strike.
	Color string
	// Flash is how long a strike stays at full brightness.
	Flash time.Duration `validate:"gt=0"`
	// FadeMin and FadeMax bound the random fade-out time of a strike.
	FadeMin time.Duration `validate:"gt=0"`
	FadeMax time.Duration `validate:"gtefield=FadeMin"`
	// Interval is the dark time between two strikes.
	Interval time.Duration `validate:"gt=0"`
}

// DefaultLightningOptions returns the default lightning options.
func DefaultLightningOptions() LightningOptions {
	return LightningOptions{
		Color:    "white",
		Flash:    50 * time.Millisecond,
		FadeMin:  100 * time.Millisecond,
		FadeMax:  500 * time.Millisecond,
		Interval: 500 * time.Millisecond,
	}
}

// Lightning repeats strikes: a flash, a fade to black and a dark interval.
type Lightning struct {
	opts   LightningOptions
	rand   *rand.Rand
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	strike time.Time
	fade   time.Duration
	color  led.RGBColor
}

func newLightning(params Params) (Effect, error) {
	opts := params.Lightning
	if opts == (LightningOptions{}) {
		opts = DefaultLightningOptions()
	}
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "invalid lightning options")
	}

	return &Lightning{
		opts:   opts,
		rand:   params.random(),
		logger: params.logger(),
		now:    params.now(),
	}, nil
}

func (l *Lightning) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.strike = time.Time{}
	return nil
}

func (l *Lightning) Color() led.RGBColor {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.strike.IsZero() || now.Sub(l.strike) >= l.opts.Flash+l.fade+l.opts.Interval {
		l.newStrike(now)
	}

	since := now.Sub(l.strike)
	switch {
	case since < l.opts.Flash:
		return l.color
	case since < l.opts.Flash+l.fade:
		return l.color.Lerp(led.Black, float64(since-l.opts.Flash)/float64(l.fade))
	default:
		return led.Black
	}
}

func (l *Lightning) newStrike(now time.Time) {
	l.strike = now
	l.color = pickColor(l.opts.Color, l.rand, l.logger)
	l.fade = l.opts.FadeMin + time.Duration(l.rand.Int64N(int64(l.opts.FadeMax-l.opts.FadeMin)+1))
}

func (l *Lightning) Stop() error { return nil }

func (l *Lightning) KeepsColor() bool { return false }
