package effect

import (
	"context"

	"libdb.so/beatglow/internal/led"
)

func init() {
	Register(Definition{
		Name:        "static",
		Description: "show a single fixed color",
		New:         newStatic,
	})
}

// Static shows a fixed color. The color stays on the outputs after the
// effect stops.
type Static struct {
	color led.RGBColor
}

// NewStatic creates a static effect.
func NewStatic(c led.RGBColor) *Static {
	return &Static{color: c}
}

func newStatic(params Params) (Effect, error) {
	return NewStatic(pickColor(params.Color, params.random(), params.logger())), nil
}

func (s *Static) Start(context.Context) error { return nil }

func (s *Static) Color() led.RGBColor { return s.color }

func (s *Static) Stop() error { return nil }

func (s *Static) KeepsColor() bool { return true }
