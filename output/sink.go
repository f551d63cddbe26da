// Package output implements the devices colors are sent to. A sink receives
// colors from the render loop through SetColor and transmits them on its own
// goroutine, so a slow device never holds up rendering.
package output

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

// Sink is an output device.
type Sink interface {
	// Name returns a short name for logging.
	Name() string
	// SetColor queues a color for transmission. It never blocks. If the sink
	// is busy, only the latest color is kept.
	SetColor(c led.RGBColor)
	// Run transmits queued colors until ctx is done. A color queued before
	// ctx is done is still transmitted before Run returns.
	Run(ctx context.Context) error
}

// Kind is the kind of output.
type Kind string

const (
	SerialKind    Kind = "serial"
	WebsocketKind Kind = "websocket"
	LogKind       Kind = "log"
)

// Config is the configuration of a single output.
type Config struct {
	// Kind is the kind of output.
	Kind Kind `toml:"kind" validate:"oneof=serial websocket log"`
	// Device is the serial device path, e.g. /dev/ttyUSB0.
	Device string `toml:"device" validate:"required_if=Kind serial"`
	// Baud is the serial baud rate.
	Baud int `toml:"baud" validate:"gte=0"`
	// LEDs is the number of LEDs on the serial strip.
	LEDs int `toml:"leds" validate:"gte=0,lte=65535"`
	// Listen is the address of the websocket server.
	Listen string `toml:"listen" validate:"omitempty,hostname_port"`
}

const (
	defaultBaud   = 115200
	defaultLEDs   = 1
	defaultListen = "127.0.0.1:8765"
)

// SetDefaults fills in unset fields for the kind of output.
func (c *Config) SetDefaults() {
	switch c.Kind {
	case SerialKind:
		if c.Baud == 0 {
			c.Baud = defaultBaud
		}
		if c.LEDs == 0 {
			c.LEDs = defaultLEDs
		}
	case WebsocketKind:
		if c.Listen == "" {
			c.Listen = defaultListen
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// New creates the sink described by cfg. cfg must have its defaults set.
func New(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case SerialKind:
		return NewSerial(cfg.Device, cfg.Baud, cfg.LEDs, logger), nil
	case WebsocketKind:
		return NewWebsocket(cfg.Listen, logger), nil
	case LogKind:
		return NewLog(logger), nil
	default:
		return nil, errors.Errorf("unknown output kind %q", cfg.Kind)
	}
}

// mailbox holds the latest color queued for a sink.
type mailbox struct {
	mu      sync.Mutex
	color   led.RGBColor
	pending bool
	notify  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// Put replaces the queued color.
func (m *mailbox) Put(c led.RGBColor) {
	m.mu.Lock()
	m.color = c
	m.pending = true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take returns the queued color and clears it.
func (m *mailbox) Take() (led.RGBColor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.color, m.pending
	m.pending = false
	return c, ok
}

// Notify returns a channel that receives after a Put. A receive does not
// guarantee that Take will return a color.
func (m *mailbox) Notify() <-chan struct{} {
	return m.notify
}
