package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/noriah/catnip/input"
	"github.com/pkg/errors"

	// Register the catnip input backends.
	_ "github.com/noriah/catnip/input/all"
)

func init() {
	for _, name := range input.GetAllBackendNames() {
		// parec is served by Pulse, which knows more about its sources.
		if name == "parec" {
			continue
		}
		Register(name, func() (Backend, error) { return NewCatnip(name, slog.Default()) })
	}
}

// Catnip exposes an input backend of catnip, such as pipewire or
// ffmpeg-alsa. Catnip devices only carry a name, so every device is assumed
// to record in stereo.
type Catnip struct {
	// Startup is how long Start waits for the recorder to die before the
	// stream counts as started.
	Startup time.Duration

	name     string
	backend  input.Backend
	logger   *slog.Logger
	describe func(input.Device) string

	mu      sync.Mutex
	devices map[string]input.Device
}

// NewCatnip initializes the catnip backend of the given name.
func NewCatnip(name string, logger *slog.Logger) (*Catnip, error) {
	backend, err := input.InitBackend(name)
	if err != nil {
		return nil, err
	}
	return newCatnip(name, backend, logger), nil
}

func newCatnip(name string, backend input.Backend, logger *slog.Logger) *Catnip {
	c := &Catnip{
		Startup: DefaultStartup,
		name:    name,
		backend: backend,
		logger:  logger.With("backend", name),
	}
	if name == "pipewire" {
		// The pipewire backend records sinks by linking itself to their
		// outputs.
		c.describe = func(d input.Device) string {
			if d.String() == "auto" {
				return "Default input"
			}
			return "Monitor of " + d.String()
		}
	}
	return c
}

// deviceName returns the name a catnip device is listed under. Some backends
// use an empty name for their default device.
func deviceName(d input.Device) string {
	if name := d.String(); name != "" {
		return name
	}
	return "default"
}

// Devices implements Backend. The default device of the backend is listed
// too if the backend does not enumerate it.
func (c *Catnip) Devices(ctx context.Context) ([]Device, error) {
	list, err := c.backend.Devices()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s devices", c.name)
	}

	def, err := c.backend.DefaultDevice()
	if err != nil {
		c.logger.Debug("backend has no default device", "error", err)
		def = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.devices = make(map[string]input.Device, len(list)+1)
	devices := make([]Device, 0, len(list)+1)

	add := func(d input.Device, isDefault bool) {
		name := deviceName(d)
		if _, dup := c.devices[name]; dup {
			return
		}
		c.devices[name] = d

		desc := name
		if c.describe != nil {
			desc = c.describe(d)
		}

		devices = append(devices, Device{
			Index:         len(devices),
			Name:          name,
			Description:   desc,
			InputChannels: maxChannels,
			Default:       isDefault,
		})
	}

	var hasDefault bool
	for _, d := range list {
		isDefault := def != nil && d.String() == def.String()
		hasDefault = hasDefault || isDefault
		add(d, isDefault)
	}
	if def != nil && !hasDefault {
		add(def, true)
	}

	return devices, nil
}

// Open implements Backend.
func (c *Catnip) Open(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := checkStreamConfig(cfg); err != nil {
		return nil, err
	}

	dev, err := c.lookup(cfg.Device.Name)
	if err != nil {
		return nil, err
	}

	session, err := c.backend.Start(input.SessionConfig{
		Device:     dev,
		FrameSize:  cfg.Channels,
		SampleSize: cfg.BlockSize,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s session", c.name)
	}

	return newSessionStream(c.logger, session, cfg, cb, c.Startup), nil
}

func (c *Catnip) lookup(name string) (input.Device, error) {
	c.mu.Lock()
	dev, ok := c.devices[name]
	c.mu.Unlock()
	if ok {
		return dev, nil
	}

	if _, err := c.Devices(context.Background()); err != nil {
		return nil, err
	}

	c.mu.Lock()
	dev, ok = c.devices[name]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown %s device %q", c.name, name)
	}
	return dev, nil
}
