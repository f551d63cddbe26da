package capture

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/noisetorch/pulseaudio"
	"github.com/noriah/catnip/input"
	"github.com/noriah/catnip/input/parec"
	"github.com/pkg/errors"
)

func init() {
	Register("pulse", func() (Backend, error) { return NewPulse(slog.Default()) })
}

// Pulse is a backend for PulseAudio and PipeWire (through pipewire-pulse). It
// lists sources over the native protocol and records them with parec.
//
// Monitor sources (named "<sink>.monitor") capture what a sink is playing,
// which is how system audio loopback works on Linux.
type Pulse struct {
	// Startup is how long Start waits for parec to die before the stream
	// counts as started.
	Startup time.Duration

	logger *slog.Logger
	// sources returns the sources and the name of the default source.
	sources func() ([]pulseaudio.Source, string, error)
	session func(input.SessionConfig) (input.Session, error)
}

// NewPulse creates a new PulseAudio backend. It fails if parec is not
// installed.
func NewPulse(logger *slog.Logger) (*Pulse, error) {
	if _, err := exec.LookPath("parec"); err != nil {
		return nil, errors.Wrap(err, "parec not found")
	}

	return &Pulse{
		Startup: DefaultStartup,
		logger:  logger.With("backend", "pulse"),
		sources: listPulseSources,
		session: startParec,
	}, nil
}

func listPulseSources() ([]pulseaudio.Source, string, error) {
	client, err := pulseaudio.NewClient()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to connect to the pulse server")
	}
	defer client.Close()

	sources, err := client.Sources()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to list pulse sources")
	}

	var def string
	if info, err := client.ServerInfo(); err == nil {
		def = info.DefaultSource
	}

	return sources, def, nil
}

func startParec(cfg input.SessionConfig) (input.Session, error) {
	session, err := parec.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Devices implements Backend. Every PulseAudio source is an input device.
func (p *Pulse) Devices(ctx context.Context) ([]Device, error) {
	sources, def, err := p.sources()
	if err != nil {
		return nil, err
	}
	if def == "" {
		p.logger.Debug("cannot determine the default pulse source")
	}
	return pulseDevices(sources, def), nil
}

func pulseDevices(sources []pulseaudio.Source, def string) []Device {
	devices := make([]Device, len(sources))
	for i, src := range sources {
		devices[i] = Device{
			Index:             int(src.Index),
			Name:              src.Name,
			Description:       src.Description,
			InputChannels:     int(src.SampleSpec.Channels),
			DefaultSampleRate: float64(src.SampleSpec.Rate),
			Default:           def != "" && src.Name == def,
		}
	}
	return devices
}

// Open implements Backend.
func (p *Pulse) Open(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := checkStreamConfig(cfg); err != nil {
		return nil, err
	}

	session, err := p.session(input.SessionConfig{
		Device:     parec.PulseDevice(cfg.Device.Name),
		FrameSize:  cfg.Channels,
		SampleSize: cfg.BlockSize,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create parec session")
	}

	return newSessionStream(p.logger, session, cfg, cb, p.Startup), nil
}
