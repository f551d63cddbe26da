package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"libdb.so/beatglow/capture"
	"libdb.so/beatglow/internal/led"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock sets the clock used to timestamp blocks.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithRand sets the random source of the default color mappers.
func WithRand(r *rand.Rand) Option {
	return func(p *Pipeline) { p.rand = r }
}

// WithClassifier overrides the band classifier chosen by the config.
func WithClassifier(c BandClassifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithMapper overrides the color mapper chosen by the config.
func WithMapper(m ColorMapper) Option {
	return func(p *Pipeline) { p.mapper = m }
}

// Pipeline captures audio from a backend and turns it into a color. The
// current color is read with PollCurrentColor.
type Pipeline struct {
	cfg        Config
	backend    capture.Backend
	logger     *slog.Logger
	clock      Clock
	rand       *rand.Rand
	classifier BandClassifier // nil in RandomColorMode
	mapper     ColorMapper

	// color holds the packed current color. It is written after every
	// processed block and read without locking.
	color atomic.Uint32

	mu      sync.Mutex
	machine fadeMachine

	lifeMu sync.Mutex
	stream capture.Stream
	device capture.Device
	done   chan struct{} // closed by Stop
	failed chan error

	drops dropLog
}

// New creates a new pipeline. It does not touch the backend until Start.
func New(cfg Config, backend capture.Backend, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid audio config")
	}
	if backend == nil {
		return nil, errors.New("no audio backend given")
	}

	p := &Pipeline{
		cfg:     cfg,
		backend: backend,
		logger:  slog.Default(),
		clock:   SystemClock{},
		machine: newFadeMachine(cfg),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.mapper == nil {
		switch cfg.ColorMode {
		case RandomColorMode:
			p.mapper = RandomColors{Rand: p.rand}
		default:
			p.mapper = BandPalette{Colors: DefaultPalette(), Rand: p.rand}
		}
	}

	if p.classifier == nil && cfg.ColorMode == BandColorMode {
		c, err := NewClassifier(cfg.Classifier, cfg.FrequencyBands)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create band classifier")
		}
		p.classifier = c
	}

	return p, nil
}

// Start resolves the input device, opens a stream on it and starts
// processing blocks. Errors are *AudioError values.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.stream != nil {
		return newAudioError(ErrAlreadyRunning, nil)
	}

	devices, err := p.backend.Devices(ctx)
	if err != nil {
		return newAudioError(ErrDeviceEnumeration, err)
	}

	device, err := ResolveDevice(devices, p.cfg.Device, p.cfg.Mode, p.logger)
	if err != nil {
		return err
	}

	stream, err := p.backend.Open(capture.StreamConfig{
		Device:     device,
		Channels:   1,
		SampleRate: p.cfg.SampleRate,
		BlockSize:  p.cfg.ChunkSize,
	}, p.handleBlock)
	if err != nil {
		return newAudioError(ErrStreamOpen, errors.Wrapf(err, "device %q", device.Name))
	}

	p.reset()

	if err := stream.Start(); err != nil {
		stream.Stop()
		return newAudioError(ErrStreamOpen, errors.Wrapf(err, "device %q", device.Name))
	}

	p.stream = stream
	p.device = device
	p.done = make(chan struct{})
	p.failed = make(chan error, 1)

	go p.watch(stream, p.done, p.failed)

	p.logger.Info(
		"audio capture started",
		"device", device.DisplayName(),
		"index", device.Index,
		"sample_rate", p.cfg.SampleRate,
		"chunk_size", p.cfg.ChunkSize,
		"mode", p.cfg.Mode,
		"color_mode", p.cfg.ColorMode)

	return nil
}

// Stop stops the stream and resets the state to idle. No block is processed
// after Stop returns. It does not emit a final color; turning the outputs off
// is up to the caller. Stopping a stopped pipeline does nothing.
func (p *Pipeline) Stop() error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.stream == nil {
		return nil
	}

	close(p.done)

	err := p.stream.Stop()
	p.stream = nil
	p.done = nil
	p.reset()

	if err != nil {
		return errors.Wrap(err, "failed to stop audio stream")
	}

	p.logger.Info("audio capture stopped", "device", p.device.DisplayName())
	return nil
}

// watch stops the run if the stream ends on its own.
func (p *Pipeline) watch(stream capture.Stream, done <-chan struct{}, failed chan<- error) {
	var err error
	select {
	case <-done:
		return
	case err = <-stream.Err():
	}

	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.stream != stream {
		return
	}

	if stopErr := stream.Stop(); stopErr != nil {
		p.logger.Debug("failed to stop lost audio stream", "error", stopErr)
	}
	p.stream = nil
	p.done = nil
	p.reset()

	p.logger.Error(
		"audio capture stopped unexpectedly",
		"device", p.device.DisplayName(),
		"error", err)

	failed <- newAudioError(ErrStreamLost, errors.Wrapf(err, "device %q", p.device.Name))
}

// Err returns a channel that receives an *AudioError of kind ErrStreamLost if
// the stream of the current run ends on its own. By then the pipeline is
// stopped and the color is black. The channel is replaced on every Start.
func (p *Pipeline) Err() <-chan error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	return p.failed
}

// Running returns true if the pipeline has been started and not stopped.
func (p *Pipeline) Running() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	return p.stream != nil
}

// Device returns the device resolved by the last Start.
func (p *Pipeline) Device() capture.Device {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	return p.device
}

// PollCurrentColor returns the current color. It never blocks.
func (p *Pipeline) PollCurrentColor() led.RGBColor {
	return led.Unpack(p.color.Load())
}

// Snapshot returns a copy of the current state.
func (p *Pipeline) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.machine.state
}

func (p *Pipeline) reset() {
	p.mu.Lock()
	p.machine.state = State{}
	p.color.Store(led.Black.Pack())
	p.mu.Unlock()
}

func (p *Pipeline) handleBlock(block capture.Block, status capture.Status) {
	now := p.clock.Now()

	if status != 0 {
		p.drops.record(p.logger, now, "status", status)
		return
	}

	if err := p.process(now, block); err != nil {
		p.drops.record(p.logger, now, "error", err)
	}
}

// process runs one block through the state machine and publishes the
// resulting color.
func (p *Pipeline) process(now time.Time, block capture.Block) error {
	rms := RMS(block)
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return newAudioError(ErrCallbackProcessing, errors.New("block contains non-finite samples"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.machine.Step(now, rms, func() (led.RGBColor, error) {
		return p.chooseColor(block)
	})
	if err != nil {
		return newAudioError(ErrCallbackProcessing, err)
	}

	p.color.Store(p.machine.state.Current.Pack())
	return nil
}

func (p *Pipeline) chooseColor(block capture.Block) (c led.RGBColor, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.Errorf("color selection panicked: %v", v)
		}
	}()

	band := 0
	if p.classifier != nil {
		band = p.classifier.Classify(block)
	}
	return p.mapper.Map(band), nil
}

// dropLog logs dropped blocks at most once per second. It is only used from
// the stream callback.
type dropLog struct {
	last    time.Time
	dropped int
}

const dropLogInterval = time.Second

func (d *dropLog) record(logger *slog.Logger, now time.Time, key string, value any) {
	d.dropped++
	if !d.last.IsZero() && now.Sub(d.last) < dropLogInterval {
		return
	}

	logger.Warn("dropped audio block", key, value, "dropped", d.dropped)
	d.last = now
	d.dropped = 0
}
