// Package beatglow runs an effect and sends its colors to the configured
// outputs.
package beatglow

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/beatglow/capture"
	"libdb.so/beatglow/effect"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/output"
)

// Daemon is the main beatglow daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
	effect effect.Effect
	sinks  []output.Sink
}

// NewDaemon creates a new beatglow daemon. The audio backend is only
// initialized if the configured effect captures audio.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	def, err := effect.Lookup(cfg.Effect)
	if err != nil {
		return nil, err
	}

	params, err := cfg.EffectParams(logger)
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if def.UsesAudio() {
		backend, err := capture.Lookup(cfg.Audio.Backend)
		if err != nil {
			return nil, err
		}
		params.Backend = backend
		params.Audio = cfg.PipelineConfig(def)
	}

	e, err := def.New(params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create effect %q", def.Name)
	}

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []output.Config{{Kind: output.LogKind}}
	}

	sinks := make([]output.Sink, 0, len(outputs))
	for i, ocfg := range outputs {
		sink, err := output.New(ocfg, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		sinks = append(sinks, sink)
	}

	return newDaemon(cfg, logger, e, sinks), nil
}

func newDaemon(cfg *Config, logger *slog.Logger, e effect.Effect, sinks []output.Sink) *Daemon {
	return &Daemon{
		cfg:    cfg,
		logger: logger,
		effect: e,
		sinks:  sinks,
	}
}

// Effect returns the running effect.
func (d *Daemon) Effect() effect.Effect { return d.effect }

// Run starts the effect and renders it until ctx is canceled or an output
// fails. Unless the effect keeps its color, the outputs are turned off before
// Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.effect.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start effect")
	}

	// The sinks outlive the render loop so that they can send the final
	// color.
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()

	sinkErrg, sinkCtx := errgroup.WithContext(sinkCtx)
	for _, sink := range d.sinks {
		sinkErrg.Go(func() error {
			d.logger.Debug("starting output", "output", sink.Name())
			if err := sink.Run(sinkCtx); err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrapf(err, "output %s", sink.Name())
			}
			return nil
		})
	}

	renderErr := d.render(ctx, sinkCtx)

	stopErr := d.effect.Stop()
	if stopErr != nil {
		stopErr = errors.Wrap(stopErr, "failed to stop effect")
	}

	if !d.effect.KeepsColor() {
		d.logger.Debug("turning outputs off")
		d.setColor(led.Black)
	}

	cancelSinks()
	sinkErr := sinkErrg.Wait()

	switch {
	case sinkErr != nil:
		return sinkErr
	case stopErr != nil:
		return stopErr
	default:
		return renderErr
	}
}

// render polls the effect and forwards changed colors to the sinks. It
// returns when ctx is done, a sink has failed or the effect has failed.
func (d *Daemon) render(ctx, sinkCtx context.Context) error {
	ticker := time.NewTicker(time.Duration(d.cfg.Render.Interval))
	defer ticker.Stop()

	var failed <-chan error
	if f, ok := d.effect.(effect.Failing); ok {
		failed = f.Err()
	}

	brightness := d.cfg.Render.Brightness()

	var last led.RGBColor
	first := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sinkCtx.Done():
			return nil
		case err := <-failed:
			return errors.Wrap(err, "effect failed")
		case <-ticker.C:
		}

		c := d.effect.Color().Scale(brightness)
		if !first && c == last {
			continue
		}

		d.setColor(c)
		last = c
		first = false
	}
}

func (d *Daemon) setColor(c led.RGBColor) {
	for _, sink := range d.sinks {
		sink.SetColor(c)
	}
}
