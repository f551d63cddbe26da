package capture

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noriah/catnip/input"
	"github.com/pkg/errors"
)

// DefaultStartup is how long Start watches a new recorder before it reports
// the stream as started.
const DefaultStartup = 250 * time.Millisecond

// maxChannels is the most channels the catnip recorders support.
const maxChannels = 2

// ErrSessionEnded is sent on Stream.Err when the recorder exits without an
// error of its own, such as when its process dies.
var ErrSessionEnded = errors.New("audio recorder exited")

// sessionStream runs an input session and hands its buffers to the callback
// as interleaved blocks. The session writes into per-channel buffers under
// a shared mutex and kicks a channel whenever they are full.
type sessionStream struct {
	logger  *slog.Logger
	session input.Session
	cfg     StreamConfig
	cb      Callback
	now     func() time.Time
	startup time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
	errCh   chan error
}

func newSessionStream(logger *slog.Logger, session input.Session, cfg StreamConfig, cb Callback, startup time.Duration) *sessionStream {
	return &sessionStream{
		logger:  logger,
		session: session,
		cfg:     cfg,
		cb:      cb,
		now:     time.Now,
		startup: startup,
		errCh:   make(chan error, 1),
	}
}

// Start starts the session and waits out the startup window. If the
// recorder exits within the window, its error is returned.
func (s *sessionStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("stream already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	channels := max(s.cfg.Channels, 1)
	bufs := input.MakeBuffers(channels, s.cfg.BlockSize)
	kick := make(chan bool, 1)
	bufMu := &sync.Mutex{}

	exited := make(chan error, 1)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		err := s.session.Start(ctx, bufs, kick, bufMu)
		cancel()
		exited <- err
	}()
	go func() {
		defer s.wg.Done()
		s.process(ctx, bufs, kick, bufMu)
	}()

	if s.startup > 0 {
		timer := time.NewTimer(s.startup)
		defer timer.Stop()

		select {
		case err := <-exited:
			s.stopped.Store(true)
			s.wg.Wait()
			return errors.Wrap(sessionError(err), "recorder exited during startup")
		case <-timer.C:
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(exited)
	}()

	s.logger.Debug(
		"started audio session",
		"device", s.cfg.Device.Name,
		"channels", channels,
		"sample_rate", s.cfg.SampleRate,
		"block_size", s.cfg.BlockSize)

	return nil
}

// watch forwards an unexpected end of the session to errCh.
func (s *sessionStream) watch(exited <-chan error) {
	err := <-exited
	if s.stopped.Load() {
		return
	}

	err = sessionError(err)
	s.logger.Error(
		"audio session ended unexpectedly",
		"device", s.cfg.Device.Name,
		"error", err)

	s.errCh <- err
}

func (s *sessionStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped.Swap(true) {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	return nil
}

func (s *sessionStream) Err() <-chan error { return s.errCh }

// process delivers one block per kick until ctx is done. The callback runs
// on this goroutine, which is locked to its OS thread.
func (s *sessionStream) process(ctx context.Context, bufs [][]input.Sample, kick <-chan bool, bufMu *sync.Mutex) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	channels := len(bufs)
	samples := make([]float64, channels*s.cfg.BlockSize)
	period := time.Duration(float64(time.Second) * float64(s.cfg.BlockSize) / s.cfg.SampleRate)

	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
		}

		bufMu.Lock()
		interleave(samples, bufs)
		bufMu.Unlock()

		if s.stopped.Load() {
			return
		}

		var status Status
		now := s.now()
		if !last.IsZero() && now.Sub(last) > 2*period {
			status |= StatusInputOverflow
		}
		last = now

		s.cb(Block{
			Samples:    samples,
			Channels:   channels,
			SampleRate: s.cfg.SampleRate,
		}, status)
	}
}

// interleave copies per-channel buffers into dst frame by frame.
func interleave(dst []float64, bufs [][]input.Sample) {
	channels := len(bufs)
	for ch, buf := range bufs {
		for i, v := range buf {
			dst[i*channels+ch] = v
		}
	}
}

func sessionError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return ErrSessionEnded
	}
	return err
}

func checkStreamConfig(cfg StreamConfig) error {
	switch {
	case cfg.Device.Name == "":
		return errors.New("no device name given")
	case cfg.Channels < 1 || cfg.Channels > maxChannels:
		return errors.Errorf("invalid channel count %d, mono or stereo only", cfg.Channels)
	case cfg.SampleRate <= 0:
		return errors.Errorf("invalid sample rate %v", cfg.SampleRate)
	case cfg.BlockSize < 1:
		return errors.Errorf("invalid block size %d", cfg.BlockSize)
	case cfg.Device.InputChannels > 0 && cfg.Channels > cfg.Device.InputChannels:
		return errors.Errorf(
			"device %q has %d input channels, %d requested",
			cfg.Device.Name, cfg.Device.InputChannels, cfg.Channels)
	}
	return nil
}
