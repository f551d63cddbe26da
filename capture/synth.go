package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

func init() {
	Register("synth", func() (Backend, error) { return NewSynth(), nil })
}

// Synth is a backend that generates a test signal instead of recording one:
// short sine bursts on a fixed beat, cycling through a list of tone
// frequencies. It is useful for trying out effects without any audio
// hardware.
type Synth struct {
	// Beat is the interval between bursts.
	Beat time.Duration
	// Burst is the length of each burst.
	Burst time.Duration
	// Amplitude is the peak amplitude of a burst.
	Amplitude float64
	// Tones are the burst frequencies in Hz, used in order.
	Tones []float64
}

// NewSynth creates a synthetic backend with a 120 BPM beat.
func NewSynth() *Synth {
	return &Synth{
		Beat:      500 * time.Millisecond,
		Burst:     120 * time.Millisecond,
		Amplitude: 0.5,
		Tones:     []float64{110, 320, 1000, 3000, 6000, 12000},
	}
}

// Devices implements Backend.
func (s *Synth) Devices(ctx context.Context) ([]Device, error) {
	return []Device{
		{
			Index:             0,
			Name:              "synth.mic",
			Description:       "Synthetic Microphone",
			InputChannels:     1,
			DefaultSampleRate: 44100,
			Default:           true,
		},
		{
			Index:             1,
			Name:              "synth.monitor",
			Description:       "Monitor of Synthetic Output",
			InputChannels:     2,
			DefaultSampleRate: 44100,
		},
	}, nil
}

// Open implements Backend.
func (s *Synth) Open(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := checkStreamConfig(cfg); err != nil {
		return nil, err
	}
	return &synthStream{synth: *s, cfg: cfg, cb: cb}, nil
}

type synthStream struct {
	synth Synth
	cfg   StreamConfig
	cb    Callback

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *synthStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return errors.New("stream already started")
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()

	return nil
}

func (s *synthStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return nil
	}

	select {
	case <-s.stop:
		// already stopped
	default:
		close(s.stop)
	}
	<-s.done

	return nil
}

// Err implements Stream. A synthetic stream only ends when stopped.
func (s *synthStream) Err() <-chan error { return nil }

func (s *synthStream) run() {
	defer close(s.done)

	period := time.Duration(float64(time.Second) * float64(s.cfg.BlockSize) / s.cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	samples := make([]float64, s.cfg.BlockSize*s.cfg.Channels)
	var frame int64

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.synth.fill(samples, s.cfg.Channels, s.cfg.SampleRate, frame)
		frame += int64(s.cfg.BlockSize)

		// Stop may have raced with the tick.
		select {
		case <-s.stop:
			return
		default:
		}

		s.cb(Block{
			Samples:    samples,
			Channels:   s.cfg.Channels,
			SampleRate: s.cfg.SampleRate,
		}, 0)
	}
}

// fill renders the signal starting at the given absolute frame into dst.
func (s Synth) fill(dst []float64, channels int, rate float64, start int64) {
	beatFrames := int64(s.Beat.Seconds() * rate)
	burstFrames := int64(s.Burst.Seconds() * rate)

	for i := 0; i < len(dst)/channels; i++ {
		frame := start + int64(i)

		var v float64
		if beatFrames > 0 && len(s.Tones) > 0 {
			beat := frame / beatFrames
			if pos := frame % beatFrames; pos < burstFrames {
				tone := s.Tones[int(beat)%len(s.Tones)]
				v = s.Amplitude * math.Sin(2*math.Pi*tone*float64(frame)/rate)
			}
		}

		for ch := 0; ch < channels; ch++ {
			dst[i*channels+ch] = v
		}
	}
}
