package pipeline

import (
	"fmt"
	"time"

	"libdb.so/beatglow/internal/led"
)

// Phase is the phase of the peak/fade state machine.
type Phase uint8

const (
	// Idle means no peak is being shown.
	Idle Phase = iota
	// Peaking means a peak color is being held.
	Peaking
	// Fading means the peak color is fading to black.
	Fading
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Peaking:
		return "peaking"
	case Fading:
		return "fading"
	default:
		return fmt.Sprintf("Phase(%d)", p)
	}
}

// State is a snapshot of the peak/fade state.
type State struct {
	Phase     Phase
	PeakStart time.Time
	FadeStart time.Time
	// Current is the color currently displayed.
	Current led.RGBColor
	// Target is the color chosen for the last peak.
	Target led.RGBColor
}

// PeakDetected returns true while a peak is being held.
func (s State) PeakDetected() bool { return s.Phase == Peaking }

// IsFading returns true while the peak color is fading.
func (s State) IsFading() bool { return s.Phase == Fading }

// fadeMachine is the peak/fade state machine. It is not safe for concurrent
// use.
type fadeMachine struct {
	state        State
	threshold    float64
	peakDuration time.Duration
	fadeDuration time.Duration
}

func newFadeMachine(cfg Config) fadeMachine {
	return fadeMachine{
		threshold:    cfg.PeakThreshold,
		peakDuration: cfg.PeakDuration,
		fadeDuration: cfg.FadeDuration,
	}
}

// Step advances the machine with the level of one block observed at now.
// choose is called to pick the color of a new peak. If it fails, the machine
// is left untouched and the error is returned.
func (m *fadeMachine) Step(now time.Time, rms float64, choose func() (led.RGBColor, error)) error {
	switch {
	case rms > m.threshold && m.state.Phase != Peaking:
		// A new peak also interrupts a fade in progress.
		target, err := choose()
		if err != nil {
			return err
		}
		m.state = State{
			Phase:     Peaking,
			PeakStart: now,
			Current:   target,
			Target:    target,
		}

	case m.state.Phase == Peaking && now.Sub(m.state.PeakStart) > m.peakDuration:
		m.state.Phase = Fading
		m.state.FadeStart = now
	}

	if m.state.Phase == Fading {
		progress := float64(now.Sub(m.state.FadeStart)) / float64(m.fadeDuration)
		if progress >= 1 {
			m.state.Phase = Idle
			m.state.Current = led.Black
		} else {
			m.state.Current = m.state.Target.Lerp(led.Black, progress)
		}
	}

	return nil
}
