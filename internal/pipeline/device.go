package pipeline

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"libdb.so/beatglow/capture"
)

// Loopback devices are recognized by name. Strong keywords are tried before
// weak ones in a separate pass, since many plain microphones are named
// "analog-stereo" or similar.
var (
	strongLoopbackKeywords = []string{"monitor", "loopback"}
	weakLoopbackKeywords   = []string{"mix", "stereo"}
)

// IsLoopbackCandidate returns true if the device looks like it captures the
// system audio output.
func IsLoopbackCandidate(d capture.Device) bool {
	return d.InputChannels > 0 &&
		(matchesAny(d, strongLoopbackKeywords) || matchesAny(d, weakLoopbackKeywords))
}

func matchesAny(d capture.Device, keywords []string) bool {
	name := strings.ToLower(d.Name + " " + d.Description)
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// ResolveDevice picks the input device to capture from. See Mode for how the
// mode affects the choice when index is nil.
func ResolveDevice(devices []capture.Device, index *int, mode Mode, logger *slog.Logger) (capture.Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if index != nil {
		for _, d := range devices {
			if d.Index != *index {
				continue
			}
			if d.InputChannels < 1 {
				return capture.Device{}, newAudioError(ErrNoDeviceFound,
					errors.Errorf("device %d (%s) has no input channels", d.Index, d.DisplayName()))
			}
			return d, nil
		}
		return capture.Device{}, newAudioError(ErrNoDeviceFound, errors.Errorf("no device with index %d", *index))
	}

	switch mode {
	case ModeLoopback:
		if d, ok := findLoopback(devices); ok {
			return d, nil
		}
		d, ok := firstInput(devices)
		if ok {
			logger.Warn(
				"no loopback device found, falling back to the first input device",
				"device", d.DisplayName())
			return d, nil
		}

	case ModeMicrophone:
		if d, ok := microphone(devices); ok {
			return d, nil
		}

	default:
		if d, ok := findLoopback(devices); ok {
			return d, nil
		}
		if d, ok := microphone(devices); ok {
			return d, nil
		}
	}

	return capture.Device{}, newAudioError(ErrNoDeviceFound, nil)
}

func findLoopback(devices []capture.Device) (capture.Device, bool) {
	for _, keywords := range [][]string{strongLoopbackKeywords, weakLoopbackKeywords} {
		for _, d := range devices {
			if d.InputChannels > 0 && matchesAny(d, keywords) {
				return d, true
			}
		}
	}
	return capture.Device{}, false
}

func microphone(devices []capture.Device) (capture.Device, bool) {
	for _, d := range devices {
		if d.Default && d.InputChannels > 0 {
			return d, true
		}
	}
	return firstInput(devices)
}

func firstInput(devices []capture.Device) (capture.Device, bool) {
	for _, d := range devices {
		if d.InputChannels > 0 {
			return d, true
		}
	}
	return capture.Device{}, false
}
