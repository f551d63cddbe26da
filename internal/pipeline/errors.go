package pipeline

import "github.com/pkg/errors"

// Error kinds returned by the pipeline. Use errors.Is to tell them apart.
var (
	// ErrDeviceEnumeration means the backend could not list its devices.
	ErrDeviceEnumeration = errors.New("failed to enumerate audio devices")
	// ErrNoDeviceFound means no input-capable device could be resolved.
	ErrNoDeviceFound = errors.New("no suitable audio input device found")
	// ErrStreamOpen means the backend refused to open or start the stream.
	ErrStreamOpen = errors.New("failed to open audio stream")
	// ErrStreamLost means a running stream ended without being stopped, for
	// example because the recorder died.
	ErrStreamLost = errors.New("audio stream lost")
	// ErrCallbackProcessing means a single block could not be processed. The
	// block is dropped and the stream continues.
	ErrCallbackProcessing = errors.New("failed to process audio block")
	// ErrAlreadyRunning is returned by Start on a running pipeline.
	ErrAlreadyRunning = errors.New("pipeline already running")
)

// Troubleshooting is a list of hints to show the user along with
// ErrNoDeviceFound.
var Troubleshooting = []string{
	"Make sure a microphone or another audio input device is connected.",
	"For system audio, make sure the sound server exposes a monitor source (pactl list short sources).",
	"Check that the input devices are enabled and not muted in the sound settings.",
	"Pick a device explicitly with the device option (see --list-devices).",
}

// AudioError is an error of a known kind with an optional cause.
type AudioError struct {
	// Kind is one of the Err* sentinels of this package.
	Kind error
	// Err is the underlying cause. It may be nil.
	Err error
}

func newAudioError(kind, err error) *AudioError {
	return &AudioError{Kind: kind, Err: err}
}

func (e *AudioError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap returns both the kind and the cause, so errors.Is matches either.
func (e *AudioError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
