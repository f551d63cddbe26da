// Package capture describes audio input backends. A backend enumerates input
// devices and opens streams that hand fixed-size sample blocks to a callback.
package capture

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Block is one batch of captured audio. Samples are interleaved by channel and
// nominally lie in [-1, 1].
//
// A Block is only valid for the duration of the callback it was passed to.
// Backends reuse the backing array for the next block.
type Block struct {
	Samples    []float64
	Channels   int
	SampleRate float64
}

// Frames returns the number of frames in the block.
func (b Block) Frames() int {
	if b.Channels <= 1 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// Channel copies channel ch of the block into dst and returns it. dst is
// grown if it is too small.
func (b Block) Channel(dst []float64, ch int) []float64 {
	stride := max(b.Channels, 1)
	n := b.Frames()
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = b.Samples[i*stride+ch]
	}
	return dst
}

// Status is a set of flags reported alongside a block. A non-zero status
// means the block should not be trusted.
type Status uint8

const (
	// StatusInputOverflow means samples were lost before this block because
	// the consumer did not keep up.
	StatusInputOverflow Status = 1 << iota
)

// String returns a string representation of the status flags.
func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var str string
	if s&StatusInputOverflow != 0 {
		str += "input-overflow|"
	}
	if rest := s &^ StatusInputOverflow; rest != 0 {
		str += fmt.Sprintf("Status(%d)|", uint8(rest))
	}
	return str[:len(str)-1]
}

// Callback is called once per captured block on the backend's goroutine. It
// must not block.
type Callback func(block Block, status Status)

// Device describes an audio device known to a backend.
type Device struct {
	// Index is the backend's device index.
	Index int
	// Name is the device name used to open it.
	Name string
	// Description is a human-readable name. It may equal Name.
	Description string
	// InputChannels is the number of input channels. Zero means the device
	// cannot capture.
	InputChannels int
	// DefaultSampleRate is the device's native sample rate in Hz.
	DefaultSampleRate float64
	// Default is true for the backend's default input device.
	Default bool
}

// DisplayName returns the description, falling back to the name.
func (d Device) DisplayName() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name
}

// StreamConfig is the configuration for opening an input stream.
type StreamConfig struct {
	Device     Device
	Channels   int
	SampleRate float64
	BlockSize  int
}

// Stream is an opened input stream.
type Stream interface {
	// Start starts delivering blocks to the callback. A stream whose
	// recorder dies right away fails here rather than later.
	Start() error
	// Stop halts the stream. No callback is running or will run after Stop
	// returns. Stop is safe to call more than once.
	Stop() error
	// Err returns a channel that receives an error if the stream ends on
	// its own after Start. It is never signaled by Stop. A nil channel means
	// the stream cannot end on its own.
	Err() <-chan error
}

// Backend is an audio input backend.
type Backend interface {
	// Devices returns all devices known to the backend.
	Devices(ctx context.Context) ([]Device, error)
	// Open opens an input stream. The stream does not deliver blocks until
	// it is started.
	Open(cfg StreamConfig, cb Callback) (Stream, error)
}

// Factory creates a backend.
type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register registers a backend factory under the given name. It panics if the
// name is already taken.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic("capture: backend " + name + " registered twice")
	}
	registry[name] = factory
}

// Lookup creates the backend registered under the given name.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown audio backend %q (available: %v)", name, Backends())
	}

	b, err := factory()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize audio backend %q", name)
	}
	return b, nil
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
