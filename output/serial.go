package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/ledserial"
)

// Serial is a sink that drives an LED strip behind a ledserial controller.
// Every LED of the strip is set to the same color.
type Serial struct {
	device string
	baud   int
	leds   led.LEDs
	logger *slog.Logger
	box    *mailbox

	// AckTimeout is how long to wait for the controller to acknowledge a
	// packet before sending the next one anyway.
	AckTimeout time.Duration
	// StartDelay is how long to wait after opening the port before the
	// strip is initialized.
	StartDelay time.Duration
}

// NewSerial creates a new serial sink.
func NewSerial(device string, baud, numLEDs int, logger *slog.Logger) *Serial {
	return &Serial{
		device:     device,
		baud:       baud,
		leds:       led.NewLEDs(numLEDs),
		logger:     logger.With("output", "serial", "device", device),
		box:        newMailbox(),
		AckTimeout: 500 * time.Millisecond,
		StartDelay: 100 * time.Millisecond,
	}
}

// Name implements Sink.
func (s *Serial) Name() string { return "serial:" + s.device }

// SetColor implements Sink. Only the latest color is sent if the
// controller falls behind.
func (s *Serial) SetColor(c led.RGBColor) { s.box.Put(c) }

// Run opens the serial port and drives the strip until ctx is done.
func (s *Serial) Run(ctx context.Context) error {
	port, err := serial.Open(s.device, &serial.Mode{
		BaudRate: s.baud,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", s.device)
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return errors.Wrap(err, "failed to reset read timeout")
	}

	return s.serve(ctx, port)
}

// serve drives the strip over an opened port. The port is closed when serve
// returns.
func (s *Serial) serve(ctx context.Context, port io.ReadWriteCloser) error {
	errg, ctx := errgroup.WithContext(ctx)

	var closing atomic.Bool

	packets := make(chan ledserial.OutgoingPacket)
	errg.Go(func() error {
		defer func() {
			s.logger.Debug("closing serial port")
			closing.Store(true)
			if err := port.Close(); err != nil {
				s.logger.Warn("failed to close serial port", "error", err)
			}
		}()
		return s.mainLoop(ctx, port, packets)
	})
	errg.Go(func() error {
		err := s.readPackets(ctx, port, packets)
		if closing.Load() {
			// The port was closed under the reader.
			return nil
		}
		return err
	})

	return errg.Wait()
}

func (s *Serial) mainLoop(ctx context.Context, w io.Writer, packets <-chan ledserial.OutgoingPacket) error {
	if s.StartDelay > 0 {
		s.logger.Debug("waiting for the read loop to start", "delay", s.StartDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.StartDelay):
		}
	}

	s.logger.Debug("sending initialize packet")
	if err := s.writePacket(w, ledserial.InitializePacket{
		NumLEDs: uint16(len(s.leds)),
	}); err != nil {
		return errors.Wrap(err, "failed to initialize LEDs")
	}

	ackTimer := time.NewTimer(s.AckTimeout)
	defer ackTimer.Stop()

	// The controller acks every packet. Nothing else is sent until the ack
	// arrives or the timer fires.
	awaitingAck := true

	for {
		var notify <-chan struct{}
		if !awaitingAck {
			notify = s.box.Notify()
		}

		select {
		case <-ctx.Done():
			if c, ok := s.box.Take(); ok {
				if err := s.writeColor(w, c); err != nil {
					s.logger.Warn("failed to write final color", "error", err)
				}
			}
			return ctx.Err()

		case p := <-packets:
			switch p := p.(type) {
			case ledserial.AckPacket:
				s.logger.Debug(
					"received ack packet from controller",
					"acked_for", p.IncomingPacketType)
				awaitingAck = false
				ackTimer.Stop()

			case ledserial.ErrorPacket:
				s.logger.Warn(
					"received error packet from controller",
					"message", p.Message)
				return errors.New("controller reported error")

			case ledserial.PanicPacket:
				s.logger.Error(
					"controller unrecoverably panicked",
					"message", p.Message)
				return errors.New("controller panicked")

			case ledserial.LogPacket:
				s.logger.Info(
					"received log packet from controller",
					"message", p.Message)

			default:
				return fmt.Errorf("received unknown packet from controller: %s", p.Type())
			}

		case <-ackTimer.C:
			s.logger.Warn("controller did not acknowledge in time", "timeout", s.AckTimeout)
			awaitingAck = false

		case <-notify:
			c, ok := s.box.Take()
			if !ok {
				continue
			}
			if err := s.writeColor(w, c); err != nil {
				return err
			}
			awaitingAck = true
			ackTimer.Reset(s.AckTimeout)
		}
	}
}

func (s *Serial) readPackets(ctx context.Context, r io.Reader, dst chan<- ledserial.OutgoingPacket) error {
	for ctx.Err() == nil {
		p, err := ledserial.ReadOutgoingPacket(r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A short read indicates a timeout. This is expected.
			if errors.Is(err, io.EOF) {
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		s.logger.Debug(
			"received packet from controller",
			"type", p.Type())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case dst <- p:
			// ok
		}
	}

	return ctx.Err()
}

func (s *Serial) writeColor(w io.Writer, c led.RGBColor) error {
	s.leds.Fill(c)
	if err := s.writePacket(w, ledserial.SetPacket{Pix: s.leds.AsPixels()}); err != nil {
		return errors.Wrap(err, "failed to write color")
	}
	return nil
}

func (s *Serial) writePacket(w io.Writer, p ledserial.IncomingPacket) error {
	s.logger.Debug(
		"writing packet",
		"type", p.Type())

	return ledserial.WriteIncomingPacket(w, p)
}
