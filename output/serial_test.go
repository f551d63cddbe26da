package output

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/ledserial"
)

// fakePort connects a serial sink to a fake controller.
type fakePort struct {
	io.Reader
	io.Writer
	close func() error
}

func (p fakePort) Close() error { return p.close() }

type fakeController struct {
	in  *io.PipeReader // from the host
	out *io.PipeWriter // to the host
	ctx ledserial.ReadContext
}

func newFakePort(numLEDs int) (fakePort, *fakeController) {
	hostR, ctrlW := io.Pipe()
	ctrlR, hostW := io.Pipe()

	port := fakePort{
		Reader: hostR,
		Writer: hostW,
		close: func() error {
			hostR.Close()
			hostW.Close()
			return nil
		},
	}

	return port, &fakeController{
		in:  ctrlR,
		out: ctrlW,
		ctx: ledserial.ReadContext{NumLEDs: uint16(numLEDs)},
	}
}

func (c *fakeController) read(t *testing.T) ledserial.IncomingPacket {
	t.Helper()
	p, err := ledserial.ReadIncomingPacket(c.in, c.ctx)
	require.NoError(t, err)
	return p
}

func (c *fakeController) send(t *testing.T, p ledserial.OutgoingPacket) {
	t.Helper()
	require.NoError(t, ledserial.WriteOutgoingPacket(c.out, p))
}

func newTestSerial(numLEDs int) *Serial {
	s := NewSerial("/dev/null", 115200, numLEDs, testLogger)
	s.StartDelay = 0
	s.AckTimeout = time.Minute
	return s
}

func TestSerialSink(t *testing.T) {
	s := newTestSerial(2)
	port, ctrl := newFakePort(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(ctx, port) }()

	assert.Equal(t, ledserial.InitializePacket{NumLEDs: 2}, ctrl.read(t))
	ctrl.send(t, ledserial.AckPacket{IncomingPacketType: ledserial.TypeInitializePacket})

	s.SetColor(led.Red)
	assert.Equal(t, ledserial.SetPacket{Pix: []uint8{255, 0, 0, 255, 0, 0}}, ctrl.read(t))
	ctrl.send(t, ledserial.LogPacket{Message: "hello"})
	ctrl.send(t, ledserial.AckPacket{IncomingPacketType: ledserial.TypeSetPacket})

	s.SetColor(led.Green)
	assert.Equal(t, ledserial.SetPacket{Pix: []uint8{0, 255, 0, 0, 255, 0}}, ctrl.read(t))

	// Not acked yet, so this is only sent as the final color.
	s.SetColor(led.Black)
	cancel()
	assert.Equal(t, ledserial.SetPacket{Pix: []uint8{0, 0, 0, 0, 0, 0}}, ctrl.read(t))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestSerialSinkAckTimeout(t *testing.T) {
	s := newTestSerial(1)
	s.AckTimeout = 10 * time.Millisecond
	port, ctrl := newFakePort(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.serve(ctx, port)

	assert.Equal(t, ledserial.InitializePacket{NumLEDs: 1}, ctrl.read(t))

	// No ack is ever sent. Colors still go out after the timeout.
	s.SetColor(led.Blue)
	assert.Equal(t, ledserial.SetPacket{Pix: []uint8{0, 0, 255}}, ctrl.read(t))
	s.SetColor(led.White)
	assert.Equal(t, ledserial.SetPacket{Pix: []uint8{255, 255, 255}}, ctrl.read(t))
}

func TestSerialSinkControllerError(t *testing.T) {
	s := newTestSerial(1)
	port, ctrl := newFakePort(1)

	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(context.Background(), port) }()

	ctrl.read(t)
	ctrl.send(t, ledserial.ErrorPacket{Message: "strip not found"})

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "controller reported error")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
