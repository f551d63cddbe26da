// Package ledserial implements the serial protocol spoken between the host and
// an LED controller.
//
// Every packet is a type byte followed by its body and a little-endian CRC-32
// (IEEE) of the type byte and body. Incoming packets travel from the host to
// the controller and outgoing packets travel back.
package ledserial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// ErrChecksum is returned when a packet fails its checksum.
var ErrChecksum = errors.New("packet checksum mismatch")

// IncomingPacketType is the type of a packet sent to the controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent to the controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket tells the controller how many LEDs the strip has.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns the whole strip off.
type ClearPacket struct{}

// SetPacket sets the color of every LED. Pix holds three bytes per LED.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is the type of a packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeErrorPacket OutgoingPacketType = iota
	TypePanicPacket
	TypeLogPacket
	TypeAckPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	case TypeAckPacket:
		return "ack"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent by the controller.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// ErrorPacket is a packet that indicates an error occurred.
type ErrorPacket struct {
	Message string
}

// PanicPacket is a packet that indicates the controller cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket is a packet that contains a log message.
type LogPacket struct {
	Message string
}

// AckPacket acknowledges that an incoming packet was handled.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }
func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }

// ReadContext is the state of the LED strip. Data in this structure are
// required for the controller to read incoming packets.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// packetReader reads the body of a packet while hashing it. The checksum
// itself is read past the hash.
type packetReader struct {
	raw  io.Reader
	body io.Reader
	hash hash.Hash32
}

func newPacketReader(r io.Reader) *packetReader {
	h := crc32.NewIEEE()
	return &packetReader{raw: r, body: io.TeeReader(r, h), hash: h}
}

func (r *packetReader) readType() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.body, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *packetReader) read(v any) error {
	return binary.Read(r.body, Endianness, v)
}

func (r *packetReader) readString() (string, error) {
	var length uint16
	if err := r.read(&length); err != nil {
		return "", fmt.Errorf("failed to read string length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.body, buf); err != nil {
		return "", fmt.Errorf("failed to read string: %w", err)
	}
	return string(buf), nil
}

func (r *packetReader) verify() error {
	want := r.hash.Sum32()

	var checksum uint32
	if err := binary.Read(r.raw, Endianness, &checksum); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != want {
		return ErrChecksum
	}
	return nil
}

// packetWriter buffers a packet and appends its checksum.
type packetWriter struct {
	buf []byte
}

func (w *packetWriter) byte(b uint8) { w.buf = append(w.buf, b) }

func (w *packetWriter) uint16(v uint16) { w.buf = Endianness.AppendUint16(w.buf, v) }

func (w *packetWriter) string(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long (%d bytes)", len(s))
	}
	w.uint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *packetWriter) flush(dst io.Writer) error {
	w.buf = Endianness.AppendUint32(w.buf, crc32.ChecksumIEEE(w.buf))
	if _, err := dst.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// ReadIncomingPacket reads an incoming packet from the given reader.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	pr := newPacketReader(r)

	ptypeByte, err := pr.readType()
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	var packet IncomingPacket

	switch ptype := IncomingPacketType(ptypeByte); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := pr.read(&p.NumLEDs); err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		p := SetPacket{Pix: make([]uint8, 3*int(context.NumLEDs))}
		if _, err := io.ReadFull(pr.body, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteIncomingPacket writes an incoming packet to the given writer. The
// packet is written with a single Write call.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	var pw packetWriter

	switch p := p.(type) {
	case InitializePacket:
		pw.byte(uint8(TypeInitializePacket))
		pw.uint16(p.NumLEDs)
	case ClearPacket:
		pw.byte(uint8(TypeClearPacket))
	case SetPacket:
		if len(p.Pix)%3 != 0 {
			return fmt.Errorf("pixel data length %d is not a multiple of 3", len(p.Pix))
		}
		pw.byte(uint8(TypeSetPacket))
		pw.buf = append(pw.buf, p.Pix...)
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return pw.flush(w)
}

// ReadOutgoingPacket reads an outgoing packet from the given reader.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	pr := newPacketReader(r)

	ptypeByte, err := pr.readType()
	if err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	var packet OutgoingPacket

	switch ptype := OutgoingPacketType(ptypeByte); ptype {
	case TypeErrorPacket:
		msg, err := pr.readString()
		if err != nil {
			return nil, fmt.Errorf("error packet: %w", err)
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		msg, err := pr.readString()
		if err != nil {
			return nil, fmt.Errorf("panic packet: %w", err)
		}
		packet = PanicPacket{Message: msg}

	case TypeLogPacket:
		msg, err := pr.readString()
		if err != nil {
			return nil, fmt.Errorf("log packet: %w", err)
		}
		packet = LogPacket{Message: msg}

	case TypeAckPacket:
		acked, err := pr.readType()
		if err != nil {
			return nil, fmt.Errorf("failed to read acked packet type: %w", err)
		}
		packet = AckPacket{IncomingPacketType: IncomingPacketType(acked)}

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteOutgoingPacket writes an outgoing packet to the given writer.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	var pw packetWriter

	switch p := p.(type) {
	case ErrorPacket:
		pw.byte(uint8(TypeErrorPacket))
		if err := pw.string(p.Message); err != nil {
			return err
		}
	case PanicPacket:
		pw.byte(uint8(TypePanicPacket))
		if err := pw.string(p.Message); err != nil {
			return err
		}
	case LogPacket:
		pw.byte(uint8(TypeLogPacket))
		if err := pw.string(p.Message); err != nil {
			return err
		}
	case AckPacket:
		pw.byte(uint8(TypeAckPacket))
		pw.byte(uint8(p.IncomingPacketType))
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return pw.flush(w)
}
