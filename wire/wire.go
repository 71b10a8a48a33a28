//go:build linux

// Package wire implements the Wayland wire format: little-endian 32-bit
// word messages over a unix stream socket, with file descriptors passed
// out-of-band via SCM_RIGHTS.
//
// The wire format is:
//
//	+--------+--------+--------+--------+
//	| Sender ID (4 bytes)               |
//	+--------+--------+--------+--------+
//	| Size (16 bits) | Opcode (16 bits) |
//	+--------+--------+--------+--------+
//	| Arguments...                      |
//	+--------+--------+--------+--------+
//
// Strings and arrays are length-prefixed and padded to a 4-byte
// boundary. Object and new-id arguments are bare protocol ids at this
// level; resolving them against the live object table is the backend's
// job.
package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gogpu/wayland/protocol"
)

// Fixed represents a Wayland fixed-point number (24.8 format).
// The upper 24 bits are the integer part, lower 8 bits are the
// fractional part.
type Fixed int32

// FixedFromFloat converts a float64 to Fixed (24.8 format), clamping to
// the representable range.
func FixedFromFloat(f float64) Fixed {
	const maxVal = float64(math.MaxInt32) / 256.0
	const minVal = float64(math.MinInt32) / 256.0

	if f > maxVal {
		f = maxVal
	} else if f < minVal {
		f = minVal
	}

	return Fixed(f * 256.0)
}

// Float returns the Fixed value as a float64.
func (f Fixed) Float() float64 {
	return float64(f) / 256.0
}

// FixedFromInt converts an integer to Fixed.
func FixedFromInt(i int32) Fixed {
	return Fixed(i << 8)
}

// Int returns the integer part of the Fixed value.
func (f Fixed) Int() int32 {
	return int32(f) >> 8
}

// Header size in bytes (sender ID + size/opcode).
const headerSize = 8

// Maximum message size (65535 bytes, the largest value the 16-bit size
// field can hold).
const maxMessageSize = 0xFFFF

// Errors returned by the wire codec.
var (
	ErrMessageTooLarge     = errors.New("wayland: message exceeds maximum size")
	ErrMessageTooSmall     = errors.New("wayland: message smaller than header")
	ErrInvalidStringLen    = errors.New("wayland: invalid string length")
	ErrInvalidArrayLen     = errors.New("wayland: invalid array length")
	ErrUnexpectedEOF       = errors.New("wayland: unexpected end of message")
	ErrStringNotTerminated = errors.New("wayland: string not null-terminated")
)

// Arg is one wire-level message argument. Kind selects which field is
// meaningful: Uint doubles as the storage for Object and NewID ids.
type Arg struct {
	Kind  protocol.ArgKind
	Int   int32
	Uint  uint32
	Fixed Fixed
	Str   string
	Array []byte
	Fd    int
}

// IntArg returns an int argument.
func IntArg(v int32) Arg { return Arg{Kind: protocol.Int, Int: v} }

// UintArg returns a uint argument.
func UintArg(v uint32) Arg { return Arg{Kind: protocol.Uint, Uint: v} }

// FixedArg returns a fixed-point argument.
func FixedArg(v Fixed) Arg { return Arg{Kind: protocol.Fixed, Fixed: v} }

// StrArg returns a string argument.
func StrArg(s string) Arg { return Arg{Kind: protocol.String, Str: s} }

// ObjectArg returns an object argument carrying a bare protocol id.
func ObjectArg(id uint32) Arg { return Arg{Kind: protocol.Object, Uint: id} }

// NewIDArg returns a new-id argument carrying a bare protocol id.
func NewIDArg(id uint32) Arg { return Arg{Kind: protocol.NewID, Uint: id} }

// ArrayArg returns a byte-array argument.
func ArrayArg(data []byte) Arg { return Arg{Kind: protocol.Array, Array: data} }

// FdArg returns a file-descriptor argument. The descriptor travels
// out-of-band and contributes no in-band bytes.
func FdArg(fd int) Arg { return Arg{Kind: protocol.Fd, Fd: fd} }

// Message is one wire protocol message, request or event.
type Message struct {
	SenderID uint32
	Opcode   uint16
	Args     []Arg
}

// Encoder encodes message arguments to the wire format.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new Encoder with the given initial buffer capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{
		buf: make([]byte, 0, capacity),
	}
}

// Reset clears the encoder's buffer for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// PutInt32 appends a signed 32-bit integer.
func (e *Encoder) PutInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

// PutUint32 appends an unsigned 32-bit integer.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutFixed appends a fixed-point number.
func (e *Encoder) PutFixed(v Fixed) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

// PutString appends a length-prefixed, null-terminated string padded to
// a 4-byte boundary.
func (e *Encoder) PutString(s string) {
	// Length includes the null terminator
	length := uint32(len(s) + 1)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)

	for i := 0; i < paddingFor(int(length)); i++ {
		e.buf = append(e.buf, 0)
	}
}

// PutArray appends a length-prefixed byte array padded to a 4-byte
// boundary.
func (e *Encoder) PutArray(data []byte) {
	length := uint32(len(data))
	e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
	e.buf = append(e.buf, data...)

	for i := 0; i < paddingFor(int(length)); i++ {
		e.buf = append(e.buf, 0)
	}
}

// PutArg appends one argument. Fd arguments contribute no bytes.
func (e *Encoder) PutArg(arg Arg) {
	switch arg.Kind {
	case protocol.Int:
		e.PutInt32(arg.Int)
	case protocol.Uint, protocol.Object, protocol.NewID:
		e.PutUint32(arg.Uint)
	case protocol.Fixed:
		e.PutFixed(arg.Fixed)
	case protocol.String:
		e.PutString(arg.Str)
	case protocol.Array:
		e.PutArray(arg.Array)
	case protocol.Fd:
		// out-of-band
	}
}

// Decoder decodes message arguments from the wire format.
type Decoder struct {
	buf    []byte
	offset int
	fds    []int
	fdIdx  int
}

// NewDecoder creates a new Decoder over buf, with fds as the pending
// ancillary file descriptors.
func NewDecoder(buf []byte, fds []int) *Decoder {
	return &Decoder{buf: buf, fds: fds}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.offset
}

// FDsConsumed returns how many ancillary descriptors have been read.
func (d *Decoder) FDsConsumed() int {
	return d.fdIdx
}

// Int32 reads a signed 32-bit integer.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// Uint32 reads an unsigned 32-bit integer.
func (d *Decoder) Uint32() (uint32, error) {
	if d.offset+4 > len(d.buf) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.offset:])
	d.offset += 4
	return v, nil
}

// Fixed reads a fixed-point number.
func (d *Decoder) Fixed() (Fixed, error) {
	v, err := d.Uint32()
	return Fixed(v), err
}

// String reads a length-prefixed, null-terminated string.
func (d *Decoder) String() (string, error) {
	length, err := d.Uint32()
	if err != nil {
		return "", err
	}

	if length == 0 {
		return "", nil
	}
	if length > maxMessageSize {
		return "", ErrInvalidStringLen
	}

	paddedLen := int(length) + paddingFor(int(length))
	if d.offset+paddedLen > len(d.buf) {
		return "", ErrUnexpectedEOF
	}

	data := d.buf[d.offset : d.offset+int(length)-1]
	if d.buf[d.offset+int(length)-1] != 0 {
		return "", ErrStringNotTerminated
	}

	d.offset += paddedLen
	return string(data), nil
}

// Array reads a length-prefixed byte array.
func (d *Decoder) Array() ([]byte, error) {
	length, err := d.Uint32()
	if err != nil {
		return nil, err
	}

	if length == 0 {
		return nil, nil
	}
	if length > maxMessageSize {
		return nil, ErrInvalidArrayLen
	}

	paddedLen := int(length) + paddingFor(int(length))
	if d.offset+paddedLen > len(d.buf) {
		return nil, ErrUnexpectedEOF
	}

	data := make([]byte, length)
	copy(data, d.buf[d.offset:])

	d.offset += paddedLen
	return data, nil
}

// FD takes the next ancillary file descriptor.
func (d *Decoder) FD() (int, error) {
	if d.fdIdx >= len(d.fds) {
		return -1, ErrMissingFD
	}
	fd := d.fds[d.fdIdx]
	d.fdIdx++
	return fd, nil
}

// Arg reads one argument of the given type.
func (d *Decoder) Arg(typ protocol.ArgType) (Arg, error) {
	switch typ.Kind {
	case protocol.Int:
		v, err := d.Int32()
		return IntArg(v), err
	case protocol.Uint:
		v, err := d.Uint32()
		return UintArg(v), err
	case protocol.Fixed:
		v, err := d.Fixed()
		return FixedArg(v), err
	case protocol.String:
		v, err := d.String()
		return StrArg(v), err
	case protocol.Object:
		v, err := d.Uint32()
		return ObjectArg(v), err
	case protocol.NewID:
		v, err := d.Uint32()
		return NewIDArg(v), err
	case protocol.Array:
		v, err := d.Array()
		return ArrayArg(v), err
	case protocol.Fd:
		v, err := d.FD()
		return FdArg(v), err
	default:
		return Arg{}, ErrUnexpectedEOF
	}
}

// paddingFor returns the padding needed to align length to 4 bytes.
func paddingFor(length int) int {
	return (4 - (length % 4)) % 4
}
