//go:build linux

package wayland

import (
	"fmt"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

// ObjectID identifies a live Wayland object. It pairs the protocol-level
// numeric id with the interface of the object and a generation serial:
// protocol ids are recycled after destruction, and the serial is what
// tells a stale handle from the current occupant of an id.
//
// The zero value is the null id.
type ObjectID struct {
	id     uint32
	serial uint32
	iface  *protocol.Interface
}

// IsNull reports whether this is the null id.
func (id ObjectID) IsNull() bool {
	return id.id == 0
}

// ProtocolID returns the protocol-level numerical id. Ids are reused
// after object destruction, so this is not a unique identifier.
func (id ObjectID) ProtocolID() uint32 {
	return id.id
}

// Interface returns the interface of the represented object.
func (id ObjectID) Interface() *protocol.Interface {
	if id.iface == nil {
		return protocol.Anonymous
	}
	return id.iface
}

// Equal reports whether two ids denote the same generation of the same
// object.
func (id ObjectID) Equal(other ObjectID) bool {
	return id.id == other.id &&
		id.serial == other.serial &&
		protocol.SameInterface(id.Interface(), other.Interface())
}

// String formats the id as iface@id.
func (id ObjectID) String() string {
	return fmt.Sprintf("%s@%d", id.Interface().Name, id.id)
}

// ObjectInfo is the static detail of a live object.
type ObjectInfo struct {
	// ID is the protocol-level id.
	ID uint32

	// Interface of the object.
	Interface *protocol.Interface

	// Version negotiated for the object.
	Version uint32
}

// Arg is one argument of a backend-level message. Unlike wire.Arg,
// Object and NewID arguments carry full ObjectID handles.
type Arg struct {
	Kind   protocol.ArgKind
	Int    int32
	Uint   uint32
	Fixed  wire.Fixed
	Str    string
	Array  []byte
	Fd     int
	Object ObjectID
}

// IntArg returns an int argument.
func IntArg(v int32) Arg { return Arg{Kind: protocol.Int, Int: v} }

// UintArg returns a uint argument.
func UintArg(v uint32) Arg { return Arg{Kind: protocol.Uint, Uint: v} }

// FixedArg returns a fixed-point argument.
func FixedArg(v wire.Fixed) Arg { return Arg{Kind: protocol.Fixed, Fixed: v} }

// StrArg returns a string argument.
func StrArg(s string) Arg { return Arg{Kind: protocol.String, Str: s} }

// ArrayArg returns a byte-array argument.
func ArrayArg(data []byte) Arg { return Arg{Kind: protocol.Array, Array: data} }

// FdArg returns a file-descriptor argument.
func FdArg(fd int) Arg { return Arg{Kind: protocol.Fd, Fd: fd} }

// ObjectArg returns an object argument.
func ObjectArg(id ObjectID) Arg { return Arg{Kind: protocol.Object, Object: id} }

// NewIDArg returns a new-id argument. On the send path the id must be a
// placeholder obtained from PlaceholderID or NullID.
func NewIDArg(id ObjectID) Arg { return Arg{Kind: protocol.NewID, Object: id} }

// Message is one backend-level message: a request to send, or an event
// delivered to an ObjectData.
type Message struct {
	// SenderID is the object the message is addressed to (requests) or
	// originates from (events).
	SenderID ObjectID

	// Opcode within the sender interface's request or event table.
	Opcode uint16

	// Args is the ordered argument list.
	Args []Arg
}
