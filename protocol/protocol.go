// Package protocol holds the static interface metadata of the Wayland
// protocol: interfaces, their requests and events, and the argument
// signatures the wire codec and the backend validate against.
//
// Descriptors are plain data. The tables in this package cover the core
// interfaces every client needs (wl_display, wl_callback, wl_registry);
// higher-level protocol tables are expected to be declared by the code
// using the backend, in the same shape.
package protocol

// ArgKind identifies the type of one message argument.
type ArgKind uint8

const (
	Int ArgKind = iota
	Uint
	Fixed
	String
	Object
	NewID
	Array
	Fd
)

// String returns the wayland-scanner name of the argument kind.
func (k ArgKind) String() string {
	switch k {
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Fixed:
		return "fixed"
	case String:
		return "string"
	case Object:
		return "object"
	case NewID:
		return "new_id"
	case Array:
		return "array"
	case Fd:
		return "fd"
	default:
		return "unknown"
	}
}

// ArgType is one slot of a message signature.
// AllowNull is meaningful for Object and String arguments.
type ArgType struct {
	Kind      ArgKind
	AllowNull bool
}

// MessageDesc describes one request or event of an interface. Its
// position in the Requests or Events slice is its opcode.
type MessageDesc struct {
	// Name is the protocol-level message name.
	Name string

	// Since is the interface version that introduced this message.
	Since uint32

	// Signature is the ordered argument list.
	Signature []ArgType

	// ArgInterfaces pins the interface of each Object argument, in
	// signature order. An Anonymous entry leaves that argument
	// unconstrained.
	ArgInterfaces []*Interface

	// ChildInterface is the interface of the object a NewID argument
	// creates. nil marks a generic constructor (wl_registry.bind),
	// whose target interface travels on the wire instead.
	ChildInterface *Interface

	// IsDestructor marks messages that end the life of the object
	// they are addressed to.
	IsDestructor bool
}

// Interface is the static contract of a class of protocol objects.
type Interface struct {
	Name     string
	Version  uint32
	Requests []MessageDesc
	Events   []MessageDesc
}

// Anonymous is the sentinel interface of the null object id and of
// unconstrained object arguments.
var Anonymous = &Interface{Name: "<anonymous>"}

// SameInterface reports whether a and b denote the same interface.
// Distinct table instances with the same name compare equal, so that
// independently declared protocol tables interoperate.
func SameInterface(a, b *Interface) bool {
	return a == b || a.Name == b.Name
}

// SameOrAnonymous reports whether actual satisfies expected, treating
// the Anonymous sentinel as a wildcard.
func SameOrAnonymous(expected, actual *Interface) bool {
	return expected == Anonymous || SameInterface(expected, actual)
}
