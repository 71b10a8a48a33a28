//go:build linux

package wayland

import (
	"fmt"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

// SendRequest sends a request to the compositor. msg.SenderID addresses
// the object the request is made on; if the request creates an object,
// data supplies the created object's ObjectData and the returned id is
// the child's, otherwise the null id is returned.
//
// It fails with ErrInvalidID if the sender id (or an object argument)
// is no longer valid. IO failures do not fail the call: they latch on
// the connection and are reported by LastError and every later
// operation.
//
// Requests are validated against the protocol tables; a violation is a
// bug in the calling code and panics:
//
//   - the opcode must exist on the sender interface
//   - the argument list must match the request signature
//   - object arguments must carry the interface the signature pins
//   - an object-creating request needs a placeholder NewID argument,
//     and a generic constructor needs a prior PlaceholderID spec
func (h *Handle) SendRequest(msg Message, data ObjectData) (ObjectID, error) {
	if err := h.noLastError(); err != nil {
		return h.NullID(), err
	}

	sender, err := h.getObject(msg.SenderID)
	if err != nil {
		return h.NullID(), err
	}
	if sender.clientDestroyed {
		return h.NullID(), ErrInvalidID
	}

	if int(msg.Opcode) >= len(sender.iface.Requests) {
		panic(fmt.Sprintf("wayland: unknown opcode %d for object %s@%d",
			msg.Opcode, sender.iface.Name, msg.SenderID.id))
	}
	desc := &sender.iface.Requests[msg.Opcode]

	checkSignature(sender, msg, desc)

	// Resolve the interface and version of the created object, if any.
	childSpec := h.resolveChildSpec(sender, msg, desc)

	var child *object
	var childID ObjectID
	if childSpec != nil {
		child = &object{
			iface:   childSpec.Interface,
			version: childSpec.Version,
			serial:  h.nextSerial(),
			data:    dumbObjectData{},
		}
		id := h.objects.clientInsertNew(child)
		if data == nil {
			panic(fmt.Sprintf("wayland: request %s@%d.%s creates an object but no object data was provided",
				sender.iface.Name, msg.SenderID.id, desc.Name))
		}
		child.data = data
		childID = ObjectID{id: id, serial: child.serial, iface: child.iface}
	}

	wireMsg, err := h.lowerArgs(sender, msg, desc, childID)
	if err != nil {
		return h.NullID(), err
	}

	if h.debug {
		printOutgoing(sender.iface.Name, msg.SenderID.id, desc.Name, msg.Args, childID)
	}

	// The write is fire-and-forget: an IO failure latches instead of
	// failing the request. Callers that need certainty check LastError.
	if werr := h.socket.WriteMessage(wireMsg, desc.Signature); werr != nil {
		h.storeError(werr)
	}

	if desc.IsDestructor {
		sender.clientDestroyed = true
		sender.data.Destroyed(msg.SenderID)
	}

	if child != nil {
		return childID, nil
	}
	return h.NullID(), nil
}

// checkSignature validates the argument list element-by-element against
// the request signature.
func checkSignature(sender *object, msg Message, desc *protocol.MessageDesc) {
	if len(msg.Args) != len(desc.Signature) {
		panic(fmt.Sprintf("wayland: request %s@%d.%s takes %d arguments, got %d",
			sender.iface.Name, msg.SenderID.id, desc.Name, len(desc.Signature), len(msg.Args)))
	}
	for i, typ := range desc.Signature {
		if msg.Args[i].Kind != typ.Kind {
			panic(fmt.Sprintf("wayland: request %s@%d.%s argument %d is %s, signature wants %s",
				sender.iface.Name, msg.SenderID.id, desc.Name, i, msg.Args[i].Kind, typ.Kind))
		}
	}
}

// resolveChildSpec determines the interface and version of the object a
// request creates, consuming the pending placeholder spec. Returns nil
// when the request creates nothing.
func (h *Handle) resolveChildSpec(sender *object, msg Message, desc *protocol.MessageDesc) *PlaceholderSpec {
	createsObject := false
	for _, typ := range desc.Signature {
		if typ.Kind == protocol.NewID {
			createsObject = true
			break
		}
	}
	if !createsObject {
		return nil
	}

	pending := h.pendingPlaceholder
	h.pendingPlaceholder = nil

	if pending != nil {
		if desc.ChildInterface != nil {
			if !protocol.SameInterface(desc.ChildInterface, pending.Interface) {
				panic(fmt.Sprintf("wayland: wrong placeholder for request %s@%d.%s: expected interface %s but got %s",
					sender.iface.Name, msg.SenderID.id, desc.Name, desc.ChildInterface.Name, pending.Interface.Name))
			}
			if pending.Version != sender.version {
				panic(fmt.Sprintf("wayland: wrong placeholder for request %s@%d.%s: expected version %d but got %d",
					sender.iface.Name, msg.SenderID.id, desc.Name, sender.version, pending.Version))
			}
		}
		return pending
	}

	if desc.ChildInterface != nil {
		return &PlaceholderSpec{Interface: desc.ChildInterface, Version: sender.version}
	}

	panic(fmt.Sprintf("wayland: request %s@%d.%s is a generic constructor, a placeholder spec must be provided",
		sender.iface.Name, msg.SenderID.id, desc.Name))
}

// lowerArgs converts the typed argument list to wire form: object
// arguments reduce to their protocol id after nullability and interface
// checks, and the NewID argument is replaced by the freshly allocated
// child id.
func (h *Handle) lowerArgs(sender *object, msg Message, desc *protocol.MessageDesc, childID ObjectID) (*wire.Message, error) {
	args := make([]wire.Arg, 0, len(msg.Args))
	ifaceIdx := 0
	for i, arg := range msg.Args {
		switch arg.Kind {
		case protocol.Int:
			args = append(args, wire.IntArg(arg.Int))
		case protocol.Uint:
			args = append(args, wire.UintArg(arg.Uint))
		case protocol.Fixed:
			args = append(args, wire.FixedArg(arg.Fixed))
		case protocol.String:
			args = append(args, wire.StrArg(arg.Str))
		case protocol.Array:
			args = append(args, wire.ArrayArg(arg.Array))
		case protocol.Fd:
			args = append(args, wire.FdArg(arg.Fd))
		case protocol.NewID:
			if !arg.Object.IsNull() {
				panic(fmt.Sprintf("wayland: the new-id argument of request %s@%d.%s is not a placeholder",
					sender.iface.Name, msg.SenderID.id, desc.Name))
			}
			args = append(args, wire.NewIDArg(childID.id))
		case protocol.Object:
			expected := protocol.Anonymous
			if ifaceIdx < len(desc.ArgInterfaces) {
				expected = desc.ArgInterfaces[ifaceIdx]
			}
			ifaceIdx++
			if arg.Object.IsNull() {
				if !desc.Signature[i].AllowNull {
					panic(fmt.Sprintf("wayland: request %s@%d.%s expects a non-null object argument %d",
						sender.iface.Name, msg.SenderID.id, desc.Name, i))
				}
				args = append(args, wire.ObjectArg(0))
				continue
			}
			obj, err := h.getObject(arg.Object)
			if err != nil {
				return nil, err
			}
			if !protocol.SameOrAnonymous(expected, obj.iface) {
				panic(fmt.Sprintf("wayland: request %s@%d.%s expects an argument of interface %s but %s was provided",
					sender.iface.Name, msg.SenderID.id, desc.Name, expected.Name, obj.iface.Name))
			}
			args = append(args, wire.ObjectArg(arg.Object.id))
		}
	}

	return &wire.Message{SenderID: msg.SenderID.id, Opcode: msg.Opcode, Args: args}, nil
}
