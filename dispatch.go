//go:build linux

package wayland

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

// DispatchEvents reads and dispatches every event available on the
// socket without blocking, and returns how many were delivered to
// callbacks. When no event is available at all, the underlying EAGAIN
// surfaces unchanged; once at least one event has been dispatched an
// empty socket simply ends the loop.
//
// Use this directly only if this thread is known to be the only reader;
// otherwise coordinate through PrepareRead.
func (b *Backend) DispatchEvents() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatchEventsLocked()
}

func (b *Backend) dispatchEventsLocked() (int, error) {
	h := &b.handle
	if err := h.noLastError(); err != nil {
		return 0, err
	}

	dispatched := 0
	for {
		msg, err := h.socket.ReadOneMessage(func(senderID uint32, opcode uint16) ([]protocol.ArgType, bool) {
			obj := h.objects.find(senderID)
			if obj == nil || int(opcode) >= len(obj.iface.Events) {
				return nil, false
			}
			return obj.iface.Events[opcode].Signature, true
		})
		if err != nil {
			switch {
			case errors.Is(err, wire.ErrMissingData) || errors.Is(err, wire.ErrMissingFD):
				if ferr := h.socket.FillIncomingBuffers(); ferr != nil {
					if !isWouldBlock(ferr) {
						return dispatched, h.storeError(ferr)
					}
					if dispatched == 0 {
						return 0, ferr
					}
					return dispatched, nil
				}
				continue
			case errors.Is(err, wire.ErrMalformed):
				perr := &ProtocolError{Message: "Malformed Wayland message."}
				return dispatched, h.storeError(perr)
			default:
				return dispatched, h.storeError(err)
			}
		}

		// These lookups must succeed, the parser only accepted the
		// message because they did.
		receiver := h.objects.find(msg.SenderID)
		desc := &receiver.iface.Events[msg.Opcode]

		if msg.SenderID == 1 {
			if err := h.handleDisplayEvent(msg); err != nil {
				return dispatched, err
			}
			continue
		}

		args, created, err := h.convertEventArgs(receiver, msg, desc)
		if err != nil {
			return dispatched, err
		}

		if h.debug {
			printIncoming(receiver.iface.Name, msg.SenderID, desc.Name, args)
		}

		// Events addressed to a client-destroyed object are swallowed,
		// closing any carried descriptors so they do not leak.
		if receiver.clientDestroyed {
			for _, a := range args {
				if a.Kind == protocol.Fd {
					_ = unix.Close(a.Fd)
				}
			}
			continue
		}

		id := ObjectID{id: msg.SenderID, serial: receiver.serial, iface: receiver.iface}
		ret := receiver.data.Event(&b.handle, Message{SenderID: id, Opcode: msg.Opcode, Args: args})

		if desc.IsDestructor {
			receiver.clientDestroyed = true
			receiver.serverDestroyed = true
			receiver.data.Destroyed(id)
		}

		switch {
		case created != nil && ret != nil:
			created.data = ret
		case created == nil && ret == nil:
		case created != nil:
			panic(fmt.Sprintf("wayland: callback creating object %s@%d did not provide any object data",
				created.iface.Name, created.protocolID))
		default:
			panic("wayland: an object data was returned from a callback not creating any object")
		}

		dispatched++
	}
}

// createdChild tracks the object record a NewID event argument created,
// so the parent callback's return value can be attached to it.
type createdChild struct {
	*object
	protocolID uint32
}

// convertEventArgs resolves wire arguments into backend arguments:
// object ids are looked up (and interface-checked when the descriptor
// pins them), and NewID arguments create the announced child record on
// the spot.
func (h *Handle) convertEventArgs(receiver *object, msg *wire.Message, desc *protocol.MessageDesc) ([]Arg, *createdChild, error) {
	args := make([]Arg, 0, len(msg.Args))
	var created *createdChild
	ifaceIdx := 0

	for _, warg := range msg.Args {
		switch warg.Kind {
		case protocol.Int:
			args = append(args, IntArg(warg.Int))
		case protocol.Uint:
			args = append(args, UintArg(warg.Uint))
		case protocol.Fixed:
			args = append(args, FixedArg(warg.Fixed))
		case protocol.String:
			args = append(args, StrArg(warg.Str))
		case protocol.Array:
			args = append(args, ArrayArg(warg.Array))
		case protocol.Fd:
			args = append(args, FdArg(warg.Fd))

		case protocol.Object:
			expected := protocol.Anonymous
			if ifaceIdx < len(desc.ArgInterfaces) {
				expected = desc.ArgInterfaces[ifaceIdx]
			}
			ifaceIdx++
			if warg.Uint == 0 {
				args = append(args, ObjectArg(ObjectID{iface: protocol.Anonymous}))
				continue
			}
			obj := h.objects.find(warg.Uint)
			if obj == nil {
				perr := &ProtocolError{Message: fmt.Sprintf("Unknown object %d.", warg.Uint)}
				return nil, nil, h.storeError(perr)
			}
			if !protocol.SameOrAnonymous(expected, obj.iface) {
				perr := &ProtocolError{Message: fmt.Sprintf(
					"Protocol error: server sent object %d for interface %s, but it has interface %s.",
					warg.Uint, expected.Name, obj.iface.Name)}
				return nil, nil, h.storeError(perr)
			}
			args = append(args, ObjectArg(ObjectID{id: warg.Uint, serial: obj.serial, iface: obj.iface}))

		case protocol.NewID:
			if desc.ChildInterface == nil {
				panic(fmt.Sprintf("wayland: received event %s@%d.%s which creates an object without specifying its interface",
					receiver.iface.Name, msg.SenderID, desc.Name))
			}

			// A server id whose previous occupant the client already
			// destroyed may be recycled before the delete-id handshake
			// completes.
			if warg.Uint >= serverIDLimit {
				if old := h.objects.find(warg.Uint); old != nil && old.clientDestroyed {
					h.objects.remove(warg.Uint)
				}
			}

			child := &object{
				iface:   desc.ChildInterface,
				version: receiver.version,
				serial:  h.nextSerial(),
				data:    uninitObjectData{},
				// An orphan chain hanging off a destroyed parent must
				// swallow its events too.
				clientDestroyed: receiver.clientDestroyed,
			}
			if err := h.objects.insertAt(warg.Uint, child); err != nil {
				perr := &ProtocolError{Message: fmt.Sprintf(
					"Protocol error: server tried to create an object %q with invalid id %d.",
					desc.ChildInterface.Name, warg.Uint)}
				return nil, nil, h.storeError(perr)
			}
			created = &createdChild{object: child, protocolID: warg.Uint}
			args = append(args, NewIDArg(ObjectID{id: warg.Uint, serial: child.serial, iface: child.iface}))
		}
	}

	return args, created, nil
}

// handleDisplayEvent short-circuits the two wl_display events: a
// protocol error latches and kills the connection, and delete_id
// completes the destruction handshake that lets a client id be reused.
func (h *Handle) handleDisplayEvent(msg *wire.Message) error {
	switch msg.Opcode {
	case protocol.DisplayEventError:
		objID := msg.Args[0].Uint
		ifaceName := "<unknown>"
		if obj := h.objects.find(objID); obj != nil {
			ifaceName = obj.iface.Name
		}
		return h.storeError(&ProtocolError{
			Code:      msg.Args[1].Uint,
			ObjectID:  objID,
			Interface: ifaceName,
			Message:   msg.Args[2].Str,
		})

	case protocol.DisplayEventDeleteID:
		id := msg.Args[0].Uint
		if obj := h.objects.find(id); obj != nil {
			obj.serverDestroyed = true
			if obj.clientDestroyed {
				h.objects.remove(id)
			}
		}
		return nil

	default:
		panic(fmt.Sprintf("wayland: unexpected wl_display event %d", msg.Opcode))
	}
}
