//go:build linux

// Package wayland implements a pure Go client backend for the Wayland
// display-server protocol.
//
// The backend owns the compositor connection and the table of live
// protocol objects. It serialises outbound requests, parses and
// dispatches inbound events, and coordinates event reading between
// threads — everything below the typed proxy layer and above the unix
// socket. No libwayland-client.so, no CGO.
//
// # Objects and ids
//
// Every protocol object is identified by a numeric id. Ids below
// 0xFF000000 are allocated by the client (lowest free id first), the
// rest by the server. Id 1 is always wl_display and id 0 is null.
// Because the protocol recycles ids after destruction, the backend
// stamps every object with a generation serial; an ObjectID carries id,
// serial and interface, and a stale handle fails with ErrInvalidID
// instead of reaching the wrong object.
//
// # Sending and dispatching
//
// Requests are sent with SendRequest, which validates the message
// against the static protocol tables (see the protocol package),
// allocates the id of a created child object, and buffers the encoded
// bytes; Flush pushes them to the compositor. A request that creates an
// object takes the child's ObjectData — the callback pair invoked for
// the child's events and destruction:
//
//	backend, _ := wayland.ConnectToEnv()
//	cb, _ := backend.SendRequest(wayland.Message{
//		SenderID: backend.DisplayID(),
//		Opcode:   protocol.DisplaySync,
//		Args:     []wayland.Arg{wayland.NewIDArg(backend.NullID())},
//	}, doneHandler)
//
// DispatchEvents drains the socket without blocking and invokes the
// ObjectData of each addressed object. The two wl_display events are
// handled internally: a protocol error latches on the connection and
// delete_id completes the object-destruction handshake.
//
// # Multi-threaded reading
//
// When several goroutines read events, each wraps its poll in a
// PrepareRead guard. The last guard consumed elects its goroutine to
// drain the socket; the others sleep and return 0 once the round is
// over. BlockingDispatch and Roundtrip compose the guard with poll(2)
// for the common cases.
//
// # Errors
//
// Transient EAGAIN conditions surface unchanged. Everything else —
// IO failures, protocol errors from the compositor, malformed streams —
// latches as the connection's sticky error: the first one wins and
// every later operation returns it. Misusing the API itself (bad
// opcode, signature mismatch, missing placeholder) panics, since no
// run-time handling can repair a miscompiled protocol binding.
//
// Wire tracing compatible with libwayland's WAYLAND_DEBUG=1 output is
// enabled by setting WAYLAND_DEBUG to "1" or "client" before Connect.
package wayland
