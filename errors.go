//go:build linux

package wayland

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Errors surfaced by the backend.
var (
	// ErrInvalidID reports a stale or mismatched ObjectID. The
	// connection stays usable.
	ErrInvalidID = errors.New("wayland: invalid object id")

	// ErrNoCompositor means no compositor socket could be located from
	// the environment.
	ErrNoCompositor = errors.New("wayland: no compositor socket found")

	// ErrInvalidFD means the descriptor inherited through
	// WAYLAND_SOCKET is unusable.
	ErrInvalidFD = errors.New("wayland: invalid WAYLAND_SOCKET file descriptor")
)

// ProtocolError is a fatal protocol violation, either reported by the
// compositor through wl_display.error or detected while parsing the
// incoming stream. Once one occurs the connection is dead; every later
// operation returns the same error.
type ProtocolError struct {
	// Code is the interface-defined error code.
	Code uint32

	// ObjectID is the object the error is about, 0 when unknown.
	ObjectID uint32

	// Interface is the name of that object's interface, or "<unknown>".
	Interface string

	// Message is the compositor-supplied description, or the backend's
	// own text for a violation it detected itself.
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Interface == "" && e.ObjectID == 0 {
		return fmt.Sprintf("wayland: protocol error: %s", e.Message)
	}
	return fmt.Sprintf("wayland: protocol error %d on %s@%d: %s", e.Code, e.Interface, e.ObjectID, e.Message)
}

// isWouldBlock reports a transient IO condition that must surface
// unchanged instead of latching.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
