//go:build linux

package wayland

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/gogpu/wayland/protocol"
)

// ConnectToEnv locates the compositor from the ambient environment and
// connects to it.
//
// If WAYLAND_SOCKET is set it names an already-connected descriptor
// inherited from the parent process: the descriptor is adopted, marked
// close-on-exec and the variable is removed so child processes do not
// see it. Otherwise the socket lives at $XDG_RUNTIME_DIR/$WAYLAND_DISPLAY,
// with WAYLAND_DISPLAY defaulting to "wayland-0" and absolute paths
// taken as-is.
func ConnectToEnv() (*Backend, error) {
	if txt := os.Getenv("WAYLAND_SOCKET"); txt != "" {
		fd, err := strconv.Atoi(txt)
		if err != nil {
			return nil, ErrInvalidFD
		}
		_ = os.Unsetenv("WAYLAND_SOCKET")

		flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
		if err != nil {
			return nil, ErrInvalidFD
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC); err != nil {
			_ = unix.Close(fd)
			return nil, ErrInvalidFD
		}
		return newBackend(os.NewFile(uintptr(fd), "wayland-socket")), nil
	}

	path, err := socketPath()
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNoCompositor, path, err)
	}
	return Connect(conn.(*net.UnixConn))
}

func socketPath() (string, error) {
	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	if filepath.IsAbs(display) {
		return display, nil
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR is not set", ErrNoCompositor)
	}
	return filepath.Join(runtimeDir, display), nil
}

// BlockingDispatch flushes pending requests, waits for the socket to
// become readable and dispatches what arrives, coordinating with other
// readers through the read barrier. Returns the number of events this
// call dispatched (0 when another thread drained the round).
func (b *Backend) BlockingDispatch() (int, error) {
	guard := b.PrepareRead()

	if err := b.Flush(); err != nil && !isWouldBlock(err) {
		guard.Cancel()
		return 0, err
	}

	fds := []unix.PollFd{{Fd: int32(guard.ConnectionFD()), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if err != unix.EINTR {
			guard.Cancel()
			return 0, os.NewSyscallError("poll", err)
		}
	}

	n, err := guard.Read()
	if err != nil {
		if isWouldBlock(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// syncData flips its flag when the wl_callback.done event for a
// roundtrip arrives.
type syncData struct {
	done *atomic.Bool
}

func (s *syncData) Event(_ *Handle, _ Message) ObjectData {
	s.done.Store(true)
	return nil
}

func (s *syncData) Destroyed(ObjectID) {}

// Roundtrip sends wl_display.sync and dispatches events until the
// matching done callback fires, guaranteeing every previous request has
// been processed by the compositor. Returns the number of events
// dispatched while waiting.
func (b *Backend) Roundtrip() (int, error) {
	var done atomic.Bool

	b.mu.Lock()
	h := &b.handle
	_, err := h.SendRequest(Message{
		SenderID: h.DisplayID(),
		Opcode:   protocol.DisplaySync,
		Args:     []Arg{NewIDArg(h.NullID())},
	}, &syncData{done: &done})
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}

	total := 0
	for !done.Load() {
		n, err := b.BlockingDispatch()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
