//go:build linux

package wayland

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

func TestConnectToEnvInheritedSocket(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	srv := &fakeServer{t: t, sock: wire.NewBufferedSocket(os.NewFile(uintptr(fds[1]), "server"))}
	t.Cleanup(func() { _ = srv.sock.Close() })

	t.Setenv("WAYLAND_SOCKET", fmt.Sprint(fds[0]))
	b, err := ConnectToEnv()
	if err != nil {
		t.Fatalf("ConnectToEnv: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	if got := os.Getenv("WAYLAND_SOCKET"); got != "" {
		t.Errorf("WAYLAND_SOCKET still set to %q, must be removed", got)
	}

	// The adopted descriptor must be close-on-exec.
	flags, err := unix.FcntlInt(uintptr(fds[0]), unix.F_GETFD, 0)
	if err != nil {
		t.Fatalf("fcntl: %v", err)
	}
	if flags&unix.FD_CLOEXEC == 0 {
		t.Error("adopted socket is not close-on-exec")
	}

	// And it really is connected to the server end.
	if _, err := b.SendRequest(Message{
		SenderID: b.DisplayID(),
		Opcode:   protocol.DisplaySync,
		Args:     []Arg{NewIDArg(b.NullID())},
	}, &recordingData{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	req := srv.readRequest(map[uint32]*protocol.Interface{1: protocol.Display})
	if req.Opcode != protocol.DisplaySync {
		t.Errorf("server saw opcode %d, want sync", req.Opcode)
	}
}

func TestConnectToEnvBadSocketValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "not-a-number"},
		{"closed descriptor", "1073741823"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WAYLAND_SOCKET", tt.value)
			if _, err := ConnectToEnv(); !errors.Is(err, ErrInvalidFD) {
				t.Errorf("ConnectToEnv = %v, want ErrInvalidFD", err)
			}
		})
	}
}

func TestConnectToEnvNoCompositor(t *testing.T) {
	t.Setenv("WAYLAND_SOCKET", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("XDG_RUNTIME_DIR", "")

	if _, err := ConnectToEnv(); !errors.Is(err, ErrNoCompositor) {
		t.Errorf("ConnectToEnv = %v, want ErrNoCompositor", err)
	}
}

func TestConnectToEnvDialFailure(t *testing.T) {
	t.Setenv("WAYLAND_SOCKET", "")
	t.Setenv("WAYLAND_DISPLAY", "wayland-does-not-exist")
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	if _, err := ConnectToEnv(); !errors.Is(err, ErrNoCompositor) {
		t.Errorf("ConnectToEnv = %v, want ErrNoCompositor", err)
	}
}

func TestRoundtrip(t *testing.T) {
	b, srv := newTestBackend(t)

	// Answer the sync request from a goroutine, the way a compositor
	// would.
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := srv.readRequest(map[uint32]*protocol.Interface{1: protocol.Display})
		srv.sendEvent(req.Args[0].Uint, protocol.CallbackEventDone,
			protocol.Callback.Events[protocol.CallbackEventDone].Signature, wire.UintArg(1))
	}()

	if _, err := b.Roundtrip(); err != nil {
		t.Fatalf("Roundtrip: %v", err)
	}
	<-done
}

func TestBlockingDispatch(t *testing.T) {
	b, srv := newTestBackend(t)

	cb, err := b.SendRequest(Message{
		SenderID: b.DisplayID(),
		Opcode:   protocol.DisplaySync,
		Args:     []Arg{NewIDArg(b.NullID())},
	}, &recordingData{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	srv.sendEvent(cb.ProtocolID(), protocol.CallbackEventDone,
		protocol.Callback.Events[protocol.CallbackEventDone].Signature, wire.UintArg(9))

	n, err := b.BlockingDispatch()
	if err != nil {
		t.Fatalf("BlockingDispatch: %v", err)
	}
	if n != 1 {
		t.Errorf("BlockingDispatch = %d, want 1", n)
	}
}
