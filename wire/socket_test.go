//go:build linux

package wire

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"github.com/gogpu/wayland/protocol"
)

// socketPair returns two connected BufferedSockets, closed with the
// test.
func socketPair(t *testing.T) (*BufferedSocket, *BufferedSocket) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	a := NewBufferedSocket(os.NewFile(uintptr(fds[0]), "client"))
	b := NewBufferedSocket(os.NewFile(uintptr(fds[1]), "server"))
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func fixedSig(sig []protocol.ArgType) SigLookup {
	return func(uint32, uint16) ([]protocol.ArgType, bool) {
		return sig, true
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	client, server := socketPair(t)

	sig := []protocol.ArgType{
		{Kind: protocol.Uint},
		{Kind: protocol.String},
		{Kind: protocol.Int},
	}
	msg := &Message{
		SenderID: 3,
		Opcode:   1,
		Args:     []Arg{UintArg(77), StrArg("wl_output"), IntArg(-9)},
	}

	if err := client.WriteMessage(msg, sig); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !client.PendingOut() {
		t.Fatal("PendingOut() = false after WriteMessage")
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := server.FillIncomingBuffers(); err != nil {
		t.Fatalf("FillIncomingBuffers: %v", err)
	}
	got, err := server.ReadOneMessage(fixedSig(sig))
	if err != nil {
		t.Fatalf("ReadOneMessage: %v", err)
	}

	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMissingData(t *testing.T) {
	_, server := socketPair(t)

	if _, err := server.ReadOneMessage(fixedSig(nil)); !errors.Is(err, ErrMissingData) {
		t.Errorf("ReadOneMessage on empty buffer = %v, want ErrMissingData", err)
	}

	// The socket is empty too, so refilling reports EAGAIN.
	if err := server.FillIncomingBuffers(); !errors.Is(err, unix.EAGAIN) {
		t.Errorf("FillIncomingBuffers on empty socket = %v, want EAGAIN", err)
	}
}

func TestReadPartialMessage(t *testing.T) {
	client, server := socketPair(t)

	sig := []protocol.ArgType{{Kind: protocol.String}}
	msg := &Message{SenderID: 2, Opcode: 0, Args: []Arg{StrArg("partial-delivery")}}
	if err := client.WriteMessage(msg, sig); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	// Nothing has been flushed yet, so the reader must report missing
	// data without consuming anything, and succeed after the flush.
	if _, err := server.ReadOneMessage(fixedSig(sig)); !errors.Is(err, ErrMissingData) {
		t.Fatal("expected ErrMissingData before any bytes arrived")
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := server.FillIncomingBuffers(); err != nil {
		t.Fatalf("FillIncomingBuffers: %v", err)
	}

	got, err := server.ReadOneMessage(fixedSig(sig))
	if err != nil {
		t.Fatalf("ReadOneMessage: %v", err)
	}
	if got.Args[0].Str != "partial-delivery" {
		t.Errorf("Str = %q, want partial-delivery", got.Args[0].Str)
	}
}

func TestReadUnknownSignatureIsMalformed(t *testing.T) {
	client, server := socketPair(t)

	msg := &Message{SenderID: 99, Opcode: 4}
	if err := client.WriteMessage(msg, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := server.FillIncomingBuffers(); err != nil {
		t.Fatalf("FillIncomingBuffers: %v", err)
	}

	lookup := func(uint32, uint16) ([]protocol.ArgType, bool) { return nil, false }
	if _, err := server.ReadOneMessage(lookup); !errors.Is(err, ErrMalformed) {
		t.Errorf("ReadOneMessage = %v, want ErrMalformed", err)
	}
}

func TestFDPassing(t *testing.T) {
	client, server := socketPair(t)

	// Pass the write end of a pipe and prove it works on the far side.
	var pipeFds [2]int
	if err := unix.Pipe(pipeFds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	pipeRead := pipeFds[0]
	pipeWrite := pipeFds[1]
	defer unix.Close(pipeRead)

	sig := []protocol.ArgType{{Kind: protocol.Uint}, {Kind: protocol.Fd}}
	msg := &Message{
		SenderID: 5,
		Opcode:   2,
		Args:     []Arg{UintArg(4096), FdArg(pipeWrite)},
	}
	if err := client.WriteMessage(msg, sig); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Keep the original open until the copy is received, so the kernel
	// cannot hand its number to the new descriptor.
	defer unix.Close(pipeWrite)

	if err := server.FillIncomingBuffers(); err != nil {
		t.Fatalf("FillIncomingBuffers: %v", err)
	}
	got, err := server.ReadOneMessage(fixedSig(sig))
	if err != nil {
		t.Fatalf("ReadOneMessage: %v", err)
	}

	receivedFd := got.Args[1].Fd
	if receivedFd == pipeWrite {
		t.Fatal("received fd should be a fresh descriptor")
	}
	defer unix.Close(receivedFd)

	payload := []byte("through the pipe")
	if _, err := unix.Write(receivedFd, payload); err != nil {
		t.Fatalf("write to received fd: %v", err)
	}

	buf := make([]byte, 64)
	n, err := unix.Read(pipeRead, buf)
	if err != nil {
		t.Fatalf("read from pipe: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Errorf("pipe carried %q, want %q", buf[:n], payload)
	}
}

func TestReadConsumesExactlyOneMessage(t *testing.T) {
	client, server := socketPair(t)

	sig := []protocol.ArgType{{Kind: protocol.Uint}}
	for i := uint32(0); i < 3; i++ {
		msg := &Message{SenderID: 1, Opcode: 0, Args: []Arg{UintArg(i)}}
		if err := client.WriteMessage(msg, sig); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := server.FillIncomingBuffers(); err != nil {
		t.Fatalf("FillIncomingBuffers: %v", err)
	}

	for i := uint32(0); i < 3; i++ {
		got, err := server.ReadOneMessage(fixedSig(sig))
		if err != nil {
			t.Fatalf("ReadOneMessage %d: %v", i, err)
		}
		if got.Args[0].Uint != i {
			t.Errorf("message %d carried %d", i, got.Args[0].Uint)
		}
	}

	if _, err := server.ReadOneMessage(fixedSig(sig)); !errors.Is(err, ErrMissingData) {
		t.Errorf("fourth read = %v, want ErrMissingData", err)
	}
}

func TestPeerHangupReportsEPIPE(t *testing.T) {
	client, server := socketPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := server.FillIncomingBuffers(); !errors.Is(err, unix.EPIPE) {
		t.Errorf("FillIncomingBuffers after hangup = %v, want EPIPE", err)
	}
}
