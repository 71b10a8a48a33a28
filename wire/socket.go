//go:build linux

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/gogpu/wayland/protocol"
)

// Default per-direction buffer size, matching libwayland's connection
// buffers.
const bufferSize = 4096

// Maximum number of file descriptors attached to one flush.
const maxFdsOut = 28

// Parse outcomes of ReadOneMessage that are not hard errors: the caller
// refills the incoming buffers and retries.
var (
	ErrMissingData = errors.New("wayland: not enough data to parse a message")
	ErrMissingFD   = errors.New("wayland: not enough file descriptors to parse a message")
)

// ErrMalformed reports an incoming byte stream that cannot be a valid
// message. The connection is not recoverable past this point.
var ErrMalformed = errors.New("wayland: malformed message")

// SigLookup resolves the signature of an incoming message from its
// sender id and opcode. Returning false marks the message unparseable.
type SigLookup func(senderID uint32, opcode uint16) ([]protocol.ArgType, bool)

// BufferedSocket is a unix stream socket carrying Wayland messages,
// with buffering in both directions and SCM_RIGHTS descriptor queues.
//
// It is not safe for concurrent use; the backend serialises access.
type BufferedSocket struct {
	file *os.File
	fd   int

	out    []byte
	outFds []int

	in      []byte
	inFds   []int
	readBuf []byte

	enc Encoder
}

// NewBufferedSocket wraps an established unix stream connection. The
// socket takes ownership of file.
func NewBufferedSocket(file *os.File) *BufferedSocket {
	return &BufferedSocket{
		file:    file,
		fd:      int(file.Fd()),
		out:     make([]byte, 0, bufferSize),
		readBuf: make([]byte, bufferSize),
	}
}

// Fd returns the underlying descriptor for external polling.
func (s *BufferedSocket) Fd() int {
	return s.fd
}

// WriteMessage encodes msg against sig into the outgoing buffer and
// queues its file descriptors. The buffer is flushed first if the
// message would not fit.
func (s *BufferedSocket) WriteMessage(msg *Message, sig []protocol.ArgType) error {
	if len(msg.Args) != len(sig) {
		return fmt.Errorf("wayland: message %d@%d has %d args, signature wants %d",
			msg.SenderID, msg.Opcode, len(msg.Args), len(sig))
	}

	s.enc.Reset()
	var fds []int
	for i, typ := range sig {
		arg := msg.Args[i]
		if arg.Kind != typ.Kind {
			return fmt.Errorf("wayland: message %d@%d arg %d is %s, signature wants %s",
				msg.SenderID, msg.Opcode, i, arg.Kind, typ.Kind)
		}
		if typ.Kind == protocol.Fd {
			fds = append(fds, arg.Fd)
			continue
		}
		s.enc.PutArg(arg)
	}

	totalSize := headerSize + len(s.enc.Bytes())
	if totalSize > maxMessageSize {
		return ErrMessageTooLarge
	}

	// Make room first. A kernel-side EAGAIN is not an error here: the
	// message simply stays buffered for a later flush.
	if len(s.out)+totalSize > cap(s.out) || len(s.outFds)+len(fds) > maxFdsOut {
		if err := s.Flush(); err != nil && !errors.Is(err, unix.EAGAIN) {
			return err
		}
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], msg.SenderID)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(totalSize)<<16|uint32(msg.Opcode))
	s.out = append(s.out, hdr[:]...)
	s.out = append(s.out, s.enc.Bytes()...)
	s.outFds = append(s.outFds, fds...)
	return nil
}

// Flush writes the outgoing buffer to the socket. Queued descriptors
// ride the first chunk as a single SCM_RIGHTS control message. An
// EAGAIN from the kernel surfaces unchanged, with the unwritten bytes
// retained for a later flush.
func (s *BufferedSocket) Flush() error {
	for len(s.out) > 0 {
		var oob []byte
		if len(s.outFds) > 0 {
			oob = unix.UnixRights(s.outFds...)
		}

		n, err := unix.SendmsgN(s.fd, s.out, oob, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("sendmsg", err)
		}

		s.outFds = s.outFds[:0]
		s.out = s.out[:copy(s.out, s.out[n:])]
	}
	return nil
}

// FillIncomingBuffers performs one non-blocking read into the incoming
// byte and descriptor buffers. A zero-length read means the peer hung
// up and is reported as EPIPE.
func (s *BufferedSocket) FillIncomingBuffers() error {
	oob := make([]byte, unix.CmsgSpace(maxFdsOut*4))

	var n, oobn int
	var err error
	for {
		n, oobn, _, _, err = unix.Recvmsg(s.fd, s.readBuf, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return os.NewSyscallError("recvmsg", err)
	}
	if n == 0 {
		return os.NewSyscallError("recvmsg", unix.EPIPE)
	}

	s.in = append(s.in, s.readBuf[:n]...)

	if oobn > 0 {
		fds, err := parseFileDescriptors(oob[:oobn])
		if err != nil {
			return err
		}
		s.inFds = append(s.inFds, fds...)
	}
	return nil
}

// ReadOneMessage parses exactly one message from the incoming buffers.
// It returns ErrMissingData or ErrMissingFD when the buffers do not yet
// hold a full message (nothing is consumed), or an error wrapping
// ErrMalformed when the stream cannot be valid.
func (s *BufferedSocket) ReadOneMessage(lookup SigLookup) (*Message, error) {
	if len(s.in) < headerSize {
		return nil, ErrMissingData
	}

	senderID := binary.LittleEndian.Uint32(s.in[0:])
	sizeAndOpcode := binary.LittleEndian.Uint32(s.in[4:])
	size := int(sizeAndOpcode >> 16)
	opcode := uint16(sizeAndOpcode & 0xFFFF)

	if size < headerSize {
		return nil, fmt.Errorf("%w: declared size %d below header size", ErrMalformed, size)
	}
	if len(s.in) < size {
		return nil, ErrMissingData
	}

	sig, ok := lookup(senderID, opcode)
	if !ok {
		return nil, fmt.Errorf("%w: no signature for %d@%d", ErrMalformed, senderID, opcode)
	}

	fdCount := 0
	for _, typ := range sig {
		if typ.Kind == protocol.Fd {
			fdCount++
		}
	}
	if fdCount > len(s.inFds) {
		return nil, ErrMissingFD
	}

	dec := NewDecoder(s.in[headerSize:size], s.inFds)
	args := make([]Arg, 0, len(sig))
	for _, typ := range sig {
		arg, err := dec.Arg(typ)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		args = append(args, arg)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in %d@%d", ErrMalformed, dec.Remaining(), senderID, opcode)
	}

	s.in = s.in[:copy(s.in, s.in[size:])]
	s.inFds = s.inFds[:copy(s.inFds, s.inFds[dec.FDsConsumed():])]

	return &Message{SenderID: senderID, Opcode: opcode, Args: args}, nil
}

// PendingOut reports whether unflushed outgoing bytes remain.
func (s *BufferedSocket) PendingOut() bool {
	return len(s.out) > 0 || len(s.outFds) > 0
}

// Close closes the socket and every file descriptor still queued in
// either direction.
func (s *BufferedSocket) Close() error {
	err := s.file.Close()
	for _, fd := range s.inFds {
		err = multierr.Append(err, unix.Close(fd))
	}
	s.inFds = nil
	for _, fd := range s.outFds {
		err = multierr.Append(err, unix.Close(fd))
	}
	s.outFds = nil
	return err
}

// parseFileDescriptors extracts descriptors from SCM_RIGHTS control
// messages.
func parseFileDescriptors(oob []byte) ([]int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("wayland: parse control message failed: %w", err)
	}

	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		gotFDs, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("wayland: parse unix rights failed: %w", err)
		}
		fds = append(fds, gotFDs...)
	}

	return fds, nil
}
