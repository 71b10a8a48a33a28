//go:build linux

package wayland

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/op/go-logging"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

var log = logging.MustGetLogger("wayland")

// Backend is a pure Go client backend for one compositor connection.
// It owns the socket and the object table, and serialises every send
// and dispatch through one lock. All methods are safe for concurrent
// use from multiple goroutines.
type Backend struct {
	mu       sync.Mutex
	readCond *sync.Cond

	// preparedReads and readSerial implement the reader election of
	// PrepareRead/Read: the last prepared reader to call Read drains
	// the socket, bumps the serial and wakes the rest.
	preparedReads int
	readSerial    uint64

	handle Handle
}

// Handle is the locked view of a Backend. Event callbacks receive one
// and may drive the connection through it; it must not escape the
// callback. Outside callbacks, use the methods on Backend, which take
// the lock and delegate here.
type Handle struct {
	socket     *wire.BufferedSocket
	objects    objectMap
	lastError  error
	lastSerial uint32

	// pendingPlaceholder is the single-slot handoff between
	// PlaceholderID and the next object-creating SendRequest.
	pendingPlaceholder *PlaceholderSpec

	debug bool
}

// PlaceholderSpec pins the interface and version of the object a
// generic constructor creates.
type PlaceholderSpec struct {
	Interface *protocol.Interface
	Version   uint32
}

// Connect initialises a backend on an established compositor
// connection. The backend takes ownership of conn. Wire tracing is
// enabled when WAYLAND_DEBUG is "1" or "client" at connect time.
func Connect(conn *net.UnixConn) (*Backend, error) {
	file, err := conn.File()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wayland: failed to get socket file: %w", err)
	}
	_ = conn.Close()
	return newBackend(file), nil
}

func newBackend(file *os.File) *Backend {
	b := &Backend{}
	b.readCond = sync.NewCond(&b.mu)

	debug := os.Getenv("WAYLAND_DEBUG")

	b.handle = Handle{
		socket: wire.NewBufferedSocket(file),
		debug:  debug == "1" || debug == "client",
	}

	// wl_display is always object 1 and never leaves the table.
	err := b.handle.objects.insertAt(1, &object{
		iface:   protocol.Display,
		version: 1,
		serial:  0,
		data:    dumbObjectData{},
	})
	if err != nil {
		panic("wayland: fresh object map rejected the display record")
	}

	return b
}

// Close shuts the connection down and releases the socket and any
// still-queued incoming file descriptors.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.socket.Close()
}

// Flush drains pending outgoing bytes to the compositor. A full socket
// surfaces as an EAGAIN-wrapping error without killing the connection;
// any other failure latches.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.handle.noLastError(); err != nil {
		return err
	}
	if err := b.handle.socket.Flush(); err != nil {
		return b.handle.storeIfNotWouldBlock(err)
	}
	return nil
}

// LastError returns the sticky error that killed the connection, or nil.
func (b *Backend) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.lastError
}

// SendRequest locks the backend and sends a request; see
// Handle.SendRequest.
func (b *Backend) SendRequest(msg Message, data ObjectData) (ObjectID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.SendRequest(msg, data)
}

// DisplayID returns the id of the wl_display object.
func (b *Backend) DisplayID() ObjectID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.DisplayID()
}

// NullID returns the null object id.
func (b *Backend) NullID() ObjectID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.NullID()
}

// PlaceholderID stashes spec and returns a placeholder id; see
// Handle.PlaceholderID.
func (b *Backend) PlaceholderID(spec *PlaceholderSpec) ObjectID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.PlaceholderID(spec)
}

// Info returns the details of a live object; see Handle.Info.
func (b *Backend) Info(id ObjectID) (ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.Info(id)
}

// GetData returns the ObjectData of a live object; see Handle.GetData.
func (b *Backend) GetData(id ObjectID) (ObjectData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.GetData(id)
}

// SetData replaces the ObjectData of a live object; see Handle.SetData.
func (b *Backend) SetData(id ObjectID, data ObjectData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.SetData(id, data)
}

// DisplayID returns the id of the wl_display object.
func (h *Handle) DisplayID() ObjectID {
	return ObjectID{id: 1, serial: 0, iface: protocol.Display}
}

// NullID returns the null object id. It is always invalid and can be
// used as a placeholder for a protocol-inferred constructor.
func (h *Handle) NullID() ObjectID {
	return ObjectID{iface: protocol.Anonymous}
}

// PlaceholderID creates a placeholder id for object creation. The
// returned id must appear as the NewID argument of the next
// object-creating request, which consumes the spec. A spec is required
// when the interface and version cannot be inferred from the protocol
// (wl_registry.bind); when the protocol does pin them, a provided spec
// is checked against it and SendRequest panics on mismatch.
func (h *Handle) PlaceholderID(spec *PlaceholderSpec) ObjectID {
	h.pendingPlaceholder = spec
	iface := protocol.Anonymous
	if spec != nil {
		iface = spec.Interface
	}
	return ObjectID{iface: iface}
}

// Info returns the details of a live object. It fails with ErrInvalidID
// if the id is stale, mismatched, or already destroyed on the client
// side.
func (h *Handle) Info(id ObjectID) (ObjectInfo, error) {
	obj, err := h.getObject(id)
	if err != nil {
		return ObjectInfo{}, err
	}
	if obj.clientDestroyed {
		return ObjectInfo{}, ErrInvalidID
	}
	return ObjectInfo{ID: id.id, Interface: obj.iface, Version: obj.version}, nil
}

// GetData returns the ObjectData attached to a live object.
func (h *Handle) GetData(id ObjectID) (ObjectData, error) {
	obj, err := h.getObject(id)
	if err != nil {
		return nil, err
	}
	return obj.data, nil
}

// SetData replaces the ObjectData attached to a live object.
func (h *Handle) SetData(id ObjectID, data ObjectData) error {
	if err := h.noLastError(); err != nil {
		return err
	}
	obj, err := h.getObject(id)
	if err != nil {
		return err
	}
	obj.data = data
	return nil
}

// LastError returns the sticky error that killed the connection, or nil.
func (h *Handle) LastError() error {
	return h.lastError
}

// nextSerial returns the next generation serial. The counter wraps;
// serial equality after a wrap is treated as a match.
func (h *Handle) nextSerial() uint32 {
	h.lastSerial++
	return h.lastSerial
}

// getObject resolves id against the table, requiring the generation
// serial to match.
func (h *Handle) getObject(id ObjectID) (*object, error) {
	obj := h.objects.find(id.id)
	if obj == nil || obj.serial != id.serial {
		return nil, ErrInvalidID
	}
	return obj, nil
}

func (h *Handle) noLastError() error {
	return h.lastError
}

// storeError latches err as the connection's sticky error and returns
// it. The first error wins.
func (h *Handle) storeError(err error) error {
	log.Errorf("connection error: %v", err)
	if h.lastError == nil {
		h.lastError = err
	}
	return err
}

func (h *Handle) storeIfNotWouldBlock(err error) error {
	if isWouldBlock(err) {
		return err
	}
	return h.storeError(err)
}
