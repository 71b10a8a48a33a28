//go:build linux

package wayland

import (
	"errors"

	"github.com/gogpu/wayland/protocol"
)

// serverIDLimit splits the protocol id space: ids below it are
// client-allocated, ids at or above it belong to the server.
const serverIDLimit = 0xFF000000

// object is one live record of the object table.
type object struct {
	iface   *protocol.Interface
	version uint32
	serial  uint32
	data    ObjectData

	// clientDestroyed is set when a destructor request is sent or a
	// destructor event received; events addressed to the object are
	// swallowed from then on.
	clientDestroyed bool

	// serverDestroyed is set by wl_display.delete_id or a destructor
	// event. The record is dropped once both flags are set and the
	// server acknowledged the id.
	serverDestroyed bool
}

var errIDInUse = errors.New("wayland: object id already in use")

// objectMap indexes live objects by protocol id. Client ids start at 1
// and are allocated lowest-free-first; server ids start at
// serverIDLimit and are chosen by the compositor.
type objectMap struct {
	client []*object // id i+1 lives at index i
	server []*object // id serverIDLimit+i lives at index i
}

// find returns the record at id, or nil.
func (m *objectMap) find(id uint32) *object {
	if id == 0 {
		return nil
	}
	if id >= serverIDLimit {
		idx := int(id - serverIDLimit)
		if idx >= len(m.server) {
			return nil
		}
		return m.server[idx]
	}
	idx := int(id - 1)
	if idx >= len(m.client) {
		return nil
	}
	return m.client[idx]
}

// insertAt places obj at a caller-chosen id. It fails if the slot is
// occupied. Used for the initial wl_display record and for
// server-announced ids; stale client-destroyed occupants of a server id
// must be evicted by the caller first.
func (m *objectMap) insertAt(id uint32, obj *object) error {
	if id == 0 {
		return errIDInUse
	}
	if id >= serverIDLimit {
		idx := int(id - serverIDLimit)
		for idx >= len(m.server) {
			m.server = append(m.server, nil)
		}
		if m.server[idx] != nil {
			return errIDInUse
		}
		m.server[idx] = obj
		return nil
	}
	idx := int(id - 1)
	for idx >= len(m.client) {
		m.client = append(m.client, nil)
	}
	if m.client[idx] != nil {
		return errIDInUse
	}
	m.client[idx] = obj
	return nil
}

// clientInsertNew places obj at the lowest free client id and returns
// that id. Freed slots are reused before the range grows.
func (m *objectMap) clientInsertNew(obj *object) uint32 {
	for i, slot := range m.client {
		if slot == nil {
			m.client[i] = obj
			return uint32(i + 1)
		}
	}
	m.client = append(m.client, obj)
	return uint32(len(m.client))
}

// remove drops the record at id, if any.
func (m *objectMap) remove(id uint32) {
	if id == 0 {
		return
	}
	if id >= serverIDLimit {
		idx := int(id - serverIDLimit)
		if idx < len(m.server) {
			m.server[idx] = nil
		}
		return
	}
	idx := int(id - 1)
	if idx < len(m.client) {
		m.client[idx] = nil
	}
}
