//go:build linux

package wayland

// ReadEventsGuard synchronises event reading across threads.
//
// When several goroutines may read from the socket, each must obtain a
// guard with PrepareRead before polling the connection fd, then consume
// it with Read. The last guard to be consumed elects its goroutine as
// the drainer: it runs the dispatch loop while every other goroutine
// sleeps, and wakes them when the round is over. Creating the guard
// before polling is what closes the window where one thread polls while
// another is already draining.
type ReadEventsGuard struct {
	backend *Backend
	done    bool
}

// PrepareRead registers the calling goroutine as a prospective reader
// and returns its guard. Always call it before polling the socket.
func (b *Backend) PrepareRead() *ReadEventsGuard {
	b.mu.Lock()
	b.preparedReads++
	b.mu.Unlock()
	return &ReadEventsGuard{backend: b}
}

// ConnectionFD returns the socket descriptor, for polling between
// PrepareRead and Read.
func (g *ReadEventsGuard) ConnectionFD() int {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle.socket.Fd()
}

// Read consumes the guard. If other prepared readers remain, the call
// sleeps until the elected drainer finishes the round and then returns
// 0; otherwise this goroutine drains the socket itself and returns the
// number of dispatched events (an empty socket surfaces the EAGAIN from
// the dispatch loop). A guard can be consumed once; a second Read or a
// Read after Cancel panics.
func (g *ReadEventsGuard) Read() (int, error) {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if g.done {
		panic("wayland: ReadEventsGuard consumed twice")
	}
	g.done = true
	b.preparedReads--

	if b.preparedReads == 0 {
		// Last one out drains the socket for everyone.
		n, err := b.dispatchEventsLocked()
		b.readSerial++
		b.readCond.Broadcast()
		return n, err
	}

	serial := b.readSerial
	for serial == b.readSerial {
		b.readCond.Wait()
	}
	if err := b.handle.noLastError(); err != nil {
		return 0, err
	}
	return 0, nil
}

// Cancel releases the guard without reading. If this was the last
// prepared reader, the round is closed so sleeping readers wake up.
// Cancel after Read (or a second Cancel) is a no-op.
func (g *ReadEventsGuard) Cancel() {
	b := g.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	if g.done {
		return
	}
	g.done = true
	b.preparedReads--

	if b.preparedReads == 0 {
		b.readSerial++
		b.readCond.Broadcast()
	}
}
