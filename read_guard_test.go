//go:build linux

package wayland

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/wayland/protocol"
	"github.com/gogpu/wayland/wire"
)

// queueSyncEvents binds a callback per event so the server can deliver
// count dispatchable events.
func queueSyncEvents(t *testing.T, b *Backend, srv *fakeServer, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		cb, err := b.SendRequest(Message{
			SenderID: b.DisplayID(),
			Opcode:   protocol.DisplaySync,
			Args:     []Arg{NewIDArg(b.NullID())},
		}, &recordingData{})
		if err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
		srv.sendEvent(cb.ProtocolID(), protocol.CallbackEventDone,
			protocol.Callback.Events[protocol.CallbackEventDone].Signature, wire.UintArg(uint32(i)))
	}
}

func TestSingleReaderDrains(t *testing.T) {
	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, 2)

	guard := b.PrepareRead()
	n, err := guard.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 {
		t.Errorf("Read = %d, want 2", n)
	}
}

// TestTwoReadersOneDrains: the first thread to consume its guard sleeps,
// the last one drains, and the dispatched total is counted once.
func TestTwoReadersOneDrains(t *testing.T) {
	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, 3)

	guardA := b.PrepareRead()
	guardB := b.PrepareRead()

	var fromA atomic.Int64
	started := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		close(started)
		n, err := guardA.Read() // count is still 1, so A sleeps
		fromA.Store(int64(n))
		return err
	})

	<-started
	// Give A a moment to reach the condition variable.
	time.Sleep(20 * time.Millisecond)

	nB, err := guardB.Read() // count reaches 0, B drains
	if err != nil {
		t.Fatalf("B.Read: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("A.Read: %v", err)
	}

	if total := int(fromA.Load()) + nB; total != 3 {
		t.Errorf("dispatched total = %d (A=%d, B=%d), want 3", total, fromA.Load(), nB)
	}
	if fromA.Load() != 0 {
		t.Errorf("A dispatched %d, want 0 (B was the drainer)", fromA.Load())
	}
}

// TestManyReaders: under N concurrent readers exactly one drains per
// round and nothing is double-counted.
func TestManyReaders(t *testing.T) {
	const readers = 8
	const events = 5

	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, events)

	guards := make([]*ReadEventsGuard, readers)
	for i := range guards {
		guards[i] = b.PrepareRead()
	}

	var total atomic.Int64
	var drained atomic.Int64
	var g errgroup.Group
	for _, guard := range guards {
		guard := guard
		g.Go(func() error {
			n, err := guard.Read()
			if err != nil && !isWouldBlock(err) {
				return err
			}
			total.Add(int64(n))
			if n > 0 {
				drained.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("reader failed: %v", err)
	}

	if total.Load() != events {
		t.Errorf("dispatched total = %d, want %d", total.Load(), events)
	}
	if drained.Load() != 1 {
		t.Errorf("%d readers dispatched events, want exactly 1", drained.Load())
	}
}

// TestCancelWakesSleepers: dropping the last guard closes the round so
// sleeping readers return instead of hanging.
func TestCancelWakesSleepers(t *testing.T) {
	b, _ := newTestBackend(t)

	guardA := b.PrepareRead()
	guardB := b.PrepareRead()

	done := make(chan struct{})
	var n int
	var err error
	go func() {
		defer close(done)
		n, err = guardA.Read()
	}()

	time.Sleep(20 * time.Millisecond)
	guardB.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleeping reader was not woken by Cancel")
	}
	if n != 0 || err != nil {
		t.Errorf("A.Read after cancel = %d, %v; want 0, nil", n, err)
	}
}

func TestCancelAfterReadIsNoOp(t *testing.T) {
	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, 1)

	guard := b.PrepareRead()
	if _, err := guard.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	guard.Cancel() // must not unbalance the barrier

	// The barrier still works for the next round.
	queueSyncEvents(t, b, srv, 1)
	next := b.PrepareRead()
	if n, err := next.Read(); err != nil || n != 1 {
		t.Errorf("next round Read = %d, %v; want 1, nil", n, err)
	}
}

func TestReadTwicePanics(t *testing.T) {
	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, 1)

	guard := b.PrepareRead()
	if _, err := guard.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("second Read should panic")
		}
	}()
	_, _ = guard.Read()
}

// TestSleeperSeesLatchedError: a reader that slept through the round
// reports the error the drainer latched.
func TestSleeperSeesLatchedError(t *testing.T) {
	b, srv := newTestBackend(t)

	// A wl_display.error event from the compositor latches a protocol
	// error.
	srv.sendEvent(1, protocol.DisplayEventError,
		protocol.Display.Events[protocol.DisplayEventError].Signature,
		wire.ObjectArg(9), wire.UintArg(2), wire.StrArg("broken"))

	guardA := b.PrepareRead()
	guardB := b.PrepareRead()

	var wg sync.WaitGroup
	wg.Add(1)
	var sleeperErr error
	go func() {
		defer wg.Done()
		_, sleeperErr = guardA.Read()
	}()

	time.Sleep(20 * time.Millisecond)
	_, drainErr := guardB.Read()
	wg.Wait()

	var perr *ProtocolError
	if !errors.As(drainErr, &perr) {
		t.Fatalf("drainer error = %v, want *ProtocolError", drainErr)
	}
	if !errors.Is(sleeperErr, drainErr) {
		t.Errorf("sleeper error = %v, want the latched %v", sleeperErr, drainErr)
	}
}

// TestConcurrentSendersAndReader: senders on other goroutines are
// serialised with the drainer by the backend lock.
func TestConcurrentSendersAndReader(t *testing.T) {
	b, srv := newTestBackend(t)
	queueSyncEvents(t, b, srv, 3)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 25; j++ {
				_, err := b.SendRequest(Message{
					SenderID: b.DisplayID(),
					Opcode:   protocol.DisplaySync,
					Args:     []Arg{NewIDArg(b.NullID())},
				}, &recordingData{})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		guard := b.PrepareRead()
		_, err := guard.Read()
		if isWouldBlock(err) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent use failed: %v", err)
	}
	if err := b.LastError(); err != nil {
		t.Fatalf("LastError = %v, want nil", err)
	}
}
