// Package pending implements the client-side correlation structure that
// matches Response messages with the call that is awaiting them.
package pending

import (
	"fmt"
	"sync"

	"github.com/msgpack-rpc/go-msgpack-rpc/message"
)

// ErrClosed is the outcome delivered to every outstanding slot when the
// owning client is closed or the transport fails.
var ErrClosed = fmt.Errorf("connection closed")

// Delivery is what a Slot eventually receives: either a Response outcome
// from the peer, or a transport-failure error.
type Delivery struct {
	Outcome message.Outcome
	Err     error
}

// Slot is a one-shot delivery endpoint for a single outstanding request.
type Slot struct {
	ch chan Delivery
}

// Wait blocks until the response arrives or the connection fails.
func (s *Slot) Wait() Delivery {
	return <-s.ch
}

// Chan exposes the underlying channel for select-based waits.
func (s *Slot) Chan() <-chan Delivery {
	return s.ch
}

// Table is the id -> Slot map owned by a client. It is safe for concurrent
// use. No two live slots ever share an id, and resolve/failAll each deliver
// to a given slot exactly once.
type Table struct {
	mu     sync.Mutex
	nextID uint32
	slots  map[uint32]*Slot
	closed bool
	onWarn func(format string, args ...any)
}

// New creates an empty pending table. onWarn, if non-nil, is called when a
// Response arrives for an id with no outstanding slot (a server responding
// more than once, or after the client gave up).
func New(onWarn func(format string, args ...any)) *Table {
	if onWarn == nil {
		onWarn = func(string, ...any) {}
	}
	return &Table{
		slots:  make(map[uint32]*Slot),
		onWarn: onWarn,
	}
}

// Allocate reserves a fresh id and returns a handle the caller awaits the
// outcome on. It fails once the table has been closed.
func (t *Table) Allocate() (uint32, *Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, nil, ErrClosed
	}

	id := t.nextID
	for {
		if _, taken := t.slots[id]; !taken {
			break
		}
		id++
	}
	t.nextID = id + 1

	slot := &Slot{ch: make(chan Delivery, 1)}
	t.slots[id] = slot
	return id, slot, nil
}

// Resolve delivers an outcome to the slot for id. If no such slot exists
// (the peer responded twice, or too late), the response is dropped and a
// warning is surfaced rather than the process failing.
func (t *Table) Resolve(id uint32, outcome message.Outcome) {
	t.mu.Lock()
	slot, ok := t.slots[id]
	if ok {
		delete(t.slots, id)
	}
	t.mu.Unlock()

	if !ok {
		t.onWarn("response for unknown or already-resolved request id %d dropped", id)
		return
	}
	slot.ch <- Delivery{Outcome: outcome}
}

// FailAll resolves every outstanding slot with err and marks the table
// closed: subsequent Allocate calls fail until a new Table is created.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[uint32]*Slot)
	t.closed = true
	t.mu.Unlock()

	for _, slot := range slots {
		slot.ch <- Delivery{Err: err}
	}
}

// Len reports the number of outstanding slots, for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
