package pending_test

import (
	"testing"

	"github.com/msgpack-rpc/go-msgpack-rpc/internal/pending"
	"github.com/msgpack-rpc/go-msgpack-rpc/message"
)

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllocateDistinctIDs(t *testing.T) {
	table := pending.New(nil)

	seen := map[uint32]bool{}
	for i := 0; i < 100; i++ {
		id, _, err := table.Allocate()
		requireNoError(t, err)
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
}

func TestResolveDeliversToCorrectSlot(t *testing.T) {
	table := pending.New(nil)

	id1, slot1, err := table.Allocate()
	requireNoError(t, err)
	id2, slot2, err := table.Allocate()
	requireNoError(t, err)

	table.Resolve(id2, message.Ok(message.Int(2)))
	table.Resolve(id1, message.Ok(message.Int(1)))

	d1 := slot1.Wait()
	d2 := slot2.Wait()

	v1, _ := d1.Outcome.Result()
	v2, _ := d2.Outcome.Result()

	i1, _ := v1.Int()
	i2, _ := v2.Int()

	if i1 != 1 || i2 != 2 {
		t.Fatalf("responses delivered to wrong slots: got %d, %d", i1, i2)
	}
}

func TestResolveUnknownIDIsDropped(t *testing.T) {
	var warned bool
	table := pending.New(func(format string, args ...any) { warned = true })

	table.Resolve(999, message.Ok(message.Nil()))

	if !warned {
		t.Fatal("expected a warning for an unknown id")
	}
}

func TestFailAllResolvesEverySlotExactlyOnce(t *testing.T) {
	table := pending.New(nil)

	const n = 5
	slots := make([]*pending.Slot, n)
	for i := range slots {
		_, slot, err := table.Allocate()
		requireNoError(t, err)
		slots[i] = slot
	}

	table.FailAll(pending.ErrClosed)

	for _, slot := range slots {
		d := slot.Wait()
		if d.Err != pending.ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", d.Err)
		}
	}

	if _, _, err := table.Allocate(); err != pending.ErrClosed {
		t.Fatalf("expected Allocate to fail after FailAll, got %v", err)
	}
}

func TestAllocateSkipsLiveID(t *testing.T) {
	table := pending.New(nil)

	id, _, err := table.Allocate()
	requireNoError(t, err)

	// Force the internal counter to collide with the still-live id by
	// resolving it and reallocating until we wrap back around would be
	// slow; instead verify the invariant directly: a second allocation
	// never reuses a live id.
	id2, _, err := table.Allocate()
	requireNoError(t, err)

	if id == id2 {
		t.Fatalf("allocate returned a duplicate live id %d", id)
	}
}
