// engine_bus_test.go - Queue ordering, drop policy and pool accounting

package main

import (
	"sync"
	"testing"
)

func TestEngineBus_FIFOExactlyOnce(t *testing.T) {
	bus := NewEngineBus()

	for i := 0; i < 32; i++ {
		if !bus.Send(NoteOnMessage(uint8(i), 100)) {
			t.Fatalf("send %d rejected with queue under capacity", i)
		}
	}

	for i := 0; i < 32; i++ {
		msg, ok := bus.Recv()
		if !ok {
			t.Fatalf("message %d missing", i)
		}
		if msg.Note != uint8(i) {
			t.Fatalf("message %d arrived out of order: note %d", i, msg.Note)
		}
	}
	if _, ok := bus.Recv(); ok {
		t.Fatal("duplicate delivery after queue drained")
	}
}

func TestEngineBus_NonCriticalDroppedAtCapacity(t *testing.T) {
	bus := NewEngineBus()

	for i := 0; i < CTRL_QUEUE_CAP; i++ {
		bus.Send(NoteOnMessage(60, 100))
	}
	if bus.Send(NoteOnMessage(61, 100)) {
		t.Fatal("note-on accepted past capacity")
	}
	if got := bus.Stats.Dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestEngineBus_CriticalNeverDropped(t *testing.T) {
	bus := NewEngineBus()

	// Saturate the normal queue first; criticals must still land.
	for i := 0; i < CTRL_QUEUE_CAP; i++ {
		bus.Send(NoteOnMessage(60, 100))
	}
	for i := 0; i < CRIT_QUEUE_CAP+10; i++ {
		if !bus.Send(NoteOffMessage(uint8(i % 128))) {
			t.Fatalf("note-off %d rejected", i)
		}
	}
	if got := bus.Stats.Preempted.Load(); got == 0 {
		t.Fatal("overflow beyond reserved capacity did not preempt")
	}

	// The newest criticals survive.
	n := 0
	for {
		if _, ok := bus.RecvCritical(); !ok {
			break
		}
		n++
	}
	if n != CRIT_QUEUE_CAP {
		t.Fatalf("critical queue held %d, want %d", n, CRIT_QUEUE_CAP)
	}
}

func TestEngineBus_CriticalAheadOfNormal(t *testing.T) {
	bus := NewEngineBus()
	bus.Send(NoteOnMessage(60, 100))
	bus.Send(NoteOffMessage(60))

	msg, ok := bus.Recv()
	if !ok || msg.Kind != MSG_NOTE_OFF {
		t.Fatalf("first recv = %v %v, want the critical note-off", msg.Kind, ok)
	}
}

func TestEngineBus_CCCoalescingLatestWins(t *testing.T) {
	bus := NewEngineBus()

	for i := 0; i < CTRL_QUEUE_CAP; i++ {
		bus.Send(NoteOnMessage(60, 100))
	}

	// A CC flood against a full queue coalesces instead of dropping.
	for v := uint8(0); v < 100; v++ {
		if !bus.Send(CCMessage(CC_FILTER_CUTOFF, v)) {
			t.Fatalf("cc value %d rejected", v)
		}
	}
	if got := bus.Stats.Coalesced.Load(); got != 100 {
		t.Fatalf("coalesced = %d, want 100", got)
	}

	var gotCC, gotVal uint8
	n := bus.DrainCoalesced(func(cc, value uint8) {
		gotCC, gotVal = cc, value
	})
	if n != 1 {
		t.Fatalf("drained %d cells, want 1", n)
	}
	if gotCC != CC_FILTER_CUTOFF || gotVal != 99 {
		t.Fatalf("coalesced cell = cc %d val %d, want cc %d val 99", gotCC, gotVal, CC_FILTER_CUTOFF)
	}

	if n := bus.DrainCoalesced(func(cc, value uint8) {}); n != 0 {
		t.Fatalf("second drain delivered %d cells, want 0", n)
	}
}

func TestEngineBus_BlockPoolRoundTrip(t *testing.T) {
	bus := NewEngineBus()

	seen := map[*AudioBlock]bool{}
	for i := 0; i < BLOCK_POOL; i++ {
		blk, ok := bus.AcquireBlock(0)
		if !ok {
			t.Fatalf("pool empty after %d acquires, want %d", i, BLOCK_POOL)
		}
		if seen[blk] {
			t.Fatal("same block handed out twice")
		}
		seen[blk] = true
		if !bus.PublishBlock(blk) {
			t.Fatalf("publish %d failed with ready queue under capacity", i)
		}
	}

	for i := 0; i < BLOCK_POOL; i++ {
		blk, ok := bus.NextBlock()
		if !ok {
			t.Fatalf("published block %d missing", i)
		}
		bus.ReclaimBlock(blk)
	}

	if _, ok := bus.AcquireBlock(0); !ok {
		t.Fatal("pool still empty after full reclaim")
	}
	if got := bus.Stats.Reclaimed.Load(); got != BLOCK_POOL {
		t.Fatalf("reclaimed = %d, want %d", got, BLOCK_POOL)
	}
}

// TestEngineBus_ConcurrentProducerConsumer has no assertions beyond liveness;
// the race detector is the oracle. Run with -race.
func TestEngineBus_ConcurrentProducerConsumer(t *testing.T) {
	bus := NewEngineBus()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		i := uint8(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			bus.Send(NoteOnMessage(i%128, 100))
			bus.Send(NoteOffMessage(i % 128))
			bus.Send(CCMessage(CC_FILTER_CUTOFF, i%128))
			i++
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for {
				if _, ok := bus.Recv(); !ok {
					break
				}
			}
			bus.DrainCoalesced(func(cc, value uint8) {})
			if blk, ok := bus.AcquireBlock(0); ok {
				if bus.PublishBlock(blk) {
					if got, ok := bus.NextBlock(); ok {
						bus.ReclaimBlock(got)
					}
				} else {
					bus.ReclaimBlock(blk)
				}
			}
		}
	}()

	for i := 0; i < 100000; i++ {
		bus.Stats.Sent.Load()
	}
	close(stop)
	wg.Wait()
}
