// engine_bus.go - Bounded queues and buffer pool between the control and audio domains

package main

import (
	"sync/atomic"
	"time"
)

const (
	BLOCK_FRAMES  = 128                  // Stereo frames per audio block
	BLOCK_SAMPLES = BLOCK_FRAMES * 2     // Interleaved float32 samples per block
	BLOCK_POOL    = 8                    // Blocks in flight; absorbs output scheduling jitter

	CTRL_QUEUE_CAP = 64  // Normal control messages
	CRIT_QUEUE_CAP = 256 // Reserved capacity for never-drop classes
	DRAIN_CAP      = 64  // Max normal messages applied per audio cycle
)

const ccPending = 1 << 8 // Coalesce cell flag bit above the 7-bit value

// AudioBlock is one fixed-size chunk of interleaved stereo audio. Exactly one
// writer (the audio core) and one reader (the output packetizer) may hold a
// block at a time; ownership transfers on PublishBlock and comes back through
// ReclaimBlock.
type AudioBlock struct {
	Seq    uint64
	Frames [BLOCK_SAMPLES]float32
}

// BusStats counts queue traffic. All fields are atomics so the monitor can
// read them from another goroutine without coordination.
type BusStats struct {
	Sent      atomic.Uint64 // Control messages accepted
	Dropped   atomic.Uint64 // Non-critical, non-CC messages lost to a full queue
	Coalesced atomic.Uint64 // CC messages folded into the latest-wins table
	Preempted atomic.Uint64 // Critical messages displaced by newer criticals
	Published atomic.Uint64 // Audio blocks handed to the control side
	Reclaimed atomic.Uint64 // Audio blocks returned to the pool
}

// EngineBus is the only communication path between the two execution domains.
// The control side may block; the audio side only ever blocks on free-buffer
// availability, never on queue operations.
type EngineBus struct {
	ctrl  chan ControlMessage
	crit  chan ControlMessage
	ready chan *AudioBlock
	free  chan *AudioBlock

	// Latest-wins coalescing per CC number, used when the normal queue is
	// saturated. Bit 8 marks a pending value; the low 7 bits hold it.
	ccLatest [128]atomic.Uint32

	seq atomic.Uint64

	Stats BusStats
}

func NewEngineBus() *EngineBus {
	bus := &EngineBus{
		ctrl:  make(chan ControlMessage, CTRL_QUEUE_CAP),
		crit:  make(chan ControlMessage, CRIT_QUEUE_CAP),
		ready: make(chan *AudioBlock, BLOCK_POOL),
		free:  make(chan *AudioBlock, BLOCK_POOL),
	}
	for i := 0; i < BLOCK_POOL; i++ {
		bus.free <- &AudioBlock{}
	}
	return bus
}

// Send enqueues a control message without blocking. Critical messages use the
// reserved queue and are never dropped: if that queue is somehow full, the
// oldest critical is displaced so the newest always lands. Non-critical CC
// messages that find the normal queue full coalesce into a per-CC
// latest-wins cell instead of being lost. Everything else returns false when
// the queue is full.
func (bus *EngineBus) Send(msg ControlMessage) bool {
	msg.seq = bus.seq.Add(1)
	if msg.Critical() {
		for {
			select {
			case bus.crit <- msg:
				bus.Stats.Sent.Add(1)
				return true
			default:
			}
			select {
			case <-bus.crit:
				bus.Stats.Preempted.Add(1)
			default:
			}
		}
	}

	select {
	case bus.ctrl <- msg:
		bus.Stats.Sent.Add(1)
		return true
	default:
	}

	if msg.Kind == MSG_CC {
		bus.ccLatest[msg.CC&0x7F].Store(uint32(msg.Value&0x7F) | ccPending)
		bus.Stats.Coalesced.Add(1)
		return true
	}

	bus.Stats.Dropped.Add(1)
	return false
}

// Recv returns the next pending control message, critical queue first so a
// release is never stuck behind a parameter flood. Non-blocking; called every
// audio cycle.
func (bus *EngineBus) Recv() (ControlMessage, bool) {
	select {
	case msg := <-bus.crit:
		return msg, true
	default:
	}
	select {
	case msg := <-bus.ctrl:
		return msg, true
	default:
	}
	return ControlMessage{}, false
}

// RecvCritical drains only the reserved queue. The audio core uses this to
// empty all pending criticals before applying the capped normal drain.
func (bus *EngineBus) RecvCritical() (ControlMessage, bool) {
	select {
	case msg := <-bus.crit:
		return msg, true
	default:
		return ControlMessage{}, false
	}
}

// RecvNormal drains only the normal queue.
func (bus *EngineBus) RecvNormal() (ControlMessage, bool) {
	select {
	case msg := <-bus.ctrl:
		return msg, true
	default:
		return ControlMessage{}, false
	}
}

// DrainCoalesced hands every pending coalesced CC value to fn and clears the
// table. Returns the number of values delivered.
func (bus *EngineBus) DrainCoalesced(fn func(cc, value uint8)) int {
	n := 0
	for i := range bus.ccLatest {
		v := bus.ccLatest[i].Swap(0)
		if v&ccPending != 0 {
			fn(uint8(i), uint8(v&0x7F))
			n++
		}
	}
	return n
}

// AcquireBlock hands the audio core a free buffer to render into. It tries
// the fast path first and falls back to a bounded wait; returning false means
// the pool stayed exhausted for the whole grace period, which the core treats
// as a fault condition.
func (bus *EngineBus) AcquireBlock(grace time.Duration) (*AudioBlock, bool) {
	select {
	case blk := <-bus.free:
		return blk, true
	default:
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case blk := <-bus.free:
		return blk, true
	case <-timer.C:
		return nil, false
	}
}

// PublishBlock transfers a rendered block to the control side. Non-blocking:
// false means the ready queue is full and the caller keeps ownership (the
// core re-renders into the same block next cycle rather than leaking it).
func (bus *EngineBus) PublishBlock(blk *AudioBlock) bool {
	select {
	case bus.ready <- blk:
		bus.Stats.Published.Add(1)
		return true
	default:
		return false
	}
}

// NextBlock fetches the next rendered block for packetization, if any.
func (bus *EngineBus) NextBlock() (*AudioBlock, bool) {
	select {
	case blk := <-bus.ready:
		return blk, true
	default:
		return nil, false
	}
}

// WaitBlock blocks the control side until a rendered block arrives or the
// timeout passes. Used by offline capture, where there is no host pulling at
// a fixed cadence.
func (bus *EngineBus) WaitBlock(timeout time.Duration) (*AudioBlock, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case blk := <-bus.ready:
		return blk, true
	case <-timer.C:
		return nil, false
	}
}

// ReclaimBlock returns a drained block to the pool. Every published block
// must come back exactly once; a double return would overflow the free list
// and is discarded rather than corrupting the pool.
func (bus *EngineBus) ReclaimBlock(blk *AudioBlock) {
	select {
	case bus.free <- blk:
		bus.Stats.Reclaimed.Add(1)
	default:
	}
}
