// engine_loop.go - Audio core: the render loop and its lifecycle state machine

package main

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// Core lifecycle states
const (
	CORE_INIT = iota
	CORE_RUNNING
	CORE_FAULT
)

const (
	POOL_GRACE = 250 * time.Millisecond // Pool exhaustion beyond this latches a fault
)

// AudioCore owns the synthesis graph and runs the render loop on a dedicated
// OS thread. It is the only goroutine that ever touches the SynthEngine after
// Start; the control domain reaches it exclusively through the bus.
//
// Lifecycle: Init -> Running -> (Fault). Fault latches: the loop keeps
// draining control messages and publishing silence so the output cadence and
// queue depths stay sane, but no synthesis happens until the process restarts.
type AudioCore struct {
	bus    *EngineBus
	engine SynthEngine

	state    atomic.Int32
	loadPct  atomic.Int32 // Render time as % of the block period
	faultMsg atomic.Value // string; first fault cause, for the monitor

	stop chan struct{}
	done chan struct{}

	// Drain scratch space; lives on the core so applyPending never allocates.
	critBuf [CRIT_QUEUE_CAP]ControlMessage
	normBuf [DRAIN_CAP]ControlMessage
}

func NewAudioCore(bus *EngineBus, engine SynthEngine) *AudioCore {
	core := &AudioCore{
		bus:    bus,
		engine: engine,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	core.faultMsg.Store("")
	return core
}

func (c *AudioCore) State() int      { return int(c.state.Load()) }
func (c *AudioCore) LoadPct() int    { return int(c.loadPct.Load()) }
func (c *AudioCore) FaultMsg() string { return c.faultMsg.Load().(string) }

// fault latches the fault state with its first cause.
func (c *AudioCore) fault(cause string) {
	if c.state.CompareAndSwap(CORE_RUNNING, CORE_FAULT) {
		c.faultMsg.Store(cause)
	}
}

// Stop asks the loop to exit and waits for it.
func (c *AudioCore) Stop() {
	close(c.stop)
	<-c.done
}

// Run executes the render loop until Stop. Call it on its own goroutine; it
// pins itself to an OS thread so the scheduler cannot migrate the hot loop.
func (c *AudioCore) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	c.state.Store(CORE_RUNNING)

	blockPeriod := float64(BLOCK_FRAMES) / float64(SAMPLE_RATE) * float64(time.Second)
	var pending *AudioBlock // Rendered but unpublished; reused next cycle

	for {
		select {
		case <-c.stop:
			if pending != nil {
				c.bus.ReclaimBlock(pending)
			}
			return
		default:
		}

		c.applyPending()

		blk := pending
		pending = nil
		if blk == nil {
			var ok bool
			blk, ok = c.bus.AcquireBlock(POOL_GRACE)
			if !ok {
				// Downstream stopped reclaiming buffers. Latch the fault and
				// keep draining messages so producers never see a stuck bus.
				c.fault("audio block pool exhausted")
				continue
			}
		}

		start := time.Now()
		c.renderBlock(blk)
		elapsed := time.Since(start)
		c.loadPct.Store(int32(float64(elapsed) / blockPeriod * 100))

		if !c.bus.PublishBlock(blk) {
			// Ready queue full: keep the block and overwrite it next cycle.
			// The consumer missed this block entirely; losing the oldest
			// unrendered audio beats stalling the loop.
			pending = blk
			time.Sleep(time.Duration(blockPeriod) / 4)
		}
	}
}

// applyPending applies queued control messages before every render, so a
// block never observes a half-applied batch. The critical queue drains
// completely and the normal queue up to DRAIN_CAP; both batches are then
// merged back into arrival order by sequence number, which keeps a
// NoteOn/NoteOff pair landing in one batch causally ordered even though they
// travelled on different queues. Coalesced CC values apply last.
func (c *AudioCore) applyPending() {
	nc := 0
	for nc < len(c.critBuf) {
		msg, ok := c.bus.RecvCritical()
		if !ok {
			break
		}
		c.critBuf[nc] = msg
		nc++
	}
	nn := 0
	for nn < len(c.normBuf) {
		msg, ok := c.bus.RecvNormal()
		if !ok {
			break
		}
		c.normBuf[nn] = msg
		nn++
	}

	// Each queue is FIFO in seq, so a two-way merge restores global order.
	i, j := 0, 0
	for i < nc || j < nn {
		if j >= nn || (i < nc && c.critBuf[i].seq < c.normBuf[j].seq) {
			c.apply(c.critBuf[i])
			i++
		} else {
			c.apply(c.normBuf[j])
			j++
		}
	}

	c.bus.DrainCoalesced(func(cc, value uint8) {
		c.apply(CCMessage(cc, value))
	})
}

// apply hands one message to the engine, converting a panic into a latched
// fault instead of tearing down the process.
func (c *AudioCore) apply(msg ControlMessage) {
	if c.state.Load() == CORE_FAULT {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.fault(fmt.Sprintf("apply panic: %v", r))
		}
	}()
	c.engine.Apply(msg)
}

// renderBlock fills blk, or silence when faulted.
func (c *AudioCore) renderBlock(blk *AudioBlock) {
	if c.state.Load() == CORE_FAULT {
		clear(blk.Frames[:])
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.fault(fmt.Sprintf("render panic: %v", r))
			clear(blk.Frames[:])
		}
	}()
	c.engine.Render(blk)
}
