// monitor.go - Interactive status console

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Monitor prints a once-per-second status line and handles single-key
// commands in raw mode. Everything it shows comes from atomics, so it never
// contends with the audio core.
type Monitor struct {
	core   *AudioCore
	bus    *EngineBus
	plane  *ControlPlane
	feeder *streamFeeder
	midi   *MidiControl // May be nil when running without a MIDI port

	quit chan struct{}
}

func NewMonitor(core *AudioCore, bus *EngineBus, plane *ControlPlane, feeder *streamFeeder, midi *MidiControl) *Monitor {
	return &Monitor{
		core:   core,
		bus:    bus,
		plane:  plane,
		feeder: feeder,
		midi:   midi,
		quit:   make(chan struct{}),
	}
}

var (
	stateRunning = color.New(color.FgGreen, color.Bold)
	stateFault   = color.New(color.FgRed, color.Bold)
	stateInit    = color.New(color.FgYellow)
	dimText      = color.New(color.Faint)
)

func (m *Monitor) stateLabel() string {
	switch m.core.State() {
	case CORE_RUNNING:
		return stateRunning.Sprint("RUNNING")
	case CORE_FAULT:
		return stateFault.Sprintf("FAULT(%s)", m.core.FaultMsg())
	default:
		return stateInit.Sprint("INIT")
	}
}

func (m *Monitor) statusLine() string {
	slot := "-"
	if s := m.plane.ActiveSlot(); s >= 0 {
		slot = fmt.Sprintf("%d", s)
	}
	name := m.plane.mirror.Get().Name

	line := fmt.Sprintf("\r%s load:%3d%% slot:%s %-20q sent:%d drop:%d coal:%d underrun:%d",
		m.stateLabel(),
		m.core.LoadPct(),
		slot, name,
		m.bus.Stats.Sent.Load(),
		m.bus.Stats.Dropped.Load(),
		m.bus.Stats.Coalesced.Load(),
		m.feeder.Underruns.Load(),
	)
	if m.midi != nil {
		line += dimText.Sprintf(" midi:%d/%d", m.midi.Stats.Received.Load(), m.midi.Stats.Discarded.Load())
	}
	return line
}

// Run drives the console until 'q' or a terminal error. Blocks; call from the
// main goroutine.
func (m *Monitor) Run() error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("monitor: raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				close(keys)
				return
			}
			select {
			case keys <- buf[0]:
			case <-m.quit:
				return
			}
		}
	}()

	fmt.Print("keys: 0-7 load slot | s save | d dump | q quit\r\n")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Print(m.statusLine())
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			if done := m.handleKey(key); done {
				close(m.quit)
				fmt.Print("\r\n")
				return nil
			}
		}
	}
}

func (m *Monitor) handleKey(key byte) bool {
	switch {
	case key >= '0' && key <= '7':
		slot := int(key - '0')
		if err := m.plane.LoadSlot(slot); err != nil {
			fmt.Printf("\r\nload slot %d: %v\r\n", slot, err)
			return false
		}
		fmt.Printf("\r\nloaded slot %d: %q\r\n", slot, m.plane.mirror.Get().Name)

	case key == 's':
		slot := m.plane.ActiveSlot()
		if slot < 0 {
			slot = 0
		}
		if err := m.plane.SaveSlot(slot); err != nil {
			fmt.Printf("\r\nsave slot %d: %v\r\n", slot, err)
			return false
		}
		fmt.Printf("\r\nsaved slot %d\r\n", slot)

	case key == 'd':
		frames := m.plane.DumpFrames()
		total := 0
		for _, f := range frames {
			total += len(f)
		}
		if m.midi != nil && m.midi.HasOutput() {
			for _, f := range frames {
				m.midi.reply(f)
			}
			fmt.Printf("\r\ndump sent to %s: %d frames, %d bytes\r\n",
				m.midi.OutPortName(), len(frames), total)
		} else {
			fmt.Printf("\r\ndump (no MIDI output): %d frames, %d bytes\r\n", len(frames), total)
		}

	case key == 'q', key == 3: // 'q' or Ctrl-C in raw mode
		return true
	}
	return false
}
