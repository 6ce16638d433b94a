// monitor_test.go - Console key commands

package main

import (
	"testing"
)

func TestMonitor_DumpKeySendsPatchOverMIDI(t *testing.T) {
	cp := testControlPlane(t)
	mc := NewMidiControl(cp)
	out := &fakeOut{}
	mc.out = out
	m := &Monitor{plane: cp, midi: mc}

	m.handleKey('d')

	want := len(cp.DumpFrames())
	if len(out.sent) != want {
		t.Fatalf("sent %d frames, want %d", len(out.sent), want)
	}
	cmd, _, err := ParseSysEx(out.sent[0])
	if err != nil || cmd != SYX_CMD_DUMP_DATA {
		t.Fatalf("first frame cmd %#x err %v, want dump data", cmd, err)
	}
}

func TestMonitor_DumpKeyWithoutMidiStillWorks(t *testing.T) {
	cp := testControlPlane(t)
	m := &Monitor{plane: cp} // No MIDI port open

	m.handleKey('d') // Must not panic; falls back to printing counts
}

func TestMonitor_LoadKeySelectsSlot(t *testing.T) {
	cp := testControlPlane(t)
	m := &Monitor{plane: cp}

	if done := m.handleKey('3'); done {
		t.Fatal("load key quit the console")
	}
	if cp.ActiveSlot() != 3 {
		t.Fatalf("active slot = %d, want 3", cp.ActiveSlot())
	}
}
