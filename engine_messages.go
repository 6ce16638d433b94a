// engine_messages.go - Control message definitions for the control->audio path

package main

// MsgKind tags a ControlMessage variant.
type MsgKind uint8

const (
	MSG_NOTE_ON MsgKind = iota
	MSG_NOTE_OFF
	MSG_CC
	MSG_PITCH_BEND
	MSG_PRESET_LOAD
	MSG_ALL_NOTES_OFF
	MSG_ALL_SOUND_OFF
)

// ControlMessage carries one discrete control event from the control domain
// to the audio core. Messages are immutable once enqueued: the producer must
// not touch a message (or the snapshot it points at) after Send.
//
// Only the fields relevant to Kind are meaningful; the rest stay zero.
type ControlMessage struct {
	Kind     MsgKind
	Note     uint8
	Velocity uint8
	CC       uint8
	Value    uint8
	Bend     int16 // signed pitch bend, -8192..8191
	Slot     int
	Snapshot *ParameterSnapshot

	seq uint64 // Stamped by the bus on Send; restores arrival order across queues
}

// Critical reports whether the message belongs to a class that must never be
// dropped. A lost NoteOff means a note hangs forever, so releases and the
// panic messages ride the reserved queue.
func (m ControlMessage) Critical() bool {
	switch m.Kind {
	case MSG_NOTE_OFF, MSG_ALL_NOTES_OFF, MSG_ALL_SOUND_OFF:
		return true
	}
	return false
}

func NoteOnMessage(note, velocity uint8) ControlMessage {
	return ControlMessage{Kind: MSG_NOTE_ON, Note: note, Velocity: velocity}
}

func NoteOffMessage(note uint8) ControlMessage {
	return ControlMessage{Kind: MSG_NOTE_OFF, Note: note}
}

func CCMessage(cc, value uint8) ControlMessage {
	return ControlMessage{Kind: MSG_CC, CC: cc & 0x7F, Value: value & 0x7F}
}

func PitchBendMessage(bend int16) ControlMessage {
	return ControlMessage{Kind: MSG_PITCH_BEND, Bend: bend}
}

// PresetLoadMessage transfers ownership of snap to the audio core; the
// caller must not mutate it afterwards.
func PresetLoadMessage(slot int, snap *ParameterSnapshot) ControlMessage {
	return ControlMessage{Kind: MSG_PRESET_LOAD, Slot: slot, Snapshot: snap}
}
