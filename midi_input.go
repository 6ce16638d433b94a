// midi_input.go - MIDI listener, message translation and the control plane

package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Controller assignments. 120/123 are the channel-mode panic messages and
// translate to their own message kinds rather than CC messages.
const (
	CC_MOD_WHEEL        = 1
	CC_PORTAMENTO_TIME  = 5
	CC_SUSTAIN          = 64
	CC_FILTER_RESONANCE = 71
	CC_FILTER_CUTOFF    = 74
	CC_ALL_SOUND_OFF    = 120
	CC_ALL_NOTES_OFF    = 123
)

// translateMIDI maps one wire message to a ControlMessage. The second return
// is false for anything the device does not react to; malformed or unknown
// traffic is discarded here, never forwarded.
func translateMIDI(msg midi.Message) (ControlMessage, bool) {
	var ch, key, vel, cc, val uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return NoteOnMessage(key, vel), true
	case msg.GetNoteEnd(&ch, &key):
		return NoteOffMessage(key), true
	case msg.GetControlChange(&ch, &cc, &val):
		switch cc {
		case CC_ALL_SOUND_OFF:
			return ControlMessage{Kind: MSG_ALL_SOUND_OFF}, true
		case CC_ALL_NOTES_OFF:
			return ControlMessage{Kind: MSG_ALL_NOTES_OFF}, true
		}
		return CCMessage(cc, val), true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return PitchBendMessage(rel), true
	}
	return ControlMessage{}, false
}

// paramMirror tracks the effective patch on the control side so SysEx dumps
// and flash saves reflect what is actually sounding, without ever reading
// audio-core state. The MIDI task updates it in lockstep with the messages it
// enqueues.
type paramMirror struct {
	mu   sync.Mutex
	snap ParameterSnapshot
}

func newParamMirror() *paramMirror {
	return &paramMirror{snap: DefaultSnapshot()}
}

func (pm *paramMirror) Set(snap ParameterSnapshot) {
	pm.mu.Lock()
	pm.snap = snap
	pm.mu.Unlock()
}

func (pm *paramMirror) Get() ParameterSnapshot {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.snap
}

// ApplyCC folds patch-affecting controllers into the mirror. Performance
// state (mod wheel, sustain) is not part of a patch and is not mirrored.
func (pm *paramMirror) ApplyCC(cc, value uint8) {
	norm := float32(value) / 127.0
	pm.mu.Lock()
	defer pm.mu.Unlock()
	switch cc {
	case CC_PORTAMENTO_TIME:
		pm.snap.Portamento = norm
	case CC_FILTER_RESONANCE:
		pm.snap.Filter.Resonance = norm
	case CC_FILTER_CUTOFF:
		pm.snap.Filter.Cutoff = MIN_FILTER_HZ * pow1000(norm)
	}
}

// ControlPlane bundles the control-domain operations shared by the MIDI task
// and the monitor console: slot load/save and patch dumps. All methods may
// block (flash I/O) and must never be called from the audio core.
type ControlPlane struct {
	bus    *EngineBus
	store  *FlashStore
	mirror *paramMirror

	activeSlot atomic.Int32 // Last loaded slot, -1 = none/init patch
}

func NewControlPlane(bus *EngineBus, store *FlashStore) *ControlPlane {
	cp := &ControlPlane{bus: bus, store: store, mirror: newParamMirror()}
	cp.activeSlot.Store(-1)
	return cp
}

func (cp *ControlPlane) ActiveSlot() int { return int(cp.activeSlot.Load()) }

// LoadSlot reads a preset from flash and hands it to the audio core as one
// atomic patch change. The snapshot is heap-allocated here precisely so the
// audio core takes ownership without copying under deadline.
func (cp *ControlPlane) LoadSlot(slot int) error {
	snap, err := cp.store.Load(slot)
	if err != nil {
		return err
	}
	cp.mirror.Set(snap)
	cp.activeSlot.Store(int32(slot))
	cp.bus.Send(PresetLoadMessage(slot, &snap))
	return nil
}

// SaveSlot persists the current effective patch.
func (cp *ControlPlane) SaveSlot(slot int) error {
	snap := cp.mirror.Get()
	return cp.store.Save(slot, &snap)
}

// ApplyPatch installs an externally supplied patch (SysEx restore) as the
// effective one.
func (cp *ControlPlane) ApplyPatch(snap ParameterSnapshot) {
	cp.mirror.Set(snap)
	cp.activeSlot.Store(-1)
	cp.bus.Send(PresetLoadMessage(-1, &snap))
}

// DumpFrames returns the current patch as SysEx dump-data frames.
func (cp *ControlPlane) DumpFrames() [][]byte {
	snap := cp.mirror.Get()
	return BuildDump(EncodeSnapshot(&snap))
}

// MidiStats counts listener traffic for the monitor.
type MidiStats struct {
	Received  atomic.Uint64
	Discarded atomic.Uint64
	SysEx     atomic.Uint64
}

// MidiControl owns the MIDI input port and feeds the bus. One goroutine
// (gomidi's listener) calls handleMessage; SysEx replies go out through the
// paired output port when one is open.
type MidiControl struct {
	plane *ControlPlane

	in     drivers.In
	out    drivers.Out
	stopFn func()
	asm    dumpAssembler

	Stats MidiStats
}

func NewMidiControl(plane *ControlPlane) *MidiControl {
	return &MidiControl{plane: plane}
}

// Open connects to the named input port (substring match, empty = first
// available) and starts listening. A matching output port is opened when one
// exists so dump replies and acks have somewhere to go; a missing output is
// not an error.
func (mc *MidiControl) Open(portName string) error {
	in, err := findInPort(portName)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("midi: open input %s: %w", in.String(), err)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		mc.handleMessage(msg)
	}, midi.UseSysEx(), midi.SysExBufferSize(2048))
	if err != nil {
		in.Close()
		return fmt.Errorf("midi: listen on %s: %w", in.String(), err)
	}

	mc.in = in
	mc.stopFn = stop

	if out, err := findOutPort(portName); err == nil {
		if err := out.Open(); err == nil {
			mc.out = out
		}
	}
	return nil
}

func (mc *MidiControl) Close() {
	if mc.stopFn != nil {
		mc.stopFn()
		mc.stopFn = nil
	}
	if mc.in != nil {
		mc.in.Close()
		mc.in = nil
	}
	if mc.out != nil {
		mc.out.Close()
		mc.out = nil
	}
}

func (mc *MidiControl) PortName() string {
	if mc.in == nil {
		return ""
	}
	return mc.in.String()
}

func (mc *MidiControl) HasOutput() bool { return mc.out != nil }

func (mc *MidiControl) OutPortName() string {
	if mc.out == nil {
		return ""
	}
	return mc.out.String()
}

func (mc *MidiControl) handleMessage(msg midi.Message) {
	mc.Stats.Received.Add(1)

	var sysex []byte
	if msg.GetSysEx(&sysex) {
		mc.Stats.SysEx.Add(1)
		mc.handleSysEx(msg.Bytes())
		return
	}

	// Program Change selects a preset slot. It needs the control plane (flash
	// load + mirror update), so it is handled here rather than in the
	// translate table.
	var ch, prog uint8
	if msg.GetProgramChange(&ch, &prog) {
		if int(prog) >= PRESET_SLOTS {
			mc.Stats.Discarded.Add(1)
			return
		}
		if err := mc.plane.LoadSlot(int(prog)); err != nil {
			mc.Stats.Discarded.Add(1)
		}
		return
	}

	cm, ok := translateMIDI(msg)
	if !ok {
		mc.Stats.Discarded.Add(1)
		return
	}
	if cm.Kind == MSG_CC {
		mc.plane.mirror.ApplyCC(cm.CC, cm.Value)
	}
	mc.plane.bus.Send(cm)
}

func (mc *MidiControl) handleSysEx(frame []byte) {
	cmd, body, err := ParseSysEx(frame)
	if err != nil {
		// Someone else's SysEx; not ours to answer.
		mc.Stats.Discarded.Add(1)
		return
	}

	switch cmd {
	case SYX_CMD_DUMP_REQUEST:
		for _, f := range mc.plane.DumpFrames() {
			mc.reply(f)
		}

	case SYX_CMD_DUMP_DATA:
		payload, err := mc.asm.feed(body)
		if err != nil {
			mc.reply(BuildNack(cmd, sysexErrCode(err)))
			return
		}
		if payload == nil {
			return // Mid-transfer
		}
		snap, err := DecodeSnapshot(payload)
		if err != nil {
			mc.reply(BuildNack(cmd, SYX_ERR_BAD_PAYLOAD))
			return
		}
		mc.plane.ApplyPatch(snap)
		mc.reply(BuildAck(cmd))

	case SYX_CMD_STORE:
		if len(body) < 1 {
			mc.reply(BuildNack(cmd, SYX_ERR_BAD_LENGTH))
			return
		}
		slot := int(body[0])
		if err := mc.plane.SaveSlot(slot); err != nil {
			if errors.Is(err, ErrBadSlot) {
				mc.reply(BuildNack(cmd, SYX_ERR_BAD_SLOT))
			} else {
				mc.reply(BuildNack(cmd, SYX_ERR_STORE_FAILED))
			}
			return
		}
		mc.reply(BuildAck(cmd))

	default:
		mc.reply(BuildNack(cmd, SYX_ERR_BAD_PAYLOAD))
	}
}

func sysexErrCode(err error) byte {
	switch {
	case errors.Is(err, ErrSysExChecksum):
		return SYX_ERR_BAD_CHECKSUM
	case errors.Is(err, ErrSysExSequence):
		return SYX_ERR_BAD_SEQUENCE
	default:
		return SYX_ERR_BAD_LENGTH
	}
}

func (mc *MidiControl) reply(frame []byte) {
	if mc.out == nil {
		return
	}
	mc.out.Send(frame)
}

func findInPort(fragment string) (drivers.In, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return nil, errors.New("midi: no input ports available")
	}
	if fragment == "" {
		return ins[0], nil
	}
	lower := strings.ToLower(fragment)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("midi: no input port contains %q", fragment)
}

func findOutPort(fragment string) (drivers.Out, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return nil, errors.New("midi: no output ports available")
	}
	if fragment == "" {
		return outs[0], nil
	}
	lower := strings.ToLower(fragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("midi: no output port contains %q", fragment)
}
