// preset_params.go - Parameter snapshot model and its tagged binary codec

package main

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Waveform selectors shared by oscillators and the LFO.
const (
	WAVE_SINE = iota
	WAVE_TRIANGLE
	WAVE_SAW
	WAVE_SQUARE
	WAVE_NOISE
)

type OscParams struct {
	Waveform uint8
	Level    float32
	Octave   float32 // Octave shift in octaves, negative = down
	Detune   float32 // Detune in Hz
	Vibrato  bool    // LFO vibrato routed to this oscillator
}

type FilterParams struct {
	Cutoff    float32 // Hz
	Resonance float32 // 0..1
	EnvAmount float32 // Hz added at full envelope
	Attack    float32 // Seconds
	Decay     float32
	Sustain   float32 // 0..1
	Release   float32
}

type EnvParams struct {
	Attack  float32 // Seconds
	Decay   float32
	Sustain float32 // 0..1
	Release float32
}

type LFOParams struct {
	Enabled       bool
	Frequency     float32 // Hz
	Waveform      uint8
	VibratoAmount float32 // Hz of pitch wobble
	FilterAmount  float32 // Hz of cutoff wobble
}

type DelayParams struct {
	Time     float32 // Seconds, left channel; right runs 15% longer
	Feedback float32 // 0..1
	Mix      float32 // 0..1
	Enabled  bool
}

type ReverbParams struct {
	Size    float32 // 0..1, scales comb decay
	Damping float32 // 0..1
	Mix     float32 // 0..1
	Enabled bool
}

// ParameterSnapshot is a complete patch: every control-rate parameter the
// voice consumes. Every field has a defined default (see DefaultSnapshot) so
// a decoder can fill gaps left by older encoders, and unknown fields from
// newer encoders are skipped rather than rejected.
type ParameterSnapshot struct {
	Name       string
	Osc        [3]OscParams
	NoiseLevel float32
	Portamento float32 // 0..1, 0 = off
	Filter     FilterParams
	Amp        EnvParams
	LFO        LFOParams
	Delay      DelayParams
	Reverb     ReverbParams
}

// DefaultSnapshot returns the init patch: single saw oscillator, open
// filter, organ-style amp envelope, effects off.
func DefaultSnapshot() ParameterSnapshot {
	return ParameterSnapshot{
		Name: "Init Patch",
		Osc: [3]OscParams{
			{Waveform: WAVE_SAW, Level: 1.0, Vibrato: true},
			{Waveform: WAVE_SAW, Vibrato: true},
			{Waveform: WAVE_SAW, Vibrato: true},
		},
		Filter: FilterParams{Cutoff: 20000, Sustain: 1.0},
		Amp:    EnvParams{Attack: 0.01, Decay: 0.1, Sustain: 1.0, Release: 0.1},
		LFO:    LFOParams{Frequency: 1.0, Waveform: WAVE_SINE},
		Delay:  DelayParams{Time: 0.25, Feedback: 0.3, Mix: 0.3},
		Reverb: ReverbParams{Size: 0.5, Damping: 0.5, Mix: 0.1},
	}
}

// Snapshot wire format: one version byte, then tagged fields of
// {id u8, length u8, payload}. Field order is not significant. Decoders skip
// unknown ids and keep defaults for absent or short fields, so old builds
// accept new snapshots and vice versa.
const SNAPSHOT_VERSION = 1

const (
	fieldName = iota + 1
	fieldOsc1
	fieldOsc2
	fieldOsc3
	fieldNoise
	fieldPortamento
	fieldFilter
	fieldAmpEnv
	fieldLFO
	fieldDelay
	fieldReverb
)

const (
	oscFieldLen    = 14 // waveform u8 + 3 float32 + vibrato u8
	filterFieldLen = 28
	ampFieldLen    = 16
	lfoFieldLen    = 14
	delayFieldLen  = 13
	reverbFieldLen = 13
	maxNameLen     = 32
)

func putF32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func getF32(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendField(dst []byte, id byte, payload []byte) []byte {
	dst = append(dst, id, byte(len(payload)))
	return append(dst, payload...)
}

// EncodeSnapshot serializes snap into the tagged wire format.
func EncodeSnapshot(snap *ParameterSnapshot) []byte {
	out := make([]byte, 0, 192)
	out = append(out, SNAPSHOT_VERSION)

	name := snap.Name
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	out = appendField(out, fieldName, []byte(name))

	var buf [filterFieldLen]byte
	for i := 0; i < 3; i++ {
		osc := &snap.Osc[i]
		buf[0] = osc.Waveform
		putF32(buf[1:], osc.Level)
		putF32(buf[5:], osc.Octave)
		putF32(buf[9:], osc.Detune)
		buf[13] = boolByte(osc.Vibrato)
		out = appendField(out, byte(fieldOsc1+i), buf[:oscFieldLen])
	}

	putF32(buf[:], snap.NoiseLevel)
	out = appendField(out, fieldNoise, buf[:4])
	putF32(buf[:], snap.Portamento)
	out = appendField(out, fieldPortamento, buf[:4])

	f := &snap.Filter
	putF32(buf[0:], f.Cutoff)
	putF32(buf[4:], f.Resonance)
	putF32(buf[8:], f.EnvAmount)
	putF32(buf[12:], f.Attack)
	putF32(buf[16:], f.Decay)
	putF32(buf[20:], f.Sustain)
	putF32(buf[24:], f.Release)
	out = appendField(out, fieldFilter, buf[:filterFieldLen])

	a := &snap.Amp
	putF32(buf[0:], a.Attack)
	putF32(buf[4:], a.Decay)
	putF32(buf[8:], a.Sustain)
	putF32(buf[12:], a.Release)
	out = appendField(out, fieldAmpEnv, buf[:ampFieldLen])

	l := &snap.LFO
	buf[0] = boolByte(l.Enabled)
	putF32(buf[1:], l.Frequency)
	buf[5] = l.Waveform
	putF32(buf[6:], l.VibratoAmount)
	putF32(buf[10:], l.FilterAmount)
	out = appendField(out, fieldLFO, buf[:lfoFieldLen])

	d := &snap.Delay
	putF32(buf[0:], d.Time)
	putF32(buf[4:], d.Feedback)
	putF32(buf[8:], d.Mix)
	buf[12] = boolByte(d.Enabled)
	out = appendField(out, fieldDelay, buf[:delayFieldLen])

	r := &snap.Reverb
	putF32(buf[0:], r.Size)
	putF32(buf[4:], r.Damping)
	putF32(buf[8:], r.Mix)
	buf[12] = boolByte(r.Enabled)
	out = appendField(out, fieldReverb, buf[:reverbFieldLen])

	return out
}

// DecodeSnapshot parses data produced by EncodeSnapshot (any version).
// Fields the decoder does not recognize are skipped; fields that are absent
// or too short keep their DefaultSnapshot values. Only a truncated field
// framing or an unusable version byte is an error.
func DecodeSnapshot(data []byte) (ParameterSnapshot, error) {
	snap := DefaultSnapshot()
	if len(data) < 1 {
		return snap, fmt.Errorf("snapshot: empty payload")
	}
	if data[0] == 0 {
		return snap, fmt.Errorf("snapshot: bad version %d", data[0])
	}

	pos := 1
	for pos < len(data) {
		if pos+2 > len(data) {
			return snap, fmt.Errorf("snapshot: truncated field header at %d", pos)
		}
		id := data[pos]
		length := int(data[pos+1])
		pos += 2
		if pos+length > len(data) {
			return snap, fmt.Errorf("snapshot: field %d overruns payload", id)
		}
		payload := data[pos : pos+length]
		pos += length
		decodeSnapshotField(&snap, id, payload)
	}
	return snap, nil
}

func decodeSnapshotField(snap *ParameterSnapshot, id byte, payload []byte) {
	switch id {
	case fieldName:
		name := payload
		if len(name) > maxNameLen {
			name = name[:maxNameLen]
		}
		snap.Name = string(name)
	case fieldOsc1, fieldOsc2, fieldOsc3:
		if len(payload) < oscFieldLen {
			return
		}
		osc := &snap.Osc[id-fieldOsc1]
		osc.Waveform = payload[0] % 5
		osc.Level = getF32(payload[1:])
		osc.Octave = getF32(payload[5:])
		osc.Detune = getF32(payload[9:])
		osc.Vibrato = payload[13] != 0
	case fieldNoise:
		if len(payload) >= 4 {
			snap.NoiseLevel = getF32(payload)
		}
	case fieldPortamento:
		if len(payload) >= 4 {
			snap.Portamento = getF32(payload)
		}
	case fieldFilter:
		if len(payload) < filterFieldLen {
			return
		}
		f := &snap.Filter
		f.Cutoff = getF32(payload[0:])
		f.Resonance = getF32(payload[4:])
		f.EnvAmount = getF32(payload[8:])
		f.Attack = getF32(payload[12:])
		f.Decay = getF32(payload[16:])
		f.Sustain = getF32(payload[20:])
		f.Release = getF32(payload[24:])
	case fieldAmpEnv:
		if len(payload) < ampFieldLen {
			return
		}
		a := &snap.Amp
		a.Attack = getF32(payload[0:])
		a.Decay = getF32(payload[4:])
		a.Sustain = getF32(payload[8:])
		a.Release = getF32(payload[12:])
	case fieldLFO:
		if len(payload) < lfoFieldLen {
			return
		}
		l := &snap.LFO
		l.Enabled = payload[0] != 0
		l.Frequency = getF32(payload[1:])
		l.Waveform = payload[5] % 4
		l.VibratoAmount = getF32(payload[6:])
		l.FilterAmount = getF32(payload[10:])
	case fieldDelay:
		if len(payload) < delayFieldLen {
			return
		}
		d := &snap.Delay
		d.Time = getF32(payload[0:])
		d.Feedback = getF32(payload[4:])
		d.Mix = getF32(payload[8:])
		d.Enabled = payload[12] != 0
	case fieldReverb:
		if len(payload) < reverbFieldLen {
			return
		}
		r := &snap.Reverb
		r.Size = getF32(payload[0:])
		r.Damping = getF32(payload[4:])
		r.Mix = getF32(payload[8:])
		r.Enabled = payload[12] != 0
	}
	// Unknown ids fall through: newer encoders may add fields this decoder
	// has never heard of.
}
