// engine_voice.go - Monophonic virtual-analog voice (the DSP graph behind the audio core)

package main

import (
	"math"
)

const (
	SAMPLE_RATE = 48000

	MAX_FILTER_HZ = 20000.0
	MIN_FILTER_HZ = 20.0
	MAX_RESONANCE_Q = 10.0
	BASE_Q          = 0.707

	PORTAMENTO_CHUNK = 32 // Samples between glide updates, matches control smoothing granularity
	MIN_ENV_SAMPLES  = 1

	NOISE_LFSR_SEED = 0x7FFFFF // 23-bit LFSR seed
	NOISE_LFSR_MASK = 0x7FFFFF

	OSC_MIX_LEVEL = 0.3 // Headroom for three oscillators plus noise
)

// SynthEngine is the entire surface the audio core needs from a synthesis
// graph. Apply mutates control-rate state and must be O(1), allocation-free
// and non-blocking; Render deterministically fills exactly one block from
// current state. Messages are applied strictly before the render they
// precede, so a block never sees a half-applied parameter change.
type SynthEngine interface {
	Apply(msg ControlMessage)
	Render(blk *AudioBlock)
}

// Envelope phases
const (
	ENV_IDLE = iota
	ENV_ATTACK
	ENV_DECAY
	ENV_SUSTAIN
	ENV_RELEASE
)

// envelope is a linear ADSR stepped once per sample.
type envelope struct {
	attackTime   int // Samples
	decayTime    int
	releaseTime  int
	sustainLevel float32

	phase        int
	level        float32
	sample       int
	releaseLevel float32 // Level captured when release began
}

func (e *envelope) configure(p EnvParams) {
	e.attackTime = max(int(p.Attack*SAMPLE_RATE), MIN_ENV_SAMPLES)
	e.decayTime = max(int(p.Decay*SAMPLE_RATE), MIN_ENV_SAMPLES)
	e.releaseTime = max(int(p.Release*SAMPLE_RATE), MIN_ENV_SAMPLES)
	e.sustainLevel = p.Sustain
}

func (e *envelope) gateOn() {
	e.phase = ENV_ATTACK
	e.sample = 0
}

func (e *envelope) gateOff() {
	if e.phase == ENV_IDLE || e.phase == ENV_RELEASE {
		return
	}
	e.phase = ENV_RELEASE
	e.sample = 0
	e.releaseLevel = e.level
}

func (e *envelope) kill() {
	e.phase = ENV_IDLE
	e.level = 0
	e.sample = 0
}

func (e *envelope) active() bool {
	return e.phase != ENV_IDLE
}

func (e *envelope) next() float32 {
	switch e.phase {
	case ENV_ATTACK:
		e.level += 1.0 / float32(e.attackTime)
		if e.level >= 1.0 {
			e.level = 1.0
			e.phase = ENV_DECAY
			e.sample = 0
		}
	case ENV_DECAY:
		e.level = 1.0 - (1.0-e.sustainLevel)*float32(e.sample)/float32(e.decayTime)
		e.sample++
		if e.sample >= e.decayTime {
			e.level = e.sustainLevel
			e.phase = ENV_SUSTAIN
		}
	case ENV_SUSTAIN:
		e.level = e.sustainLevel
	case ENV_RELEASE:
		e.level = e.releaseLevel * (1.0 - float32(e.sample)/float32(e.releaseTime))
		e.sample++
		if e.sample >= e.releaseTime {
			e.kill()
		}
	}
	return e.level
}

// noteStack implements last-note priority with sustain pedal semantics: a
// NoteOff while the pedal is down is deferred until the pedal lifts.
type noteStack struct {
	notes      []uint8
	pendingOff []uint8
	sustain    bool
}

func newNoteStack() noteStack {
	return noteStack{
		notes:      make([]uint8, 0, 16),
		pendingOff: make([]uint8, 0, 16),
	}
}

func removeNote(list []uint8, note uint8) []uint8 {
	for i, n := range list {
		if n == note {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func containsNote(list []uint8, note uint8) bool {
	for _, n := range list {
		if n == note {
			return true
		}
	}
	return false
}

func (ns *noteStack) noteOn(note uint8) {
	ns.pendingOff = removeNote(ns.pendingOff, note)
	if !containsNote(ns.notes, note) && len(ns.notes) < cap(ns.notes) {
		ns.notes = append(ns.notes, note)
	}
}

func (ns *noteStack) noteOff(note uint8) {
	if ns.sustain {
		if containsNote(ns.notes, note) && !containsNote(ns.pendingOff, note) &&
			len(ns.pendingOff) < cap(ns.pendingOff) {
			ns.pendingOff = append(ns.pendingOff, note)
		}
		return
	}
	ns.notes = removeNote(ns.notes, note)
}

func (ns *noteStack) setSustain(active bool) {
	ns.sustain = active
	if active {
		return
	}
	for _, note := range ns.pendingOff {
		ns.notes = removeNote(ns.notes, note)
	}
	ns.pendingOff = ns.pendingOff[:0]
}

func (ns *noteStack) clear() {
	ns.notes = ns.notes[:0]
	ns.pendingOff = ns.pendingOff[:0]
	ns.sustain = false
}

// activeNote returns the most recent held note, if any.
func (ns *noteStack) activeNote() (uint8, bool) {
	if len(ns.notes) == 0 {
		return 0, false
	}
	return ns.notes[len(ns.notes)-1], true
}

func midiToFreq(note uint8) float32 {
	return 440.0 * float32(math.Pow(2, (float64(note)-69.0)/12.0))
}

type oscState struct {
	phase float32
}

// Voice is the one concrete SynthEngine: three oscillators plus noise into a
// resonant low-pass filter with its own envelope, through the stereo effects
// chain. Owned exclusively by the audio core; the control domain only ever
// reaches it through ControlMessages.
type Voice struct {
	snap ParameterSnapshot

	notes       noteStack
	gate        bool
	targetFreq  float32
	currentFreq float32
	bendFactor  float32
	modWheel    float32
	velocity    float32

	oscs    [3]oscState
	noiseSR uint32

	ampEnv  envelope
	filtEnv envelope

	// State-variable filter
	filterLP float32
	filterBP float32

	lfoPhase float32

	fx  EffectsChain
	seq uint64

	glideCountdown int
}

func NewVoice() *Voice {
	v := &Voice{
		notes:       newNoteStack(),
		targetFreq:  440.0,
		currentFreq: 440.0,
		bendFactor:  1.0,
		velocity:    1.0,
		noiseSR:     NOISE_LFSR_SEED,
	}
	v.fx.init()
	v.SetSnapshot(DefaultSnapshot())
	return v
}

// SetSnapshot swaps in a complete patch atomically between blocks. Note state
// is cleared and effect tails flushed, matching a hardware program change.
func (v *Voice) SetSnapshot(snap ParameterSnapshot) {
	v.snap = snap
	v.ampEnv.configure(snap.Amp)
	v.filtEnv.configure(EnvParams{
		Attack:  snap.Filter.Attack,
		Decay:   snap.Filter.Decay,
		Sustain: snap.Filter.Sustain,
		Release: snap.Filter.Release,
	})
	v.notes.clear()
	v.gate = false
	v.ampEnv.kill()
	v.filtEnv.kill()
	v.filterLP = 0
	v.filterBP = 0
	v.fx.configure(&v.snap)
	v.fx.reset()
}

func (v *Voice) Apply(msg ControlMessage) {
	switch msg.Kind {
	case MSG_NOTE_ON:
		if msg.Velocity == 0 {
			v.noteOff(msg.Note)
			return
		}
		v.notes.noteOn(msg.Note)
		v.targetFreq = midiToFreq(msg.Note)
		v.velocity = float32(msg.Velocity) / 127.0
		if !v.gate {
			// Fresh attack; legato transitions keep the running envelopes.
			v.gate = true
			v.ampEnv.gateOn()
			v.filtEnv.gateOn()
			if v.snap.Portamento == 0 {
				v.currentFreq = v.targetFreq
			}
		}
	case MSG_NOTE_OFF:
		v.noteOff(msg.Note)
	case MSG_CC:
		v.applyCC(msg.CC, msg.Value)
	case MSG_PITCH_BEND:
		semis := float64(msg.Bend) / 8192.0 * 2.0
		v.bendFactor = float32(math.Pow(2, semis/12.0))
	case MSG_PRESET_LOAD:
		if msg.Snapshot != nil {
			v.SetSnapshot(*msg.Snapshot)
		}
	case MSG_ALL_NOTES_OFF:
		v.notes.clear()
		v.gate = false
		v.ampEnv.gateOff()
		v.filtEnv.gateOff()
	case MSG_ALL_SOUND_OFF:
		v.notes.clear()
		v.gate = false
		v.ampEnv.kill()
		v.filtEnv.kill()
		v.filterLP = 0
		v.filterBP = 0
		v.fx.reset()
		v.bendFactor = 1.0
		v.modWheel = 0
	}
}

func (v *Voice) noteOff(note uint8) {
	v.notes.noteOff(note)
	v.retarget()
}

// retarget follows the note stack after a release or pedal lift.
func (v *Voice) retarget() {
	if note, ok := v.notes.activeNote(); ok {
		v.targetFreq = midiToFreq(note)
		return
	}
	if v.gate {
		v.gate = false
		v.ampEnv.gateOff()
		v.filtEnv.gateOff()
	}
}

func (v *Voice) applyCC(cc, value uint8) {
	norm := float32(value) / 127.0
	switch cc {
	case CC_MOD_WHEEL:
		v.modWheel = norm
	case CC_PORTAMENTO_TIME:
		v.snap.Portamento = norm
	case CC_SUSTAIN:
		v.notes.setSustain(value >= 64)
		if value < 64 {
			v.retarget()
		}
	case CC_FILTER_RESONANCE:
		v.snap.Filter.Resonance = norm
	case CC_FILTER_CUTOFF:
		// Exponential sweep 20 Hz .. 20 kHz
		v.snap.Filter.Cutoff = MIN_FILTER_HZ * pow1000(norm)
	}
}

func pow1000(x float32) float32 {
	return float32(math.Pow(1000, float64(x)))
}

// oscSample advances one oscillator phase and returns its raw output.
func (v *Voice) oscSample(i int, freq float32) float32 {
	osc := &v.oscs[i]
	p := &v.snap.Osc[i]

	if p.Waveform == WAVE_NOISE {
		return v.noiseSample()
	}

	phaseInc := freq * (2 * math.Pi / SAMPLE_RATE)
	var raw float32
	switch p.Waveform {
	case WAVE_SINE:
		raw = float32(math.Sin(float64(osc.phase)))
	case WAVE_TRIANGLE:
		raw = 2.0*float32(math.Abs(float64(2.0*(osc.phase/(2*math.Pi))-1.0))) - 1.0
	case WAVE_SAW:
		raw = 2.0*(osc.phase/(2*math.Pi)) - 1.0
	case WAVE_SQUARE:
		if osc.phase < math.Pi {
			raw = 1.0
		} else {
			raw = -1.0
		}
	}

	osc.phase += phaseInc
	if osc.phase >= 2*math.Pi {
		osc.phase -= 2 * math.Pi
	}
	return raw
}

// noiseSample steps the 23-bit LFSR (taps 23,18 for a maximal-length
// sequence).
func (v *Voice) noiseSample() float32 {
	newBit := ((v.noiseSR >> 22) ^ (v.noiseSR >> 17)) & 1
	v.noiseSR = ((v.noiseSR << 1) | newBit) & NOISE_LFSR_MASK
	return float32(v.noiseSR&1)*2 - 1
}

// lfoSample advances the LFO and returns its bipolar output.
func (v *Voice) lfoSample() float32 {
	if !v.snap.LFO.Enabled {
		return 0
	}
	v.lfoPhase += v.snap.LFO.Frequency * (2 * math.Pi / SAMPLE_RATE)
	if v.lfoPhase >= 2*math.Pi {
		v.lfoPhase -= 2 * math.Pi
	}
	switch v.snap.LFO.Waveform {
	case WAVE_TRIANGLE:
		return 2.0*float32(math.Abs(float64(2.0*(v.lfoPhase/(2*math.Pi))-1.0))) - 1.0
	case WAVE_SAW:
		return 2.0*(v.lfoPhase/(2*math.Pi)) - 1.0
	case WAVE_SQUARE:
		if v.lfoPhase < math.Pi {
			return 1.0
		}
		return -1.0
	default:
		return float32(math.Sin(float64(v.lfoPhase)))
	}
}

// filterSample runs the 2-pole state-variable low-pass.
func (v *Voice) filterSample(in, cutoffHz float32) float32 {
	if cutoffHz > MAX_FILTER_HZ {
		cutoffHz = MAX_FILTER_HZ
	}
	if cutoffHz < MIN_FILTER_HZ {
		cutoffHz = MIN_FILTER_HZ
	}
	f := 2.0 * float32(math.Sin(math.Pi*float64(cutoffHz)/SAMPLE_RATE))
	if f > 1.2 {
		// Chamberlin SVF goes unstable past this; audibly "wide open" anyway.
		f = 1.2
	}
	q := BASE_Q + v.snap.Filter.Resonance*(MAX_RESONANCE_Q-BASE_Q)
	damp := 1.0 / q

	lp := v.filterLP + f*v.filterBP
	hp := in - lp - damp*v.filterBP
	bp := v.filterBP + f*hp

	// Clamp to keep resonance self-oscillation bounded
	lp = clampSample(lp)
	bp = clampSample(bp)

	v.filterLP = lp
	v.filterBP = bp
	return lp
}

func clampSample(s float32) float32 {
	if s > 2.0 {
		return 2.0
	}
	if s < -2.0 {
		return -2.0
	}
	return s
}

// Render produces one block of interleaved stereo. Pure function of current
// state plus elapsed phase; no allocation, no locks, no I/O.
func (v *Voice) Render(blk *AudioBlock) {
	blk.Seq = v.seq
	v.seq++

	glideFactor := 1.0 - minF32(v.snap.Portamento, 0.999)

	for i := 0; i < BLOCK_FRAMES; i++ {
		// Glide toward the target pitch at chunk granularity.
		if v.glideCountdown <= 0 {
			diff := v.targetFreq - v.currentFreq
			if absF32(diff) < 0.1 {
				v.currentFreq = v.targetFreq
			} else {
				v.currentFreq += diff * glideFactor
			}
			v.glideCountdown = PORTAMENTO_CHUNK
		}
		v.glideCountdown--

		lfo := v.lfoSample()
		vibrato := lfo * (v.snap.LFO.VibratoAmount + v.modWheel*4.0)

		base := v.currentFreq * v.bendFactor

		var mono float32
		for o := 0; o < 3; o++ {
			p := &v.snap.Osc[o]
			if p.Level == 0 {
				continue
			}
			freq := base*float32(math.Pow(2, float64(p.Octave))) + p.Detune
			if p.Vibrato {
				freq += vibrato
			}
			mono += v.oscSample(o, freq) * p.Level
		}
		if v.snap.NoiseLevel > 0 {
			mono += v.noiseSample() * v.snap.NoiseLevel
		}
		mono *= OSC_MIX_LEVEL

		cutoff := v.snap.Filter.Cutoff +
			v.snap.Filter.EnvAmount*v.filtEnv.next() +
			v.snap.LFO.FilterAmount*lfo
		mono = v.filterSample(mono, cutoff)

		mono *= v.ampEnv.next() * v.velocity

		l, r := v.fx.processFrame(mono)
		blk.Frames[i*2] = l
		blk.Frames[i*2+1] = r
	}
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func absF32(a float32) float32 {
	if a < 0 {
		return -a
	}
	return a
}
