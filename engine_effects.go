// engine_effects.go - Stereo effects chain: dual delay, comb/allpass reverb, widener

package main

const (
	MAX_DELAY_SECONDS = 1.0
	DELAY_RATIO_R     = 1.15 // Right delay runs 15% longer than left for stereo spread

	REVERB_PREDELAY_MS  = 8
	REVERB_ATTENUATION  = 0.3
	ALLPASS_COEFFICIENT = 0.5

	STEREO_WIDTH = 1.5
	OUTPUT_GAIN  = 0.5
)

// Prime-length comb delays avoid coincident resonances.
var combDelaySamples = [4]int{1687, 1601, 2053, 2251}
var combBaseDecay = [4]float32{0.97, 0.95, 0.93, 0.91}
var allpassDelaySamples = [2]int{389, 307}

type delayLine struct {
	buf      []float32
	pos      int
	length   int
	feedback float32
	mix      float32
	enabled  bool
}

func (d *delayLine) init() {
	d.buf = make([]float32, int(MAX_DELAY_SECONDS*SAMPLE_RATE))
	d.length = len(d.buf)
}

func (d *delayLine) configure(timeSec, feedback, mix float32, enabled bool) {
	n := int(timeSec * SAMPLE_RATE)
	if n < 1 {
		n = 1
	}
	if n > len(d.buf) {
		n = len(d.buf)
	}
	d.length = n
	d.feedback = feedback
	d.mix = mix
	d.enabled = enabled
	if d.pos >= d.length {
		d.pos = 0
	}
}

func (d *delayLine) process(in float32) float32 {
	if !d.enabled {
		return in
	}
	delayed := d.buf[d.pos]
	d.buf[d.pos] = in + delayed*d.feedback
	d.pos++
	if d.pos >= d.length {
		d.pos = 0
	}
	return in + (delayed-in)*d.mix
}

func (d *delayLine) reset() {
	clear(d.buf)
	d.pos = 0
}

type combFilter struct {
	buf     []float32
	pos     int
	decay   float32
	lowpass float32 // One-pole state for in-loop damping
	damping float32
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.lowpass = out + (c.lowpass-out)*c.damping
	c.buf[c.pos] = in + c.lowpass*c.decay
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpassFilter struct {
	buf []float32
	pos int
}

func (a *allpassFilter) process(in float32) float32 {
	delayed := a.buf[a.pos]
	out := -in + delayed
	a.buf[a.pos] = in + delayed*ALLPASS_COEFFICIENT
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

type reverbUnit struct {
	combs    [4]combFilter
	allpass  [2]allpassFilter
	predelay []float32
	prePos   int
	mix      float32
	enabled  bool
}

func (r *reverbUnit) init() {
	for i := range r.combs {
		r.combs[i].buf = make([]float32, combDelaySamples[i])
	}
	for i := range r.allpass {
		r.allpass[i].buf = make([]float32, allpassDelaySamples[i])
	}
	r.predelay = make([]float32, REVERB_PREDELAY_MS*SAMPLE_RATE/1000)
}

func (r *reverbUnit) configure(size, damping, mix float32, enabled bool) {
	// Size scales decay toward each comb's base; small rooms die fast.
	for i := range r.combs {
		r.combs[i].decay = combBaseDecay[i] * (0.2 + 0.8*size)
		r.combs[i].damping = damping * 0.8
	}
	r.mix = mix
	r.enabled = enabled
}

func (r *reverbUnit) process(in float32) float32 {
	if !r.enabled {
		return in
	}
	pre := r.predelay[r.prePos]
	r.predelay[r.prePos] = in
	r.prePos++
	if r.prePos >= len(r.predelay) {
		r.prePos = 0
	}

	var wet float32
	for i := range r.combs {
		wet += r.combs[i].process(pre)
	}
	wet *= 0.25
	for i := range r.allpass {
		wet = r.allpass[i].process(wet)
	}
	wet *= REVERB_ATTENUATION
	return in + (wet-in)*r.mix
}

func (r *reverbUnit) reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].lowpass = 0
		r.combs[i].pos = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
	clear(r.predelay)
	r.prePos = 0
}

// EffectsChain is the voice's post-processing path. All buffers are allocated
// once in init at their maximum size; configure only moves read lengths, so a
// patch change never allocates on the audio core.
type EffectsChain struct {
	delayL delayLine
	delayR delayLine
	rev    reverbUnit
}

func (fx *EffectsChain) init() {
	fx.delayL.init()
	fx.delayR.init()
	fx.rev.init()
}

func (fx *EffectsChain) configure(snap *ParameterSnapshot) {
	d := snap.Delay
	fx.delayL.configure(d.Time, d.Feedback, d.Mix, d.Enabled)
	fx.delayR.configure(d.Time*DELAY_RATIO_R, d.Feedback, d.Mix, d.Enabled)
	r := snap.Reverb
	fx.rev.configure(r.Size, r.Damping, r.Mix, r.Enabled)
}

// processFrame runs one mono sample through the chain and returns the stereo
// pair.
func (fx *EffectsChain) processFrame(mono float32) (float32, float32) {
	mono = fx.rev.process(mono)

	l := fx.delayL.process(mono)
	r := fx.delayR.process(mono)

	// Mid/side widening
	mid := (l + r) * 0.5
	side := (l - r) * 0.5 * STEREO_WIDTH
	l = mid + side
	r = mid - side

	l *= OUTPUT_GAIN
	r *= OUTPUT_GAIN
	return softClip(l), softClip(r)
}

func softClip(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// reset flushes every tail; used on program change and AllSoundOff.
func (fx *EffectsChain) reset() {
	fx.delayL.reset()
	fx.delayR.reset()
	fx.rev.reset()
}
