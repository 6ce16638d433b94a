// preset_defaults.go - Factory preset bank

package main

// FactoryPresets returns the built-in patches written to a freshly formatted
// flash region. Slots beyond these fall back to DefaultSnapshot.
func FactoryPresets() []ParameterSnapshot {
	return []ParameterSnapshot{
		{
			Name: "Lucky Man",
			Osc: [3]OscParams{
				{Waveform: WAVE_SQUARE, Level: 1.0, Vibrato: true},
				{Waveform: WAVE_SQUARE, Level: 0.7, Detune: 2.0, Vibrato: true},
				{Waveform: WAVE_SQUARE, Level: 0.7, Detune: -2.0, Vibrato: true},
			},
			Portamento: 0.92,
			Filter: FilterParams{
				Cutoff: 200, Resonance: 0.4, EnvAmount: 3000,
				Attack: 0.1, Decay: 1.5, Sustain: 0.4, Release: 0.5,
			},
			Amp:    EnvParams{Attack: 0.05, Decay: 0.2, Sustain: 1.0, Release: 0.5},
			LFO:    LFOParams{Enabled: true, Frequency: 5.0, Waveform: WAVE_SINE, VibratoAmount: 2.0},
			Delay:  DelayParams{Time: 0.4, Feedback: 0.3, Mix: 0.3, Enabled: true},
			Reverb: ReverbParams{Size: 0.5, Damping: 0.5, Mix: 0.1},
		},
		{
			Name: "Tom Sawyer",
			Osc: [3]OscParams{
				{Waveform: WAVE_SAW, Level: 1.0},
				{Waveform: WAVE_SAW, Level: 0.5, Detune: 1.5},
				{Waveform: WAVE_SINE},
			},
			Filter: FilterParams{
				Cutoff: 80, Resonance: 0.45, EnvAmount: 5000,
				Attack: 0.03, Decay: 2.0, Sustain: 0.1, Release: 0.1,
			},
			Amp:    EnvParams{Attack: 0.01, Decay: 0.1, Sustain: 1.0, Release: 0.2},
			LFO:    LFOParams{Frequency: 1.0, Waveform: WAVE_SINE},
			Delay:  DelayParams{Time: 0.15, Feedback: 0.2, Mix: 0.2, Enabled: true},
			Reverb: ReverbParams{Size: 0.3, Damping: 0.5, Mix: 0.1},
		},
		{
			Name: "Moog Scream",
			Osc: [3]OscParams{
				{Waveform: WAVE_SAW, Level: 1.0, Vibrato: true},
				{Waveform: WAVE_SAW, Level: 0.6, Detune: 2.5, Vibrato: true},
				{Waveform: WAVE_SQUARE, Level: 0.8, Detune: -2.5, Vibrato: true},
			},
			NoiseLevel: 0.15,
			Portamento: 0.85,
			Filter: FilterParams{
				Cutoff: 100, Resonance: 0.75, EnvAmount: 6000,
				Attack: 0.005, Decay: 0.3, Sustain: 0.2, Release: 0.2,
			},
			Amp:    EnvParams{Attack: 0.005, Decay: 0.2, Sustain: 1.0, Release: 0.2},
			LFO:    LFOParams{Enabled: true, Frequency: 0.15, Waveform: WAVE_SINE, VibratoAmount: 8.0},
			Delay:  DelayParams{Time: 0.25, Feedback: 0.3, Mix: 0.3},
			Reverb: ReverbParams{Size: 0.5, Damping: 0.5, Mix: 0.2, Enabled: true},
		},
		{
			Name: "Moog Bass",
			Osc: [3]OscParams{
				{Waveform: WAVE_SAW, Level: 1.0, Octave: -3.0},
				{Waveform: WAVE_SAW, Level: 0.4, Octave: -3.0, Detune: 0.3},
				{Waveform: WAVE_SQUARE, Level: 0.5, Octave: -4.0},
			},
			Filter: FilterParams{
				Cutoff: 80, Resonance: 0.6, EnvAmount: 3000,
				Attack: 0.001, Decay: 0.25, Sustain: 0.0, Release: 0.1,
			},
			Amp:    EnvParams{Attack: 0.001, Decay: 0.2, Sustain: 0.8, Release: 0.1},
			LFO:    LFOParams{Frequency: 1.0, Waveform: WAVE_SINE},
			Delay:  DelayParams{Time: 0.25, Feedback: 0.3, Mix: 0.3},
			Reverb: ReverbParams{Size: 0.5, Damping: 0.5, Mix: 0.1},
		},
		{
			Name: "Octavarium Lead",
			Osc: [3]OscParams{
				{Waveform: WAVE_SAW, Level: 1.0, Vibrato: true},
				{Waveform: WAVE_SAW, Level: 0.5, Detune: 2.0},
				{Waveform: WAVE_SQUARE, Level: 0.3},
			},
			Portamento: 0.94,
			Filter: FilterParams{
				Cutoff: 500, Resonance: 0.6, EnvAmount: 4000,
				Attack: 0.01, Decay: 0.5, Sustain: 0.6, Release: 0.2,
			},
			Amp:    EnvParams{Attack: 0.005, Decay: 0.1, Sustain: 1.0, Release: 0.2},
			LFO:    LFOParams{Enabled: true, Frequency: 5.5, Waveform: WAVE_SINE, VibratoAmount: 1.5},
			Delay:  DelayParams{Time: 0.25, Feedback: 0.3, Mix: 0.3, Enabled: true},
			Reverb: ReverbParams{Size: 0.5, Damping: 0.5, Mix: 0.1, Enabled: true},
		},
	}
}

// FactoryPreset returns the factory patch for a slot, or the init patch for
// slots past the factory bank.
func FactoryPreset(slot int) ParameterSnapshot {
	presets := FactoryPresets()
	if slot >= 0 && slot < len(presets) {
		return presets[slot]
	}
	return DefaultSnapshot()
}
