// audio_output.go - Host audio output abstraction and the block-to-stream feeder

package main

import (
	"fmt"
	"sync/atomic"
)

const (
	AUDIO_BACKEND_OTO       = "oto"
	AUDIO_BACKEND_PORTAUDIO = "portaudio"
	AUDIO_BACKEND_NONE      = "none"
)

// AudioOutput is the host playback surface. Implementations pull interleaved
// stereo float32 from a streamFeeder on their own callback thread.
type AudioOutput interface {
	Start() error
	Stop()
	Close() error
}

// NewAudioOutput selects a backend by name. The portaudio backend only exists
// under its build tag; the default build reports it as unavailable.
func NewAudioOutput(backend string, feeder *streamFeeder) (AudioOutput, error) {
	switch backend {
	case AUDIO_BACKEND_OTO:
		return newOtoOutput(feeder)
	case AUDIO_BACKEND_PORTAUDIO:
		return newPortAudioOutput(feeder)
	case AUDIO_BACKEND_NONE:
		return nullOutput{}, nil
	default:
		return nil, fmt.Errorf("audio: unknown backend %q", backend)
	}
}

// nullOutput discards nothing and produces nothing; useful when another
// consumer (offline capture) drains the bus instead.
type nullOutput struct{}

func (nullOutput) Start() error { return nil }
func (nullOutput) Stop()        {}
func (nullOutput) Close() error { return nil }

// streamFeeder adapts the bus's block granularity to whatever request sizes a
// host callback makes. It holds at most one partially consumed block. Safe for
// a single reader; underruns fill with silence and are counted rather than
// blocking the callback.
type streamFeeder struct {
	bus       *EngineBus
	current   *AudioBlock
	pos       int // Samples consumed from current
	Underruns atomic.Uint64
}

func newStreamFeeder(bus *EngineBus) *streamFeeder {
	return &streamFeeder{bus: bus}
}

// fill copies up to len(dst) samples of rendered audio into dst, padding with
// silence when the bus has nothing ready. Never blocks.
func (sf *streamFeeder) fill(dst []float32) {
	n := 0
	for n < len(dst) {
		if sf.current == nil {
			blk, ok := sf.bus.NextBlock()
			if !ok {
				clear(dst[n:])
				sf.Underruns.Add(1)
				return
			}
			sf.current = blk
			sf.pos = 0
		}
		copied := copy(dst[n:], sf.current.Frames[sf.pos:])
		n += copied
		sf.pos += copied
		if sf.pos >= BLOCK_SAMPLES {
			sf.bus.ReclaimBlock(sf.current)
			sf.current = nil
		}
	}
}
