//go:build portaudio

// audio_backend_portaudio.go - PortAudio callback backend

package main

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// portAudioOutput runs the feeder inside a PortAudio stream callback. Unlike
// the oto pull loop this gives the host's native callback cadence, which some
// Linux setups prefer over oto's internal buffering.
type portAudioOutput struct {
	stream  *portaudio.Stream
	feeder  *streamFeeder
	started bool
	mutex   sync.Mutex
}

func newPortAudioOutput(feeder *streamFeeder) (*portAudioOutput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	out := &portAudioOutput{feeder: feeder}
	stream, err := portaudio.OpenDefaultStream(
		0, 2, SAMPLE_RATE, BLOCK_FRAMES,
		func(buf []float32) { out.feeder.fill(buf) },
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: portaudio open: %w", err)
	}
	out.stream = stream
	return out, nil
}

func (out *portAudioOutput) Start() error {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.started {
		return nil
	}
	if err := out.stream.Start(); err != nil {
		return fmt.Errorf("audio: portaudio start: %w", err)
	}
	out.started = true
	return nil
}

func (out *portAudioOutput) Stop() {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.started {
		out.stream.Stop()
		out.started = false
	}
}

func (out *portAudioOutput) Close() error {
	out.Stop()
	out.mutex.Lock()
	defer out.mutex.Unlock()
	var err error
	if out.stream != nil {
		err = out.stream.Close()
		out.stream = nil
	}
	portaudio.Terminate()
	return err
}
