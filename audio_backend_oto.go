//go:build !headless

// audio_backend_oto.go - oto v3 playback backend

package main

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// otoOutput drives an oto player in pull mode: oto calls Read on its own
// thread and we translate that into feeder fills. The feeder pointer is
// atomic so Read never takes a lock on the hot path.
type otoOutput struct {
	ctx       *oto.Context
	player    *oto.Player
	feeder    atomic.Pointer[streamFeeder]
	sampleBuf []float32
	started   bool
	mutex     sync.Mutex
}

func newOtoOutput(feeder *streamFeeder) (*otoOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SAMPLE_RATE,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0, // Driver default
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	out := &otoOutput{
		ctx:       ctx,
		sampleBuf: make([]float32, 4096),
	}
	out.feeder.Store(feeder)
	out.player = ctx.NewPlayer(out)
	return out, nil
}

func (out *otoOutput) Read(p []byte) (int, error) {
	feeder := out.feeder.Load()
	if feeder == nil {
		clear(p)
		return len(p), nil
	}

	numSamples := len(p) / 4
	if len(out.sampleBuf) < numSamples {
		out.sampleBuf = make([]float32, numSamples)
	}
	samples := out.sampleBuf[:numSamples]

	feeder.fill(samples)

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:numSamples*4])
	return numSamples * 4, nil
}

func (out *otoOutput) Start() error {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if !out.started && out.player != nil {
		out.player.Play()
		out.started = true
	}
	return nil
}

func (out *otoOutput) Stop() {
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.started && out.player != nil {
		out.player.Pause()
		out.started = false
	}
}

func (out *otoOutput) Close() error {
	out.Stop()
	out.mutex.Lock()
	defer out.mutex.Unlock()
	if out.player != nil {
		err := out.player.Close()
		out.player = nil
		return err
	}
	return nil
}
