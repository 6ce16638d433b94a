//go:build headless

// audio_backend_headless.go - No-op stand-in for the oto backend (CI, servers without audio)

package main

// otoOutput under the headless tag satisfies AudioOutput without touching any
// audio device. Blocks pile up on the bus until something else reclaims them,
// which is exactly what the offline render path and the tests want.
type otoOutput struct{}

func newOtoOutput(feeder *streamFeeder) (*otoOutput, error) {
	_ = feeder
	return &otoOutput{}, nil
}

func (out *otoOutput) Start() error { return nil }
func (out *otoOutput) Stop()        {}
func (out *otoOutput) Close() error { return nil }
