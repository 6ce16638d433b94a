//go:build !portaudio

// audio_backend_portaudio_stub.go - Default build: portaudio backend unavailable

package main

import "errors"

func newPortAudioOutput(feeder *streamFeeder) (AudioOutput, error) {
	_ = feeder
	return nil, errors.New("audio: portaudio backend not compiled in (build with -tags portaudio)")
}
