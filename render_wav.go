// render_wav.go - Offline block capture to WAV

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// demoEvent schedules one control message at an absolute frame position.
type demoEvent struct {
	frame int
	msg   ControlMessage
}

// demoSequence is the fixed phrase the offline render plays: a short
// arpeggio with a held final note, enough to exercise envelopes, portamento
// and the effect tails.
func demoSequence(totalFrames int) []demoEvent {
	sec := func(s float64) int { return int(s * SAMPLE_RATE) }
	events := []demoEvent{
		{sec(0.0), NoteOnMessage(48, 100)},
		{sec(0.45), NoteOffMessage(48)},
		{sec(0.5), NoteOnMessage(55, 100)},
		{sec(0.95), NoteOffMessage(55)},
		{sec(1.0), NoteOnMessage(60, 110)},
		{sec(1.45), NoteOffMessage(60)},
		{sec(1.5), NoteOnMessage(64, 120)},
		{sec(2.8), CCMessage(CC_FILTER_CUTOFF, 110)},
		{sec(3.0), NoteOffMessage(64)},
	}
	out := events[:0]
	for _, ev := range events {
		if ev.frame < totalFrames {
			out = append(out, ev)
		}
	}
	return out
}

// renderToWAV drives the full bus + core pipeline offline and writes the
// captured blocks as a 16-bit stereo WAV. Same code path as live playback;
// only the consumer differs.
func renderToWAV(path string, seconds float64, bus *EngineBus, core *AudioCore) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SAMPLE_RATE, 16, 2, 1)

	totalFrames := int(seconds * SAMPLE_RATE)
	totalBlocks := (totalFrames + BLOCK_FRAMES - 1) / BLOCK_FRAMES
	events := demoSequence(totalFrames)

	go core.Run()
	defer core.Stop()

	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: SAMPLE_RATE},
		Data:           make([]int, BLOCK_SAMPLES),
		SourceBitDepth: 16,
	}

	frame := 0
	for b := 0; b < totalBlocks; b++ {
		for len(events) > 0 && events[0].frame < frame+BLOCK_FRAMES {
			bus.Send(events[0].msg)
			events = events[1:]
		}

		blk, ok := bus.WaitBlock(time.Second)
		if !ok {
			return fmt.Errorf("render: no block after %d/%d", b, totalBlocks)
		}
		for i, s := range blk.Frames {
			intBuf.Data[i] = int(softClip(s) * 32767)
		}
		bus.ReclaimBlock(blk)

		if err := enc.Write(intBuf); err != nil {
			return fmt.Errorf("render: write block %d: %w", b, err)
		}
		frame += BLOCK_FRAMES
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("render: finalize %s: %w", path, err)
	}
	return nil
}
