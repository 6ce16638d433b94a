// midi_sysex_test.go - SysEx framing, chunking and checksum behavior

package main

import (
	"errors"
	"testing"
)

func dumpBodies(t *testing.T, frames [][]byte) [][]byte {
	t.Helper()
	bodies := make([][]byte, len(frames))
	for i, f := range frames {
		cmd, body, err := ParseSysEx(f)
		if err != nil {
			t.Fatalf("frame %d unparseable: %v", i, err)
		}
		if cmd != SYX_CMD_DUMP_DATA {
			t.Fatalf("frame %d cmd = %#02x", i, cmd)
		}
		bodies[i] = body
	}
	return bodies
}

func TestSysEx_DumpRestoreRoundTrip(t *testing.T) {
	snap := FactoryPreset(2)
	frames := BuildDump(EncodeSnapshot(&snap))
	if len(frames) < 2 {
		t.Fatalf("snapshot fit in %d frame(s); chunking untested", len(frames))
	}

	var asm dumpAssembler
	var payload []byte
	for i, body := range dumpBodies(t, frames) {
		got, err := asm.feed(body)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if i < len(frames)-1 && got != nil {
			t.Fatalf("assembler completed early at chunk %d", i)
		}
		payload = got
	}
	if payload == nil {
		t.Fatal("assembler never completed")
	}

	got, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != snap {
		t.Fatal("restored patch differs from dumped patch")
	}
}

func TestSysEx_FramesStaySevenBitClean(t *testing.T) {
	snap := FactoryPreset(0)
	for i, frame := range BuildDump(EncodeSnapshot(&snap)) {
		for j, b := range frame[1 : len(frame)-1] {
			if b >= 0x80 {
				t.Fatalf("frame %d byte %d = %#02x has the status bit set", i, j+1, b)
			}
		}
	}
}

func TestSysEx_CorruptChunkRejected(t *testing.T) {
	snap := FactoryPreset(0)
	frames := BuildDump(EncodeSnapshot(&snap))
	bodies := dumpBodies(t, frames)

	corrupt := append([]byte(nil), bodies[0]...)
	corrupt[4] ^= 0x01 // Damage a nibble without touching the checksum

	var asm dumpAssembler
	if _, err := asm.feed(corrupt); !errors.Is(err, ErrSysExChecksum) {
		t.Fatalf("corrupt chunk: %v, want checksum error", err)
	}

	// The failed transfer reset the assembler: a clean retry works.
	var payload []byte
	for i, body := range bodies {
		got, err := asm.feed(body)
		if err != nil {
			t.Fatalf("retry chunk %d: %v", i, err)
		}
		payload = got
	}
	if payload == nil {
		t.Fatal("retry after corruption never completed")
	}
}

func TestSysEx_WholePayloadChecksumCatchesPatchedChunks(t *testing.T) {
	snap := FactoryPreset(0)
	bodies := dumpBodies(t, BuildDump(EncodeSnapshot(&snap)))

	// Tamper with a data nibble and fix the chunk checksum, so only the
	// payload-level trailer can catch it.
	patched := append([]byte(nil), bodies[0]...)
	patched[4] ^= 0x01
	patched[len(patched)-1] = sysexChecksum(patched[:len(patched)-1])
	bodies[0] = patched

	var asm dumpAssembler
	var lastErr error
	for _, body := range bodies {
		if _, err := asm.feed(body); err != nil {
			lastErr = err
		}
	}
	if !errors.Is(lastErr, ErrSysExChecksum) {
		t.Fatalf("patched payload: %v, want checksum error", lastErr)
	}
}

func TestSysEx_OutOfOrderChunkRejected(t *testing.T) {
	snap := FactoryPreset(0)
	bodies := dumpBodies(t, BuildDump(EncodeSnapshot(&snap)))

	var asm dumpAssembler
	if _, err := asm.feed(bodies[1]); !errors.Is(err, ErrSysExSequence) {
		t.Fatalf("out-of-order chunk: %v, want sequence error", err)
	}
}

func TestSysEx_ForeignTrafficIgnored(t *testing.T) {
	cases := [][]byte{
		{SYSEX_START, 0x3E, 0x13, 0x00, SYSEX_END},          // Another vendor
		{SYSEX_START, SYSEX_VENDOR, 0x7F, 0x01, SYSEX_END},  // Another model
		{SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL},            // No terminator
		{0x90, 0x3C, 0x64},                                  // Not SysEx at all
	}
	for i, c := range cases {
		if _, _, err := ParseSysEx(c); !errors.Is(err, ErrSysExFraming) {
			t.Fatalf("case %d accepted: %v", i, err)
		}
	}
}

func TestSysEx_AckNackRoundTrip(t *testing.T) {
	cmd, body, err := ParseSysEx(BuildAck(SYX_CMD_STORE))
	if err != nil || cmd != SYX_CMD_ACK || len(body) != 1 || body[0] != SYX_CMD_STORE {
		t.Fatalf("ack = %v %v %v", cmd, body, err)
	}

	cmd, body, err = ParseSysEx(BuildNack(SYX_CMD_DUMP_DATA, SYX_ERR_BAD_CHECKSUM))
	if err != nil || cmd != SYX_CMD_NACK || len(body) != 2 {
		t.Fatalf("nack = %v %v %v", cmd, body, err)
	}
	if body[0] != SYX_CMD_DUMP_DATA || body[1] != SYX_ERR_BAD_CHECKSUM {
		t.Fatalf("nack body = %v", body)
	}
}
