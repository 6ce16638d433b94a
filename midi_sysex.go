// midi_sysex.go - SysEx preset dump/restore protocol

package main

import (
	"errors"
	"fmt"
)

// Frame layout: F0 7D 01 <cmd> <body...> F7. Vendor 0x7D is the MIDI
// non-commercial/educational ID. Everything between the command byte and F7
// must stay 7-bit clean, so snapshot payloads travel nibble-encoded.
const (
	SYSEX_START  = 0xF0
	SYSEX_END    = 0xF7
	SYSEX_VENDOR = 0x7D
	SYSEX_MODEL  = 0x01

	SYX_CMD_DUMP_REQUEST = 0x01 // host->device: send me the current patch
	SYX_CMD_DUMP_DATA    = 0x02 // either direction: one chunk of a patch
	SYX_CMD_STORE        = 0x03 // host->device: save current patch to a slot
	SYX_CMD_ACK          = 0x04 // device->host: {cmd}
	SYX_CMD_NACK         = 0x05 // device->host: {cmd, error code}

	SYX_ERR_BAD_LENGTH   = 0x01
	SYX_ERR_BAD_CHECKSUM = 0x02
	SYX_ERR_BAD_SLOT     = 0x03
	SYX_ERR_BAD_SEQUENCE = 0x04
	SYX_ERR_BAD_PAYLOAD  = 0x05
	SYX_ERR_STORE_FAILED = 0x06

	// Decoded bytes per dump chunk. Keeps every frame under 128 wire bytes,
	// which even the cheapest USB-MIDI interfaces pass through intact.
	SYSEX_CHUNK_BYTES = 48
)

var (
	ErrSysExFraming  = errors.New("sysex: bad framing")
	ErrSysExChecksum = errors.New("sysex: checksum mismatch")
	ErrSysExSequence = errors.New("sysex: chunk out of sequence")
)

// sysexChecksum is the additive 7-bit checksum used by chunk trailers and the
// whole-payload trailer.
func sysexChecksum(data []byte) byte {
	var chk byte
	for _, b := range data {
		chk = (chk + b) & 0x7F
	}
	return chk
}

// nibbleEncode splits each byte into two 7-bit-safe nibbles, high first.
func nibbleEncode(src []byte) []byte {
	out := make([]byte, 0, len(src)*2)
	for _, b := range src {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

func nibbleDecode(src []byte) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("sysex: odd nibble count %d", len(src))
	}
	out := make([]byte, 0, len(src)/2)
	for i := 0; i < len(src); i += 2 {
		hi, lo := src[i], src[i+1]
		if hi > 0x0F || lo > 0x0F {
			return nil, fmt.Errorf("sysex: byte %#02x is not a nibble", max(hi, lo))
		}
		out = append(out, hi<<4|lo)
	}
	return out, nil
}

// ParseSysEx strips the framing and returns the command byte plus its body.
// Frames for other vendors or models are not an error for the caller to
// report; they return ErrSysExFraming and get ignored.
func ParseSysEx(msg []byte) (byte, []byte, error) {
	if len(msg) < 5 || msg[0] != SYSEX_START || msg[len(msg)-1] != SYSEX_END {
		return 0, nil, ErrSysExFraming
	}
	if msg[1] != SYSEX_VENDOR || msg[2] != SYSEX_MODEL {
		return 0, nil, ErrSysExFraming
	}
	return msg[3], msg[4 : len(msg)-1], nil
}

// BuildDumpRequest asks the device for its current patch.
func BuildDumpRequest() []byte {
	return []byte{SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL, SYX_CMD_DUMP_REQUEST, SYSEX_END}
}

// BuildStore asks the device to persist its current patch into slot.
func BuildStore(slot uint8) []byte {
	return []byte{SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL, SYX_CMD_STORE, slot & 0x7F, SYSEX_END}
}

func BuildAck(cmd byte) []byte {
	return []byte{SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL, SYX_CMD_ACK, cmd & 0x7F, SYSEX_END}
}

func BuildNack(cmd, errCode byte) []byte {
	return []byte{SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL, SYX_CMD_NACK, cmd & 0x7F, errCode & 0x7F, SYSEX_END}
}

// BuildDump splits an encoded snapshot into dump-data frames. The payload
// gains a whole-payload checksum byte before chunking; each frame carries
// {chunk index, chunk count, nibble-encoded bytes, chunk checksum} where the
// chunk checksum covers index, count and the nibbles.
func BuildDump(payload []byte) [][]byte {
	full := make([]byte, 0, len(payload)+1)
	full = append(full, payload...)
	full = append(full, sysexChecksum(payload))

	count := (len(full) + SYSEX_CHUNK_BYTES - 1) / SYSEX_CHUNK_BYTES
	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		chunk := full[i*SYSEX_CHUNK_BYTES : min((i+1)*SYSEX_CHUNK_BYTES, len(full))]
		body := make([]byte, 0, 3+len(chunk)*2+1)
		body = append(body, byte(i), byte(count))
		body = append(body, nibbleEncode(chunk)...)
		body = append(body, sysexChecksum(body))

		frame := make([]byte, 0, len(body)+5)
		frame = append(frame, SYSEX_START, SYSEX_VENDOR, SYSEX_MODEL, SYX_CMD_DUMP_DATA)
		frame = append(frame, body...)
		frame = append(frame, SYSEX_END)
		frames = append(frames, frame)
	}
	return frames
}

// dumpAssembler reassembles incoming dump-data chunks into one snapshot
// payload. Chunks must arrive in order; any defect resets the assembler so a
// retried transfer starts clean.
type dumpAssembler struct {
	buf      []byte
	next     int
	expected int
}

func (da *dumpAssembler) reset() {
	da.buf = da.buf[:0]
	da.next = 0
	da.expected = 0
}

// feed consumes one dump-data body. It returns the complete verified payload
// once the last chunk lands, nil while the transfer is still in progress, or
// an error (after resetting) when the chunk is unusable.
func (da *dumpAssembler) feed(body []byte) ([]byte, error) {
	if len(body) < 4 {
		da.reset()
		return nil, fmt.Errorf("%w: chunk body too short", ErrSysExFraming)
	}
	idx, count := int(body[0]), int(body[1])
	chk := body[len(body)-1]
	if sysexChecksum(body[:len(body)-1]) != chk {
		da.reset()
		return nil, ErrSysExChecksum
	}
	if count == 0 || idx != da.next || (da.next > 0 && count != da.expected) {
		da.reset()
		return nil, ErrSysExSequence
	}
	decoded, err := nibbleDecode(body[2 : len(body)-1])
	if err != nil {
		da.reset()
		return nil, err
	}

	da.buf = append(da.buf, decoded...)
	da.next++
	da.expected = count
	if da.next < count {
		return nil, nil
	}

	// Last chunk: verify the whole-payload trailer.
	full := da.buf
	da.buf = nil
	da.reset()
	if len(full) < 2 {
		return nil, fmt.Errorf("%w: payload too short", ErrSysExFraming)
	}
	payload, trailer := full[:len(full)-1], full[len(full)-1]
	if sysexChecksum(payload) != trailer {
		return nil, ErrSysExChecksum
	}
	return payload, nil
}
