// preset_store.go - Power-loss-safe preset persistence on a flash image

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Flash layout: a fixed 64 KiB region holding a region header followed by
// PRESET_SLOTS slots. Each slot owns two banks; a save always writes the
// bank that is not currently authoritative, payload first and header last,
// so a power cut at any byte offset leaves at most one torn bank and the
// other one intact. Validity is decided purely by {magic, CRC}; the bank
// with the higher sequence number wins. This rotates writes across both
// banks, which also halves erase wear on real flash.
const (
	FLASH_MAGIC       = 0x50445350 // "PDSP"
	FLASH_REGION_SIZE = 64 * 1024
	FLASH_VERSION     = 1

	PRESET_SLOTS = 8
	SLOT_STRIDE  = 4096
	BANK_SIZE    = 2048
	SLOT_BASE    = 256 // Region header lives below this offset

	bankHeaderSize = 16 // magic u32, seq u32, version u8, pad u8, length u16, crc u32
	maxPayloadSize = BANK_SIZE - bankHeaderSize
)

var (
	ErrBadSlot     = errors.New("preset store: slot out of range")
	ErrPayloadSize = errors.New("preset store: snapshot too large for bank")
)

// BlockDevice is the flash abstraction: positioned reads and writes plus a
// barrier. os.File satisfies it; tests substitute devices that fail or stop
// mid-write to simulate power loss.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}

// FlashStore persists ParameterSnapshots in the flash region. All methods run
// on the control domain; the audio core touches the store exactly once, for
// the synchronous boot-snapshot load before rendering starts. The mutex
// serializes the read-pick-write bank rotation against itself: the save path
// is reachable from both the MIDI listener (SysEx store) and the monitor
// console, and two interleaved saves could otherwise target the same bank.
type FlashStore struct {
	mu  sync.Mutex
	dev BlockDevice
}

func NewFlashStore(dev BlockDevice) *FlashStore {
	return &FlashStore{dev: dev}
}

// OpenFlashImage opens (creating and sizing if needed) a file-backed flash
// image and returns the store plus a close func.
func OpenFlashImage(path string) (*FlashStore, func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("preset store: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("preset store: stat %s: %w", path, err)
	}
	if info.Size() < FLASH_REGION_SIZE {
		if err := f.Truncate(FLASH_REGION_SIZE); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("preset store: size %s: %w", path, err)
		}
	}
	store := NewFlashStore(f)
	if err := store.Init(); err != nil {
		f.Close()
		return nil, nil, err
	}
	return store, f.Close, nil
}

// Init validates the region header and formats the region when the magic or
// version does not match, seeding the factory bank.
func (s *FlashStore) Init() error {
	var hdr [8]byte
	if _, err := s.dev.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("preset store: read region header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:])
	version := binary.LittleEndian.Uint32(hdr[4:])
	if magic == FLASH_MAGIC && version == FLASH_VERSION {
		return nil
	}
	return s.Format()
}

// Format wipes the region and writes the factory presets. Used at first boot
// and on version mismatch.
func (s *FlashStore) Format() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zero := make([]byte, FLASH_REGION_SIZE)
	if _, err := s.dev.WriteAt(zero, 0); err != nil {
		return fmt.Errorf("preset store: erase region: %w", err)
	}
	for slot, preset := range FactoryPresets() {
		if err := s.save(slot, &preset); err != nil {
			return err
		}
	}
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], FLASH_MAGIC)
	binary.LittleEndian.PutUint32(hdr[4:], FLASH_VERSION)
	if _, err := s.dev.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("preset store: write region header: %w", err)
	}
	return s.dev.Sync()
}

func bankOffset(slot, bank int) int64 {
	return int64(SLOT_BASE + slot*SLOT_STRIDE + bank*BANK_SIZE)
}

type bankInfo struct {
	valid   bool
	seq     uint32
	payload []byte
}

// readBank validates one bank. Any defect - bad magic, bad length, CRC
// mismatch, short read - yields an invalid bank, never an error that could
// propagate into the audio path.
func (s *FlashStore) readBank(slot, bank int) bankInfo {
	buf := make([]byte, BANK_SIZE)
	if _, err := s.dev.ReadAt(buf, bankOffset(slot, bank)); err != nil {
		return bankInfo{}
	}
	if binary.LittleEndian.Uint32(buf[0:]) != FLASH_MAGIC {
		return bankInfo{}
	}
	seq := binary.LittleEndian.Uint32(buf[4:])
	version := buf[8]
	length := int(binary.LittleEndian.Uint16(buf[10:]))
	crc := binary.LittleEndian.Uint32(buf[12:])
	if version == 0 || length == 0 || length > maxPayloadSize {
		return bankInfo{}
	}
	payload := buf[bankHeaderSize : bankHeaderSize+length]
	if crc32.ChecksumIEEE(payload) != crc {
		return bankInfo{}
	}
	return bankInfo{valid: true, seq: seq, payload: payload}
}

// Load returns the newest committed snapshot for slot. Corruption is not an
// error condition for the caller: a slot with no valid bank simply reads as
// its factory preset.
func (s *FlashStore) Load(slot int) (ParameterSnapshot, error) {
	if slot < 0 || slot >= PRESET_SLOTS {
		return DefaultSnapshot(), ErrBadSlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.readBank(slot, 0)
	b := s.readBank(slot, 1)

	best := a
	if b.valid && (!a.valid || b.seq > a.seq) {
		best = b
	}
	if !best.valid {
		return FactoryPreset(slot), nil
	}
	snap, err := DecodeSnapshot(best.payload)
	if err != nil {
		return FactoryPreset(slot), nil
	}
	return snap, nil
}

// Save commits snap to slot using the write-new-then-commit discipline:
// the payload lands in the stale bank first, then a single header write with
// a bumped sequence number makes it authoritative. The previously valid bank
// is untouched until the next save to the same slot.
func (s *FlashStore) Save(slot int, snap *ParameterSnapshot) error {
	if slot < 0 || slot >= PRESET_SLOTS {
		return ErrBadSlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(slot, snap)
}

func (s *FlashStore) save(slot int, snap *ParameterSnapshot) error {
	payload := EncodeSnapshot(snap)
	if len(payload) > maxPayloadSize {
		return ErrPayloadSize
	}

	a := s.readBank(slot, 0)
	b := s.readBank(slot, 1)

	// Target the bank that is not currently authoritative.
	target := 0
	newSeq := uint32(1)
	if a.valid || b.valid {
		if a.valid && (!b.valid || a.seq > b.seq) {
			target = 1
			newSeq = a.seq + 1
		} else {
			target = 0
			newSeq = b.seq + 1
		}
	}

	off := bankOffset(slot, target)

	// Invalidate the target's stale header before touching its payload, so
	// a torn payload write can never pair with an old-but-plausible header.
	var zeroHdr [bankHeaderSize]byte
	if _, err := s.dev.WriteAt(zeroHdr[:], off); err != nil {
		return fmt.Errorf("preset store: clear bank header: %w", err)
	}
	if _, err := s.dev.WriteAt(payload, off+bankHeaderSize); err != nil {
		return fmt.Errorf("preset store: write payload: %w", err)
	}
	if err := s.dev.Sync(); err != nil {
		return fmt.Errorf("preset store: sync payload: %w", err)
	}

	// Commit point: one header write flips authority to the new bank.
	var hdr [bankHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], FLASH_MAGIC)
	binary.LittleEndian.PutUint32(hdr[4:], newSeq)
	hdr[8] = SNAPSHOT_VERSION
	binary.LittleEndian.PutUint16(hdr[10:], uint16(len(payload)))
	binary.LittleEndian.PutUint32(hdr[12:], crc32.ChecksumIEEE(payload))
	if _, err := s.dev.WriteAt(hdr[:], off); err != nil {
		return fmt.Errorf("preset store: commit header: %w", err)
	}
	if err := s.dev.Sync(); err != nil {
		return fmt.Errorf("preset store: sync commit: %w", err)
	}
	return nil
}
