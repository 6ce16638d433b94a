// preset_store_test.go - Flash persistence, corruption fallback and power-loss safety

package main

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// memDevice is a RAM-backed BlockDevice.
type memDevice struct {
	data []byte
}

func newMemDevice() *memDevice {
	return &memDevice{data: make([]byte, FLASH_REGION_SIZE)}
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, fmt.Errorf("read past end of device")
	}
	return copy(p, d.data[off:]), nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(d.data)) {
		return 0, fmt.Errorf("write past end of device")
	}
	return copy(d.data[off:], p), nil
}

func (d *memDevice) Sync() error { return nil }

func (d *memDevice) clone() *memDevice {
	c := newMemDevice()
	copy(c.data, d.data)
	return c
}

var errPowerCut = errors.New("power cut")

// cutDevice applies writes byte-for-byte until its budget runs out, then
// fails. Each budget value simulates losing power at one exact byte offset
// into a save.
type cutDevice struct {
	*memDevice
	budget int
}

func (d *cutDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.budget <= 0 {
		return 0, errPowerCut
	}
	if len(p) > d.budget {
		n, _ := d.memDevice.WriteAt(p[:d.budget], off)
		d.budget = 0
		return n, errPowerCut
	}
	d.budget -= len(p)
	return d.memDevice.WriteAt(p, off)
}

func (d *cutDevice) Sync() error {
	if d.budget <= 0 {
		return errPowerCut
	}
	return nil
}

func formattedDevice(t *testing.T) *memDevice {
	t.Helper()
	dev := newMemDevice()
	if err := NewFlashStore(dev).Init(); err != nil {
		t.Fatalf("format fresh device: %v", err)
	}
	return dev
}

func TestFlashStore_FreshDeviceGetsFactoryBank(t *testing.T) {
	store := NewFlashStore(formattedDevice(t))

	for slot, want := range FactoryPresets() {
		got, err := store.Load(slot)
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		if got != want {
			t.Fatalf("slot %d = %q, want %q", slot, got.Name, want.Name)
		}
	}

	// Slots past the factory bank read as the init patch.
	got, err := store.Load(PRESET_SLOTS - 1)
	if err != nil {
		t.Fatalf("empty slot: %v", err)
	}
	if got != DefaultSnapshot() {
		t.Fatalf("empty slot = %q, want init patch", got.Name)
	}
}

func TestFlashStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewFlashStore(formattedDevice(t))

	snap := DefaultSnapshot()
	snap.Name = "Test Patch"
	snap.Filter.Cutoff = 1234.5

	if err := store.Save(3, &snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != snap {
		t.Fatal("loaded patch differs from saved")
	}

	// Load is idempotent.
	again, _ := store.Load(3)
	if again != got {
		t.Fatal("second load differs from first")
	}
}

func TestFlashStore_RepeatedSavesAlternateBanks(t *testing.T) {
	store := NewFlashStore(formattedDevice(t))

	for i := 0; i < 6; i++ {
		snap := DefaultSnapshot()
		snap.Name = fmt.Sprintf("Rev %d", i)
		if err := store.Save(0, &snap); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		got, err := store.Load(0)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if got.Name != snap.Name {
			t.Fatalf("after save %d loaded %q", i, got.Name)
		}
	}
}

func TestFlashStore_BadSlotRejected(t *testing.T) {
	store := NewFlashStore(formattedDevice(t))
	snap := DefaultSnapshot()

	if err := store.Save(PRESET_SLOTS, &snap); !errors.Is(err, ErrBadSlot) {
		t.Fatalf("save slot %d: %v", PRESET_SLOTS, err)
	}
	if err := store.Save(-1, &snap); !errors.Is(err, ErrBadSlot) {
		t.Fatalf("save slot -1: %v", err)
	}
	if _, err := store.Load(PRESET_SLOTS); !errors.Is(err, ErrBadSlot) {
		t.Fatalf("load slot %d: %v", PRESET_SLOTS, err)
	}
}

func TestFlashStore_CorruptBankFallsBackToOther(t *testing.T) {
	dev := formattedDevice(t)
	store := NewFlashStore(dev)

	snap := DefaultSnapshot()
	snap.Name = "Survivor"
	if err := store.Save(1, &snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Flip bits in whichever bank just became authoritative.
	for bank := 0; bank < 2; bank++ {
		probe := dev.clone()
		off := bankOffset(1, bank)
		probe.data[off+bankHeaderSize+4] ^= 0xFF

		got, err := NewFlashStore(probe).Load(1)
		if err != nil {
			t.Fatalf("bank %d corrupt: %v", bank, err)
		}
		if got.Name != "Survivor" && got != FactoryPreset(1) {
			t.Fatalf("bank %d corrupt: loaded %q", bank, got.Name)
		}
	}
}

func TestFlashStore_BothBanksCorruptYieldsFactory(t *testing.T) {
	dev := formattedDevice(t)
	store := NewFlashStore(dev)

	snap := DefaultSnapshot()
	snap.Name = "Doomed"
	store.Save(1, &snap)
	store.Save(1, &snap) // Occupy both banks

	for bank := 0; bank < 2; bank++ {
		off := bankOffset(1, bank)
		dev.data[off+bankHeaderSize+4] ^= 0xFF
	}

	got, err := store.Load(1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != FactoryPreset(1) {
		t.Fatalf("loaded %q, want the factory patch", got.Name)
	}
}

// TestFlashStore_ConcurrentSavesStaySerialized hammers one slot from two
// goroutines. The save path is reachable from both the MIDI listener and the
// monitor console, so the read-pick-write bank rotation has to hold up under
// the race detector, and the slot must always read back as one of the patches
// actually saved.
func TestFlashStore_ConcurrentSavesStaySerialized(t *testing.T) {
	store := NewFlashStore(formattedDevice(t))

	first := DefaultSnapshot()
	first.Name = "Writer A"
	second := DefaultSnapshot()
	second.Name = "Writer B"

	var wg sync.WaitGroup
	for _, snap := range []ParameterSnapshot{first, second} {
		snap := snap
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := store.Save(3, &snap); err != nil {
					t.Errorf("save %q: %v", snap.Name, err)
					return
				}
				if got, err := store.Load(3); err != nil || (got != first && got != second) {
					t.Errorf("load mid-race: %q %v", got.Name, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := store.Load(3)
	if err != nil {
		t.Fatalf("final load: %v", err)
	}
	if got != first && got != second {
		t.Fatalf("slot 3 read back as %q", got.Name)
	}
}

// TestFlashStore_PowerLossAtEveryByte interrupts a save at every possible
// byte offset and verifies the slot always reads back as either the old or
// the new patch - never garbage, never the factory fallback.
func TestFlashStore_PowerLossAtEveryByte(t *testing.T) {
	base := formattedDevice(t)

	old := DefaultSnapshot()
	old.Name = "Old Patch"
	if err := NewFlashStore(base).Save(2, &old); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	newer := DefaultSnapshot()
	newer.Name = "New Patch"
	newer.Filter.Cutoff = 777

	// Measure the full write footprint of an uninterrupted save.
	probe := &cutDevice{memDevice: base.clone(), budget: 1 << 20}
	if err := NewFlashStore(probe).Save(2, &newer); err != nil {
		t.Fatalf("probe save: %v", err)
	}
	footprint := 1<<20 - probe.budget

	for cut := 0; cut <= footprint; cut++ {
		dev := &cutDevice{memDevice: base.clone(), budget: cut}
		err := NewFlashStore(dev).Save(2, &newer)
		if cut < footprint && err == nil {
			t.Fatalf("cut %d: save reported success with writes missing", cut)
		}

		got, loadErr := NewFlashStore(dev.memDevice).Load(2)
		if loadErr != nil {
			t.Fatalf("cut %d: load: %v", cut, loadErr)
		}
		if got != old && got != newer {
			t.Fatalf("cut %d: slot read back as %q", cut, got.Name)
		}
		if err == nil && got != newer {
			t.Fatalf("cut %d: save succeeded but old patch persisted", cut)
		}
	}
}
