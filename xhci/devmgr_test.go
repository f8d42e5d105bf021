// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"testing"

	"github.com/ocadaruma/rumikan/pool"
)

type fakeDoorbell struct {
	rings int
}

func (f *fakeDoorbell) Ring(slot uint8, target uint8, streamID uint16) { f.rings++ }

func TestDeviceManagerAllocateAndFind(t *testing.T) {
	pool.Reset()
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}

	dev, err := m.AllocateDevice(1, &fakeDoorbell{})
	if err != nil {
		t.Fatalf("AllocateDevice: %v", err)
	}
	if dev.SlotID != 1 {
		t.Fatalf("SlotID = %d, want 1", dev.SlotID)
	}

	got, err := m.FindBySlot(1)
	if err != nil {
		t.Fatalf("FindBySlot: %v", err)
	}
	if got != dev {
		t.Fatal("FindBySlot should return the same *UsbDevice AllocateDevice built")
	}

	if m.dcbaa[1] == 0 {
		t.Fatal("DCBAA entry for slot 1 should point at the allocated Device Context")
	}
}

func TestDeviceManagerRejectsDoubleAllocation(t *testing.T) {
	pool.Reset()
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}

	if _, err := m.AllocateDevice(2, &fakeDoorbell{}); err != nil {
		t.Fatalf("AllocateDevice: %v", err)
	}
	if _, err := m.AllocateDevice(2, &fakeDoorbell{}); err == nil {
		t.Fatal("expected an error allocating an already-allocated slot")
	}
}

func TestDeviceManagerRejectsInvalidSlot(t *testing.T) {
	pool.Reset()
	m, err := NewDeviceManager()
	if err != nil {
		t.Fatalf("NewDeviceManager: %v", err)
	}

	if _, err := m.FindBySlot(0); err == nil {
		t.Fatal("expected an error for reserved slot 0")
	}
	if _, err := m.FindBySlot(NumDeviceSlots + 1); err == nil {
		t.Fatal("expected an error for a slot beyond NumDeviceSlots")
	}
	if _, err := m.FindBySlot(3); err == nil {
		t.Fatal("expected an error for a slot that was never allocated")
	}
}
