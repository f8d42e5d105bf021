// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"testing"
	"unsafe"
)

func TestReg32UpdateReadModifyWrite(t *testing.T) {
	var word uint32
	r := reg32[USBCMD]{addr: uintptr(unsafe.Pointer(&word))}

	r.Update(func(v *USBCMD) { v.SetRunStop(true) })
	if word&1 != 1 {
		t.Fatalf("backing word = %#x, want Run/Stop bit set", word)
	}

	r.Update(func(v *USBCMD) { v.SetInterrupterEnable(true) })
	if word&1 == 0 {
		t.Fatal("Update should preserve previously set bits")
	}
	if word&(1<<2) == 0 {
		t.Fatal("Update should apply the new field")
	}
}

func TestReg64UpdateReadModifyWrite(t *testing.T) {
	var word uint64
	r := reg64[CRCR]{addr: uintptr(unsafe.Pointer(&word))}

	r.Update(func(v *CRCR) {
		v.SetRingCycleState(true)
		v.SetCommandRingPointer(0x1000)
	})

	if word&1 == 0 {
		t.Fatal("Ring Cycle State bit should be set")
	}
	if word>>6<<6 == 0 {
		t.Fatal("Command Ring Pointer field should be nonzero")
	}
}

func TestRequestHCOwnershipNoExtendedCapabilities(t *testing.T) {
	// When HCCPARAMS1's Extended Capabilities Pointer is zero, NewRegisters
	// records an unset extCapBase and RequestHCOwnership must not walk into
	// unmapped memory.
	mmio := make([]byte, 0x40)
	base := uintptr(unsafe.Pointer(&mmio[0]))

	mmio[0] = 0x20 // CAPLENGTH

	regs := NewRegisters(base)
	regs.RequestHCOwnership() // must return immediately, not hang or fault
}

func TestPORTSCResetPreservesPowerBit(t *testing.T) {
	var v PORTSC
	v = 1 << 9 // Port Power already set

	v.Reset()

	if v&(1<<9) == 0 {
		t.Fatal("Reset should preserve Port Power")
	}
	if v&(1<<4) == 0 {
		t.Fatal("Reset should request a port reset (bit 4)")
	}
}
