// xHCI MMIO register layout
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"github.com/ocadaruma/rumikan/bits"
	"github.com/ocadaruma/rumikan/internal/reg"
)

// reg32 is a 32-bit MMIO register accessed through volatile whole-register
// load/store; every typed register wrapper below embeds one instead of
// touching memory directly, so a field mutation is always one read, one
// modify, one write (see Update).
type reg32[T ~uint32] struct {
	addr uintptr
}

func (r reg32[T]) Read() T       { return T(reg.Read(r.addr)) }
func (r reg32[T]) Write(v T)     { reg.Write(r.addr, uint32(v)) }
func (r reg32[T]) Update(fn func(*T)) {
	v := r.Read()
	fn(&v)
	r.Write(v)
}

// reg64 is the 64-bit counterpart of reg32, used by the pointer-valued
// registers (CRCR, DCBAAP, ERSTBA, ERDP).
type reg64[T ~uint64] struct {
	addr uintptr
}

func (r reg64[T]) Read() T   { return T(reg.Read64(r.addr)) }
func (r reg64[T]) Write(v T) { reg.Write64(r.addr, uint64(v)) }
func (r reg64[T]) Update(fn func(*T)) {
	v := r.Read()
	fn(&v)
	r.Write(v)
}

// HCSPARAMS1 — Structural Parameters 1 (xHCI Specification Revision 1.2,
// 5.3.3).
type HCSPARAMS1 uint32

func (v HCSPARAMS1) MaxDeviceSlots() uint8 { return uint8(bits.GetN((*uint32)(&v), 0, 0xff)) }
func (v HCSPARAMS1) MaxPorts() uint8       { return uint8(bits.GetN((*uint32)(&v), 24, 0xff)) }

// HCCPARAMS1 — Capability Parameters 1 (xHCI Specification Revision 1.2,
// 5.3.6).
type HCCPARAMS1 uint32

func (v HCCPARAMS1) ExtendedCapabilitiesPointer() uint16 {
	return uint16(bits.GetN((*uint32)(&v), 16, 0xffff))
}

// DBOFF — Doorbell Offset (xHCI Specification Revision 1.2, 5.3.7).
type DBOFF uint32

func (v DBOFF) ArrayOffset() uint32 { return bits.GetN((*uint32)(&v), 2, 0x3fffffff) << 2 }

// RTSOFF — Runtime Register Space Offset (xHCI Specification Revision 1.2,
// 5.3.8).
type RTSOFF uint32

func (v RTSOFF) Offset() uint32 { return bits.GetN((*uint32)(&v), 5, 0x7ffffff) << 5 }

// CapabilityRegisters is the read-only Host Controller Capability Register
// set at the xHC's MMIO base (xHCI Specification Revision 1.2, 5.3).
type CapabilityRegisters struct {
	base uintptr
}

func (c CapabilityRegisters) CapLength() uint8 {
	return uint8(reg.Read(c.base) & 0xff)
}
func (c CapabilityRegisters) HCSPARAMS1() HCSPARAMS1 {
	return HCSPARAMS1(reg.Read(c.base + 0x04))
}
func (c CapabilityRegisters) HCCPARAMS1() HCCPARAMS1 {
	return HCCPARAMS1(reg.Read(c.base + 0x10))
}
func (c CapabilityRegisters) DBOFF() DBOFF {
	return DBOFF(reg.Read(c.base + 0x14))
}
func (c CapabilityRegisters) RTSOFF() RTSOFF {
	return RTSOFF(reg.Read(c.base + 0x18))
}

// USBCMD — USB Command Register (xHCI Specification Revision 1.2, 5.4.1).
type USBCMD uint32

func (v *USBCMD) SetRunStop(b bool)               { bits.SetTo((*uint32)(v), 0, b) }
func (v USBCMD) HostControllerReset() bool        { return bits.Get((*uint32)(&v), 1) }
func (v *USBCMD) SetHostControllerReset(b bool)   { bits.SetTo((*uint32)(v), 1, b) }
func (v *USBCMD) SetInterrupterEnable(b bool)     { bits.SetTo((*uint32)(v), 2, b) }
func (v *USBCMD) SetHostSystemErrorEnable(b bool) { bits.SetTo((*uint32)(v), 3, b) }

// USBSTS — USB Status Register (xHCI Specification Revision 1.2, 5.4.2).
type USBSTS uint32

func (v USBSTS) HCHalted() bool         { return bits.Get((*uint32)(&v), 0) }
func (v USBSTS) ControllerNotReady() bool { return bits.Get((*uint32)(&v), 11) }

// CRCR — Command Ring Control Register (xHCI Specification Revision 1.2,
// 5.4.5).
type CRCR uint64

func (v *CRCR) SetRingCycleState(b bool) { bits.SetTo64((*uint64)(v), 0, b) }
func (v *CRCR) SetCommandStop(b bool)    { bits.SetTo64((*uint64)(v), 1, b) }
func (v *CRCR) SetCommandAbort(b bool)   { bits.SetTo64((*uint64)(v), 2, b) }
func (v *CRCR) SetCommandRingPointer(ptr uint64) {
	bits.SetN64((*uint64)(v), 6, 0x3ffffffffffffff, ptr>>6)
}

// DCBAAP — Device Context Base Address Array Pointer Register (xHCI
// Specification Revision 1.2, 5.4.6).
type DCBAAP uint64

func (v *DCBAAP) SetPointer(ptr uint64) {
	bits.SetN64((*uint64)(v), 6, 0x3ffffffffffffff, ptr>>6)
}

// CONFIG — Configure Register (xHCI Specification Revision 1.2, 5.4.7).
type CONFIG uint32

func (v *CONFIG) SetMaxDeviceSlotsEnabled(n uint8) {
	bits.SetN((*uint32)(v), 0, 0xff, uint32(n))
}

// OperationalRegisters is the Host Controller Operational Register set at
// `base + CAPLENGTH` (xHCI Specification Revision 1.2, 5.4).
type OperationalRegisters struct {
	base uintptr
}

func (o OperationalRegisters) USBCMD() reg32[USBCMD]  { return reg32[USBCMD]{o.base + 0x00} }
func (o OperationalRegisters) USBSTS() reg32[USBSTS]  { return reg32[USBSTS]{o.base + 0x04} }
func (o OperationalRegisters) CRCR() reg64[CRCR]      { return reg64[CRCR]{o.base + 0x18} }
func (o OperationalRegisters) DCBAAP() reg64[DCBAAP]  { return reg64[DCBAAP]{o.base + 0x30} }
func (o OperationalRegisters) CONFIG() reg32[CONFIG]  { return reg32[CONFIG]{o.base + 0x38} }

// PORTSC — Port Status and Control Register (xHCI Specification Revision
// 1.2, 5.4.8).
type PORTSC uint32

func (v PORTSC) CurrentConnectStatus() bool { return bits.Get((*uint32)(&v), 0) }
func (v PORTSC) PortEnabled() bool          { return bits.Get((*uint32)(&v), 1) }
func (v PORTSC) PortReset() bool            { return bits.Get((*uint32)(&v), 4) }
func (v PORTSC) PortSpeed() uint8           { return uint8(bits.GetN((*uint32)(&v), 10, 0xf)) }
func (v PORTSC) PortResetChange() bool      { return bits.Get((*uint32)(&v), 21) }
func (v *PORTSC) SetPortResetChange(b bool) { bits.SetTo((*uint32)(v), 21, b) }

// Reset preserves read-only/RW1C-safe bits while requesting a port reset
// (Port Power stays set).
func (v *PORTSC) Reset() {
	*v &= 0x0e00c3e0
	*v |= 0x00020010
}

// ClearStatusBit preserves read-only/RW1C-safe bits while acknowledging the
// Port Reset Change event (the RW1C bit must be written 1 to clear it).
func (v *PORTSC) ClearStatusBit() {
	*v &= 0x0e01c3e0
	v.SetPortResetChange(true)
}

// PortRegisterSet is one root hub port's register block (xHCI
// Specification Revision 1.2, 5.4.8), 16 bytes wide.
type PortRegisterSet struct {
	base uintptr
}

func (p PortRegisterSet) PORTSC() reg32[PORTSC] { return reg32[PORTSC]{p.base} }

const portRegisterSetSize = 16

// IMAN — Interrupter Management Register (xHCI Specification Revision 1.2,
// 5.5.2.1).
type IMAN uint32

func (v *IMAN) SetInterruptPending(b bool) { bits.SetTo((*uint32)(v), 0, b) }
func (v *IMAN) SetInterruptEnable(b bool)  { bits.SetTo((*uint32)(v), 1, b) }

// ERSTSZ — Event Ring Segment Table Size Register (xHCI Specification
// Revision 1.2, 5.5.2.3.1).
type ERSTSZ uint32

func (v *ERSTSZ) SetSize(n uint16) { bits.SetN((*uint32)(v), 0, 0xffff, uint32(n)) }

// ERSTBA — Event Ring Segment Table Base Address Register (xHCI
// Specification Revision 1.2, 5.5.2.3.2).
type ERSTBA uint64

func (v *ERSTBA) SetBaseAddress(ptr uint64) {
	bits.SetN64((*uint64)(v), 6, 0x3ffffffffffffff, ptr>>6)
}

// ERDP — Event Ring Dequeue Pointer Register (xHCI Specification Revision
// 1.2, 5.5.2.3.3).
type ERDP uint64

func (v ERDP) DequeuePointer() uint64 {
	return bits.GetN64((*uint64)(&v), 4, 0xfffffffffffffff) << 4
}
func (v *ERDP) SetDequeuePointer(ptr uint64) {
	bits.SetN64((*uint64)(v), 4, 0xfffffffffffffff, ptr>>4)
}

// InterrupterRegisterSet is one Interrupter's register block (xHCI
// Specification Revision 1.2, 5.5.2), the primary interrupter (index 0) is
// the only one this kernel core uses.
type InterrupterRegisterSet struct {
	base uintptr
}

func (i InterrupterRegisterSet) IMAN() reg32[IMAN]   { return reg32[IMAN]{i.base + 0x00} }
func (i InterrupterRegisterSet) ERSTSZ() reg32[ERSTSZ] { return reg32[ERSTSZ]{i.base + 0x08} }
func (i InterrupterRegisterSet) ERSTBA() reg64[ERSTBA] { return reg64[ERSTBA]{i.base + 0x10} }
func (i InterrupterRegisterSet) ERDP() reg64[ERDP]   { return reg64[ERDP]{i.base + 0x18} }

const interrupterRegisterSetSize = 0x20

// Doorbell — Doorbell Register (xHCI Specification Revision 1.2, 5.6).
type Doorbell uint32

func (v *Doorbell) SetTarget(t uint8)     { bits.SetN((*uint32)(v), 0, 0xff, uint32(t)) }
func (v *Doorbell) SetStreamID(s uint16)  { bits.SetN((*uint32)(v), 16, 0xffff, uint32(s)) }

// DoorbellRegisterSet is the doorbell array, indexed by Device Slot ID
// (slot 0 is the command ring doorbell).
type DoorbellRegisterSet struct {
	base uintptr
}

func (d DoorbellRegisterSet) At(slot uint8) reg32[Doorbell] {
	return reg32[Doorbell]{d.base + uintptr(slot)*4}
}

// Ring writes the given endpoint target and stream id to slot's doorbell.
func (d DoorbellRegisterSet) Ring(slot uint8, target uint8, streamID uint16) {
	d.At(slot).Update(func(v *Doorbell) {
		v.SetTarget(target)
		v.SetStreamID(streamID)
	})
}

// Extended Capability IDs this kernel's ownership-handoff walk recognizes
// (xHCI Specification Revision 1.2, 7.2).
const extCapUSBLegacySupport = 1

// USBLEGSUP — USB Legacy Support Capability (xHCI Specification Revision
// 1.2, 7.2.1).
type USBLEGSUP uint32

func (v USBLEGSUP) HCBIOSOwnedSemaphore() bool    { return bits.Get((*uint32)(&v), 16) }
func (v USBLEGSUP) HCOSOwnedSemaphore() bool      { return bits.Get((*uint32)(&v), 24) }
func (v *USBLEGSUP) SetHCOSOwnedSemaphore(b bool) { bits.SetTo((*uint32)(v), 24, b) }

type extCapHeader uint32

func (v extCapHeader) ID() uint8          { return uint8(bits.GetN((*uint32)(&v), 0, 0xff)) }
func (v extCapHeader) NextPointer() uint8 { return uint8(bits.GetN((*uint32)(&v), 8, 0xff)) }

// Registers aggregates every MMIO register block this kernel core needs,
// computed once from the xHC's physical MMIO base address (xHCI
// Specification Revision 1.2, 5.2).
type Registers struct {
	Capability   CapabilityRegisters
	Operational  OperationalRegisters
	Doorbell     DoorbellRegisterSet
	Port         func(n int) PortRegisterSet
	Interrupter  func(n int) InterrupterRegisterSet
	extCapBase   uintptr
}

// NewRegisters computes every register block's base address from the xHC's
// MMIO base, following the offsets named in xHCI Specification Revision
// 1.2, 5.2 ("Host Controller Capability Registers" through "Extended
// Capabilities").
func NewRegisters(mmioBase uintptr) Registers {
	cap := CapabilityRegisters{base: mmioBase}
	opBase := mmioBase + uintptr(cap.CapLength())
	dbBase := mmioBase + uintptr(cap.DBOFF().ArrayOffset())
	rtBase := mmioBase + uintptr(cap.RTSOFF().Offset())
	portBase := opBase + 0x400

	extPtr := cap.HCCPARAMS1().ExtendedCapabilitiesPointer()
	var extCapBase uintptr
	if extPtr != 0 {
		extCapBase = mmioBase + uintptr(extPtr)<<2
	}

	return Registers{
		Capability:  cap,
		Operational: OperationalRegisters{base: opBase},
		Doorbell:    DoorbellRegisterSet{base: dbBase},
		Port: func(n int) PortRegisterSet {
			return PortRegisterSet{base: portBase + uintptr(n)*portRegisterSetSize}
		},
		Interrupter: func(n int) InterrupterRegisterSet {
			return InterrupterRegisterSet{base: rtBase + 0x20 + uintptr(n)*interrupterRegisterSetSize}
		},
		extCapBase: extCapBase,
	}
}

// RequestHCOwnership walks the Extended Capabilities chain looking for the
// USB Legacy Support capability and, if present, asks the BIOS to hand off
// ownership of the controller, spinning until it does (xHCI Specification
// Revision 1.2, 4.22.1).
func (r Registers) RequestHCOwnership() {
	off := r.extCapBase
	if off == 0 {
		return
	}

	for {
		hdr := extCapHeader(reg.Read(off))

		if hdr.ID() == extCapUSBLegacySupport {
			legsup := reg32[USBLEGSUP]{off}
			legsup.Update(func(v *USBLEGSUP) { v.SetHCOSOwnedSemaphore(true) })

			for {
				v := legsup.Read()
				if !v.HCBIOSOwnedSemaphore() && v.HCOSOwnedSemaphore() {
					break
				}
			}
		}

		next := hdr.NextPointer()
		if next == 0 {
			return
		}
		off += uintptr(next) << 2
	}
}
