// Intel Advanced Programmable Interrupt Controller (APIC) driver
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package lapic implements the minimal Local APIC register access needed to
// identify the Bootstrap Processor and to acknowledge an interrupt at the
// end of its service routine.
//
// Adapted from the tamago amd64/lapic driver, trimmed to the BSP
// identification, enable and end-of-interrupt operations the xhci interrupt
// handler relies on (IPI/timer/version register access are not needed by a
// single-core, non-SMP kernel and are dropped rather than carried unused).
package lapic

import (
	"github.com/ocadaruma/rumikan/internal/reg"
)

// LAPIC registers, offsets relative to Base.
const (
	LAPIC_ID = 0x20
	ID       = 24

	LAPIC_EOI = 0xb0

	LAPIC_SVR  = 0xf0
	SVR_ENABLE = 8
)

// LAPIC represents a Local APIC instance.
type LAPIC struct {
	// Base is the physical MMIO base address of the Local APIC
	// (0xFEE0_0000 on a standard PC/UEFI platform).
	Base uintptr
}

// ID returns the LAPIC identification register, its upper bits hold the
// BSP's APIC ID (physical address 0xFEE0_0020).
func (io *LAPIC) ID() uint32 {
	return reg.Get(io.Base+LAPIC_ID, ID, 0xff)
}

// Enable enables the Local APIC by setting the Spurious Interrupt Vector
// register's software-enable bit.
func (io *LAPIC) Enable() {
	reg.Set(io.Base+LAPIC_SVR, SVR_ENABLE)
}

// ClearInterrupt signals the end of an interrupt handling routine by writing
// zero to the EOI register (physical address 0xFEE0_00B0).
func (io *LAPIC) ClearInterrupt() {
	reg.Write(io.Base+LAPIC_EOI, 0)
}
