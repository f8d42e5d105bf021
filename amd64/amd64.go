// x86-64 processor support
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package amd64 provides the bootstrap-processor glue this kernel needs:
// bringing up the Local APIC, reserving IDT vectors for the xHCI MSI, and
// parking the idle goroutine in `hlt` until an interrupt wakes it.
//
// This package is only meant to be used with a tamago-style bare metal Go
// runtime (`GOOS=tamago GOARCH=amd64`), adapted from the tamago amd64
// package: SMP bring-up, timers and CPUID feature probing are dropped since
// this kernel is explicitly single-core and does not need a wall clock (see
// the Non-goals in the core specification).
package amd64

import (
	"runtime"

	"github.com/ocadaruma/rumikan/amd64/lapic"
	"github.com/ocadaruma/rumikan/internal/reg"
)

// Peripheral registers.
const (
	// Keyboard controller port, used for a last-resort CPU reset.
	KBD_PORT = 0x64
	// Intel Local Advanced Programmable Interrupt Controller physical
	// base address.
	LAPIC_BASE = 0xfee00000
)

// defined in amd64.s
func halt()

// CPU represents the Bootstrap Processor (BSP) instance.
type CPU struct {
	// LAPIC represents the Local APIC instance.
	LAPIC *lapic.LAPIC
}

// Init performs minimal bootstrap-processor initialization: it wires the Go
// runtime idle hook to the `hlt` instruction (the mainline "halts via hlt"
// requirement from the concurrency model) and constructs the Local APIC
// accessor.
func (cpu *CPU) Init() {
	runtime.Idle = func(pollUntil int64) {
		halt()
	}

	cpu.LAPIC = &lapic.LAPIC{
		Base: LAPIC_BASE,
	}
}

// Halt suspends execution until an interrupt is received.
func (cpu *CPU) Halt() {
	halt()
}

// Reset resets the CPU via an 8042 keyboard controller pulse.
func (cpu *CPU) Reset() {
	reg.Out8(KBD_PORT, 0xfe)
}
