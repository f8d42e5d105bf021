// Kernel entry point and external collaborator contracts
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rumikan is the kernel core: it brings up an xHCI USB 3 host
// controller behind a PCI function, drives device enumeration, and
// dispatches HID boot-protocol mouse reports to a caller-supplied sink.
//
// The boot loader, frame-buffer console, and panic handler this core
// expects as collaborators are out of scope here; Entry and FrameBuffer
// below are the narrow contract a boot loader must satisfy to reach this
// code, not an implementation of that loader.
package rumikan

import (
	"github.com/ocadaruma/rumikan/amd64"
	"github.com/ocadaruma/rumikan/pci"
	"github.com/ocadaruma/rumikan/xhci"
)

// PixelFormat names the frame buffer's pixel layout, passed through from
// the boot loader untouched (console rendering is out of scope here).
type PixelFormat uint8

const (
	PixelFormatRGB PixelFormat = iota
	PixelFormatBGR
)

// FrameBuffer is the boot loader's UEFI GOP frame buffer descriptor,
// mirrored here only as a pass-through value: this core never draws to it.
type FrameBuffer struct {
	Ptr    uintptr
	H      uint
	V      uint
	Stride uint
	Format PixelFormat
}

// xhciBus bounds how Boot locates the controller on the
// PCI bus: a full multi-bus topology scan is out of scope, so Boot probes
// bus 0 only, which is where UEFI firmware enumerates the primary USB 3
// host controller on the reference platform this kernel targets.
const xhciBus = 0

// Boot wires the out-of-scope boot loader's three required inputs (a PCI
// probe result, an interrupt-vector registration hook, and a mouse-event
// sink) into a running xhci.Controller and the CPU's interrupt service
// loop. It exists so the core is fully exercised by tests without the
// loader, console, or panic handler existing.
type Boot struct {
	CPU        amd64.CPU
	Controller *xhci.Controller

	// IDTMemory backs the Interrupt Descriptor Table amd64.CPU.ServiceInterrupts
	// installs gate descriptors into; the boot loader is expected to hand in
	// identity-mapped, executable memory sized for 256 IDT gates.
	IDTMemory []byte
}

// NewBoot locates a USB 3 xHC on PCI bus 0 by (vendor, device) ID, enables
// its MSI capability targeting vector on the Bootstrap Processor's Local
// APIC, and constructs (but does not start) a Controller over its MMIO BAR.
func NewBoot(vendor, device uint16, vector uint8, sink xhci.MouseSink, idtMemory []byte) (*Boot, error) {
	dev := pci.Probe(xhciBus, vendor, device)
	if dev == nil {
		return nil, errXHCNotFound
	}

	var cpu amd64.CPU
	cpu.Init()

	msi, err := pci.FindMSI(dev)
	if err != nil {
		return nil, err
	}
	msi.Enable(uint8(cpu.LAPIC.ID()), vector)

	mmioBase := uintptr(dev.BaseAddress(0))
	controller, err := xhci.New(mmioBase, sink)
	if err != nil {
		return nil, err
	}

	return &Boot{CPU: cpu, Controller: controller, IDTMemory: idtMemory}, nil
}

// Run initializes the xHC and parks the Bootstrap Processor servicing
// interrupts forever, draining the controller's event ring on every one
// (xHCI Specification Revision 1.2, 4.17.2 — event-driven operation).
//
// Run never returns on real hardware; it is structured as an ordinary
// function here (rather than the boot path's extern "sysv64" entry point)
// so it can be driven directly by tests down to the point where it calls
// ServiceInterrupts.
func (b *Boot) Run() error {
	if err := b.Controller.Initialize(); err != nil {
		return err
	}

	b.CPU.ServiceInterrupts(b.IDTMemory, func(vector int) {
		for {
			more, err := b.Controller.Poll()
			if err != nil {
				println("rumikan: xhci poll error:", err.Error())
			}
			if !more {
				break
			}
		}
		b.CPU.LAPIC.ClearInterrupt()
	})

	return nil
}

// Entry is the boundary the out-of-scope boot loader calls into once it has
// parsed the UEFI memory map, placed the kernel's ELF segments, and
// obtained a frame buffer: `extern "sysv64" fn(FrameBuffer) -> !` in the
// original boot contract. fb is accepted and otherwise unused here, since
// frame-buffer drawing is out of scope for this core.
func Entry(fb FrameBuffer) {
	_ = fb
}

var errXHCNotFound = xhciNotFoundError{}

// xhciNotFoundError is returned by NewBoot when no PCI function matches the
// requested (vendor, device) ID on bus 0.
type xhciNotFoundError struct{}

func (xhciNotFoundError) Error() string { return "rumikan: xhci controller not found on pci bus 0" }
