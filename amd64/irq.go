// x86-64 processor support
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"bytes"
	"encoding/binary"
)

// Interrupt Gate Descriptor Attributes.
const (
	InterruptGate = 0b10001110
)

// IRQ handling jump table constants.
const (
	callSize = 5
	vectors  = 256
)

// defined in irq.s
func load_idt() (idt uintptr, irqHandlerAddr uintptr)
func irq_enable()
func irq_disable()

var (
	idtAddr        uintptr
	irqHandlerAddr uintptr
)

// GateDescriptor represents an IDT Gate descriptor (Intel SDM Volume 3A -
// 6.14.1 64-Bit Mode IDT).
type GateDescriptor struct {
	Offset1         uint16
	SegmentSelector uint16
	IST             uint8
	Attributes      uint8
	Offset2         uint16
	Offset3         uint32
	Reserved        uint32
}

// Bytes converts the descriptor structure to byte array format.
func (d *GateDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// SetOffset sets the address of the handling procedure entry point.
func (d *GateDescriptor) SetOffset(addr uintptr) {
	d.Offset1 = uint16(addr & 0xffff)
	d.Offset2 = uint16(addr >> 16 & 0xffff)
	d.Offset3 = uint32(addr >> 32)
}

func setIDT(start int, end int, idtMem []byte) {
	if idtAddr == 0 || irqHandlerAddr == 0 {
		idtAddr, irqHandlerAddr = load_idt()
	}

	desc := &GateDescriptor{
		SegmentSelector: 1 << 3,
		Attributes:      InterruptGate,
	}

	gateSize := len(desc.Bytes())

	for i := start; i <= end && i < vectors; i++ {
		off := irqHandlerAddr + uintptr(i*callSize)
		desc.SetOffset(off)
		copy(idtMem[i*gateSize:], desc.Bytes())
	}
}

// EnableInterrupts unmasks external interrupts.
func (cpu *CPU) EnableInterrupts() {
	cpu.LAPIC.ClearInterrupt()
	irq_enable()
}

// DisableInterrupts masks external interrupts.
func (cpu *CPU) DisableInterrupts() {
	irq_disable()
}

// ServiceInterrupts installs the interrupt descriptor table for the
// user-defined vector range (32..255, the MSI vector the xHC's PCI
// capability was programmed with falls in this range) and then parks the
// calling goroutine, running isr each time an interrupt is delivered.
//
// isr is expected to drain all pending events (see xhci.Controller.Poll)
// before returning, since EnableInterrupts (called once more after isr
// returns) is what allows a further interrupt to be observed.
func (cpu *CPU) ServiceInterrupts(idtMem []byte, isr func(vector int)) {
	if isr == nil {
		isr = func(_ int) {}
	}

	setIDT(32, 255, idtMem)

	for {
		cpu.EnableInterrupts()
		vector := waitForInterrupt()
		isr(vector)
	}
}

// defined in irq.s; blocks (via hlt) until the next interrupt sets the
// pending-vector cell and returns its number.
func waitForInterrupt() int
