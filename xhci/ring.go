// xHCI producer ring (command ring / transfer ring)
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/ocadaruma/rumikan/internal/reg"
	"github.com/ocadaruma/rumikan/pool"
)

// ringBoundary is the boundary a ring's backing buffer must not cross
// (xHCI Specification Revision 1.2, 4.9.2 — a ring segment may not span a
// 64 KiB boundary).
const ringBoundary = 64 * 1024

// Ring is a producer ring (the command ring, and one per enabled
// endpoint's transfer ring): a fixed-size buffer of GenericTRB slots with
// the last slot reserved for a Link TRB back to slot 0 (xHCI Specification
// Revision 1.2, 4.9.2).
type Ring struct {
	buffer   []GenericTRB
	cycleBit bool
	writeIdx int
}

// NewRing allocates a ring of len TRB slots from the pool.
func NewRing(len int) (*Ring, error) {
	buf, err := pool.AllocateArray[GenericTRB](len, 64, ringBoundary)
	if err != nil {
		return nil, err
	}

	return &Ring{buffer: buf, cycleBit: true}, nil
}

// BufferPointer returns the physical address of the ring's backing buffer.
func (r *Ring) BufferPointer() uintptr {
	return uintptr(unsafe.Pointer(&r.buffer[0]))
}

// Push writes trb into the next ring slot, returning the slot's address
// (for use as the issuer pointer later reported in a completion event) and
// the TRB that was written (with its Cycle bit set). If this
// push fills the second-to-last slot, a Link TRB is written immediately
// after and the ring's cycle bit flips.
func Push[T kind](r *Ring, trb T) (slotAddr uintptr, written T) {
	g := Generalize(&trb)

	slotAddr = uintptr(unsafe.Pointer(&r.buffer[r.writeIdx]))
	r.copyToSlot(r.writeIdx, g)

	r.writeIdx++
	if r.writeIdx == len(r.buffer)-1 {
		link := NewLinkTRB(r.BufferPointer())
		linkG := Generalize(&link)
		r.copyToSlot(r.writeIdx, linkG)

		r.writeIdx = 0
		r.cycleBit = !r.cycleBit
	}

	return slotAddr, trb
}

// copyToSlot writes a GenericTRB's lower 96 bits first, then its remaining
// 32 bits (which includes the Cycle bit) as a single volatile store, so the
// controller never observes a half-written TRB claiming ownership of a
// stale cycle bit.
func (r *Ring) copyToSlot(idx int, trb *GenericTRB) {
	trb.SetCycleBit(r.cycleBit)

	addr := uintptr(unsafe.Pointer(&r.buffer[idx]))
	reg.Write(addr, uint32(trb.Lo))
	reg.Write(addr+4, uint32(trb.Lo>>32))
	reg.Write(addr+8, uint32(trb.Hi))
	reg.Write(addr+12, uint32(trb.Hi>>32))
}
