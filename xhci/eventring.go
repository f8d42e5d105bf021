// xHCI event ring (consumer)
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/ocadaruma/rumikan/pool"
)

// eventRingSegmentTableEntry describes one segment of the Event Ring
// Segment Table (xHCI Specification Revision 1.2, 6.5).
type eventRingSegmentTableEntry struct {
	ringSegmentBaseAddress uint64
	ringSegmentSize        uint64 // only the low 16 bits are defined
}

// EventRing is the consumer ring a single Interrupter reads completion
// events from (xHCI Specification Revision 1.2, 4.9.4). This kernel core
// uses a single-segment Event Ring Segment Table.
type EventRing struct {
	buffer      []GenericTRB
	segmentBase uintptr
	interrupter InterrupterRegisterSet
	cycleBit    bool
}

// NewEventRing allocates an event ring of len TRB slots and its single
// segment-table entry, and wires the given Interrupter's ERSTSZ/ERDP/ERSTBA
// registers to it (xHCI Specification Revision 1.2, 4.9.4).
func NewEventRing(len int, interrupter InterrupterRegisterSet) (*EventRing, error) {
	buf, err := pool.AllocateArray[GenericTRB](len, 64, ringBoundary)
	if err != nil {
		return nil, err
	}

	table, err := pool.AllocateArray[eventRingSegmentTableEntry](1, 64, ringBoundary)
	if err != nil {
		return nil, err
	}

	bufferBase := uintptr(unsafe.Pointer(&buf[0]))
	table[0] = eventRingSegmentTableEntry{
		ringSegmentBaseAddress: uint64(bufferBase),
		ringSegmentSize:        uint64(len),
	}

	segmentBase := uintptr(unsafe.Pointer(&table[0]))

	interrupter.ERSTSZ().Update(func(v *ERSTSZ) { v.SetSize(1) })
	interrupter.ERDP().Update(func(v *ERDP) { v.SetDequeuePointer(uint64(bufferBase)) })
	interrupter.ERSTBA().Update(func(v *ERSTBA) { v.SetBaseAddress(uint64(segmentBase)) })

	return &EventRing{
		buffer:      buf,
		segmentBase: segmentBase,
		interrupter: interrupter,
		cycleBit:    true,
	}, nil
}

func (e *EventRing) table() *eventRingSegmentTableEntry {
	return (*eventRingSegmentTableEntry)(unsafe.Pointer(e.segmentBase))
}

// Poll returns the next unconsumed event TRB, if the hardware has produced
// one (its cycle bit matches the ring's tracked cycle state), advancing the
// consumer's dequeue pointer (xHCI Specification Revision 1.2, 4.9.4).
func (e *EventRing) Poll() (GenericTRB, bool) {
	dequeue := e.interrupter.ERDP().Read().DequeuePointer()
	trb := (*GenericTRB)(unsafe.Pointer(uintptr(dequeue)))

	if trb.CycleBit() != e.cycleBit {
		return GenericTRB{}, false
	}

	event := *trb
	e.pop()
	return event, true
}

// pop advances ERDP past the TRB just read, wrapping to the segment base
// (and flipping the tracked cycle bit) if it crosses the segment end.
func (e *EventRing) pop() {
	dequeue := e.interrupter.ERDP().Read().DequeuePointer()
	next := dequeue + uint64(unsafe.Sizeof(GenericTRB{}))

	table := e.table()
	segmentEnd := table.ringSegmentBaseAddress + table.ringSegmentSize*uint64(unsafe.Sizeof(GenericTRB{}))

	if next == segmentEnd {
		next = table.ringSegmentBaseAddress
		e.cycleBit = !e.cycleBit
	}

	e.interrupter.ERDP().Update(func(v *ERDP) { v.SetDequeuePointer(next) })
}
