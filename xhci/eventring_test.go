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

	"github.com/ocadaruma/rumikan/pool"
)

// fakeInterrupter backs an InterrupterRegisterSet with plain heap memory so
// EventRing can be exercised without real xHC hardware.
func fakeInterrupter() InterrupterRegisterSet {
	buf := make([]byte, interrupterRegisterSetSize)
	fakeRegisterMemory = append(fakeRegisterMemory, buf)
	return InterrupterRegisterSet{base: uintptr(unsafe.Pointer(&buf[0]))}
}

func TestEventRingPollEmpty(t *testing.T) {
	pool.Reset()
	e, err := NewEventRing(4, fakeInterrupter())
	if err != nil {
		t.Fatalf("NewEventRing: %v", err)
	}

	if _, ok := e.Poll(); ok {
		t.Fatal("Poll() on an empty event ring should return ok == false")
	}
}

func TestEventRingPollConsumesProducedTRB(t *testing.T) {
	pool.Reset()
	e, err := NewEventRing(4, fakeInterrupter())
	if err != nil {
		t.Fatalf("NewEventRing: %v", err)
	}

	// Simulate the controller producing one event TRB matching the ring's
	// cycle state directly into the backing buffer.
	produced := NewEnableSlotCommandTRB()
	g := Generalize(&produced)
	g.SetCycleBit(true)
	e.buffer[0] = *g

	trb, ok := e.Poll()
	if !ok {
		t.Fatal("Poll() should report the produced TRB")
	}
	if trb.Type() != typeEnableSlotCommand {
		t.Fatalf("Type() = %d, want %d", trb.Type(), typeEnableSlotCommand)
	}

	if _, ok := e.Poll(); ok {
		t.Fatal("Poll() should not report the same TRB twice")
	}
}
