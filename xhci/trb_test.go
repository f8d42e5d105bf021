// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "testing"

func TestGenericTRBCycleBit(t *testing.T) {
	var g GenericTRB

	if g.CycleBit() {
		t.Fatal("zero-value TRB should have CycleBit() == false")
	}

	g.SetCycleBit(true)
	if !g.CycleBit() {
		t.Fatal("CycleBit() = false after SetCycleBit(true)")
	}

	g.SetCycleBit(false)
	if g.CycleBit() {
		t.Fatal("CycleBit() = true after SetCycleBit(false)")
	}
}

func TestGenericTRBType(t *testing.T) {
	var g GenericTRB
	g.setType(typeEnableSlotCommand)

	if got := g.Type(); got != typeEnableSlotCommand {
		t.Fatalf("Type() = %d, want %d", got, typeEnableSlotCommand)
	}
}

func TestSpecializeMatchesType(t *testing.T) {
	trb := NewEnableSlotCommandTRB()
	g := Generalize(&trb)

	if _, ok := Specialize[EnableSlotCommandTRB](g); !ok {
		t.Fatal("Specialize[EnableSlotCommandTRB] should succeed on an Enable Slot Command TRB")
	}
	if _, ok := Specialize[AddressDeviceCommandTRB](g); ok {
		t.Fatal("Specialize[AddressDeviceCommandTRB] should fail on an Enable Slot Command TRB")
	}
}

func TestSpecializeGeneralizeRoundTrip(t *testing.T) {
	want := NewNormalTRB(0x1000, 64)
	g := Generalize(&want)

	got, ok := Specialize[NormalTRB](g)
	if !ok {
		t.Fatal("Specialize[NormalTRB] failed on a Normal TRB")
	}
	if got.Pointer() != want.Pointer() || got.TransferLength() != want.TransferLength() {
		t.Fatalf("round trip changed TRB: got %+v, want %+v", got, want)
	}
}

func TestNewSetupStageTRBFields(t *testing.T) {
	data := SetupData{RequestType: 0x21, Request: 0x0b, Value: 1, Index: 2, Length: 0}
	trb := NewSetupStageTRB(data, TransferTypeNoDataStage)

	if trb.RequestType() != data.RequestType {
		t.Errorf("RequestType() = %#x, want %#x", trb.RequestType(), data.RequestType)
	}
	if trb.Request() != data.Request {
		t.Errorf("Request() = %#x, want %#x", trb.Request(), data.Request)
	}
	if trb.Value() != data.Value {
		t.Errorf("Value() = %d, want %d", trb.Value(), data.Value)
	}
	if trb.Index() != data.Index {
		t.Errorf("Index() = %d, want %d", trb.Index(), data.Index)
	}
	if trb.Length() != data.Length {
		t.Errorf("Length() = %d, want %d", trb.Length(), data.Length)
	}
	if trb.Type() != typeSetupStage {
		t.Errorf("Type() = %d, want %d", trb.Type(), typeSetupStage)
	}
}

func TestNewDataStageTRBPointerAndLength(t *testing.T) {
	trb := NewDataStageTRB(0x2000, 18, true)

	g := Generalize(&trb)
	got, ok := Specialize[DataStageTRB](g)
	if !ok {
		t.Fatal("expected a Data Stage TRB")
	}
	if got.Lo != 0x2000 {
		t.Fatalf("Lo = %#x, want %#x", got.Lo, 0x2000)
	}
}

func TestCommandCompletionEventIssuerPointerShift(t *testing.T) {
	// The command TRB pointer field occupies bits 4..63 of a 16-byte-aligned
	// address (xHCI Specification Revision 1.2, 6.4.2.2), unlike the
	// Transfer Event's full 64-bit pointer field (6.4.2.1) — verify both
	// accessors recover the same aligned address.
	const ptr = uintptr(0x3000)

	var cc CommandCompletionEventTRB
	cc.Lo = uint64(ptr) >> 4 << 4

	if got := cc.IssuerPointer(); got != ptr {
		t.Fatalf("CommandCompletionEventTRB.IssuerPointer() = %#x, want %#x", got, ptr)
	}

	var xfer TransferEventTRB
	xfer.Lo = uint64(ptr)
	if got := xfer.IssuerPointer(); got != ptr {
		t.Fatalf("TransferEventTRB.IssuerPointer() = %#x, want %#x", got, ptr)
	}
}

func TestPortStatusChangeEventPortID(t *testing.T) {
	var ev PortStatusChangeEventTRB
	ev.Lo = uint64(7) << 24

	if got := ev.PortID(); got != 7 {
		t.Fatalf("PortID() = %d, want 7", got)
	}
}

func TestNewLinkTRBToggleCycle(t *testing.T) {
	trb := NewLinkTRB(0x4000)

	g := Generalize(&trb)
	if got := g.Type(); got != typeLink {
		t.Fatalf("Type() = %d, want %d", got, typeLink)
	}

	const toggleCycleBit = 1 << (97 - 64)
	if trb.Hi&toggleCycleBit == 0 {
		t.Fatal("NewLinkTRB should set the Toggle Cycle bit")
	}
}
