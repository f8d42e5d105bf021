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

// fakeRegisterMemory keeps the heap buffers behind the fake register blocks
// reachable: a register block holds only a uintptr, which the garbage
// collector does not follow.
var fakeRegisterMemory [][]byte

func fakePortRegisterSet() PortRegisterSet {
	buf := make([]byte, portRegisterSetSize)
	fakeRegisterMemory = append(fakeRegisterMemory, buf)
	return PortRegisterSet{base: uintptr(unsafe.Pointer(&buf[0]))}
}

func TestPortSpeedFromID(t *testing.T) {
	cases := []struct {
		id      uint8
		want    PortSpeed
		wantErr bool
	}{
		{1, FullSpeed, false},
		{2, LowSpeed, false},
		{3, HighSpeed, false},
		{4, SuperSpeed, false},
		{5, SuperSpeedPlus, false},
		{0, 0, true},
		{6, 0, true},
	}

	for _, c := range cases {
		got, err := PortSpeedFromID(c.id)
		if c.wantErr {
			if err == nil {
				t.Errorf("PortSpeedFromID(%d) expected an error, got nil", c.id)
			}
			continue
		}
		if err != nil {
			t.Errorf("PortSpeedFromID(%d) unexpected error: %v", c.id, err)
		}
		if got != c.want {
			t.Errorf("PortSpeedFromID(%d) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestMsb1(t *testing.T) {
	cases := []struct {
		n       uint32
		wantPos uint8
		wantOk  bool
	}{
		{0, 0, false},
		{1, 0, true},
		{2, 1, true},
		{3, 1, true},
		{0x80000000, 31, true},
		{0xffffffff, 31, true},
	}

	for _, c := range cases {
		pos, ok := msb1(c.n)
		if ok != c.wantOk {
			t.Errorf("msb1(%#x) ok = %v, want %v", c.n, ok, c.wantOk)
			continue
		}
		if ok && pos != c.wantPos {
			t.Errorf("msb1(%#x) = %d, want %d", c.n, pos, c.wantPos)
		}
	}
}

func TestPortSpeedConvertIntervalFullSpeed(t *testing.T) {
	// Full/Low speed interrupt endpoints convert bInterval through
	// msb1(interval) + 3 (xHCI Specification Revision 1.2, 6.2.3.6).
	got := FullSpeed.ConvertInterval(EndpointTypeInterruptIn, 8)
	want := uint32(3 + 3) // msb1(8) == 3
	if got != want {
		t.Fatalf("ConvertInterval(interrupt, 8) = %d, want %d", got, want)
	}
}

func TestPortSpeedConvertIntervalSuperSpeed(t *testing.T) {
	got := SuperSpeed.ConvertInterval(EndpointTypeInterruptIn, 8)
	if got != 7 {
		t.Fatalf("ConvertInterval(interrupt, 8) = %d, want 7", got)
	}
}

func TestPortIsConnectedAndReset(t *testing.T) {
	p := NewPort(1, fakePortRegisterSet())

	if p.IsConnected() {
		t.Fatal("freshly zeroed PORTSC should report not connected")
	}

	p.sc.Update(func(v *PORTSC) { *v |= 1 }) // Current Connect Status
	if !p.IsConnected() {
		t.Fatal("IsConnected() should reflect the Current Connect Status bit")
	}

	if p.Num() != 1 {
		t.Fatalf("Num() = %d, want 1", p.Num())
	}
}

func TestPortClearPortResetChange(t *testing.T) {
	p := NewPort(2, fakePortRegisterSet())

	p.sc.Update(func(v *PORTSC) { v.SetPortResetChange(true) })
	if !p.IsPortResetChanged() {
		t.Fatal("expected Port Reset Change to be set")
	}

	// Port Reset Change is write-1-to-clear: acknowledging it writes 1 back,
	// which this plain-memory harness keeps as written, while every bit
	// outside the preserve mask is cleared.
	p.ClearPortResetChange()
	if got := p.sc.Read(); got != PORTSC(1<<21) {
		t.Fatalf("PORTSC after ClearPortResetChange = %#x, want %#x (only Port Reset Change written as 1)", got, 1<<21)
	}
}
