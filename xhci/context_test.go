// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "testing"

func TestSlotContextRoundTrip(t *testing.T) {
	var s SlotContext

	s.SetRouteString(0x12345)
	s.SetSpeed(SuperSpeed)
	s.SetContextEntries(5)
	s.SetRootHubPortNum(3)

	if got, err := s.Speed(); err != nil || got != SuperSpeed {
		t.Fatalf("Speed() = (%v, %v), want (%v, nil)", got, err, SuperSpeed)
	}
	if got := s.RootHubPortNum(); got != 3 {
		t.Fatalf("RootHubPortNum() = %d, want 3", got)
	}
}

func TestEndpointContextRoundTrip(t *testing.T) {
	var e EndpointContext

	e.SetMult(1)
	e.SetMaxPrimaryStreams(0)
	e.SetInterval(7)
	e.SetErrorCount(3)
	e.SetEndpointType(EndpointTypeInterruptIn)
	e.SetMaxBurstSize(0)
	e.SetMaxPacketSize(4)
	e.SetDequeueCycleState(true)
	e.SetTransferRingBuffer(0x1000)
	e.SetAverageTRBLength(8)

	if got := e.data[0] >> 16 & 0xff; got != 7 {
		t.Fatalf("Interval field = %d, want 7", got)
	}
	if got := e.data[0] >> 35 & 0b111; got != uint64(EndpointTypeInterruptIn) {
		t.Fatalf("Endpoint Type field = %d, want %d", got, EndpointTypeInterruptIn)
	}
	if got := e.data[0] >> 48 & 0xffff; got != 4 {
		t.Fatalf("Max Packet Size field = %d, want 4", got)
	}
	if e.data[1]&1 != 1 {
		t.Fatal("Dequeue Cycle State bit should be set")
	}
	if got := e.data[1] >> 4 << 4; got != 0x1000 {
		t.Fatalf("TR Dequeue Pointer field = %#x, want %#x", got, 0x1000)
	}
}

func TestInputContextEnableSlotAndEndpoint(t *testing.T) {
	var ic InputContext

	slot := ic.EnableSlotContext()
	slot.SetRootHubPortNum(1)

	if ic.Control.addContextFlags&1 == 0 {
		t.Fatal("EnableSlotContext should set the Add Context Flag bit 0")
	}

	id, err := NewEndpointID(1, true) // DCI 3
	if err != nil {
		t.Fatalf("NewEndpointID: %v", err)
	}
	ep := ic.EnableEndpoint(id)
	ep.SetMaxPacketSize(64)

	if ic.Control.addContextFlags&(1<<id.Address()) == 0 {
		t.Fatalf("EnableEndpoint should set Add Context Flag bit %d", id.Address())
	}
	if &ic.Endpoints[id.Address()-1] != ep {
		t.Fatal("EnableEndpoint should return the endpoint context at index Address()-1")
	}
}

func TestDeviceContextAndInputContextShareLayout(t *testing.T) {
	var dc DeviceContext
	var ic InputContext

	if len(dc.Endpoints) != len(ic.Endpoints) {
		t.Fatalf("len(dc.Endpoints) = %d, len(ic.Endpoints) = %d, want equal", len(dc.Endpoints), len(ic.Endpoints))
	}
}
