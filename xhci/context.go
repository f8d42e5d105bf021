// xHCI Slot, Endpoint and Input Context structures
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "github.com/ocadaruma/rumikan/bits"

// SlotContext is the 32-byte Slot Context (xHCI Specification Revision 1.2,
// 6.2.2).
type SlotContext struct {
	data [8]uint32
}

// SetRouteString writes the Route String field (DWORD 0, bits 0:19).
func (s *SlotContext) SetRouteString(v uint32) {
	bits.SetN(&s.data[0], 0, 0xfffff, v)
}

// speed returns the raw xHCI Speed ID field (DWORD 0, bits 20:23).
func (s *SlotContext) speed() uint8 {
	return uint8(bits.GetN(&s.data[0], 20, 0xf))
}

// Speed decodes the Speed ID field as a PortSpeed.
func (s *SlotContext) Speed() (PortSpeed, error) {
	return PortSpeedFromID(s.speed())
}

// SetSpeed writes the Speed ID field.
func (s *SlotContext) SetSpeed(speed PortSpeed) {
	bits.SetN(&s.data[0], 20, 0xf, uint32(speed))
}

// SetContextEntries writes the Context Entries field (DWORD 0, bits 27:31).
func (s *SlotContext) SetContextEntries(v uint8) {
	bits.SetN(&s.data[0], 27, 0x1f, uint32(v))
}

// RootHubPortNum returns the Root Hub Port Number field (DWORD 1, bits
// 16:23).
func (s *SlotContext) RootHubPortNum() uint8 {
	return uint8(bits.GetN(&s.data[1], 16, 0xff))
}

// SetRootHubPortNum writes the Root Hub Port Number field.
func (s *SlotContext) SetRootHubPortNum(v uint8) {
	bits.SetN(&s.data[1], 16, 0xff, uint32(v))
}

// EndpointContext is the 32-byte Endpoint Context (xHCI Specification
// Revision 1.2, 6.2.3).
type EndpointContext struct {
	data [4]uint64
}

// SetMult writes the Mult field (bits 8:9).
func (e *EndpointContext) SetMult(v uint8) {
	bits.SetN64(&e.data[0], 8, 0b11, uint64(v))
}

// SetMaxPrimaryStreams writes the MaxPStreams field (bits 10:14).
func (e *EndpointContext) SetMaxPrimaryStreams(v uint8) {
	bits.SetN64(&e.data[0], 10, 0b11111, uint64(v))
}

// SetInterval writes the Interval field (bits 16:23).
func (e *EndpointContext) SetInterval(v uint8) {
	bits.SetN64(&e.data[0], 16, 0xff, uint64(v))
}

// SetErrorCount writes the CErr field (bits 33:34).
func (e *EndpointContext) SetErrorCount(v uint8) {
	bits.SetN64(&e.data[0], 33, 0b11, uint64(v))
}

// SetEndpointType writes the Endpoint Type field (bits 35:37).
func (e *EndpointContext) SetEndpointType(t EndpointType) {
	bits.SetN64(&e.data[0], 35, 0b111, uint64(t))
}

// SetMaxBurstSize writes the Max Burst Size field (bits 40:47).
func (e *EndpointContext) SetMaxBurstSize(v uint8) {
	bits.SetN64(&e.data[0], 40, 0xff, uint64(v))
}

// SetMaxPacketSize writes the Max Packet Size field (bits 48:63).
func (e *EndpointContext) SetMaxPacketSize(v uint16) {
	bits.SetN64(&e.data[0], 48, 0xffff, uint64(v))
}

// SetDequeueCycleState writes the Dequeue Cycle State bit (bit 0 of the
// second QWORD, i.e. bit 64 overall).
func (e *EndpointContext) SetDequeueCycleState(v bool) {
	bits.SetTo64(&e.data[1], 0, v)
}

// SetTransferRingBuffer writes the TR Dequeue Pointer field (bits 4:63 of
// the second QWORD).
func (e *EndpointContext) SetTransferRingBuffer(p uintptr) {
	bits.SetN64(&e.data[1], 4, 0xfffffffffffffff, uint64(p)>>4)
}

// SetAverageTRBLength writes the Average TRB Length field (bits 0:15 of the
// third QWORD).
func (e *EndpointContext) SetAverageTRBLength(v uint16) {
	bits.SetN64(&e.data[2], 0, 0xffff, uint64(v))
}

// DeviceContext is the per-slot context area indexed by the DCBAA: a Slot
// Context followed by 31 Endpoint Contexts (xHCI Specification Revision
// 1.2, 6.2.1).
type DeviceContext struct {
	Slot      SlotContext
	Endpoints [31]EndpointContext
}

// inputControlContext is the Input Control Context prefixing every Input
// Context (xHCI Specification Revision 1.2, 6.2.5.1); only Add Context
// Flags is needed by this kernel's single-pass Address/Configure commands.
type inputControlContext struct {
	dropContextFlags uint32
	addContextFlags  uint32
	_reserved1       [5]uint32
	_configValue     uint8
	_interfaceNum    uint8
	_altSetting      uint8
	_reserved2       uint8
}

// InputContext is the structure handed to the Address Device and Configure
// Endpoint commands: an Input Control Context followed by one Slot Context
// and 31 Endpoint Contexts mirroring DeviceContext's layout (xHCI
// Specification Revision 1.2, 6.2.5).
type InputContext struct {
	Control   inputControlContext
	Slot      SlotContext
	Endpoints [31]EndpointContext
}

// EnableSlotContext marks the Slot Context as present and returns it for
// mutation.
func (c *InputContext) EnableSlotContext() *SlotContext {
	c.Control.addContextFlags |= 1
	return &c.Slot
}

// EnableEndpoint marks the given endpoint's context as present and returns
// it for mutation.
func (c *InputContext) EnableEndpoint(id EndpointID) *EndpointContext {
	c.Control.addContextFlags |= 1 << id.Address()
	return &c.Endpoints[id.Address()-1]
}
