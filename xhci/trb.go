// xHCI Transfer Request Block encoding
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/ocadaruma/rumikan/bits"
)

// TRB type codes (xHCI Specification Revision 1.2, 6.4 TRB Types), only the
// ones this kernel's core issues or consumes are named.
const (
	typeNormal                 = 1
	typeSetupStage              = 2
	typeDataStage               = 3
	typeStatusStage             = 4
	typeLink                    = 6
	typeEnableSlotCommand       = 9
	typeAddressDeviceCommand    = 11
	typeConfigureEndpointCommand = 12
	typeTransferEvent           = 32
	typeCommandCompletionEvent  = 33
	typePortStatusChangeEvent   = 34
)

// GenericTRB is the 16-byte, cycle-bit-bearing unit every xHCI ring (command,
// transfer, event) is made of. Every concrete TRB type below shares this
// layout and can be reinterpreted from/to it without copying.
type GenericTRB struct {
	Lo uint64
	Hi uint64
}

// CycleBit returns the Cycle bit (bit 96, bit 32 of Hi).
func (g *GenericTRB) CycleBit() bool {
	return bits.Get64(&g.Hi, 96-64)
}

// SetCycleBit sets the Cycle bit.
func (g *GenericTRB) SetCycleBit(val bool) {
	bits.SetTo64(&g.Hi, 96-64, val)
}

// Type returns the TRB Type field (bits 106:111).
func (g *GenericTRB) Type() uint8 {
	return uint8(bits.GetN64(&g.Hi, 106-64, 0x3f))
}

func (g *GenericTRB) setType(t uint8) {
	bits.SetN64(&g.Hi, 106-64, 0x3f, uint64(t))
}

// kind is the generics constraint satisfied by every concrete TRB type;
// each one shares GenericTRB's memory layout so it can be cast to/from it.
type kind interface {
	NormalTRB | SetupStageTRB | DataStageTRB | StatusStageTRB | LinkTRB |
		EnableSlotCommandTRB | AddressDeviceCommandTRB | ConfigureEndpointCommandTRB |
		TransferEventTRB | CommandCompletionEventTRB | PortStatusChangeEventTRB
	trbType() uint8
}

// Specialize reinterprets a GenericTRB as a concrete TRB type, returning
// ok == false if the TRB's Type field doesn't match T.
func Specialize[T kind](g *GenericTRB) (T, bool) {
	var zero T
	if g.Type() != zero.trbType() {
		return zero, false
	}
	return *(*T)(unsafe.Pointer(g)), true
}

// Generalize reinterprets a concrete TRB as a GenericTRB.
func Generalize[T kind](t *T) *GenericTRB {
	return (*GenericTRB)(unsafe.Pointer(t))
}

// NormalTRB carries a data buffer for a non-control transfer (xHCI
// Specification Revision 1.2, 6.4.1.1).
type NormalTRB struct{ GenericTRB }

func (NormalTRB) trbType() uint8 { return typeNormal }

// TransferLength returns the TRB Transfer Length field (bits 64:80) — the
// number of bytes this TRB requested.
func (t *NormalTRB) TransferLength() uint32 {
	return uint32(bits.GetN64(&t.Hi, 64-64, 0x1ffff))
}

// Pointer returns the data buffer pointer this TRB carries.
func (t *NormalTRB) Pointer() uintptr {
	return uintptr(t.Lo)
}

// NewNormalTRB builds a Normal TRB pointing at buf of the given transfer
// length, requesting a completion interrupt and an interrupt on a short
// packet.
func NewNormalTRB(buf uintptr, length uint32) NormalTRB {
	var t NormalTRB
	t.Lo = uint64(buf)
	bits.SetN64(&t.Hi, 64-64, 0x1ffff, uint64(length))
	bits.Set64(&t.Hi, 98-64)
	bits.Set64(&t.Hi, 101-64)
	t.setType(typeNormal)
	return t
}

// SetupStageTRB carries a USB control transfer's Setup packet (xHCI
// Specification Revision 1.2, 6.4.1.2.1).
type SetupStageTRB struct{ GenericTRB }

func (SetupStageTRB) trbType() uint8 { return typeSetupStage }

// Setup Stage TRB Transfer Type values (xHCI 6.4.1.2.1, Table 6-19).
const (
	TransferTypeNoDataStage = 0
	TransferTypeOutData     = 2
	TransferTypeInData      = 3
)

func (t *SetupStageTRB) setRequestType(v uint8) { bits.SetN64(&t.Lo, 0, 0xff, uint64(v)) }
func (t *SetupStageTRB) setRequest(v uint8)      { bits.SetN64(&t.Lo, 8, 0xff, uint64(v)) }
func (t *SetupStageTRB) setValue(v uint16)       { bits.SetN64(&t.Lo, 16, 0xffff, uint64(v)) }
func (t *SetupStageTRB) setIndex(v uint16)       { bits.SetN64(&t.Lo, 32, 0xffff, uint64(v)) }
func (t *SetupStageTRB) setLength(v uint16)      { bits.SetN64(&t.Lo, 48, 0xffff, uint64(v)) }

// RequestType returns the bmRequestType byte of the setup data.
func (t *SetupStageTRB) RequestType() uint8 { return uint8(bits.GetN64(&t.Lo, 0, 0xff)) }

// Request returns the bRequest byte of the setup data.
func (t *SetupStageTRB) Request() uint8 { return uint8(bits.GetN64(&t.Lo, 8, 0xff)) }

// Value returns the wValue field of the setup data.
func (t *SetupStageTRB) Value() uint16 { return uint16(bits.GetN64(&t.Lo, 16, 0xffff)) }

// Index returns the wIndex field of the setup data.
func (t *SetupStageTRB) Index() uint16 { return uint16(bits.GetN64(&t.Lo, 32, 0xffff)) }

// Length returns the wLength field of the setup data.
func (t *SetupStageTRB) Length() uint16 { return uint16(bits.GetN64(&t.Lo, 48, 0xffff)) }

// NewSetupStageTRB builds a Setup Stage TRB from a SetupData packet and the
// transfer's data-stage direction.
func NewSetupStageTRB(data SetupData, transferType uint8) SetupStageTRB {
	var t SetupStageTRB
	t.setRequestType(data.RequestType)
	t.setRequest(data.Request)
	t.setValue(data.Value)
	t.setIndex(data.Index)
	t.setLength(data.Length)
	bits.SetN64(&t.Hi, 64-64, 0x1ffff, 8)
	bits.Set64(&t.Hi, 102-64) // Immediate Data
	bits.SetN64(&t.Hi, 112-64, 0b11, uint64(transferType))
	t.setType(typeSetupStage)
	return t
}

// DataStageTRB carries a control transfer's Data Stage payload (xHCI
// Specification Revision 1.2, 6.4.1.2.2).
type DataStageTRB struct{ GenericTRB }

func (DataStageTRB) trbType() uint8 { return typeDataStage }

// NewDataStageTRB builds a Data Stage TRB pointing at buf, of the given
// length and direction (dirIn == true for a device-to-host data stage).
func NewDataStageTRB(buf uintptr, length uint32, dirIn bool) DataStageTRB {
	var t DataStageTRB
	t.Lo = uint64(buf)
	bits.SetN64(&t.Hi, 64-64, 0x1ffff, uint64(length))
	bits.Set64(&t.Hi, 101-64)
	bits.SetTo64(&t.Hi, 112-64, dirIn)
	t.setType(typeDataStage)
	return t
}

// StatusStageTRB terminates a control transfer (xHCI Specification Revision
// 1.2, 6.4.1.2.3).
type StatusStageTRB struct{ GenericTRB }

func (StatusStageTRB) trbType() uint8 { return typeStatusStage }

// NewStatusStageTRB builds a Status Stage TRB with the opposite direction of
// the transfer's data stage (or device-to-host, for a no-data-stage
// transfer).
func NewStatusStageTRB(dirIn bool) StatusStageTRB {
	var t StatusStageTRB
	bits.Set64(&t.Hi, 101-64)
	bits.SetTo64(&t.Hi, 112-64, dirIn)
	t.setType(typeStatusStage)
	return t
}

// LinkTRB points a ring segment back to its head, so that a fixed-size ring
// buffer can be traversed forever (xHCI Specification Revision 1.2,
// 6.4.4.1).
type LinkTRB struct{ GenericTRB }

func (LinkTRB) trbType() uint8 { return typeLink }

// NewLinkTRB builds a Link TRB pointing at segmentPointer, with the Toggle
// Cycle bit set so a producer flips its cycle state upon following it.
func NewLinkTRB(segmentPointer uintptr) LinkTRB {
	var t LinkTRB
	bits.SetN64(&t.Lo, 4, 0xfffffffffffffff, uint64(segmentPointer)>>4)
	bits.Set64(&t.Hi, 97-64) // Toggle Cycle
	t.setType(typeLink)
	return t
}

// EnableSlotCommandTRB requests a new Device Slot (xHCI Specification
// Revision 1.2, 6.4.3.1).
type EnableSlotCommandTRB struct{ GenericTRB }

func (EnableSlotCommandTRB) trbType() uint8 { return typeEnableSlotCommand }

func NewEnableSlotCommandTRB() EnableSlotCommandTRB {
	var t EnableSlotCommandTRB
	t.setType(typeEnableSlotCommand)
	return t
}

// AddressDeviceCommandTRB assigns a USB device address to a Device Slot
// (xHCI Specification Revision 1.2, 6.4.3.4).
type AddressDeviceCommandTRB struct{ GenericTRB }

func (AddressDeviceCommandTRB) trbType() uint8 { return typeAddressDeviceCommand }

func NewAddressDeviceCommandTRB(slotID uint8, inputContextPtr uintptr) AddressDeviceCommandTRB {
	var t AddressDeviceCommandTRB
	bits.SetN64(&t.Lo, 4, 0xfffffffffffffff, uint64(inputContextPtr)>>4)
	bits.SetN64(&t.Hi, 120-64, 0xff, uint64(slotID))
	t.setType(typeAddressDeviceCommand)
	return t
}

// ConfigureEndpointCommandTRB enables the endpoints described by an Input
// Context (xHCI Specification Revision 1.2, 6.4.3.5).
type ConfigureEndpointCommandTRB struct{ GenericTRB }

func (ConfigureEndpointCommandTRB) trbType() uint8 { return typeConfigureEndpointCommand }

func NewConfigureEndpointCommandTRB(slotID uint8, inputContextPtr uintptr) ConfigureEndpointCommandTRB {
	var t ConfigureEndpointCommandTRB
	bits.SetN64(&t.Lo, 4, 0xfffffffffffffff, uint64(inputContextPtr)>>4)
	bits.SetN64(&t.Hi, 120-64, 0xff, uint64(slotID))
	t.setType(typeConfigureEndpointCommand)
	return t
}

// TransferEventTRB reports the completion of a transfer ring TRB (xHCI
// Specification Revision 1.2, 6.4.2.1).
type TransferEventTRB struct{ GenericTRB }

func (TransferEventTRB) trbType() uint8 { return typeTransferEvent }

// IssuerPointer returns the address of the TRB that generated this event.
func (t *TransferEventTRB) IssuerPointer() uintptr {
	return uintptr(t.Lo)
}

// TransferLength returns the number of bytes not transferred (xHCI 6.4.2.1).
func (t *TransferEventTRB) TransferLength() uint32 {
	return uint32(bits.GetN64(&t.Hi, 64-64, 0xffffff))
}

// CompletionCode returns the Completion Code field.
func (t *TransferEventTRB) CompletionCode() uint8 {
	return uint8(bits.GetN64(&t.Hi, 88-64, 0xff))
}

// EndpointID returns the endpoint that generated this event.
func (t *TransferEventTRB) EndpointID() EndpointID {
	return EndpointID(bits.GetN64(&t.Hi, 112-64, 0x1f))
}

// SlotID returns the Device Slot that generated this event.
func (t *TransferEventTRB) SlotID() uint8 {
	return uint8(bits.GetN64(&t.Hi, 120-64, 0xff))
}

// CommandCompletionEventTRB reports the completion of a command ring TRB
// (xHCI Specification Revision 1.2, 6.4.2.2).
type CommandCompletionEventTRB struct{ GenericTRB }

func (CommandCompletionEventTRB) trbType() uint8 { return typeCommandCompletionEvent }

// IssuerPointer returns the address of the command TRB that completed.
func (t *CommandCompletionEventTRB) IssuerPointer() uintptr {
	return uintptr(bits.GetN64(&t.Lo, 4, 0xfffffffffffffff) << 4)
}

// CompletionCode returns the Completion Code field.
func (t *CommandCompletionEventTRB) CompletionCode() uint8 {
	return uint8(bits.GetN64(&t.Hi, 88-64, 0xff))
}

// SlotID returns the Device Slot the command applied to.
func (t *CommandCompletionEventTRB) SlotID() uint8 {
	return uint8(bits.GetN64(&t.Hi, 120-64, 0xff))
}

// PortStatusChangeEventTRB reports a root hub port status change (xHCI
// Specification Revision 1.2, 6.4.2.3).
type PortStatusChangeEventTRB struct{ GenericTRB }

func (PortStatusChangeEventTRB) trbType() uint8 { return typePortStatusChangeEvent }

// PortID returns the 1-based root hub port number that changed.
func (t *PortStatusChangeEventTRB) PortID() uint8 {
	return uint8(bits.GetN64(&t.Lo, 24, 0xff))
}

// Completion Code values this kernel core checks for (xHCI Specification
// Revision 1.2, 6.4.5).
const (
	CompletionSuccess = 1
)
