// Peripheral Component Interconnect (PCI) driver
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

import "errors"

// ErrNoMSI is returned when a device's Capabilities List contains no MSI
// capability; this is fatal at kernel init time, since the interrupt-driven
// event polling the xhci package relies on has no other vector-registration
// hook to fall back to.
var ErrNoMSI = errors.New("pci: no MSI capability")

const (
	msiControlMSIEnable = 0
	msiControl64Bit     = 7
)

// CapabilityMSI represents a Message Signaled Interrupt (MSI) Capability
// Structure (PCI Local Bus Specification Revision 3.0, 6.8.1).
type CapabilityMSI struct {
	CapabilityHeader
	MessageControl uint16

	device *Device
	off    uint32
}

// FindMSI walks the device's Capabilities List looking for the MSI
// capability, returning ErrNoMSI if absent.
func FindMSI(d *Device) (*CapabilityMSI, error) {
	for off, hdr := range d.Capabilities() {
		if hdr.ID == MSI {
			msi := &CapabilityMSI{CapabilityHeader: hdr, device: d, off: off}
			val := d.Read(0, off)
			msi.MessageControl = uint16(val >> 16)
			return msi, nil
		}
	}

	return nil, ErrNoMSI
}

// is64Bit reports whether the capability uses the 64-bit message address
// register layout.
func (msi *CapabilityMSI) is64Bit() bool {
	return msi.MessageControl&(1<<msiControl64Bit) != 0
}

// Enable configures and enables the MSI capability to deliver the given
// vector to the given Local APIC ID on the calling processor, using edge
// triggered, fixed delivery mode (Intel SDM Volume 3A, 10.11 "Message
// Signalled Interrupts").
func (msi *CapabilityMSI) Enable(apicID uint8, vector uint8) {
	addr := uint32(0xfee00000) | uint32(apicID)<<12
	data := uint32(vector)

	msi.device.Write(0, msi.off+4, addr)

	dataOff := msi.off + 8
	if msi.is64Bit() {
		msi.device.Write(0, msi.off+8, 0)
		dataOff = msi.off + 12
	}

	msi.device.Write(0, dataOff, data)

	ctrl := uint32(msi.MessageControl) << 16
	ctrl |= 1 << msiControlMSIEnable
	msi.device.Write(0, msi.off, ctrl)

	msi.MessageControl = uint16(ctrl >> 16)
}
