// Peripheral Component Interconnect (PCI) driver
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

// Capability IDs (PCI Code and ID Assignment Specification Revision 1.11 -
// 2. Capability IDs), only the ones this kernel's capability walk cares
// about are named.
const (
	MSI           = 0x05
	MSIX          = 0x11
	PowerMgmt     = 0x01
	VendorSpecific = 0x09
)

// CapabilityHeader represents the common fields of a PCI Capabilities List
// entry.
type CapabilityHeader struct {
	ID   uint8
	Next uint8
}

func (hdr *CapabilityHeader) unmarshal(d *Device, off uint32) {
	val := d.Read(0, off)
	hdr.ID = uint8(val & 0xff)
	hdr.Next = uint8(val >> 8)
}

// Capabilities is an iterator over the entries of the device Capabilities
// List (the list head is read from CapabilitiesOffset, each entry's Next
// field chains to the following one, terminated by Next == 0).
func (d *Device) Capabilities() func(func(off uint32, hdr CapabilityHeader) bool) {
	return func(yield func(uint32, CapabilityHeader) bool) {
		off := d.Read(0, CapabilitiesOffset) & 0xff

		for off != 0 {
			var hdr CapabilityHeader
			hdr.unmarshal(d, off)

			if !yield(off, hdr) {
				return
			}

			off = uint32(hdr.Next)
		}
	}
}
