// Device Context Base Address Array and per-slot device allocation
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

// NumDeviceSlots bounds how many Device Slots this kernel core enables
// (CONFIG.MaxSlotsEn), independent of how many the hardware reports
// supporting.
const NumDeviceSlots = 8

// DeviceManager owns the Device Context Base Address Array (DCBAA, xHCI
// Specification Revision 1.2, 6.1) and the per-slot UsbDevice state built
// on top of it. Index 0 of both arrays is reserved by the xHCI
// specification and never allocated.
type DeviceManager struct {
	dcbaa   []uint64
	devices []*UsbDevice
}

// NewDeviceManager allocates the DCBAA for NumDeviceSlots+1 entries (slot 0
// reserved).
func NewDeviceManager() (*DeviceManager, error) {
	dcbaa, err := pool.AllocateArray[uint64](NumDeviceSlots+1, 64, 4096)
	if err != nil {
		return nil, err
	}

	return &DeviceManager{
		dcbaa:   dcbaa,
		devices: make([]*UsbDevice, NumDeviceSlots+1),
	}, nil
}

// DCBAAPointer returns the physical address to program into DCBAAP.
func (m *DeviceManager) DCBAAPointer() uintptr {
	return uintptr(unsafe.Pointer(&m.dcbaa[0]))
}

// AllocateDevice builds a UsbDevice for a newly enabled slot, allocating its
// Device Context (registered in the DCBAA, so the controller can find it)
// and private Input Context.
func (m *DeviceManager) AllocateDevice(slotID uint8, doorbell doorbellRinger) (*UsbDevice, error) {
	if int(slotID) == 0 || int(slotID) >= len(m.devices) {
		return nil, errAt(InvalidSlotID, "")
	}
	if m.devices[slotID] != nil {
		return nil, errAt(TooManyDevices, "slot already allocated")
	}

	dc, err := pool.AllocateArray[DeviceContext](1, 64, 4096)
	if err != nil {
		return nil, err
	}
	ic, err := pool.AllocateArray[InputContext](1, 64, 4096)
	if err != nil {
		return nil, err
	}

	dev := NewUsbDevice(slotID, &dc[0], &ic[0], doorbell)
	m.devices[slotID] = dev
	m.dcbaa[slotID] = uint64(uintptr(unsafe.Pointer(&dc[0])))

	return dev, nil
}

// FindBySlot looks up a previously allocated device by its Device Slot ID.
func (m *DeviceManager) FindBySlot(slotID uint8) (*UsbDevice, error) {
	if int(slotID) == 0 || int(slotID) >= len(m.devices) {
		return nil, errAt(InvalidSlotID, "")
	}

	dev := m.devices[slotID]
	if dev == nil {
		return nil, errAt(InvalidSlotID, "slot not allocated")
	}
	return dev, nil
}
