// USB descriptor parsing
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Descriptor type codes (USB 2.0 Specification, Table 9-5), only the ones
// this kernel's walk recognizes are named; anything else is skipped by
// length.
const (
	descriptorDevice        = 1
	descriptorConfiguration = 2
	descriptorString        = 3
	descriptorInterface     = 4
	descriptorEndpoint      = 5
	descriptorHID           = 0x21
)

// Lengths in bytes of the descriptors this kernel parses (USB 2.0
// Specification, Tables 9-8, 9-10, 9-12, 9-13).
const (
	DeviceDescriptorLength        = 18
	ConfigurationDescriptorLength = 9
	InterfaceDescriptorLength     = 9
	EndpointDescriptorLength      = 7
)

// HID boot-protocol class triple this kernel recognizes as a mouse (USB HID
// 1.11, Appendix E.3).
const (
	hidClass          = 3
	hidBootSubclass   = 1
	hidMouseProtocol  = 2
)

var errShortDescriptor = errors.New("xhci: short descriptor buffer")

// DeviceDescriptor is the Standard Device Descriptor (USB 2.0 Specification,
// Table 9-8); every field is kept so the struct matches the 18-byte wire
// layout.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize     uint8
	VendorID          uint16
	ProductID         uint16
	Device            uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// ConfigurationDescriptor is the Standard Configuration Descriptor (USB 2.0
// Specification, Table 9-10).
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8
}

// InterfaceDescriptor is the Standard Interface Descriptor (USB 2.0
// Specification, Table 9-12).
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8
}

// IsHIDBootMouse reports whether this interface is a HID boot-protocol
// mouse.
func (d InterfaceDescriptor) IsHIDBootMouse() bool {
	return d.InterfaceClass == hidClass &&
		d.InterfaceSubClass == hidBootSubclass &&
		d.InterfaceProtocol == hidMouseProtocol
}

// EndpointDescriptor is the Standard Endpoint Descriptor (USB 2.0
// Specification, Table 9-13).
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// Number returns the endpoint number (bits 0..3 of bEndpointAddress).
func (d EndpointDescriptor) Number() uint8 {
	return d.EndpointAddress & 0b1111
}

// DirectionIn reports the direction bit (bit 7) of bEndpointAddress.
func (d EndpointDescriptor) DirectionIn() bool {
	return d.EndpointAddress&0b1000_0000 != 0
}

// TransferType returns the transfer type (bits 0..1 of bmAttributes).
func (d EndpointDescriptor) TransferType() uint8 {
	return d.Attributes & 0b11
}

func readLE(buf []byte, v any) error {
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

// ParseDeviceDescriptor parses a Device descriptor from the front of buf.
func ParseDeviceDescriptor(buf []byte) (DeviceDescriptor, error) {
	var d DeviceDescriptor
	if len(buf) < DeviceDescriptorLength {
		return d, errShortDescriptor
	}
	return d, readLE(buf[:DeviceDescriptorLength], &d)
}

// HIDInterface is a recognized HID boot-protocol mouse interface plus the
// endpoint configurations that follow it in the Configuration descriptor.
type HIDInterface struct {
	InterfaceNumber uint8
	Endpoints       []EndpointConfig
}

// WalkConfiguration parses a full Configuration descriptor buffer (the
// Configuration descriptor header followed by its Interface, Endpoint and
// any intervening class-specific descriptors, USB 2.0 Specification, 9.6.3),
// and returns the first HID boot-protocol mouse interface found, together
// with its endpoints.
//
// The walk stops at the first matching interface, per this kernel core's
// single-class-driver-per-device design.
func WalkConfiguration(buf []byte) (ConfigurationDescriptor, *HIDInterface, error) {
	var cfg ConfigurationDescriptor
	if len(buf) < ConfigurationDescriptorLength {
		return cfg, nil, errShortDescriptor
	}
	if err := readLE(buf[:ConfigurationDescriptorLength], &cfg); err != nil {
		return cfg, nil, err
	}

	off := int(cfg.Length)
	for off < len(buf) {
		if off+2 > len(buf) {
			break
		}

		length := int(buf[off])
		descType := buf[off+1]

		if length == 0 {
			break
		}

		if descType == descriptorInterface && length >= InterfaceDescriptorLength {
			var iface InterfaceDescriptor
			if err := readLE(buf[off:off+InterfaceDescriptorLength], &iface); err != nil {
				return cfg, nil, err
			}

			if iface.IsHIDBootMouse() {
				eps, err := walkEndpoints(buf, off+length, int(iface.NumEndpoints))
				if err != nil {
					return cfg, nil, err
				}

				return cfg, &HIDInterface{
					InterfaceNumber: iface.InterfaceNumber,
					Endpoints:       eps,
				}, nil
			}
		}

		off += length
	}

	return cfg, nil, nil
}

// walkEndpoints consumes the next n Endpoint descriptors starting at off,
// skipping any intermediate descriptors (e.g. the HID class descriptor
// between an Interface descriptor and its Endpoint descriptors).
func walkEndpoints(buf []byte, off int, n int) ([]EndpointConfig, error) {
	var eps []EndpointConfig

	for off < len(buf) && len(eps) < n {
		if off+2 > len(buf) {
			break
		}

		length := int(buf[off])
		descType := buf[off+1]

		if length == 0 {
			break
		}

		if descType == descriptorEndpoint && length >= EndpointDescriptorLength {
			var ep EndpointDescriptor
			if err := readLE(buf[off:off+EndpointDescriptorLength], &ep); err != nil {
				return nil, err
			}

			cfg, err := EndpointConfigFromDescriptor(ep)
			if err != nil {
				return nil, err
			}
			eps = append(eps, cfg)
		}

		off += length
	}

	return eps, nil
}
