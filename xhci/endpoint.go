// USB endpoint identification
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

// EndpointNumber is a USB endpoint number (0..15, USB 2.0 Specification,
// 9.6.6).
type EndpointNumber uint8

// MaxEndpointNumber is one past the largest valid EndpointNumber (15).
const MaxEndpointNumber EndpointNumber = 0x10

// EndpointID is the xHCI Device Context Index (DCI): endpoint number and
// direction folded into a single 1..31 value (xHCI Specification Revision
// 1.2, 4.5.1).
type EndpointID uint8

// DefaultControlPipeID is the DCI of every device's default control pipe.
const DefaultControlPipeID EndpointID = 1

// MaxEndpointID is the largest valid EndpointID (31 endpoint contexts per
// device, xHCI 6.2.1).
const MaxEndpointID EndpointID = 0x1f

// NewEndpointID folds an endpoint number and direction into a DCI, rejecting
// num at or beyond MaxEndpointNumber (USB 2.0 Specification, 9.6.6 defines
// endpoint numbers 0..15).
func NewEndpointID(num EndpointNumber, dirIn bool) (EndpointID, error) {
	if num >= MaxEndpointNumber {
		return 0, errAt(InvalidEndpointNumber, "")
	}

	in := uint8(0)
	if dirIn {
		in = 1
	}
	return EndpointID(uint8(num)<<1 | in), nil
}

// IsIn reports whether the endpoint is IN (device-to-host).
func (id EndpointID) IsIn() bool {
	return id&1 == 1
}

// Number returns the endpoint number the DCI was derived from.
func (id EndpointID) Number() EndpointNumber {
	return EndpointNumber(id >> 1)
}

// Address returns the raw DCI value.
func (id EndpointID) Address() uint8 {
	return uint8(id)
}

// EndpointType is the xHCI Endpoint Type field (xHCI Specification Revision
// 1.2, Table 6-9), direction-qualified except for Control.
type EndpointType uint8

const (
	EndpointTypeNotValid      EndpointType = 0
	EndpointTypeIsochOut      EndpointType = 1
	EndpointTypeBulkOut       EndpointType = 2
	EndpointTypeInterruptOut  EndpointType = 3
	EndpointTypeControl       EndpointType = 4
	EndpointTypeIsochIn       EndpointType = 5
	EndpointTypeBulkIn        EndpointType = 6
	EndpointTypeInterruptIn   EndpointType = 7
)

// USB transfer types as found in an Endpoint descriptor's bmAttributes
// (USB 2.0 Specification, Table 9-13).
const (
	TransferControl     = 0
	TransferIsochronous = 1
	TransferBulk        = 2
	TransferInterrupt   = 3
)

// EndpointConfig is the information needed to enable one endpoint context
// and allocate its transfer ring.
type EndpointConfig struct {
	EndpointID     EndpointID
	EndpointType   EndpointType
	MaxPacketSize  uint16
	Interval       uint32
}

// EndpointConfigFromDescriptor builds an EndpointConfig from a parsed
// Endpoint descriptor and the direction-qualified endpoint type implied by
// its transfer type and the descriptor's own IN/OUT direction bit.
func EndpointConfigFromDescriptor(desc EndpointDescriptor) (EndpointConfig, error) {
	num := EndpointNumber(desc.Number())
	dirIn := desc.DirectionIn()
	id, err := NewEndpointID(num, dirIn)
	if err != nil {
		return EndpointConfig{}, err
	}

	var t EndpointType
	switch desc.TransferType() {
	case TransferControl:
		t = EndpointTypeControl
	case TransferIsochronous:
		if dirIn {
			t = EndpointTypeIsochIn
		} else {
			t = EndpointTypeIsochOut
		}
	case TransferBulk:
		if dirIn {
			t = EndpointTypeBulkIn
		} else {
			t = EndpointTypeBulkOut
		}
	case TransferInterrupt:
		if dirIn {
			t = EndpointTypeInterruptIn
		} else {
			t = EndpointTypeInterruptOut
		}
	}

	return EndpointConfig{
		EndpointID:    id,
		EndpointType:  t,
		MaxPacketSize: desc.MaxPacketSize,
		Interval:      uint32(desc.Interval),
	}, nil
}
