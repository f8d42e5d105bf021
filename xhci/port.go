// xHCI root hub port
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"errors"
)

// PortSpeed is the xHCI Port Speed ID (xHCI Specification Revision 1.2,
// Table 7-13, as implemented by the default USB3 Root Hub Port protocol
// slot type).
type PortSpeed uint8

const (
	FullSpeed      PortSpeed = 1
	LowSpeed       PortSpeed = 2
	HighSpeed      PortSpeed = 3
	SuperSpeed     PortSpeed = 4
	SuperSpeedPlus PortSpeed = 5
)

// ErrUnknownSpeed is returned by PortSpeedFromID for any id outside 1..5.
var ErrUnknownSpeed = errors.New("xhci: unknown port speed id")

// PortSpeedFromID validates a raw xHCI Speed ID field.
func PortSpeedFromID(id uint8) (PortSpeed, error) {
	switch PortSpeed(id) {
	case FullSpeed, LowSpeed, HighSpeed, SuperSpeed, SuperSpeedPlus:
		return PortSpeed(id), nil
	default:
		return 0, ErrUnknownSpeed
	}
}

// ConvertInterval maps a USB Endpoint descriptor's bInterval to the xHCI
// Endpoint Context Interval field, which is expressed in units of
// 125us * 2^Interval (xHCI Specification Revision 1.2, 6.2.3.6).
func (s PortSpeed) ConvertInterval(t EndpointType, interval uint32) uint32 {
	switch s {
	case FullSpeed, LowSpeed:
		if t == EndpointTypeIsochIn || t == EndpointTypeIsochOut {
			return interval * 2
		}

		m, ok := msb1(interval)
		if !ok {
			return uint32(int32(-1) + 3)
		}
		return uint32(int32(m) + 3)
	default:
		return interval - 1
	}
}

// msb1 returns the position (0-indexed from the LSB) of the most
// significant set bit of n, or ok == false if n == 0.
func msb1(n uint32) (pos uint8, ok bool) {
	if n == 0 {
		return 0, false
	}

	p := uint8(31)
	for n&(1<<31) == 0 {
		n <<= 1
		p--
	}
	return p, true
}

// Port wraps one root hub port's PORTSC register.
type Port struct {
	num uintptr
	sc  reg32[PORTSC]
}

// NewPort constructs a Port wrapping the given 1-based port number's
// PORTSC register.
func NewPort(num uint8, set PortRegisterSet) *Port {
	return &Port{num: uintptr(num), sc: set.PORTSC()}
}

// Num returns the 1-based root hub port number.
func (p *Port) Num() uint8 {
	return uint8(p.num)
}

// IsConnected reports the Current Connect Status bit.
func (p *Port) IsConnected() bool {
	return p.sc.Read().CurrentConnectStatus()
}

// IsEnabled reports the Port Enabled/Disabled bit.
func (p *Port) IsEnabled() bool {
	return p.sc.Read().PortEnabled()
}

// IsPortResetChanged reports the Port Reset Change bit.
func (p *Port) IsPortResetChanged() bool {
	return p.sc.Read().PortResetChange()
}

// Speed decodes the port's negotiated speed.
func (p *Port) Speed() (PortSpeed, error) {
	return PortSpeedFromID(p.sc.Read().PortSpeed())
}

// Reset requests a port reset and busy-waits until the hardware clears the
// Port Reset bit (xHCI Specification Revision 1.2, 4.19.1.1).
func (p *Port) Reset() {
	p.sc.Update(func(v *PORTSC) { v.Reset() })

	for p.sc.Read().PortReset() {
	}
}

// ClearPortResetChange acknowledges the Port Reset Change event.
func (p *Port) ClearPortResetChange() {
	p.sc.Update(func(v *PORTSC) { v.ClearStatusBit() })
}
