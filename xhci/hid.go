// HID boot-protocol mouse class driver
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

// MouseSink receives relative cursor motion decoded from a HID boot-
// protocol mouse report. It is the mouse-event-sink collaborator this
// kernel core's out-of-scope console layer is expected to provide.
type MouseSink func(dx, dy int8)

// HIDMouseDriver interprets 3-byte HID boot-protocol mouse reports (USB HID
// 1.11, Appendix B.2) and forwards relative motion to a MouseSink. Button
// state (byte 0) is not surfaced by this core.
type HIDMouseDriver struct {
	InterfaceNumber uint8
	sink            MouseSink
}

// NewHIDMouseDriver constructs a driver for the given interface, forwarding
// motion reports to sink.
func NewHIDMouseDriver(interfaceNumber uint8, sink MouseSink) *HIDMouseDriver {
	return &HIDMouseDriver{InterfaceNumber: interfaceNumber, sink: sink}
}

// SetEndpoint is a no-op: the mouse driver only cares about report
// contents, not per-endpoint configuration.
func (d *HIDMouseDriver) SetEndpoint(cfg EndpointConfig) {}

// OnInterruptCompleted decodes a HID boot-protocol mouse report: byte 1 is
// signed Δx, byte 2 is signed Δy.
func (d *HIDMouseDriver) OnInterruptCompleted(epID EndpointID, buf []byte) error {
	if !epID.IsIn() || len(buf) < 3 {
		return errAt(NotImplemented, "non-IN or short HID report")
	}

	if d.sink != nil {
		d.sink(int8(buf[1]), int8(buf[2]))
	}
	return nil
}

// OnControlCompleted handles completion of the SET_PROTOCOL(boot) request
// issued once during configuration; there is nothing further to do.
func (d *HIDMouseDriver) OnControlCompleted(epID EndpointID, data SetupData, buf []byte) error {
	return nil
}
