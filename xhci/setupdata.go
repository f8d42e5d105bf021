// USB control-transfer Setup packet
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

// SetupData is the 8-byte Setup packet of a USB control transfer (USB 2.0
// Specification, 9.3).
type SetupData struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// bmRequestType bit fields (USB 2.0 Specification, 9.3).
const (
	RequestTypeStandard = 0 << 5
	RequestTypeClass    = 1 << 5

	RequestTypeRecipientDevice    = 0
	RequestTypeRecipientInterface = 1

	RequestTypeDirectionOut = 0
	RequestTypeDirectionIn  = 1 << 7
)

// Standard and class-specific request codes this kernel core issues.
const (
	RequestGetDescriptor  = 6
	RequestSetConfiguration = 9
	RequestSetProtocol    = 11
)

// SetupDataFromTRB reconstructs the SetupData a Setup Stage TRB carried.
func SetupDataFromTRB(t *SetupStageTRB) SetupData {
	return SetupData{
		RequestType: t.RequestType(),
		Request:     t.Request(),
		Value:       t.Value(),
		Index:       t.Index(),
		Length:      t.Length(),
	}
}
