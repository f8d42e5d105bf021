// USB class driver dispatch
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

// ClassDriver is implemented by every USB class driver this kernel core can
// dispatch to (only HIDMouseDriver exists today, per the non-goal that
// excludes mass-storage and keyboard drivers).
type ClassDriver interface {
	// SetEndpoint records an endpoint this driver will receive completions
	// for.
	SetEndpoint(cfg EndpointConfig)
	// OnInterruptCompleted handles a completed interrupt-IN transfer.
	OnInterruptCompleted(epID EndpointID, buf []byte) error
	// OnControlCompleted handles a completed control transfer the driver
	// itself issued (e.g. SET_PROTOCOL).
	OnControlCompleted(epID EndpointID, data SetupData, buf []byte) error
}
