// Error kinds raised by the xHCI core
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"fmt"
	"runtime"
)

// Kind identifies the category of an Error, so callers can decide policy
// (log-and-drop vs. fatal) without string matching.
type Kind int

const (
	InvalidPhase Kind = iota
	InvalidSlotID
	TransferFailed
	NoCorrespondingSetupStage
	NoWaiter
	TransferRingNotSet
	InvalidEndpointNumber
	UnknownXHCISpeedID
	TooManyDevices
	NoSpace
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case InvalidPhase:
		return "invalid phase"
	case InvalidSlotID:
		return "invalid slot id"
	case TransferFailed:
		return "transfer failed"
	case NoCorrespondingSetupStage:
		return "no corresponding setup stage"
	case NoWaiter:
		return "no waiter"
	case TransferRingNotSet:
		return "transfer ring not set"
	case InvalidEndpointNumber:
		return "invalid endpoint number"
	case UnknownXHCISpeedID:
		return "unknown xhci speed id"
	case TooManyDevices:
		return "too many devices"
	case NoSpace:
		return "no space in fixed-capacity container"
	case NotImplemented:
		return "not implemented"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus the originating location, mirroring the
// module/line context the driver this kernel core is based on attached to
// every error.
type Error struct {
	Kind   Kind
	Module string
	Line   int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("xhci: %s: %s at %s:%d", e.Kind, e.Detail, e.Module, e.Line)
	}
	return fmt.Sprintf("xhci: %s at %s:%d", e.Kind, e.Module, e.Line)
}

// errAt builds an Error tagged with its caller's file and line, the Go
// equivalent of the original driver's `make_error!` macro.
func errAt(kind Kind, detail string) *Error {
	_, file, line, _ := runtime.Caller(1)
	return &Error{Kind: kind, Module: file, Line: line, Detail: detail}
}
