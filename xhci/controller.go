// Top-level xHC controller: bring-up, port state machine, event dispatch
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "unsafe"

const (
	commandRingSize = 32
	eventRingSize   = 32
	maxTrackedPorts = 256
)

// ConfigPhase is a root hub port's position in the enumeration state machine
// (xHCI Specification Revision 1.2, 4.3).
type ConfigPhase uint8

const (
	NotConnected ConfigPhase = iota
	WaitingAddressed
	ResettingPort
	EnablingSlot
	AddressingDevice
	InitializingDevice
	ConfiguringEndpoints
	Configured
)

// Controller is the top-level xHC driver: MMIO registers, the command ring,
// the primary event ring, the device manager, and the root hub port
// enumeration state machine.
type Controller struct {
	regs Registers

	devices     *DeviceManager
	commandRing *Ring
	eventRing   *EventRing

	maxPorts uint8

	portConfigPhase [maxTrackedPorts]ConfigPhase
	addressingPort  int // 0 means "no port currently addressing"; ports are 1-based

	mouseSink MouseSink
}

// New constructs a Controller over the xHC's MMIO window at physBase; call
// Initialize before Poll.
func New(physBase uintptr, sink MouseSink) (*Controller, error) {
	devices, err := NewDeviceManager()
	if err != nil {
		return nil, err
	}

	return &Controller{
		regs:           NewRegisters(physBase),
		devices:        devices,
		addressingPort: 0,
		mouseSink:      sink,
	}, nil
}

// Initialize brings the xHC from reset to running, grounded on the original
// driver's Xhc::initialize sequence: request HC ownership, reset the
// controller, program DCBAAP/CONFIG, initialize the command and event
// rings, enable the primary interrupter, then set Run/Stop.
func (c *Controller) Initialize() error {
	c.regs.RequestHCOwnership()

	op := c.regs.Operational
	op.USBCMD().Update(func(v *USBCMD) { v.SetRunStop(false) })
	for !op.USBSTS().Read().HCHalted() {
	}

	op.USBCMD().Update(func(v *USBCMD) { v.SetHostControllerReset(true) })
	for op.USBCMD().Read().HostControllerReset() {
	}
	for op.USBSTS().Read().ControllerNotReady() {
	}

	c.maxPorts = c.regs.Capability.HCSPARAMS1().MaxPorts()
	maxSlots := c.regs.Capability.HCSPARAMS1().MaxDeviceSlots()
	if maxSlots > NumDeviceSlots {
		maxSlots = NumDeviceSlots
	}
	op.CONFIG().Update(func(v *CONFIG) { v.SetMaxDeviceSlotsEnabled(maxSlots) })

	op.DCBAAP().Update(func(v *DCBAAP) { v.SetPointer(uint64(c.devices.DCBAAPointer())) })

	ring, err := NewRing(commandRingSize)
	if err != nil {
		return err
	}
	c.commandRing = ring
	op.CRCR().Update(func(v *CRCR) {
		v.SetRingCycleState(true)
		v.SetCommandStop(false)
		v.SetCommandAbort(false)
		v.SetCommandRingPointer(uint64(ring.BufferPointer()))
	})

	eventRing, err := NewEventRing(eventRingSize, c.regs.Interrupter(0))
	if err != nil {
		return err
	}
	c.eventRing = eventRing

	c.regs.Interrupter(0).IMAN().Update(func(v *IMAN) {
		v.SetInterruptPending(true)
		v.SetInterruptEnable(true)
	})
	op.USBCMD().Update(func(v *USBCMD) { v.SetInterrupterEnable(true) })

	op.USBCMD().Update(func(v *USBCMD) { v.SetRunStop(true) })
	for op.USBSTS().Read().HCHalted() {
	}

	return nil
}

// Port returns the root hub port wrapper for the given 1-based port number.
func (c *Controller) Port(num uint8) *Port {
	return NewPort(num, c.regs.Port(int(num)-1))
}

// ConfigurePort drives a port's enumeration state machine forward by one
// step in response to a connect event, respecting the single-addressing
// invariant: only one port may be in {ResettingPort, EnablingSlot,
// AddressingDevice} at a time.
func (c *Controller) ConfigurePort(port *Port) error {
	if !port.IsConnected() {
		return nil
	}

	switch c.portConfigPhase[port.Num()] {
	case NotConnected, WaitingAddressed:
		return c.resetPort(port)
	default:
		// Already in progress or configured; a spurious connect event
		// while mid-sequence is not an error for the controller (per-port
		// InvalidPhase is for event dispatch, not this entry point).
		return nil
	}
}

func (c *Controller) resetPort(port *Port) error {
	if c.addressingPort != 0 {
		c.portConfigPhase[port.Num()] = WaitingAddressed
		return nil
	}

	c.addressingPort = int(port.Num())
	c.portConfigPhase[port.Num()] = ResettingPort
	port.Reset()
	return nil
}

// onPortStatusChange handles a PortStatusChangeEventTRB: if the port just
// finished reset, enable a Device Slot for it.
func (c *Controller) onPortStatusChange(event *PortStatusChangeEventTRB) error {
	port := c.Port(event.PortID())
	port.ClearPortResetChange()

	switch c.portConfigPhase[port.Num()] {
	case ResettingPort:
		c.portConfigPhase[port.Num()] = EnablingSlot
		Push(c.commandRing, NewEnableSlotCommandTRB())
		c.regs.Doorbell.Ring(0, 0, 0)
		return nil
	case NotConnected, WaitingAddressed:
		return c.ConfigurePort(port)
	default:
		return errAt(InvalidPhase, "port status change")
	}
}

// onCommandCompletion handles a CommandCompletionEventTRB, dispatching by
// the command ring TRB that completed.
func (c *Controller) onCommandCompletion(event *CommandCompletionEventTRB) error {
	issuer := (*GenericTRB)(unsafe.Pointer(event.IssuerPointer()))

	if _, ok := Specialize[EnableSlotCommandTRB](issuer); ok {
		return c.onEnableSlotCompleted(event)
	}
	if _, ok := Specialize[AddressDeviceCommandTRB](issuer); ok {
		return c.onAddressDeviceCompleted(event)
	}
	if _, ok := Specialize[ConfigureEndpointCommandTRB](issuer); ok {
		return c.onConfigureEndpointCompleted(event)
	}

	return errAt(NotImplemented, "unrecognized command completion")
}

func (c *Controller) onEnableSlotCompleted(event *CommandCompletionEventTRB) error {
	if event.CompletionCode() != CompletionSuccess {
		return errAt(TransferFailed, "enable slot")
	}
	if c.addressingPort == 0 {
		return errAt(InvalidPhase, "enable slot with no addressing port")
	}

	port := c.Port(uint8(c.addressingPort))
	if c.portConfigPhase[port.Num()] != EnablingSlot {
		return errAt(InvalidPhase, "enable slot")
	}

	dev, err := c.devices.AllocateDevice(event.SlotID(), c.regs.Doorbell)
	if err != nil {
		return err
	}

	c.portConfigPhase[port.Num()] = AddressingDevice
	if err := dev.AddressDevice(port); err != nil {
		return err
	}

	Push(c.commandRing, NewAddressDeviceCommandTRB(event.SlotID(), dev.InputContextPointer()))
	c.regs.Doorbell.Ring(0, 0, 0)
	return nil
}

func (c *Controller) onAddressDeviceCompleted(event *CommandCompletionEventTRB) error {
	if event.CompletionCode() != CompletionSuccess {
		return errAt(TransferFailed, "address device")
	}

	dev, err := c.devices.FindBySlot(event.SlotID())
	if err != nil {
		return err
	}

	port := c.Port(uint8(c.addressingPort))
	if c.portConfigPhase[port.Num()] != AddressingDevice {
		return errAt(InvalidPhase, "address device")
	}

	c.portConfigPhase[port.Num()] = InitializingDevice
	// The single-addressing gate only covers reset→enable-slot→address;
	// once a slot is addressed the next connected port may proceed.
	c.addressingPort = 0

	return dev.StartInitialize()
}

func (c *Controller) onConfigureEndpointCompleted(event *CommandCompletionEventTRB) error {
	if event.CompletionCode() != CompletionSuccess {
		return errAt(TransferFailed, "configure endpoint")
	}

	dev, err := c.devices.FindBySlot(event.SlotID())
	if err != nil {
		return err
	}

	hid, ok := dev.PendingHIDInterface()
	if !ok {
		return nil
	}

	driver := NewHIDMouseDriver(hid.InterfaceNumber, c.mouseSink)
	if err := dev.ArmInterruptEndpoints(hid.Endpoints, driver); err != nil {
		return err
	}
	if err := dev.IssueSetProtocolBoot(hid.InterfaceNumber, driver); err != nil {
		return err
	}

	port := c.Port(dev.deviceContext.Slot.RootHubPortNum())
	c.portConfigPhase[port.Num()] = Configured
	return c.resumeWaitingPort()
}

// resumeWaitingPort advances the first port still waiting behind the
// single-addressing gate, once the gate has freed up (xHCI Specification
// Revision 1.2, 4.3.1: only one port may be mid-enumeration at a time).
func (c *Controller) resumeWaitingPort() error {
	if c.addressingPort != 0 {
		return nil
	}

	for n := uint8(1); n <= c.maxPorts; n++ {
		if c.portConfigPhase[n] == WaitingAddressed {
			return c.resetPort(c.Port(n))
		}
	}
	return nil
}

// onTransferEvent dispatches a TransferEventTRB to its slot's device.
func (c *Controller) onTransferEvent(event *TransferEventTRB) error {
	dev, err := c.devices.FindBySlot(event.SlotID())
	if err != nil {
		return err
	}

	if err := dev.OnTransferEvent(event); err != nil {
		return err
	}

	if dev.IsInitialized() {
		return c.maybeConfigureEndpoints(dev)
	}
	return nil
}

// maybeConfigureEndpoints issues a ConfigureEndpointCommand once a device
// has finished its descriptor-driven phase machine and a HID interface was
// discovered (xHCI Specification Revision 1.2, 4.6.6).
func (c *Controller) maybeConfigureEndpoints(dev *UsbDevice) error {
	hid, ok := dev.PendingHIDInterface()
	if !ok || len(hid.Endpoints) == 0 {
		return nil
	}

	port := c.Port(dev.deviceContext.Slot.RootHubPortNum())
	if c.portConfigPhase[port.Num()] != InitializingDevice {
		return nil
	}

	speed, err := port.Speed()
	if err != nil {
		return err
	}

	if err := dev.ConfigureEndpoints(speed, hid.Endpoints); err != nil {
		return err
	}

	c.portConfigPhase[port.Num()] = ConfiguringEndpoints
	Push(c.commandRing, NewConfigureEndpointCommandTRB(dev.SlotID, dev.InputContextPointer()))
	c.regs.Doorbell.Ring(0, 0, 0)
	return nil
}

// Poll dequeues and dispatches a single event from the primary event ring,
// reporting false if none was pending.
func (c *Controller) Poll() (bool, error) {
	trb, ok := c.eventRing.Poll()
	if !ok {
		return false, nil
	}

	g := trb

	if ev, ok := Specialize[TransferEventTRB](&g); ok {
		return true, c.onTransferEvent(&ev)
	}
	if ev, ok := Specialize[CommandCompletionEventTRB](&g); ok {
		return true, c.onCommandCompletion(&ev)
	}
	if ev, ok := Specialize[PortStatusChangeEventTRB](&g); ok {
		return true, c.onPortStatusChange(&ev)
	}

	return true, errAt(NotImplemented, "unrecognized event TRB type")
}

// MaxPorts returns the number of root hub ports this xHC reports.
func (c *Controller) MaxPorts() uint8 {
	return c.maxPorts
}
