// Per-slot USB device state and transfer issuing
// https://github.com/ocadaruma/rumikan
//
// Copyright (c) The Rumikan Authors.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "unsafe"

// Fixed capacities for UsbDevice's small lookup containers, chosen at
// design time rather than grown dynamically (this kernel never frees, so
// unbounded growth would just move the out-of-memory failure elsewhere).
const (
	maxClassDrivers  = 16
	maxSetupStageMap = 16
	maxEventWaiters  = 4
)

// doorbellRinger is the narrow capability a UsbDevice needs from the
// controller's doorbell register array; DoorbellRegisterSet satisfies it.
type doorbellRinger interface {
	Ring(slot uint8, target uint8, streamID uint16)
}

// Device initialization phases (xHCI Specification Revision 1.2, 4.3,
// narrowed to this kernel's GetDescriptor → SetConfiguration sequence;
// SET_PROTOCOL is issued separately, after ConfigureEndpointCommand).
const (
	phaseNotInitialized = iota
	phaseWaitingDeviceDescriptor
	phaseWaitingConfigurationDescriptor
	phaseWaitingSetConfiguration
	phaseInitialized
)

// UsbDevice holds all per-slot state: its hardware Device Context and
// private Input Context, one transfer ring per enabled endpoint, the class
// driver bound to each endpoint number, and the bookkeeping needed to match
// a Data/Status stage completion back to the Setup packet that began it.
type UsbDevice struct {
	SlotID uint8

	deviceContext *DeviceContext
	inputContext  *InputContext
	doorbell      doorbellRinger

	transferRings map[EndpointID]*Ring
	classDrivers  map[EndpointNumber]ClassDriver
	setupStageMap map[uintptr]SetupStageTRB
	eventWaiters  map[SetupData]ClassDriver

	buf [256]byte

	initializePhase int
	isInitialized   bool

	hasHIDInterface bool
	hidInterface    *HIDInterface
}

// NewUsbDevice constructs a device bound to an already-allocated Device and
// Input Context pair.
func NewUsbDevice(slotID uint8, dc *DeviceContext, ic *InputContext, doorbell doorbellRinger) *UsbDevice {
	return &UsbDevice{
		SlotID:        slotID,
		deviceContext: dc,
		inputContext:  ic,
		doorbell:      doorbell,
		transferRings: make(map[EndpointID]*Ring),
		classDrivers:  make(map[EndpointNumber]ClassDriver),
		setupStageMap: make(map[uintptr]SetupStageTRB),
		eventWaiters:  make(map[SetupData]ClassDriver),
	}
}

// Buffer returns the device's 256-byte descriptor scratch buffer.
func (d *UsbDevice) Buffer() []byte {
	return d.buf[:]
}

func (d *UsbDevice) bufferAddr() uintptr {
	return uintptr(unsafe.Pointer(&d.buf[0]))
}

// InputContextPointer returns the physical address of the device's private
// Input Context, for AddressDeviceCommand/ConfigureEndpointCommand.
func (d *UsbDevice) InputContextPointer() uintptr {
	return uintptr(unsafe.Pointer(d.inputContext))
}

// maxPacketSizeForSpeed implements the default control pipe's max packet
// size policy (USB 3.2 Specification / USB 2.0 Specification, 5.5.3).
func maxPacketSizeForSpeed(speed PortSpeed) uint16 {
	switch speed {
	case SuperSpeed, SuperSpeedPlus:
		return 512
	case HighSpeed:
		return 64
	default:
		return 8
	}
}

// AddressDevice prepares the device's Input Context and allocates the
// default control pipe's transfer ring, ahead of the controller issuing an
// AddressDeviceCommand (xHCI Specification Revision 1.2, 4.3.3/4.5.2).
func (d *UsbDevice) AddressDevice(port *Port) error {
	ring, err := NewRing(32)
	if err != nil {
		return err
	}

	speed, err := port.Speed()
	if err != nil {
		return err
	}

	if err := d.addTransferRing(DefaultControlPipeID, ring); err != nil {
		return err
	}

	slot := d.inputContext.EnableSlotContext()
	slot.SetRouteString(0)
	slot.SetRootHubPortNum(port.Num())
	slot.SetContextEntries(1)
	slot.SetSpeed(speed)

	ep := d.inputContext.EnableEndpoint(DefaultControlPipeID)
	ep.SetEndpointType(EndpointTypeControl)
	ep.SetMaxPacketSize(maxPacketSizeForSpeed(speed))
	ep.SetMaxBurstSize(0)
	ep.SetTransferRingBuffer(ring.BufferPointer())
	ep.SetDequeueCycleState(true)
	ep.SetErrorCount(3)
	ep.SetInterval(0)
	ep.SetMaxPrimaryStreams(0)
	ep.SetMult(0)

	return nil
}

func (d *UsbDevice) addTransferRing(epID EndpointID, ring *Ring) error {
	if len(d.transferRings) >= int(MaxEndpointID) {
		return errAt(NoSpace, "transfer ring map full")
	}
	d.transferRings[epID] = ring
	return nil
}

func (d *UsbDevice) addClassDriver(num EndpointNumber, driver ClassDriver) error {
	if len(d.classDrivers) >= maxClassDrivers {
		return errAt(NoSpace, "class driver map full")
	}
	d.classDrivers[num] = driver
	return nil
}

func (d *UsbDevice) recordSetupStage(ptr uintptr, setup SetupStageTRB) error {
	if len(d.setupStageMap) >= maxSetupStageMap {
		return errAt(NoSpace, "setup stage map full")
	}
	d.setupStageMap[ptr] = setup
	return nil
}

// recordEventWaiter remembers which class driver issued setup, so its
// completion can be routed back by onControlCompleted once the transfer
// completes (the control-transfer analogue of setupStageMap, keyed by the
// Setup packet itself rather than a TRB pointer since no Data Stage exists
// for a no-data request like SET_PROTOCOL).
func (d *UsbDevice) recordEventWaiter(setup SetupData, driver ClassDriver) error {
	if len(d.eventWaiters) >= maxEventWaiters {
		return errAt(NoSpace, "event waiter map full")
	}
	d.eventWaiters[setup] = driver
	return nil
}

// StartInitialize begins the descriptor-driven initialization phase
// machine by requesting the Device descriptor.
func (d *UsbDevice) StartInitialize() error {
	d.initializePhase = phaseWaitingDeviceDescriptor

	return d.getDescriptor(descriptorDevice, 0, uint16(len(d.buf)))
}

func (d *UsbDevice) getDescriptor(descType uint8, index uint8, length uint16) error {
	setup := SetupData{
		RequestType: RequestTypeDirectionIn | RequestTypeStandard | RequestTypeRecipientDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(index),
		Index:       0,
		Length:      length,
	}
	return d.controlIn(DefaultControlPipeID, setup, d.buf[:length])
}

func (d *UsbDevice) setConfiguration(value uint8) error {
	setup := SetupData{
		RequestType: RequestTypeDirectionOut | RequestTypeStandard | RequestTypeRecipientDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
		Index:       0,
		Length:      0,
	}
	return d.controlOutNoData(DefaultControlPipeID, setup)
}

// IssueSetProtocolBoot sends SET_PROTOCOL(boot) to interfaceNumber on behalf
// of driver, once the controller's ConfigureEndpointCommand has completed
// successfully; driver's OnControlCompleted receives the completion event
// (see recordEventWaiter).
func (d *UsbDevice) IssueSetProtocolBoot(interfaceNumber uint8, driver ClassDriver) error {
	setup := SetupData{
		RequestType: RequestTypeDirectionOut | RequestTypeClass | RequestTypeRecipientInterface,
		Request:     RequestSetProtocol,
		Value:       0, // boot protocol
		Index:       uint16(interfaceNumber),
		Length:      0,
	}
	if err := d.recordEventWaiter(setup, driver); err != nil {
		return err
	}
	return d.controlOutNoData(DefaultControlPipeID, setup)
}

// controlIn issues a control transfer with an IN data stage.
func (d *UsbDevice) controlIn(epID EndpointID, data SetupData, buf []byte) error {
	return d.controlTransfer(epID, data, buf, true)
}

// controlOutNoData issues a control transfer with no data stage.
func (d *UsbDevice) controlOutNoData(epID EndpointID, data SetupData) error {
	return d.controlTransfer(epID, data, nil, false)
}

func (d *UsbDevice) controlTransfer(epID EndpointID, data SetupData, buf []byte, dirIn bool) error {
	ring, ok := d.transferRings[epID]
	if !ok {
		return errAt(TransferRingNotSet, "control transfer")
	}

	var setupTRB SetupStageTRB
	// completionPtr is the pointer this transfer's completion event will
	// carry: the Data Stage TRB when one exists (it is where the transfer
	// actually becomes readable), otherwise the Status Stage TRB. Both
	// stage TRBs request a completion interrupt, but only the stage that
	// carries completionPtr is looked up in setupStageMap — the other
	// stage's event is a harmless, unmatched no-op (see onControlCompleted).
	var completionPtr uintptr

	if len(buf) == 0 {
		_, pushed := Push(ring, NewSetupStageTRB(data, TransferTypeNoDataStage))
		setupTRB = pushed

		status := NewStatusStageTRB(true)
		completionPtr, _ = Push(ring, status)
	} else {
		transferType := TransferTypeOutData
		if dirIn {
			transferType = TransferTypeInData
		}
		_, pushed := Push(ring, NewSetupStageTRB(data, uint8(transferType)))
		setupTRB = pushed

		dataTRB := NewDataStageTRB(uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), dirIn)
		completionPtr, _ = Push(ring, dataTRB)

		Push(ring, NewStatusStageTRB(!dirIn))
	}

	if err := d.recordSetupStage(completionPtr, setupTRB); err != nil {
		return err
	}

	d.doorbell.Ring(d.SlotID, epID.Address(), 0)
	return nil
}

// OnTransferEvent handles a TransferEventTRB for this device (xHCI
// Specification Revision 1.2, 4.11.3.1).
func (d *UsbDevice) OnTransferEvent(event *TransferEventTRB) error {
	code := event.CompletionCode()
	if code != CompletionSuccess && code != completionShortPacket {
		return errAt(TransferFailed, "")
	}

	issuer := (*GenericTRB)(unsafe.Pointer(event.IssuerPointer()))

	if normal, ok := Specialize[NormalTRB](issuer); ok {
		transferLength := normal.TransferLength() - event.TransferLength()
		return d.onInterruptCompleted(event.EndpointID(), normal.Pointer(), transferLength, normal.TransferLength())
	}

	return d.onControlCompleted(event.EndpointID(), event.IssuerPointer())
}

// onInterruptCompleted hands the length bytes received at bufPtr to the
// endpoint's class driver, then re-arms the endpoint with a Normal TRB of
// the original requested length.
func (d *UsbDevice) onInterruptCompleted(epID EndpointID, bufPtr uintptr, length uint32, requested uint32) error {
	driver, ok := d.classDrivers[epID.Number()]
	if !ok {
		return errAt(NoWaiter, "")
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(bufPtr)), length)
	if err := driver.OnInterruptCompleted(epID, buf); err != nil {
		return err
	}

	return d.rearmInterruptIn(epID, bufPtr, requested)
}

func (d *UsbDevice) rearmInterruptIn(epID EndpointID, bufPtr uintptr, length uint32) error {
	ring, ok := d.transferRings[epID]
	if !ok {
		return errAt(TransferRingNotSet, "rearm interrupt-in")
	}

	trb := NewNormalTRB(bufPtr, length)
	Push(ring, trb)
	d.doorbell.Ring(d.SlotID, epID.Address(), 0)
	return nil
}

func (d *UsbDevice) onControlCompleted(epID EndpointID, issuerPtr uintptr) error {
	setup, ok := d.setupStageMap[issuerPtr]
	if !ok {
		// The Status Stage of a transfer that had a Data Stage also
		// requests a completion interrupt; its event arrives after the
		// Data Stage's and carries no further work.
		return nil
	}
	delete(d.setupStageMap, issuerPtr)

	switch d.initializePhase {
	case phaseWaitingDeviceDescriptor:
		return d.onDeviceDescriptorReceived()
	case phaseWaitingConfigurationDescriptor:
		return d.onConfigurationDescriptorReceived()
	case phaseWaitingSetConfiguration:
		return d.onSetConfigurationCompleted()
	default:
		// Every control request issued once the device is initialized
		// (e.g. a class driver's SET_PROTOCOL) is tracked in eventWaiters
		// rather than this switch, so its completion routes back to the
		// driver that issued it.
		setupData := SetupDataFromTRB(&setup)
		driver, ok := d.eventWaiters[setupData]
		if !ok {
			return nil
		}
		delete(d.eventWaiters, setupData)
		return driver.OnControlCompleted(epID, setupData, nil)
	}
}

func (d *UsbDevice) onDeviceDescriptorReceived() error {
	if _, err := ParseDeviceDescriptor(d.buf[:]); err != nil {
		return err
	}

	d.initializePhase = phaseWaitingConfigurationDescriptor
	return d.getDescriptor(descriptorConfiguration, 0, uint16(len(d.buf)))
}

func (d *UsbDevice) onConfigurationDescriptorReceived() error {
	cfg, hid, err := WalkConfiguration(d.buf[:])
	if err != nil {
		return err
	}

	if hid != nil {
		d.hasHIDInterface = true
		d.hidInterface = hid
	}

	d.initializePhase = phaseWaitingSetConfiguration
	return d.setConfiguration(cfg.ConfigurationValue)
}

// onSetConfigurationCompleted completes the init phase machine: SET_PROTOCOL
// is not part of it (xHCI Specification Revision 1.2, 4.3.3's set-endpoint
// step), since the boot-protocol pipe it rides cannot be established until
// the controller's ConfigureEndpointCommand has enabled the HID interrupt-IN
// endpoint (see Controller.onConfigureEndpointCompleted).
func (d *UsbDevice) onSetConfigurationCompleted() error {
	d.initializePhase = phaseInitialized
	d.isInitialized = true
	return nil
}

// PendingHIDInterface returns the HID boot-protocol mouse interface
// discovered in the device's Configuration descriptor, once initialization
// has reached phaseInitialized. The controller uses it to issue a
// ConfigureEndpointCommand and bind an HIDMouseDriver.
func (d *UsbDevice) PendingHIDInterface() (*HIDInterface, bool) {
	return d.hidInterface, d.hasHIDInterface
}

// ConfigureEndpoints prepares the device's Input Context to enable the
// endpoints of a discovered interface, ahead of the controller issuing a
// ConfigureEndpointCommand (xHCI Specification Revision 1.2, 4.6.6).
func (d *UsbDevice) ConfigureEndpoints(speed PortSpeed, configs []EndpointConfig) error {
	slot := d.inputContext.EnableSlotContext()
	*slot = d.deviceContext.Slot
	slot.SetContextEntries(uint8(MaxEndpointID))

	for _, cfg := range configs {
		ring, err := NewRing(32)
		if err != nil {
			return err
		}
		if err := d.addTransferRing(cfg.EndpointID, ring); err != nil {
			return err
		}

		ep := d.inputContext.EnableEndpoint(cfg.EndpointID)
		ep.SetEndpointType(cfg.EndpointType)
		ep.SetMaxPacketSize(cfg.MaxPacketSize)
		ep.SetInterval(uint8(speed.ConvertInterval(cfg.EndpointType, cfg.Interval)))
		ep.SetTransferRingBuffer(ring.BufferPointer())
		ep.SetDequeueCycleState(true)
		ep.SetErrorCount(3)
		ep.SetMaxBurstSize(0)
		ep.SetMaxPrimaryStreams(0)
		ep.SetMult(0)
		ep.SetAverageTRBLength(cfg.MaxPacketSize)
	}

	return nil
}

// ArmInterruptEndpoints binds driver to every interrupt-IN endpoint set up
// by ConfigureEndpoints and submits each one's first transfer, once the
// controller's ConfigureEndpointCommand has completed successfully.
func (d *UsbDevice) ArmInterruptEndpoints(configs []EndpointConfig, driver ClassDriver) error {
	for _, cfg := range configs {
		if cfg.EndpointType != EndpointTypeInterruptIn {
			continue
		}

		driver.SetEndpoint(cfg)
		if err := d.addClassDriver(cfg.EndpointID.Number(), driver); err != nil {
			return err
		}

		if err := d.rearmInterruptIn(cfg.EndpointID, d.bufferAddr(), uint32(cfg.MaxPacketSize)); err != nil {
			return err
		}
	}

	return nil
}

// IsInitialized reports whether the device has completed its
// GetDescriptor/SetConfiguration phase machine.
func (d *UsbDevice) IsInitialized() bool {
	return d.isInitialized
}

// completion codes beyond CompletionSuccess this kernel core tolerates
// (xHCI Specification Revision 1.2, 6.4.5): a Short Packet is a normal
// outcome when the device returns fewer bytes than requested.
const completionShortPacket = 13
