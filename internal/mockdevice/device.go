// Package mockdevice is an in-process stand-in for the power station:
// a sparse 16-bit register map with configurable readable/writable
// ranges, a FIFO failure-injection queue, and (optionally) the
// device-side initiator half of the encryption handshake. It implements
// the same ble.Adapter/Connection/Service/Characteristic surface as a
// real GATT binding so the internal/ble tests and this package's own
// tests can drive a Client without a real radio.
package mockdevice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
	"github.com/fieldwire-iot/pwrscan-ble/internal/crypto"
	"github.com/fieldwire-iot/pwrscan-ble/internal/handshake"
	"github.com/fieldwire-iot/pwrscan-ble/internal/modbus"
)

// illegalDataAddress is the MODBUS exception code returned for a request
// touching an address outside the device's readable/writable ranges.
const illegalDataAddress = 0x02

// Range is an inclusive-exclusive [Start, End) register address range.
type Range struct {
	Start, End uint16
}

func (r Range) contains(addr uint16, count int) bool {
	return addr >= r.Start && int(addr)+count <= int(r.End)
}

// FailureKind names one injectable fault.
type FailureKind int

const (
	FailureTimeout FailureKind = iota
	FailureCRCError
	FailureConnectionError
	FailureCannedResponse
)

// Device is the mock power station. Zero value is not usable; build one
// with New.
type Device struct {
	handle    ble.DeviceHandle
	keyBundle *crypto.KeyBundle

	mu         sync.Mutex
	registers  map[uint16]uint16
	readable   []Range
	writable   []Range

	timeouts         int
	crcErrors        int
	connectionErrors int
	canned           [][]byte

	subscriber   func([]byte)
	onDisconnect func()
	connected    bool

	handshakeEngine *handshake.Engine
	sessionKey      []byte

	handshakeDelay time.Duration
}

// New builds a mock device. keyBundle may be nil for a plaintext device.
func New(id, name string, keyBundle *crypto.KeyBundle) *Device {
	return &Device{
		handle:         ble.DeviceHandle{ID: id, Name: name},
		keyBundle:      keyBundle,
		registers:      make(map[uint16]uint16),
		handshakeDelay: 10 * time.Millisecond,
	}
}

// Handle returns this device's handle for use with ble.Adapter.Connect.
func (d *Device) Handle() ble.DeviceHandle { return d.handle }

// SetRegister sets a holding register's value.
func (d *Device) SetRegister(addr, value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registers[addr] = value
}

// AddReadableRange marks [start, end) as readable.
func (d *Device) AddReadableRange(start, end uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readable = append(d.readable, Range{start, end})
}

// AddWritableRange marks [start, end) as writable.
func (d *Device) AddWritableRange(start, end uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writable = append(d.writable, Range{start, end})
}

// QueueFailure pushes one fault onto the FIFO queue for its kind. For
// FailureCannedResponse, response is the raw MODBUS frame to send
// instead of the computed one.
func (d *Device) QueueFailure(kind FailureKind, response []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case FailureTimeout:
		d.timeouts++
	case FailureCRCError:
		d.crcErrors++
	case FailureConnectionError:
		d.connectionErrors++
	case FailureCannedResponse:
		d.canned = append(d.canned, response)
	}
}

func (d *Device) isReadable(addr uint16, count int) bool {
	for _, r := range d.readable {
		if r.contains(addr, count) {
			return true
		}
	}
	return false
}

func (d *Device) isWritable(addr uint16, count int) bool {
	for _, r := range d.writable {
		if r.contains(addr, count) {
			return true
		}
	}
	return false
}

// handleConnect resets per-connection state. For an encrypted device the
// unsolicited state-1 challenge is scheduled by handleSubscribe, shortly
// after the host subscribes to notifications.
func (d *Device) handleConnect() {
	d.mu.Lock()
	d.connected = true
	d.handshakeEngine = nil
	d.sessionKey = nil
	d.mu.Unlock()
}

func (d *Device) handleSubscribe(fn func([]byte)) {
	d.mu.Lock()
	d.subscriber = fn
	bundle := d.keyBundle
	delay := d.handshakeDelay
	d.mu.Unlock()

	if bundle == nil {
		return
	}
	go func() {
		time.Sleep(delay)
		d.mu.Lock()
		engine := handshake.NewInitiator(bundle)
		d.handshakeEngine = engine
		sub := d.subscriber
		connected := d.connected
		d.mu.Unlock()
		if !connected || sub == nil {
			return
		}
		d.driveEngine(engine, nil)
	}()
}

// driveEngine advances engine with incoming (nil for an unsolicited
// send) and emits whatever it produces, looping without waiting for a
// reply while the engine reports it has more to send unprompted (states
// 3 and 4 are both initiator sends with no ack in between).
func (d *Device) driveEngine(engine *handshake.Engine, incoming []byte) {
	for {
		out, err := engine.Advance(incoming)
		incoming = nil
		if out != nil {
			d.emit(out)
		}
		if err != nil {
			return // terminal handshake error: device simply stops responding
		}
		if engine.IsComplete() {
			d.mu.Lock()
			d.sessionKey = engine.SessionKey()
			d.mu.Unlock()
			return
		}
		if !engine.NeedsContinuation() {
			return
		}
	}
}

// handleWrite is the device's reaction to a write on the command
// characteristic: either the next handshake step, or a MODBUS exchange.
func (d *Device) handleWrite(_ context.Context, data []byte) error {
	d.mu.Lock()
	engine := d.handshakeEngine
	connected := d.connected
	d.mu.Unlock()

	if !connected {
		return fmt.Errorf("mockdevice: write while disconnected")
	}

	if engine != nil && !engine.IsComplete() {
		d.driveEngine(engine, data)
		return nil
	}

	d.mu.Lock()
	sessionKey := d.sessionKey
	sub := d.subscriber
	d.mu.Unlock()

	request := data
	if sessionKey != nil {
		plain, err := crypto.DecodeFrame(sessionKey, nil, data)
		if err != nil {
			return nil
		}
		request = plain
	}

	if d.consumeConnectionError() {
		d.mu.Lock()
		onDisc := d.onDisconnect
		d.connected = false
		d.mu.Unlock()
		if onDisc != nil {
			onDisc()
		}
		return nil
	}

	response := d.computeResponse(request)

	if d.consumeCRCError() {
		response = corruptCRC(response)
	}

	if d.consumeTimeout() {
		return nil // no notification emitted: the caller's deadline fires
	}

	if sub == nil {
		return nil
	}
	if sessionKey != nil {
		wrapped, err := crypto.EncodeFrame(sessionKey, nil, response)
		if err != nil {
			return nil
		}
		response = wrapped
	}
	d.emit(response)
	return nil
}

func (d *Device) emit(payload []byte) {
	d.mu.Lock()
	sub := d.subscriber
	d.mu.Unlock()
	if sub != nil {
		sub(payload)
	}
}

func (d *Device) consumeTimeout() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timeouts > 0 {
		d.timeouts--
		return true
	}
	return false
}

func (d *Device) consumeCRCError() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.crcErrors > 0 {
		d.crcErrors--
		return true
	}
	return false
}

func (d *Device) consumeConnectionError() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectionErrors > 0 {
		d.connectionErrors--
		return true
	}
	return false
}

func (d *Device) consumeCanned() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.canned) == 0 {
		return nil, false
	}
	resp := d.canned[0]
	d.canned = d.canned[1:]
	return resp, true
}

// corruptCRC flips the low bit of the frame's trailing CRC byte,
// guaranteed to fail the CRC check on the receiving end.
func corruptCRC(frame []byte) []byte {
	if len(frame) == 0 {
		return frame
	}
	out := append([]byte(nil), frame...)
	out[len(out)-1] ^= 0x01
	return out
}

// computeResponse parses request as a MODBUS frame and builds the
// response a real power station would give, honoring readable/writable
// ranges and any queued canned response.
func (d *Device) computeResponse(request []byte) []byte {
	if canned, ok := d.consumeCanned(); ok {
		return canned
	}
	if len(request) < 6 {
		return corruptCRC(append([]byte(nil), request...))
	}

	funcCode := request[1]
	addr := uint16(request[2])<<8 | uint16(request[3])

	switch funcCode {
	case modbus.FuncReadHoldingRegisters:
		qty := int(uint16(request[4])<<8 | uint16(request[5]))
		if !d.isReadable(addr, qty) {
			return exceptionResponse(funcCode, illegalDataAddress)
		}
		values := make([]byte, 0, 2*qty)
		d.mu.Lock()
		for i := 0; i < qty; i++ {
			v := d.registers[addr+uint16(i)]
			values = append(values, byte(v>>8), byte(v))
		}
		d.mu.Unlock()
		body := append([]byte{modbus.SlaveAddress, funcCode, byte(len(values))}, values...)
		return appendCRC(body)

	case modbus.FuncWriteSingleRegister:
		if !d.isWritable(addr, 1) {
			return exceptionResponse(funcCode, illegalDataAddress)
		}
		value := uint16(request[4])<<8 | uint16(request[5])
		d.mu.Lock()
		d.registers[addr] = value
		d.mu.Unlock()
		return appendCRC(append([]byte(nil), request[:len(request)-2]...))

	case modbus.FuncWriteMultipleRegisters:
		qty := int(uint16(request[4])<<8 | uint16(request[5]))
		if !d.isWritable(addr, qty) {
			return exceptionResponse(funcCode, illegalDataAddress)
		}
		byteCount := int(request[6])
		payload := request[7 : 7+byteCount]
		d.mu.Lock()
		for i := 0; i < qty; i++ {
			v := uint16(payload[2*i])<<8 | uint16(payload[2*i+1])
			d.registers[addr+uint16(i)] = v
		}
		d.mu.Unlock()
		body := []byte{
			modbus.SlaveAddress, funcCode,
			byte(addr >> 8), byte(addr),
			byte(qty >> 8), byte(qty),
		}
		return appendCRC(body)

	default:
		return exceptionResponse(funcCode, 0x01) // illegal function
	}
}

func exceptionResponse(funcCode, code byte) []byte {
	body := []byte{modbus.SlaveAddress, funcCode | 0x80, code}
	return appendCRC(body)
}

func appendCRC(frame []byte) []byte {
	crc := modbus.CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}
