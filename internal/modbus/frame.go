package modbus

import "fmt"

// SlaveAddress is the fixed MODBUS unit address the power station answers
// to (spec constant, not configurable — it never operates as a multi-drop
// bus).
const SlaveAddress = 0x01

// Function codes this client supports. The power station is not a
// general-purpose MODBUS server: only holding-register access is in
// scope.
const (
	FuncReadHoldingRegisters  byte = 0x03
	FuncWriteSingleRegister   byte = 0x06
	FuncWriteMultipleRegisters byte = 0x10
)

const exceptionBit = 0x80

// BuildReadHoldingRegisters builds a Read Holding Registers (0x03) request
// frame for qty registers starting at addr.
func BuildReadHoldingRegisters(addr uint16, qty uint16) []byte {
	frame := []byte{
		SlaveAddress,
		FuncReadHoldingRegisters,
		byte(addr >> 8), byte(addr),
		byte(qty >> 8), byte(qty),
	}
	return appendCRC(frame)
}

// BuildWriteSingleRegister builds a Write Single Register (0x06) request
// frame writing value to addr.
func BuildWriteSingleRegister(addr uint16, value uint16) []byte {
	frame := []byte{
		SlaveAddress,
		FuncWriteSingleRegister,
		byte(addr >> 8), byte(addr),
		byte(value >> 8), byte(value),
	}
	return appendCRC(frame)
}

// BuildWriteMultipleRegisters builds a Write Multiple Registers (0x10)
// request frame writing data (a sequence of big-endian 2-byte register
// values) starting at addr. len(data) must be even.
func BuildWriteMultipleRegisters(addr uint16, data []byte) ([]byte, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("modbus: write multiple: odd data length %d", len(data))
	}
	qty := len(data) / 2
	frame := []byte{
		SlaveAddress,
		FuncWriteMultipleRegisters,
		byte(addr >> 8), byte(addr),
		byte(qty >> 8), byte(qty),
		byte(len(data)),
	}
	frame = append(frame, data...)
	return appendCRC(frame), nil
}

// ParseResponse validates response against the request that produced it
// and returns the response's payload bytes: the register data after the
// byte-count field for reads, the two value bytes for Write Single
// Register, and the address and quantity bytes for Write Multiple
// Registers.
//
// Validation order, per spec: (1) minimum length, (2) CRC, (3) exception
// bit, (4) function code matches the request, (5) size consistent with
// the request.
func ParseResponse(request, response []byte) ([]byte, error) {
	if len(response) < 3 {
		return nil, ErrChecksum
	}
	if !checkCRC(response) {
		return nil, ErrChecksum
	}

	respFunc := response[1]
	if respFunc&exceptionBit != 0 {
		if len(response) < 5 {
			return nil, ErrChecksum
		}
		return nil, &ModbusException{Code: response[2]}
	}

	reqFunc := request[1]
	if respFunc != reqFunc {
		return nil, ErrChecksum
	}

	switch reqFunc {
	case FuncReadHoldingRegisters:
		qty := uint16(request[4])<<8 | uint16(request[5])
		wantLen := 2*int(qty) + 5
		if len(response) != wantLen {
			return nil, ErrChecksum
		}
		return response[3 : len(response)-2], nil

	case FuncWriteSingleRegister:
		if len(response) != len(request) {
			return nil, ErrChecksum
		}
		for i := 0; i < len(request)-2; i++ {
			if response[i] != request[i] {
				return nil, ErrChecksum
			}
		}
		return response[4:6], nil

	case FuncWriteMultipleRegisters:
		if len(response) != 8 {
			return nil, ErrChecksum
		}
		for i := 2; i < 6; i++ {
			if response[i] != request[i] {
				return nil, ErrChecksum
			}
		}
		return response[2:6], nil

	default:
		return nil, fmt.Errorf("modbus: unsupported function code 0x%02x", reqFunc)
	}
}
