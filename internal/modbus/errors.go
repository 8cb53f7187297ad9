package modbus

import (
	"errors"
	"fmt"
)

// ErrChecksum is returned for CRC mismatches, truncated frames, a
// response function code that doesn't match the request, or a response
// size inconsistent with the request.
var ErrChecksum = errors.New("modbus: checksum")

// ModbusException represents a device-reported MODBUS exception response
// (function byte with the high bit set, one exception code byte).
type ModbusException struct {
	Code byte
}

func (e *ModbusException) Error() string {
	return fmt.Sprintf("modbus: exception: %d", e.Code)
}
