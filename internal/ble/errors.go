package ble

import "errors"

// ErrInvalidArgument is returned for malformed request parameters: a zero
// or odd-length write, or a register count outside 1..MaxRegistersPerRequest.
// A count whose response frame would exceed the MTU is reported as
// ErrPacketTooLarge instead, since that check runs first.
var ErrInvalidArgument = errors.New("ble: invalid argument")

// ErrPacketTooLarge is returned when a computed MODBUS frame would exceed
// the negotiated MTU, checked before any I/O.
var ErrPacketTooLarge = errors.New("ble: packet too large")

// ErrDisconnected is returned when the GATT connection is lost during an
// operation, or found already lost when one begins.
var ErrDisconnected = errors.New("ble: disconnected")

// ErrTimeout is returned when a caller-supplied deadline expires at any
// suspension point.
var ErrTimeout = errors.New("ble: timeout")

// ErrCancelled is returned when the caller's context is cancelled.
var ErrCancelled = errors.New("ble: cancelled")

// ErrConcurrency is returned when a second request is attempted while one
// is already in flight.
var ErrConcurrency = errors.New("ble: concurrent request")
