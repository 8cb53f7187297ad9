package ble

import "context"

// ServiceUUID and characteristic UUIDs the power station exposes.
// ff02 accepts writes (commands outbound); ff01 notifies (responses and
// unsolicited handshake challenges inbound).
const (
	ServiceUUID      = "0000ff00-0000-1000-8000-00805f9b34fb"
	WriteCharUUID    = "0000ff02-0000-1000-8000-00805f9b34fb"
	NotifyCharUUID   = "0000ff01-0000-1000-8000-00805f9b34fb"
)

// DeviceHandle identifies one discovered peripheral without holding any
// GATT resources — cheap to keep around across reconnects.
type DeviceHandle struct {
	ID   string
	Name string
}

// Adapter is the OS/platform BLE binding this package drives. Discovering
// and connecting to a peripheral is the extent of what it's asked to do;
// parsing advertisement data beyond finding the target service is a
// non-goal left to the caller.
type Adapter interface {
	// Scan blocks until it finds at least one peripheral advertising
	// ServiceUUID, ctx is done, or an internal timeout elapses.
	Scan(ctx context.Context) ([]DeviceHandle, error)
	// Connect establishes a GATT connection to handle.
	Connect(ctx context.Context, handle DeviceHandle) (Connection, error)
}

// Connection is an established GATT link to one peripheral.
type Connection interface {
	// DiscoverService resolves the named GATT service.
	DiscoverService(ctx context.Context, uuid string) (Service, error)
	// OnDisconnect registers a callback fired exactly once when the OS
	// reports the link lost. Replacing a previous callback is undefined;
	// callers register at most one.
	OnDisconnect(fn func())
	// Disconnect tears down the link. Idempotent.
	Disconnect() error
}

// Service is one resolved GATT service.
type Service interface {
	// Characteristic resolves a named characteristic of this service.
	Characteristic(uuid string) (Characteristic, error)
}

// Characteristic is one resolved GATT characteristic.
type Characteristic interface {
	// WriteWithResponse writes data and waits for the peripheral's ACK
	// at the link layer (not an application-level response).
	WriteWithResponse(ctx context.Context, data []byte) error
	// Subscribe enables notifications and registers fn to be called with
	// each notification payload. Only one subscriber at a time.
	Subscribe(fn func(payload []byte)) error
	// Unsubscribe disables notifications and clears fn.
	Unsubscribe() error
}
