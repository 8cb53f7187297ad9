package mockdevice

import (
	"context"
	"fmt"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
)

// Adapter adapts a Device to the ble.Adapter interface so tests can
// drive a Client against it without a real GATT stack.
type Adapter struct {
	device *Device
}

// NewAdapter returns a ble.Adapter that always discovers and connects to
// device.
func NewAdapter(device *Device) *Adapter {
	return &Adapter{device: device}
}

func (a *Adapter) Scan(ctx context.Context) ([]ble.DeviceHandle, error) {
	return []ble.DeviceHandle{a.device.Handle()}, nil
}

func (a *Adapter) Connect(ctx context.Context, handle ble.DeviceHandle) (ble.Connection, error) {
	if handle.ID != a.device.Handle().ID {
		return nil, fmt.Errorf("mockdevice: unknown device %q", handle.ID)
	}
	a.device.handleConnect()
	return &connection{device: a.device}, nil
}

type connection struct {
	device *Device
}

func (c *connection) DiscoverService(ctx context.Context, uuid string) (ble.Service, error) {
	if uuid != ble.ServiceUUID {
		return nil, fmt.Errorf("mockdevice: unknown service %q", uuid)
	}
	return &service{device: c.device}, nil
}

func (c *connection) OnDisconnect(fn func()) {
	c.device.mu.Lock()
	c.device.onDisconnect = fn
	c.device.mu.Unlock()
}

func (c *connection) Disconnect() error {
	c.device.mu.Lock()
	onDisc := c.device.onDisconnect
	c.device.connected = false
	c.device.mu.Unlock()
	if onDisc != nil {
		onDisc()
	}
	return nil
}

type service struct {
	device *Device
}

func (s *service) Characteristic(uuid string) (ble.Characteristic, error) {
	switch uuid {
	case ble.WriteCharUUID:
		return &writeCharacteristic{device: s.device}, nil
	case ble.NotifyCharUUID:
		return &notifyCharacteristic{device: s.device}, nil
	default:
		return nil, fmt.Errorf("mockdevice: unknown characteristic %q", uuid)
	}
}

type writeCharacteristic struct {
	device *Device
}

func (w *writeCharacteristic) WriteWithResponse(ctx context.Context, data []byte) error {
	return w.device.handleWrite(ctx, data)
}

func (w *writeCharacteristic) Subscribe(fn func([]byte)) error {
	return fmt.Errorf("mockdevice: write characteristic does not notify")
}

func (w *writeCharacteristic) Unsubscribe() error { return nil }

type notifyCharacteristic struct {
	device *Device
}

func (n *notifyCharacteristic) WriteWithResponse(ctx context.Context, data []byte) error {
	return fmt.Errorf("mockdevice: notify characteristic is not writable")
}

func (n *notifyCharacteristic) Subscribe(fn func([]byte)) error {
	n.device.handleSubscribe(fn)
	return nil
}

func (n *notifyCharacteristic) Unsubscribe() error {
	n.device.mu.Lock()
	n.device.subscriber = nil
	n.device.mu.Unlock()
	return nil
}
