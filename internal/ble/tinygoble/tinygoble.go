// Package tinygoble binds internal/ble's Adapter/Connection/
// Characteristic interfaces to tinygo.org/x/bluetooth, giving the client
// a real cross-platform (BlueZ on Linux, CoreBluetooth on macOS,
// WinRT on Windows) GATT transport rather than only a test fake.
package tinygoble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
)

var (
	serviceUUID = mustParseUUID(ble.ServiceUUID)
	writeUUID   = mustParseUUID(ble.WriteCharUUID)
	notifyUUID  = mustParseUUID(ble.NotifyCharUUID)
)

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("tinygoble: invalid UUID %q: %v", s, err))
	}
	return uuid
}

// Adapter wraps the host's default bluetooth.Adapter.
type Adapter struct {
	adapter *bluetooth.Adapter

	mu        sync.Mutex
	disconnCb map[string]func()
}

// NewAdapter enables and returns the default platform Bluetooth adapter.
func NewAdapter() (*Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("tinygoble: enable adapter: %w", err)
	}
	a := &Adapter{adapter: adapter, disconnCb: make(map[string]func())}
	adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.mu.Lock()
		cb := a.disconnCb[dev.Address.String()]
		delete(a.disconnCb, dev.Address.String())
		a.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	return a, nil
}

// Scan advertises-scans for the power station's GATT service until one
// peripheral is found or ctx is cancelled.
func (a *Adapter) Scan(ctx context.Context) ([]ble.DeviceHandle, error) {
	found := make(chan ble.DeviceHandle, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			for _, uuid := range result.AdvertisementPayload.ServiceUUIDs() {
				if uuid == serviceUUID {
					adapter.StopScan()
					found <- ble.DeviceHandle{
						ID:   result.Address.String(),
						Name: result.LocalName(),
					}
					return
				}
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	select {
	case handle := <-found:
		return []ble.DeviceHandle{handle}, nil
	case err := <-scanErr:
		return nil, fmt.Errorf("tinygoble: scan: %w", err)
	case <-ctx.Done():
		a.adapter.StopScan()
		return nil, ctx.Err()
	}
}

// Connect connects to handle and returns a ble.Connection bound to it.
func (a *Adapter) Connect(ctx context.Context, handle ble.DeviceHandle) (ble.Connection, error) {
	address, err := bluetooth.ParseMAC(handle.ID)
	if err != nil {
		return nil, fmt.Errorf("tinygoble: parse address %q: %w", handle.ID, err)
	}
	device, err := a.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: address}}, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("tinygoble: connect: %w", err)
	}
	return &connection{adapter: a, device: device, addr: handle.ID}, nil
}

type connection struct {
	adapter *Adapter
	device  bluetooth.Device
	addr    string
}

func (c *connection) DiscoverService(ctx context.Context, uuid string) (ble.Service, error) {
	want, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("tinygoble: parse service UUID: %w", err)
	}
	services, err := c.device.DiscoverServices([]bluetooth.UUID{want})
	if err != nil {
		return nil, fmt.Errorf("tinygoble: discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("tinygoble: service %q not found", uuid)
	}
	return &service{svc: services[0]}, nil
}

func (c *connection) OnDisconnect(fn func()) {
	c.adapter.mu.Lock()
	c.adapter.disconnCb[c.addr] = fn
	c.adapter.mu.Unlock()
}

func (c *connection) Disconnect() error {
	return c.device.Disconnect()
}

type service struct {
	svc bluetooth.DeviceService
}

func (s *service) Characteristic(uuid string) (ble.Characteristic, error) {
	want, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("tinygoble: parse characteristic UUID: %w", err)
	}
	chars, err := s.svc.DiscoverCharacteristics([]bluetooth.UUID{want})
	if err != nil {
		return nil, fmt.Errorf("tinygoble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("tinygoble: characteristic %q not found", uuid)
	}
	return &characteristic{char: chars[0]}, nil
}

type characteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *characteristic) WriteWithResponse(ctx context.Context, data []byte) error {
	_, err := c.char.Write(data)
	if err != nil {
		return fmt.Errorf("tinygoble: write: %w", err)
	}
	return nil
}

func (c *characteristic) Subscribe(fn func(payload []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		fn(buf)
	})
}

func (c *characteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
