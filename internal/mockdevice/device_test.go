package mockdevice

import (
	"context"
	"testing"
	"time"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
)

func dialDevice(t *testing.T, d *Device) *ble.Client {
	t.Helper()
	adapter := NewAdapter(d)
	client := ble.NewClient(adapter, d.Handle(), nil, ble.DefaultClientOptions())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

func TestPlaintextReadRegisters(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)
	d.SetRegister(5, 0xBEEF)

	client := dialDevice(t, d)
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := client.ReadRegisters(ctx, 5, 1)
	if err != nil {
		t.Fatalf("ReadRegisters() error = %v", err)
	}
	if len(data) != 2 || data[0] != 0xBE || data[1] != 0xEF {
		t.Errorf("ReadRegisters() = %x, want be ef", data)
	}
}

func TestUnreadableRangeReturnsException(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	client := dialDevice(t, d)
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.ReadRegisters(ctx, 100, 1)
	if err == nil {
		t.Fatal("expected an exception for an unreadable register")
	}
}

func TestWriteSingleRegister(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	d.AddWritableRange(0, 10)
	client := dialDevice(t, d)
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.WriteRegisters(ctx, 3, []byte{0x12, 0x34}); err != nil {
		t.Fatalf("WriteRegisters() error = %v", err)
	}
	if got := d.registers[3]; got != 0x1234 {
		t.Errorf("register[3] = %04x, want 1234", got)
	}
}

func TestQueuedTimeoutCausesClientTimeout(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)
	d.QueueFailure(FailureTimeout, nil)

	opts := ble.DefaultClientOptions()
	opts.ResponseTimeout = 50 * time.Millisecond
	adapter := NewAdapter(d)
	client := ble.NewClient(adapter, d.Handle(), nil, opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	_, err := client.ReadRegisters(ctx, 0, 1)
	if err != ble.ErrTimeout {
		t.Errorf("ReadRegisters() error = %v, want ErrTimeout", err)
	}
}

func TestQueuedCRCErrorCausesChecksumFailure(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)
	d.QueueFailure(FailureCRCError, nil)

	client := dialDevice(t, d)
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.ReadRegisters(ctx, 0, 1)
	if err == nil {
		t.Fatal("expected a checksum error")
	}
}

func TestQueuedConnectionErrorDisconnectsClient(t *testing.T) {
	d := New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)
	d.QueueFailure(FailureConnectionError, nil)

	client := dialDevice(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.ReadRegisters(ctx, 0, 1)
	if err == nil {
		t.Fatal("expected an error from the injected connection drop")
	}
	if client.IsConnected() {
		t.Error("expected the client to be Detached after a connection error")
	}
}
