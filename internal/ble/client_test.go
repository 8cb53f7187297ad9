package ble_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"testing"
	"time"

	"github.com/fieldwire-iot/pwrscan-ble/internal/ble"
	pcrypto "github.com/fieldwire-iot/pwrscan-ble/internal/crypto"
	"github.com/fieldwire-iot/pwrscan-ble/internal/mockdevice"
)

// pairedBundles builds two KeyBundles — one for the device (mock,
// initiator role), one for the client (responder role) — that can
// complete a handshake with each other.
func pairedBundles(t *testing.T) (deviceBundle, clientBundle *pcrypto.KeyBundle) {
	t.Helper()
	deviceKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}

	deviceDER, err := x509.MarshalPKIXPublicKey(&deviceKey.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}
	clientDER, err := x509.MarshalPKIXPublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}

	deviceBundle, err = pcrypto.NewKeyBundle(
		hex.EncodeToString(deviceKey.D.FillBytes(make([]byte, 32))),
		hex.EncodeToString(clientDER),
		hex.EncodeToString(secret),
	)
	if err != nil {
		t.Fatalf("NewKeyBundle(device) error = %v", err)
	}
	clientBundle, err = pcrypto.NewKeyBundle(
		hex.EncodeToString(clientKey.D.FillBytes(make([]byte, 32))),
		hex.EncodeToString(deviceDER),
		hex.EncodeToString(secret),
	)
	if err != nil {
		t.Fatalf("NewKeyBundle(client) error = %v", err)
	}
	return deviceBundle, clientBundle
}

func TestClientConnectsPlaintext(t *testing.T) {
	d := mockdevice.New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)

	client := ble.NewClient(mockdevice.NewAdapter(d), d.Handle(), nil, ble.DefaultClientOptions())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	if client.IsEncrypted() {
		t.Error("expected a plaintext session")
	}
}

func TestClientCompletesEncryptedHandshake(t *testing.T) {
	deviceBundle, clientBundle := pairedBundles(t)
	d := mockdevice.New("dev-1", "PowerStation", deviceBundle)
	d.AddReadableRange(0, 10)
	d.SetRegister(0, 0x4242)

	opts := ble.DefaultClientOptions()
	opts.EncryptionWindow = 200 * time.Millisecond
	client := ble.NewClient(mockdevice.NewAdapter(d), d.Handle(), clientBundle, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	if !client.IsEncrypted() {
		t.Fatal("expected an encrypted session after the handshake")
	}

	data, err := client.ReadRegisters(ctx, 0, 1)
	if err != nil {
		t.Fatalf("ReadRegisters() error = %v", err)
	}
	if len(data) != 2 || data[0] != 0x42 || data[1] != 0x42 {
		t.Errorf("ReadRegisters() = %x, want 4242", data)
	}
}

func TestClientRejectsSecondConcurrentRequest(t *testing.T) {
	d := mockdevice.New("dev-1", "PowerStation", nil)
	d.AddReadableRange(0, 10)
	d.QueueFailure(mockdevice.FailureTimeout, nil)

	opts := ble.DefaultClientOptions()
	opts.ResponseTimeout = 200 * time.Millisecond
	client := ble.NewClient(mockdevice.NewAdapter(d), d.Handle(), nil, opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Disconnect()

	go client.ReadRegisters(ctx, 0, 1) //nolint:errcheck // deliberately left in flight
	time.Sleep(20 * time.Millisecond)

	_, err := client.ReadRegisters(ctx, 0, 1)
	if err != ble.ErrConcurrency {
		t.Errorf("ReadRegisters() error = %v, want ErrConcurrency", err)
	}
}

func TestReadRegistersRejectsOversizedCountAsPacketTooLarge(t *testing.T) {
	d := mockdevice.New("dev-1", "PowerStation", nil)
	client := ble.NewClient(mockdevice.NewAdapter(d), d.Handle(), nil, ble.DefaultClientOptions())

	_, err := client.ReadRegisters(context.Background(), 0, 8)
	if err != ble.ErrPacketTooLarge {
		t.Errorf("ReadRegisters() error = %v, want ErrPacketTooLarge", err)
	}
}

func TestReadRegistersRejectsZeroCount(t *testing.T) {
	d := mockdevice.New("dev-1", "PowerStation", nil)
	client := ble.NewClient(mockdevice.NewAdapter(d), d.Handle(), nil, ble.DefaultClientOptions())

	_, err := client.ReadRegisters(context.Background(), 0, 0)
	if err != ble.ErrInvalidArgument {
		t.Errorf("ReadRegisters() error = %v, want ErrInvalidArgument", err)
	}
}
