package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pcrypto "github.com/fieldwire-iot/pwrscan-ble/internal/crypto"
	"github.com/fieldwire-iot/pwrscan-ble/internal/handshake"
	"github.com/fieldwire-iot/pwrscan-ble/internal/modbus"
)

// State is one of the Client's lifecycle states.
type State int

const (
	StateDetached State = iota
	StateConnecting
	StateIdle
	StateHandshaking
	StateReady
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ClientOptions carries the bit-exact tunables §6 fixes as defaults, kept
// overridable for tests.
type ClientOptions struct {
	ResponseTimeout        time.Duration
	EncryptionWindow       time.Duration
	MTU                    int
	MaxRegistersPerRequest int
}

// DefaultClientOptions returns the spec's bit-exact constants.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		ResponseTimeout:        5000 * time.Millisecond,
		EncryptionWindow:       500 * time.Millisecond,
		MTU:                    20,
		MaxRegistersPerRequest: 7,
	}
}

// Client is a single-flight MODBUS-over-BLE request/response engine. It
// owns the device handle and the in-flight response slot; only one
// request may be outstanding at a time (see slot.go).
type Client struct {
	adapter   Adapter
	handle    DeviceHandle
	keyBundle *pcrypto.KeyBundle
	opts      ClientOptions
	log       *slog.Logger

	mu              sync.Mutex
	state           State
	conn            Connection
	writeChar       Characteristic
	notifyChar      Characteristic
	inFlight        *slot
	sessionKey      []byte
	handshakeEngine *handshake.Engine
	handshakeDone   chan struct{}
	handshakeErr    error
	disconnectCh    chan struct{}
}

// NewClient builds a Client for handle. keyBundle may be nil, in which
// case the connection is never treated as encrypted regardless of what
// the peripheral sends.
func NewClient(adapter Adapter, handle DeviceHandle, keyBundle *pcrypto.KeyBundle, opts ClientOptions) *Client {
	return &Client{
		adapter:   adapter,
		handle:    handle,
		keyBundle: keyBundle,
		opts:      opts,
		log:       slog.Default().With("component", "ble"),
		state:     StateDetached,
	}
}

func (c *Client) ID() string          { return c.handle.ID }
func (c *Client) DeviceName() string  { return c.handle.Name }
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateDetached
}
func (c *Client) IsEncrypted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey != nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Debug("[BLE] state transition", "device", c.handle.ID, "state", s.String())
}

// Connect acquires GATT, discovers the service and characteristics,
// subscribes to notifications, and — if a key bundle was supplied —
// waits out the encryption-detection window and drives the handshake to
// completion.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDetached {
		c.mu.Unlock()
		return fmt.Errorf("ble: connect: %w", ErrConcurrency)
	}
	c.state = StateConnecting
	c.handshakeDone = make(chan struct{})
	c.disconnectCh = make(chan struct{})
	handshakeDone, disconnectCh := c.handshakeDone, c.disconnectCh
	c.mu.Unlock()
	c.log.Info("[BLE] connecting", "device", c.handle.ID)

	conn, err := c.adapter.Connect(ctx, c.handle)
	if err != nil {
		c.setState(StateDetached)
		return fmt.Errorf("ble: connect: %w", err)
	}
	conn.OnDisconnect(c.handleDisconnect)

	service, err := conn.DiscoverService(ctx, ServiceUUID)
	if err != nil {
		conn.Disconnect()
		c.setState(StateDetached)
		return fmt.Errorf("ble: discover service: %w", err)
	}
	writeChar, err := service.Characteristic(WriteCharUUID)
	if err != nil {
		conn.Disconnect()
		c.setState(StateDetached)
		return fmt.Errorf("ble: resolve write characteristic: %w", err)
	}
	notifyChar, err := service.Characteristic(NotifyCharUUID)
	if err != nil {
		conn.Disconnect()
		c.setState(StateDetached)
		return fmt.Errorf("ble: resolve notify characteristic: %w", err)
	}

	c.mu.Lock()
	c.conn, c.writeChar, c.notifyChar = conn, writeChar, notifyChar
	c.mu.Unlock()

	if err := notifyChar.Subscribe(c.onNotification); err != nil {
		conn.Disconnect()
		c.setState(StateDetached)
		return fmt.Errorf("ble: subscribe: %w", err)
	}

	if c.keyBundle == nil {
		c.setState(StateReady)
		c.log.Info("[BLE] ready (plaintext)", "device", c.handle.ID)
		return nil
	}

	c.setState(StateIdle)
	timer := time.NewTimer(c.opts.EncryptionWindow)
	defer timer.Stop()
	windowC := timer.C

	for {
		select {
		case <-handshakeDone:
			c.mu.Lock()
			err := c.handshakeErr
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("ble: handshake: %w", err)
			}
			c.log.Info("[BLE] ready (encrypted)", "device", c.handle.ID)
			return nil
		case <-windowC:
			c.mu.Lock()
			idle := c.state == StateIdle
			if idle {
				c.state = StateReady
			}
			c.mu.Unlock()
			if idle {
				c.log.Info("[BLE] ready (plaintext, no challenge observed)", "device", c.handle.ID)
				return nil
			}
			// A challenge arrived inside the window: wait for the handshake.
			windowC = nil
		case <-disconnectCh:
			return fmt.Errorf("ble: connect: %w", ErrDisconnected)
		case <-ctx.Done():
			c.Disconnect()
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ErrCancelled
		}
	}
}

// Disconnect tears down the GATT link and clears session state.
// Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Disconnect()
	c.handleDisconnect()
	return err
}

// handleDisconnect is the shared teardown path for both an OS-signalled
// disconnect event and an explicit Disconnect() call: it clears
// characteristics and session state, wakes up any waiter on the
// handshake/disconnect channels, and rejects the in-flight slot if any.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	prevInFlight := c.inFlight
	c.inFlight = nil
	c.conn = nil
	c.writeChar = nil
	c.notifyChar = nil
	c.sessionKey = nil
	c.handshakeEngine = nil
	c.state = StateDetached
	if c.disconnectCh != nil {
		close(c.disconnectCh)
		c.disconnectCh = nil
	}
	c.mu.Unlock()
	if prevInFlight != nil {
		prevInFlight.resolve(nil, ErrDisconnected)
	}
	c.log.Info("[BLE] disconnected", "device", c.handle.ID)
}

// onNotification dispatches an inbound notification payload either to
// the in-flight response slot, or into the handshake engine when the
// connection is still detecting/running encryption.
func (c *Client) onNotification(payload []byte) {
	c.mu.Lock()
	if c.state == StateBusy && c.inFlight != nil {
		sl := c.inFlight
		c.mu.Unlock()
		sl.resolve(payload, nil)
		return
	}
	if c.state == StateHandshaking || (c.state == StateIdle && c.keyBundle != nil) {
		if c.handshakeEngine == nil {
			c.handshakeEngine = handshake.NewResponder(c.keyBundle)
			c.state = StateHandshaking
		}
		engine := c.handshakeEngine
		writeChar := c.writeChar
		c.mu.Unlock()
		c.driveHandshake(engine, writeChar, payload)
		return
	}
	c.mu.Unlock()
}

func (c *Client) driveHandshake(engine *handshake.Engine, writeChar Characteristic, incoming []byte) {
	out, err := engine.Advance(incoming)
	if err != nil {
		// A rejection still carries an outgoing frame (e.g. the
		// CHALLENGE_ACCEPTED message with a non-zero accept byte) —
		// send it best-effort before tearing the handshake down.
		if out != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.opts.ResponseTimeout)
			writeChar.WriteWithResponse(ctx, out) //nolint:errcheck // terminal regardless
			cancel()
		}
		c.finishHandshake(nil, err)
		return
	}
	if out != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ResponseTimeout)
		werr := writeChar.WriteWithResponse(ctx, out)
		cancel()
		if werr != nil {
			c.finishHandshake(nil, fmt.Errorf("write reply: %w", werr))
			return
		}
	}
	if engine.IsComplete() {
		c.finishHandshake(engine.SessionKey(), nil)
	}
}

func (c *Client) finishHandshake(sessionKey []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handshakeDone == nil {
		return
	}
	select {
	case <-c.handshakeDone:
		return
	default:
	}
	c.handshakeErr = err
	c.handshakeEngine = nil
	if err == nil {
		c.sessionKey = sessionKey
		c.state = StateReady
	} else {
		c.state = StateDetached
	}
	close(c.handshakeDone)
}

// ReadRegisters issues a Read Holding Registers request for count
// registers starting at start and returns the raw 2*count response
// bytes.
func (c *Client) ReadRegisters(ctx context.Context, start uint16, count uint8) ([]byte, error) {
	if count == 0 {
		return nil, ErrInvalidArgument
	}
	frame := modbus.BuildReadHoldingRegisters(start, uint16(count))
	if 2*int(count)+5 > c.opts.MTU {
		return nil, ErrPacketTooLarge
	}
	if int(count) > c.opts.MaxRegistersPerRequest {
		return nil, ErrInvalidArgument
	}
	resp, err := c.roundTrip(ctx, frame)
	if err != nil {
		return nil, err
	}
	return modbus.ParseResponse(frame, resp)
}

// WriteRegisters issues a Write Single Register or Write Multiple
// Registers request depending on len(data).
func (c *Client) WriteRegisters(ctx context.Context, start uint16, data []byte) error {
	if len(data) == 0 || len(data)%2 != 0 {
		return ErrInvalidArgument
	}

	var frame []byte
	if len(data) == 2 {
		frame = modbus.BuildWriteSingleRegister(start, uint16(data[0])<<8|uint16(data[1]))
	} else {
		built, err := modbus.BuildWriteMultipleRegisters(start, data)
		if err != nil {
			return fmt.Errorf("ble: write registers: %w", err)
		}
		frame = built
	}
	if len(frame) > c.opts.MTU {
		return ErrPacketTooLarge
	}

	resp, err := c.roundTrip(ctx, frame)
	if err != nil {
		return err
	}
	_, err = modbus.ParseResponse(frame, resp)
	return err
}

// roundTrip runs the request/response pipeline described in spec §4.4:
// auto-reconnect if Detached, enforce single-flight, optionally wrap
// under the session key, write, await the notification, unwrap.
func (c *Client) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateDetached {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	switch c.state {
	case StateBusy:
		c.mu.Unlock()
		return nil, ErrConcurrency
	case StateReady:
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("ble: round trip: %w", ErrDisconnected)
	}
	sl := newSlot()
	c.inFlight = sl
	c.state = StateBusy
	sessionKey := c.sessionKey
	writeChar := c.writeChar
	c.mu.Unlock()

	outgoing := frame
	if sessionKey != nil {
		wrapped, err := pcrypto.EncodeFrame(sessionKey, nil, frame)
		if err != nil {
			c.releaseSlot(sl)
			return nil, fmt.Errorf("ble: encode frame: %w", err)
		}
		outgoing = wrapped
	}

	if err := writeChar.WriteWithResponse(ctx, outgoing); err != nil {
		c.releaseSlot(sl)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(c.opts.ResponseTimeout)
	defer timer.Stop()
	abort := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-timer.C:
		case <-sl.ch:
			return
		}
		close(abort)
	}()

	payload, err := sl.wait(abort)
	c.releaseSlot(sl)
	if err != nil {
		if err == ErrDisconnected {
			return nil, ErrDisconnected
		}
		if ctx.Err() == context.Canceled {
			return nil, ErrCancelled
		}
		return nil, ErrTimeout
	}

	if sessionKey != nil {
		plain, derr := pcrypto.DecodeFrame(sessionKey, nil, payload)
		if derr != nil {
			return nil, fmt.Errorf("ble: decode frame: %w", derr)
		}
		return plain, nil
	}
	return payload, nil
}

func (c *Client) releaseSlot(sl *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == sl {
		c.inFlight = nil
		if c.state == StateBusy {
			c.state = StateReady
		}
	}
}
