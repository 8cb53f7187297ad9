// Package handshake implements the six-state encryption handshake: a
// challenge/response round keyed by a shared secret, followed by an ECDH
// exchange of signed ephemeral P-256 keys, yielding a session AES key.
package handshake

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"io"

	pcrypto "github.com/fieldwire-iot/pwrscan-ble/internal/crypto"
)

// Role identifies which side of the handshake this Engine drives. The
// device is always the initiator (it owns the random challenge); the host
// application is always the responder.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Phase reports whether handshake traffic is still wrapped under the
// challenge-round key (it is, for the whole handshake — only subsequent
// MODBUS traffic switches to the session key) or the handshake is done.
type Phase int

const (
	PhaseChallenge Phase = iota
	PhaseComplete
)

// Engine drives one side of the handshake state machine. It is not safe
// for concurrent use.
type Engine struct {
	role   Role
	bundle *pcrypto.KeyBundle

	step int // messages fully processed so far; see Advance's dispatch table

	challenge []byte // initiator's 4-byte C
	aesIV     []byte // 16 bytes, MD5(reverse(C))
	aesKey    []byte // 16 bytes, aesIV XOR shared secret

	ephPriv    *ecdh.PrivateKey
	ephPub     *ecdh.PublicKey
	peerEphPub *ecdh.PublicKey

	sessionKey []byte

	phase Phase
}

// NewInitiator returns an Engine acting as the device side of the
// handshake (owns the challenge, drives states 1/3/4/6).
func NewInitiator(bundle *pcrypto.KeyBundle) *Engine {
	return &Engine{role: RoleInitiator, bundle: bundle}
}

// NewResponder returns an Engine acting as the host side of the
// handshake (drives states 2/5).
func NewResponder(bundle *pcrypto.KeyBundle) *Engine {
	return &Engine{role: RoleResponder, bundle: bundle}
}

// IsComplete reports whether the session key has been derived.
func (e *Engine) IsComplete() bool { return e.phase == PhaseComplete }

// NeedsContinuation reports whether the driver should call Advance(nil)
// again immediately, without waiting for a reply. States 3
// (CHALLENGE_ACCEPTED) and 4 (SERVER_PUBLIC_KEY) are both sent by the
// initiator back to back — the responder doesn't acknowledge state 3
// before state 4 arrives — so nothing external triggers the second
// send.
func (e *Engine) NeedsContinuation() bool {
	return e.role == RoleInitiator && e.step == 3 && e.phase != PhaseComplete
}

// SessionKey returns the derived 32-byte session AES-CBC key. Valid only
// after IsComplete returns true.
func (e *Engine) SessionKey() []byte { return e.sessionKey }

// Advance drives the state machine forward one step. Pass nil to produce
// the next unsolicited message (only valid for the initiator, for states
// 1 and 4); pass a received wire frame to react to one.
// It returns the next outgoing wire frame (nil if this step produces no
// reply) and an error if the incoming frame is invalid.
func (e *Engine) Advance(incoming []byte) ([]byte, error) {
	if e.role == RoleInitiator {
		return e.advanceInitiator(incoming)
	}
	return e.advanceResponder(incoming)
}

func (e *Engine) advanceInitiator(incoming []byte) ([]byte, error) {
	switch e.step {
	case 0: // produce state 1
		challenge := make([]byte, 4)
		if _, err := io.ReadFull(rand.Reader, challenge); err != nil {
			return nil, fmt.Errorf("handshake: generate challenge: %w", err)
		}
		e.challenge = challenge
		e.deriveChallengeKeys()

		out, err := MarshalMessage(StateChallenge, challenge)
		if err != nil {
			return nil, err
		}
		e.step = 1
		return out, nil

	case 1: // receive state 2, produce state 3
		state, body, err := UnmarshalMessage(incoming)
		if err != nil {
			return nil, err
		}
		if state != StateChallengeResponse {
			return nil, ErrHandshakeSequence
		}
		if len(body) != 4 {
			return nil, ErrHandshakeFormat
		}
		ownProof := e.aesIV[8:12]
		accept := byte(0x00)
		if string(body) != string(ownProof) {
			accept = 0x01
		}

		if err := e.generateEphemeral(); err != nil {
			return nil, err
		}

		msg, err := MarshalMessage(StateChallengeAccepted, []byte{accept})
		if err != nil {
			return nil, err
		}
		out, err := e.wrap(msg)
		if err != nil {
			return nil, err
		}
		e.step = 3
		if accept != 0x00 {
			return out, ErrHandshakeRejected
		}
		return out, nil

	case 3: // produce state 4
		sig, err := pcrypto.Sign(e.bundle.SigningKey, e.signedMessage(e.ephPub))
		if err != nil {
			return nil, fmt.Errorf("handshake: sign: %w", err)
		}
		body := append(pcrypto.MarshalRawPublicKey(e.ephPub), sig...)
		msg, err := MarshalMessage(StateServerPublicKey, body)
		if err != nil {
			return nil, err
		}
		out, err := e.wrap(msg)
		if err != nil {
			return nil, err
		}
		e.step = 4
		return out, nil

	case 4: // receive state 5, produce state 6
		unwrapped, err := e.unwrap(incoming)
		if err != nil {
			return nil, err
		}
		state, body, err := UnmarshalMessage(unwrapped)
		if err != nil {
			return nil, err
		}
		if state != StateClientPublicKey {
			return nil, ErrHandshakeSequence
		}
		if len(body) != 128 {
			return nil, ErrHandshakeFormat
		}
		peerPubRaw, sig := body[:64], body[64:]
		peerPub, err := pcrypto.ParseRawPublicKey(peerPubRaw)
		if err != nil {
			return nil, fmt.Errorf("handshake: parse peer public key: %w", err)
		}
		if !pcrypto.Verify(e.bundle.VerifyKey, e.signedMessage(peerPub), sig) {
			return nil, ErrHandshakeAuth
		}
		e.peerEphPub = peerPub

		sessionKey, err := pcrypto.DeriveSessionKey(e.ephPriv, e.peerEphPub)
		if err != nil {
			return nil, fmt.Errorf("handshake: derive session key: %w", err)
		}
		e.sessionKey = sessionKey

		msg, err := MarshalMessage(StateECDHAccepted, []byte{0x00})
		if err != nil {
			return nil, err
		}
		out, err := e.wrap(msg)
		if err != nil {
			return nil, err
		}
		e.step = 6
		e.phase = PhaseComplete
		return out, nil

	default:
		return nil, ErrHandshakeSequence
	}
}

func (e *Engine) advanceResponder(incoming []byte) ([]byte, error) {
	switch e.step {
	case 0: // receive state 1, produce state 2
		state, body, err := UnmarshalMessage(incoming)
		if err != nil {
			return nil, err
		}
		if state != StateChallenge {
			return nil, ErrHandshakeSequence
		}
		if len(body) != 4 {
			return nil, ErrHandshakeFormat
		}
		e.challenge = body
		e.deriveChallengeKeys()

		msg, err := MarshalMessage(StateChallengeResponse, e.aesIV[8:12])
		if err != nil {
			return nil, err
		}
		e.step = 2
		return msg, nil

	case 2: // receive state 3 (no reply)
		unwrapped, err := e.unwrap(incoming)
		if err != nil {
			return nil, err
		}
		state, body, err := UnmarshalMessage(unwrapped)
		if err != nil {
			return nil, err
		}
		if state != StateChallengeAccepted {
			return nil, ErrHandshakeSequence
		}
		if len(body) < 1 {
			return nil, ErrHandshakeFormat
		}
		e.step = 3
		if body[0] != 0x00 {
			return nil, ErrHandshakeRejected
		}
		if err := e.generateEphemeral(); err != nil {
			return nil, err
		}
		return nil, nil

	case 3: // receive state 4, produce state 5
		unwrapped, err := e.unwrap(incoming)
		if err != nil {
			return nil, err
		}
		state, body, err := UnmarshalMessage(unwrapped)
		if err != nil {
			return nil, err
		}
		if state != StateServerPublicKey {
			return nil, ErrHandshakeSequence
		}
		if len(body) != 128 {
			return nil, ErrHandshakeFormat
		}
		peerPubRaw, sig := body[:64], body[64:]
		peerPub, err := pcrypto.ParseRawPublicKey(peerPubRaw)
		if err != nil {
			return nil, fmt.Errorf("handshake: parse peer public key: %w", err)
		}
		if !pcrypto.Verify(e.bundle.VerifyKey, e.signedMessage(peerPub), sig) {
			return nil, ErrHandshakeAuth
		}
		e.peerEphPub = peerPub

		sig2, err := pcrypto.Sign(e.bundle.SigningKey, e.signedMessage(e.ephPub))
		if err != nil {
			return nil, fmt.Errorf("handshake: sign: %w", err)
		}
		replyBody := append(pcrypto.MarshalRawPublicKey(e.ephPub), sig2...)
		msg, err := MarshalMessage(StateClientPublicKey, replyBody)
		if err != nil {
			return nil, err
		}
		out, err := e.wrap(msg)
		if err != nil {
			return nil, err
		}
		e.step = 5
		return out, nil

	case 5: // receive state 6 (no reply)
		unwrapped, err := e.unwrap(incoming)
		if err != nil {
			return nil, err
		}
		state, body, err := UnmarshalMessage(unwrapped)
		if err != nil {
			return nil, err
		}
		if state != StateECDHAccepted {
			return nil, ErrHandshakeSequence
		}
		if len(body) < 1 {
			return nil, ErrHandshakeFormat
		}
		e.step = 6
		if body[0] != 0x00 {
			return nil, ErrHandshakeRejected
		}

		sessionKey, err := pcrypto.DeriveSessionKey(e.ephPriv, e.peerEphPub)
		if err != nil {
			return nil, fmt.Errorf("handshake: derive session key: %w", err)
		}
		e.sessionKey = sessionKey
		e.phase = PhaseComplete
		return nil, nil

	default:
		return nil, ErrHandshakeSequence
	}
}

// deriveChallengeKeys computes aesIV = MD5(reverse(C)) and
// aesKey = aesIV XOR shared_secret from e.challenge.
func (e *Engine) deriveChallengeKeys() {
	e.aesIV = pcrypto.DeriveIV(pcrypto.ReverseBytes(e.challenge))
	e.aesKey = pcrypto.XORBytes(e.aesIV, e.bundle.SharedSecret)
}

func (e *Engine) generateEphemeral() error {
	priv, pub, err := pcrypto.GenerateEphemeralKeyPair()
	if err != nil {
		return fmt.Errorf("handshake: generate ephemeral key: %w", err)
	}
	e.ephPriv, e.ephPub = priv, pub
	return nil
}

// signedMessage builds the pubkey‖aes_iv payload that SERVER_PUBLIC_KEY /
// CLIENT_PUBLIC_KEY signatures cover.
func (e *Engine) signedMessage(pub *ecdh.PublicKey) []byte {
	return append(pcrypto.MarshalRawPublicKey(pub), e.aesIV...)
}

// wrap encrypts a handshake message under the challenge-round key/IV —
// states 3 through 6 are always carried inside the AES-CBC transport
// codec with an explicit (non-random) IV.
func (e *Engine) wrap(plaintext []byte) ([]byte, error) {
	return pcrypto.EncodeFrame(e.aesKey, e.aesIV, plaintext)
}

func (e *Engine) unwrap(frame []byte) ([]byte, error) {
	plaintext, err := pcrypto.DecodeFrame(e.aesKey, e.aesIV, frame)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
