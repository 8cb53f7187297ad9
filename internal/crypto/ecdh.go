package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// GenerateEphemeralKeyPair creates a new P-256 ECDH key pair for one
// handshake's key-exchange round.
func GenerateEphemeralKeyPair() (*ecdh.PrivateKey, *ecdh.PublicKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate ephemeral key: %w", err)
	}
	return priv, priv.PublicKey(), nil
}

// MarshalRawPublicKey returns the 64-byte X‖Y encoding of pub, matching
// the handshake's SERVER_PUBLIC_KEY / CLIENT_PUBLIC_KEY body layout (no
// compression prefix, unlike SEC1-compressed encodings).
func MarshalRawPublicKey(pub *ecdh.PublicKey) []byte {
	uncompressed := pub.Bytes() // 0x04 || X(32) || Y(32)
	raw := make([]byte, 64)
	copy(raw, uncompressed[1:])
	return raw
}

// ParseRawPublicKey parses a 64-byte X‖Y P-256 public key.
func ParseRawPublicKey(raw []byte) (*ecdh.PublicKey, error) {
	if len(raw) != 64 {
		return nil, fmt.Errorf("crypto: raw public key must be 64 bytes, got %d", len(raw))
	}
	uncompressed := make([]byte, 65)
	uncompressed[0] = 0x04
	copy(uncompressed[1:], raw)
	pub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse public key: %w", err)
	}
	return pub, nil
}

// DeriveSessionKey performs ECDH between priv and peerPub and returns the
// raw 32-byte shared secret, imported directly as the session AES-256-CBC
// key — no KDF stage, per spec.
func DeriveSessionKey(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("crypto: ECDH: %w", err)
	}
	return secret, nil
}
