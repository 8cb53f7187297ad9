package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"math/big"
)

// KeyBundle holds the three caller-supplied inputs the handshake needs:
// a P-256 ECDSA signing key (this peer's), a P-256 ECDSA verify key (the
// peer's), and a 16-byte shared secret symmetric between both sides.
type KeyBundle struct {
	SigningKey   *ecdsa.PrivateKey
	VerifyKey    *ecdsa.PublicKey
	SharedSecret []byte // 16 bytes
}

// NewKeyBundle imports a KeyBundle from the three hex-encoded inputs
// described by spec §6: a 64-hex-char (32-byte) raw P-256 scalar for the
// signing key, a DER-encoded SubjectPublicKeyInfo for the verify key, and
// a 32-hex-char (16-byte) shared secret.
func NewKeyBundle(signingKeyHex, verifyKeyHex, sharedSecretHex string) (*KeyBundle, error) {
	signingKey, err := ImportSigningKey(signingKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: import signing key: %w", err)
	}
	verifyKey, err := ImportVerifyKey(verifyKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: import verify key: %w", err)
	}
	secret, err := hex.DecodeString(sharedSecretHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode shared secret: %w", err)
	}
	if len(secret) != 16 {
		return nil, fmt.Errorf("crypto: shared secret must be 16 bytes, got %d", len(secret))
	}
	return &KeyBundle{SigningKey: signingKey, VerifyKey: verifyKey, SharedSecret: secret}, nil
}

// ImportSigningKey imports a raw 32-byte P-256 scalar (64 hex chars) as an
// ECDSA private key, deriving the public point by scalar-multiplying the
// curve base point — the Go equivalent of wrapping the raw scalar in a
// PKCS#8 container for import.
func ImportSigningKey(hexScalar string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(hexScalar)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signing key must be 32 bytes, got %d", len(raw))
	}

	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = new(big.Int).SetBytes(raw)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(raw)
	return priv, nil
}

// ImportVerifyKey imports a DER-encoded SubjectPublicKeyInfo as an ECDSA
// public key.
func ImportVerifyKey(hexDER string) (*ecdsa.PublicKey, error) {
	der, err := hex.DecodeString(hexDER)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse SubjectPublicKeyInfo: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("verify key is not an ECDSA public key")
	}
	return ecPub, nil
}
