package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

const rawSigLen = 64 // two 32-byte big-endian integers, r || s

// Sign produces a fixed-width 64-byte ECDSA-SHA256 signature (r‖s,
// big-endian, zero-padded) over message, matching the handshake's
// SERVER_PUBLIC_KEY / CLIENT_PUBLIC_KEY body layout.
func Sign(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	sig := make([]byte, rawSigLen)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// Verify checks a fixed-width 64-byte r‖s ECDSA-SHA256 signature produced
// by Sign.
func Verify(pub *ecdsa.PublicKey, message, sig []byte) bool {
	if len(sig) != rawSigLen {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	digest := sha256.Sum256(message)
	return ecdsa.Verify(pub, digest[:], r, s)
}
